// Package config contains the configuration of tools built around the Trellis
// event channel. It's loaded from a YAML file and covers the RPC endpoint to
// bootstrap from, event channel tunables, local event journaling and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used if the config path is not specified explicitly.
const DefaultConfigPath = "./config/trellis.yml"

// Version is the version of the client, set at build time.
var Version string

type (
	// Config is the top-level client configuration.
	Config struct {
		RPC     RPC     `yaml:"RPC"`
		Channel Channel `yaml:"Channel"`
		Journal Journal `yaml:"Journal"`
		Logging Logging `yaml:"Logging"`
	}

	// RPC describes how to reach the one-shot JSON-RPC API of a Trellis
	// server. The event channel URL itself is resolved through this API.
	RPC struct {
		Endpoint        string        `yaml:"Endpoint"`
		DialTimeout     time.Duration `yaml:"DialTimeout"`
		RequestTimeout  time.Duration `yaml:"RequestTimeout"`
		MaxConnsPerHost int           `yaml:"MaxConnsPerHost"`
	}

	// Channel holds the event channel liveness tunables. Zero values mean
	// client defaults.
	Channel struct {
		HandshakeTimeout time.Duration `yaml:"HandshakeTimeout"`
		HeartbeatTimeout time.Duration `yaml:"HeartbeatTimeout"`
	}

	// Journal configures the local journal received events are appended to.
	Journal struct {
		Enabled bool   `yaml:"Enabled"`
		Path    string `yaml:"Path"`
	}

	// Logging contains logging-related settings.
	Logging struct {
		// LogLevel is a minimal logged messages level, one of zap levels
		// ("debug", "info", "warn", "error"). Empty means "info".
		LogLevel string `yaml:"LogLevel"`
		// LogPath is a file to write the log to, empty means stderr.
		LogPath string `yaml:"LogPath"`
	}
)

// Load attempts to load the config from the default path.
func Load() (Config, error) {
	return LoadFile(DefaultConfigPath)
}

// LoadFile loads the config from the given path, applying defaults for
// anything the file leaves out.
func LoadFile(configPath string) (Config, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}

	config := Config{
		RPC: RPC{
			DialTimeout:    4 * time.Second,
			RequestTimeout: 4 * time.Second,
		},
	}

	err = yaml.Unmarshal(configData, &config)
	if err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks Config for internal consistency. It returns an error if the
// configuration is invalid.
func (c Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return errors.New("RPC.Endpoint is not set")
	}
	if c.Channel.HandshakeTimeout < 0 || c.Channel.HeartbeatTimeout < 0 {
		return errors.New("channel timeouts can't be negative")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.New("Journal.Path is required when the journal is enabled")
	}
	return nil
}
