/*
Package options contains a set of common CLI options and helper functions to use them.
*/
package options

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/trellis-network/trellis-go/pkg/config"
	"github.com/trellis-network/trellis-go/pkg/eventclient"
	"github.com/trellis-network/trellis-go/pkg/rpcclient"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultTimeout is the default timeout used for RPC requests.
const DefaultTimeout = 10 * time.Second

// RPCEndpointFlag is a long flag name for an RPC endpoint. It can be used to
// check for flag presence in the context.
const RPCEndpointFlag = "rpc-endpoint"

// RPC is a set of flags used for RPC connections (endpoint and timeout).
var RPC = []cli.Flag{
	cli.StringFlag{
		Name:  RPCEndpointFlag + ", r",
		Usage: "RPC server address",
	},
	cli.DurationFlag{
		Name:  "timeout, s",
		Value: DefaultTimeout,
		Usage: "Timeout for the operation",
	},
}

// Channel is a set of flags tuning the event channel liveness timers.
var Channel = []cli.Flag{
	cli.DurationFlag{
		Name:  "handshake-timeout",
		Usage: "Time to wait for the channel websocket handshake to complete",
	},
	cli.DurationFlag{
		Name:  "heartbeat-timeout",
		Usage: "Time without a server ping after which the channel is considered dead",
	},
}

// Config is a flag for commands that read the client configuration file.
var Config = cli.StringFlag{
	Name:  "config-file",
	Usage: "path to the client configuration file",
}

// Debug is a flag for commands that allow debug mode usage.
var Debug = cli.BoolFlag{
	Name:  "debug, d",
	Usage: "enable debug logging (LOTS of output, overrides configuration)",
}

var errNoEndpoint = errors.New("no RPC endpoint specified, use option '--" + RPCEndpointFlag + "' or '-r'")

// GetTimeoutContext returns a context.Context with the default or a user-set timeout.
func GetTimeoutContext(ctx *cli.Context) (context.Context, func()) {
	dur := ctx.Duration("timeout")
	if dur == 0 {
		dur = DefaultTimeout
	}
	return context.WithTimeout(context.Background(), dur)
}

// GetConfigFromContext returns the config loaded from the file given with the
// config-file flag or an empty config if the flag is not set.
func GetConfigFromContext(ctx *cli.Context) (config.Config, error) {
	if configFile := ctx.String("config-file"); len(configFile) != 0 {
		return config.LoadFile(configFile)
	}
	return config.Config{}, nil
}

// GetRPCClient returns an RPC client instance for the given Context and
// loaded config. The rpc-endpoint flag overrides the config file.
func GetRPCClient(ctx *cli.Context, cfg config.Config) (*rpcclient.Client, cli.ExitCoder) {
	endpoint := ctx.String(RPCEndpointFlag)
	if len(endpoint) == 0 {
		endpoint = cfg.RPC.Endpoint
	}
	if len(endpoint) == 0 {
		return nil, cli.NewExitError(errNoEndpoint, 1)
	}
	c, err := rpcclient.New(endpoint, rpcclient.Options{
		DialTimeout:     cfg.RPC.DialTimeout,
		RequestTimeout:  cfg.RPC.RequestTimeout,
		MaxConnsPerHost: cfg.RPC.MaxConnsPerHost,
	})
	if err != nil {
		return nil, cli.NewExitError(err, 1)
	}
	return c, nil
}

// GetChannelOptions builds event channel options from the channel flags and
// the loaded config. Flags win over the config file, zero values mean client
// defaults.
func GetChannelOptions(ctx *cli.Context, cfg config.Config, log *zap.Logger) eventclient.ChannelOptions {
	opts := eventclient.ChannelOptions{
		HandshakeTimeout: cfg.Channel.HandshakeTimeout,
		HeartbeatTimeout: cfg.Channel.HeartbeatTimeout,
		Logger:           log,
	}
	if ctx.IsSet("handshake-timeout") {
		opts.HandshakeTimeout = ctx.Duration("handshake-timeout")
	}
	if ctx.IsSet("heartbeat-timeout") {
		opts.HeartbeatTimeout = ctx.Duration("heartbeat-timeout")
	}
	return opts
}

// HandleLoggingParams reads logging parameters.
// If a user selected debug level -- function enables it.
// If logPath is configured -- function creates a dir and a file for logging.
func HandleLoggingParams(debug bool, cfg config.Logging) (*zap.Logger, *zap.AtomicLevel, error) {
	var (
		level = zapcore.InfoLevel
		err   error
	)
	if len(cfg.LogLevel) > 0 {
		level, err = zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("log setting: %w", err)
		}
	}
	if debug {
		level = zapcore.DebugLevel
	}

	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cc.Encoding = "console"
	cc.Level = zap.NewAtomicLevelAt(level)
	cc.Sampling = nil

	if logPath := cfg.LogPath; logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cc.OutputPaths = []string{logPath}
	}

	log, err := cc.Build()
	return log, &cc.Level, err
}
