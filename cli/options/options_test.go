package options

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trellis-network/trellis-go/pkg/config"
	"github.com/urfave/cli"
	"go.uber.org/zap/zapcore"
)

func TestGetTimeoutContext(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		start := time.Now()
		set := flag.NewFlagSet("flagSet", flag.ExitOnError)
		ctx := cli.NewContext(cli.NewApp(), set, nil)
		actualCtx, cancel := GetTimeoutContext(ctx)
		defer cancel()
		end := time.Now()
		dl, _ := actualCtx.Deadline()
		require.True(t, start.Before(dl) && dl.Before(end.Add(DefaultTimeout)))
	})

	t.Run("set", func(t *testing.T) {
		start := time.Now()
		set := flag.NewFlagSet("flagSet", flag.ExitOnError)
		set.Duration("timeout", time.Duration(20), "")
		ctx := cli.NewContext(cli.NewApp(), set, nil)
		actualCtx, cancel := GetTimeoutContext(ctx)
		defer cancel()
		end := time.Now()
		dl, _ := actualCtx.Deadline()
		require.True(t, start.Before(dl) && dl.Before(end.Add(time.Nanosecond*20)))
	})
}

func TestGetRPCClient(t *testing.T) {
	t.Run("no endpoint", func(t *testing.T) {
		set := flag.NewFlagSet("flagSet", flag.ExitOnError)
		ctx := cli.NewContext(cli.NewApp(), set, nil)
		_, ec := GetRPCClient(ctx, config.Config{})
		require.Equal(t, 1, ec.ExitCode())
	})

	t.Run("from flag", func(t *testing.T) {
		set := flag.NewFlagSet("flagSet", flag.ExitOnError)
		set.String(RPCEndpointFlag, "http://localhost:20332", "")
		ctx := cli.NewContext(cli.NewApp(), set, nil)
		c, ec := GetRPCClient(ctx, config.Config{})
		require.Nil(t, ec)
		require.Equal(t, "http://localhost:20332", c.Endpoint())
	})

	t.Run("from config", func(t *testing.T) {
		set := flag.NewFlagSet("flagSet", flag.ExitOnError)
		ctx := cli.NewContext(cli.NewApp(), set, nil)
		c, ec := GetRPCClient(ctx, config.Config{RPC: config.RPC{Endpoint: "http://localhost:30333"}})
		require.Nil(t, ec)
		require.Equal(t, "http://localhost:30333", c.Endpoint())
	})
}

func TestGetChannelOptions(t *testing.T) {
	cfg := config.Config{Channel: config.Channel{
		HandshakeTimeout: 5 * time.Second,
		HeartbeatTimeout: 8 * time.Second,
	}}

	t.Run("config only", func(t *testing.T) {
		set := flag.NewFlagSet("flagSet", flag.ExitOnError)
		ctx := cli.NewContext(cli.NewApp(), set, nil)
		opts := GetChannelOptions(ctx, cfg, nil)
		require.Equal(t, 5*time.Second, opts.HandshakeTimeout)
		require.Equal(t, 8*time.Second, opts.HeartbeatTimeout)
	})

	t.Run("flags win", func(t *testing.T) {
		set := flag.NewFlagSet("flagSet", flag.ExitOnError)
		set.Duration("heartbeat-timeout", 0, "")
		require.NoError(t, set.Set("heartbeat-timeout", "1s"))
		ctx := cli.NewContext(cli.NewApp(), set, nil)
		opts := GetChannelOptions(ctx, cfg, nil)
		require.Equal(t, 5*time.Second, opts.HandshakeTimeout)
		require.Equal(t, time.Second, opts.HeartbeatTimeout)
	})
}

func TestGetConfigFromContext(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		set := flag.NewFlagSet("flagSet", flag.ExitOnError)
		ctx := cli.NewContext(cli.NewApp(), set, nil)
		cfg, err := GetConfigFromContext(ctx)
		require.NoError(t, err)
		require.Equal(t, config.Config{}, cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		set := flag.NewFlagSet("flagSet", flag.ExitOnError)
		set.String("config-file", filepath.Join(t.TempDir(), "nonexistent.yml"), "")
		ctx := cli.NewContext(cli.NewApp(), set, nil)
		_, err := GetConfigFromContext(ctx)
		require.Error(t, err)
	})
}

func TestHandleLoggingParams(t *testing.T) {
	t.Run("bad level", func(t *testing.T) {
		_, _, err := HandleLoggingParams(false, config.Logging{LogLevel: "super"})
		require.Error(t, err)
	})

	t.Run("default", func(t *testing.T) {
		log, level, err := HandleLoggingParams(false, config.Logging{})
		require.NoError(t, err)
		require.Equal(t, zapcore.InfoLevel, level.Level())
		require.False(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("debug overrides", func(t *testing.T) {
		log, level, err := HandleLoggingParams(true, config.Logging{LogLevel: "warn"})
		require.NoError(t, err)
		require.Equal(t, zapcore.DebugLevel, level.Level())
		require.True(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "trellis.log")
		log, _, err := HandleLoggingParams(false, config.Logging{LogPath: path})
		require.NoError(t, err)
		log.Info("test entry")
		require.NoError(t, log.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "test entry")
	})
}
