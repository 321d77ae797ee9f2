// Package channel implements CLI commands to inspect the event channel of a
// Trellis server.
package channel

import (
	"bytes"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/trellis-network/trellis-go/cli/options"
	"github.com/urfave/cli"
)

// NewCommands returns 'channel' command.
func NewCommands() []cli.Command {
	channelFlags := append([]cli.Flag{options.Config}, options.RPC...)
	return []cli.Command{{
		Name:  "channel",
		Usage: "inspect the real-time event channel of a server",
		Subcommands: []cli.Command{
			{
				Name:   "info",
				Usage:  "query event channel parameters",
				Action: channelInfo,
				Flags:  channelFlags,
			},
			{
				Name:   "ping",
				Usage:  "check connectivity to the RPC endpoint",
				Action: channelPing,
				Flags:  channelFlags,
			},
		},
	}}
}

func channelInfo(ctx *cli.Context) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	c, exitErr := options.GetRPCClient(ctx, cfg)
	if exitErr != nil {
		return exitErr
	}
	defer c.Close()

	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()

	info, err := c.GetEventChannel(gctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	buf := bytes.NewBuffer(nil)
	tw := tabwriter.NewWriter(buf, 0, 4, 4, '\t', 0)
	_, _ = tw.Write([]byte("Endpoint:\t" + c.Endpoint() + "\n"))
	if info.URL == "" {
		_, _ = tw.Write([]byte("Channel:\tdisabled\n"))
	} else {
		_, _ = tw.Write([]byte("Channel:\t" + info.URL + "\n"))
		if info.MaxActiveFilters > 0 {
			_, _ = tw.Write([]byte("MaxActiveFilters:\t" + strconv.Itoa(info.MaxActiveFilters) + "\n"))
		}
	}
	_ = tw.Flush()
	fmt.Fprint(ctx.App.Writer, buf.String())
	return nil
}

func channelPing(ctx *cli.Context) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	c, exitErr := options.GetRPCClient(ctx, cfg)
	if exitErr != nil {
		return exitErr
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to reach %s: %w", c.Endpoint(), err), 1)
	}
	fmt.Fprintf(ctx.App.Writer, "%s is reachable\n", c.Endpoint())
	return nil
}
