// Package app contains the main CLI application constructor.
package app

import (
	"fmt"
	"os"
	"runtime"

	"github.com/trellis-network/trellis-go/cli/channel"
	"github.com/trellis-network/trellis-go/cli/watch"
	"github.com/trellis-network/trellis-go/pkg/config"
	"github.com/urfave/cli"
)

func versionPrinter(c *cli.Context) {
	_, _ = fmt.Fprintf(c.App.Writer, "TrellisGo\nVersion: %s\nGoVersion: %s\n",
		config.Version,
		runtime.Version(),
	)
}

// New creates a TrellisGo instance of [cli.App] with all commands included.
func New() *cli.App {
	cli.VersionPrinter = versionPrinter
	ctl := cli.NewApp()
	ctl.Name = "trellis-go"
	ctl.Version = config.Version
	ctl.Usage = "Official Go client for Trellis"
	ctl.ErrWriter = os.Stdout

	ctl.Commands = append(ctl.Commands, channel.NewCommands()...)
	ctl.Commands = append(ctl.Commands, watch.NewCommands()...)
	return ctl
}
