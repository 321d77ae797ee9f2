// Package watch implements CLI commands that subscribe to the event channel
// of a Trellis server and print incoming events.
package watch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trellis-network/trellis-go/cli/options"
	"github.com/trellis-network/trellis-go/pkg/eventclient"
	"github.com/trellis-network/trellis-go/pkg/eventrpc"
	"github.com/trellis-network/trellis-go/pkg/journal"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// NewCommands returns 'watch' command.
func NewCommands() []cli.Command {
	watchFlags := append([]cli.Flag{
		options.Config,
		options.Debug,
		cli.StringFlag{
			Name:  "journal, j",
			Usage: "Append received events to a BoltDB journal at the given path",
		},
		cli.Int64Flag{
			Name:  "count, c",
			Usage: "Stop after receiving this many events (0 means run until interrupted)",
		},
	}, options.RPC...)
	watchFlags = append(watchFlags, options.Channel...)
	return []cli.Command{{
		Name:  "watch",
		Usage: "subscribe to server events and print them",
		Subcommands: []cli.Command{
			{
				Name:   "block",
				Usage:  "watch finalized blocks",
				Action: watchBlock,
				Flags: append([]cli.Flag{cli.Uint64Flag{
					Name:  "block-number, b",
					Usage: "Only report the block with this number (any block if not given)",
				}}, watchFlags...),
			},
			{
				Name:   "value",
				Usage:  "watch changes of a path in the server state",
				Action: watchValue,
				Flags: append([]cli.Flag{
					cli.StringFlag{
						Name:  "path, p",
						Usage: "State path to watch, required",
					},
					cli.StringFlag{
						Name:  "source",
						Usage: "Only report changes made by this source (BLOCK or USER)",
					},
				}, watchFlags...),
			},
			{
				Name:   "tx",
				Usage:  "watch state transitions of a transaction",
				Action: watchTx,
				Flags: append([]cli.Flag{cli.StringFlag{
					Name:  "tx-hash, x",
					Usage: "Hash of the transaction to watch, required",
				}}, watchFlags...),
			},
		},
	}}
}

func watchBlock(ctx *cli.Context) error {
	flt := new(eventrpc.BlockFilter)
	if ctx.IsSet("block-number") {
		num := ctx.Uint64("block-number")
		flt.BlockNumber = &num
	}
	return runWatch(ctx, eventrpc.BlockFinalizedCategory, flt)
}

func watchValue(ctx *cli.Context) error {
	flt := &eventrpc.ValueFilter{Path: ctx.String("path")}
	if len(flt.Path) == 0 {
		return cli.NewExitError(errors.New("state path is missing, use option '--path' or '-p'"), 1)
	}
	if src := ctx.String("source"); len(src) != 0 {
		source, err := eventrpc.GetEventSourceFromString(src)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		flt.EventSource = &source
	}
	return runWatch(ctx, eventrpc.ValueChangedCategory, flt)
}

func watchTx(ctx *cli.Context) error {
	hash := ctx.String("tx-hash")
	if len(hash) == 0 {
		return cli.NewExitError(errors.New("transaction hash is missing, use option '--tx-hash' or '-x'"), 1)
	}
	return runWatch(ctx, eventrpc.TxStateChangedCategory, &eventrpc.TxFilter{TxHash: hash})
}

func runWatch(ctx *cli.Context, category eventrpc.EventCategory, flt eventrpc.FilterConfig) error {
	cfg, err := options.GetConfigFromContext(ctx)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	log, _, err := options.HandleLoggingParams(ctx.Bool("debug"), cfg.Logging)
	if err != nil {
		return cli.NewExitError(err, 1)
	}
	defer func() { _ = log.Sync() }()

	c, exitErr := options.GetRPCClient(ctx, cfg)
	if exitErr != nil {
		return exitErr
	}
	defer c.Close()

	journalPath := ctx.String("journal")
	if len(journalPath) == 0 && cfg.Journal.Enabled {
		journalPath = cfg.Journal.Path
	}
	var j *journal.Journal
	if len(journalPath) != 0 {
		j, err = journal.Open(journalPath)
		if err != nil {
			return cli.NewExitError(fmt.Errorf("failed to open journal: %w", err), 1)
		}
		defer j.Close()
	}

	m := eventclient.NewManager(c, options.GetChannelOptions(ctx, cfg, log))

	gctx, cancel := options.GetTimeoutContext(ctx)
	defer cancel()

	disconnected := make(chan error, 1)
	if err := m.Connect(gctx, func(cause error) {
		disconnected <- cause
	}); err != nil {
		return cli.NewExitError(fmt.Errorf("failed to connect: %w", err), 1)
	}
	defer m.Disconnect()

	// Callbacks run on the channel's reader routine, so they hand events over
	// to the loop below. quit unblocks any handover still in flight once the
	// loop is done, otherwise Disconnect could wait for the reader forever.
	quit := make(chan struct{})
	defer close(quit)

	var (
		events  = make(chan *eventclient.Event)
		errs    = make(chan *eventrpc.EventError)
		deleted = make(chan *eventrpc.FilterDeleted)
	)
	id, err := m.Subscribe(category, flt,
		func(e *eventclient.Event) {
			select {
			case events <- e:
			case <-quit:
			}
		},
		func(e *eventrpc.EventError) {
			select {
			case errs <- e:
			case <-quit:
			}
		},
		func(d *eventrpc.FilterDeleted) {
			select {
			case deleted <- d:
			case <-quit:
			}
		})
	if err != nil {
		return cli.NewExitError(fmt.Errorf("failed to subscribe: %w", err), 1)
	}
	fmt.Fprintf(ctx.App.Writer, "watching %s events with filter %s, press Ctrl+C to stop\n", category, id)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var received int64
	for {
		select {
		case e := <-events:
			printEvent(ctx, e)
			if j != nil {
				if _, err := j.Append(&journal.Record{
					Time:     time.Now().UTC(),
					FilterID: e.FilterID,
					Category: e.Category,
					Payload:  e.Payload,
				}); err != nil {
					log.Warn("failed to journal event", zap.Error(err))
				}
			}
			received++
			if max := ctx.Int64("count"); max > 0 && received >= max {
				if _, err := m.Unsubscribe(id); err != nil {
					log.Warn("failed to unsubscribe", zap.Error(err))
				}
				return nil
			}
		case e := <-errs:
			fmt.Fprintf(ctx.App.Writer, "server error: %s\n", e.Error())
		case d := <-deleted:
			fmt.Fprintf(ctx.App.Writer, "filter %s deleted by server: %s\n", d.FilterID, d.Reason)
			return nil
		case cause := <-disconnected:
			if cause != nil {
				return cli.NewExitError(fmt.Errorf("connection lost: %w", cause), 1)
			}
			return nil
		case <-sigCh:
			return nil
		}
	}
}

func printEvent(ctx *cli.Context, e *eventclient.Event) {
	w := ctx.App.Writer
	switch p := e.Payload.(type) {
	case *eventrpc.BlockFinalized:
		fmt.Fprintf(w, "block %d finalized, hash %s\n", p.BlockNumber, p.BlockHash)
	case *eventrpc.ValueChanged:
		fmt.Fprintf(w, "value at %s changed by tx %s (%s): %s -> %s\n",
			p.MatchedPath, p.Transaction, p.EventSource, p.Values.Before, p.Values.After)
	case *eventrpc.TxStateChanged:
		fmt.Fprintf(w, "tx %s: %s -> %s\n", p.Transaction, p.TxState.Before, p.TxState.After)
	default:
		data, err := json.Marshal(e.Payload)
		if err != nil {
			fmt.Fprintf(w, "%s event for filter %s\n", e.Category, e.FilterID)
			return
		}
		fmt.Fprintf(w, "%s event for filter %s: %s\n", e.Category, e.FilterID, data)
	}
}
