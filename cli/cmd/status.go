package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/boothbridge/api"
	"github.com/pithecene-io/boothbridge/cli/render"
	"github.com/pithecene-io/boothbridge/cli/tui"
)

// StatusCommand returns the status command. It reads GET /status from a
// running bridge; --tui keeps refreshing until quit.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the state of a running bridge",
		Flags:  bridgeClientFlags(),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	client := newAPIClient(c, cfg)

	if c.Bool("tui") {
		fetch := tui.Fetcher(func() (*api.Status, error) {
			ctx, cancel := context.WithTimeout(context.Background(), apiTimeout)
			defer cancel()
			return client.status(ctx)
		})
		return r.RenderTUI(tui.ViewStatus, fetch)
	}

	st, err := client.status(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("status: %v", err), exitFailure)
	}
	return r.Render(st)
}

// SyncCommand returns the sync command. It triggers one synchronization
// cycle on a running bridge and prints the result.
func SyncCommand() *cli.Command {
	return &cli.Command{
		Name:   "sync",
		Usage:  "Run one sync cycle on a running bridge",
		Flags:  bridgeClientFlags(),
		Action: syncAction,
	}
}

func syncAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for sync command", exitFailure)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	res, err := newAPIClient(c, cfg).sync(c.Context)
	if errors.Is(err, errCycleInProgress) {
		return cli.Exit("sync: "+err.Error(), exitBusy)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("sync: %v", err), exitFailure)
	}
	return r.Render(res)
}

// UploadsCommand returns the uploads command. It lists the most recent
// journal records of a running bridge.
func UploadsCommand() *cli.Command {
	return &cli.Command{
		Name:  "uploads",
		Usage: "List recently confirmed uploads from the sync journal",
		Flags: append(bridgeClientFlags(), &cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum records to list, 0 for all",
			Value: api.DefaultUploadsLimit,
		}),
		Action: uploadsAction,
	}
}

func uploadsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for uploads command", exitFailure)
	}
	if c.Int("limit") < 0 {
		return cli.Exit("--limit must be >= 0", exitConfigError)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	recs, err := newAPIClient(c, cfg).uploads(c.Context, c.Int("limit"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("uploads: %v", err), exitFailure)
	}
	return r.Render(recs)
}
