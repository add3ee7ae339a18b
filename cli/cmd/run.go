package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/boothbridge/api"
	"github.com/pithecene-io/boothbridge/bridge"
	"github.com/pithecene-io/boothbridge/cli/config"
	"github.com/pithecene-io/boothbridge/log"
	"github.com/pithecene-io/boothbridge/types"
)

// RunCommand returns the run command.
// This is the only command that starts the bridge; the others talk to a
// running bridge or to the command queue.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the bridge until interrupted",
		Flags: []cli.Flag{
			ConfigFlag(),
			&cli.StringFlag{
				Name:    "capture-root",
				Usage:   "Local capture directory (overrides capture_root)",
				EnvVars: []string{"BOOTHBRIDGE_CAPTURE_ROOT"},
			},
			&cli.StringFlag{
				Name:  "camera-host",
				Usage: "Camera daemon host (overrides camera.host)",
			},
			&cli.IntSliceFlag{
				Name:  "camera-port",
				Usage: "Candidate camera port, repeatable, tried in order (overrides camera.ports)",
			},
			&cli.StringFlag{
				Name:    "remote-url",
				Usage:   "Cloud backend base URL (overrides remote.url)",
				EnvVars: []string{"BOOTHBRIDGE_REMOTE_URL"},
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Local API listen address (overrides api.listen)",
			},
			&cli.StringFlag{
				Name:  "public-url",
				Usage: "Base URL used in local email links (overrides api.public_url)",
			},
			&cli.BoolFlag{
				Name:  "fanout",
				Usage: "Start with the snapshot fanout enabled (overrides fanout.enabled)",
			},
			&cli.DurationFlag{
				Name:  "sync-interval",
				Usage: "Scheduled sync period, 0 for on-demand only (overrides sync.interval)",
			},
			&cli.IntFlag{
				Name:  "sync-quality",
				Usage: "JPEG quality of optimized copies (overrides sync.quality)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: debug, info, warn, error (overrides log_level)",
				EnvVars: []string{"BOOTHBRIDGE_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "Validate the resolved configuration and exit",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress the startup banner",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	applyRunFlags(c, cfg)

	level, bc, err := bridgeConfig(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid config: %v", err), exitConfigError)
	}
	if c.Bool("check") {
		if !c.Bool("quiet") {
			fmt.Fprintln(c.App.Writer, "config ok")
		}
		return nil
	}

	meta := newBridgeMeta()
	logger := log.NewLogger(&meta, level)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bridge.New(ctx, bc, meta, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bridge setup failed: %v", err), exitConfigError)
	}

	if !c.Bool("quiet") && isStderrTTY() {
		printBanner(meta, bc)
	}

	if err := b.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("bridge failed: %v", err), exitFailure)
	}
	return nil
}

// bridgeConfig validates the merged config and derives the log level and
// bridge configuration the run uses.
func bridgeConfig(cfg *config.Config) (zapcore.Level, bridge.Config, error) {
	if err := cfg.Validate(); err != nil {
		return zapcore.InfoLevel, bridge.Config{}, err
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, bridge.Config{}, err
	}
	bc, err := cfg.Bridge()
	if err != nil {
		return zapcore.InfoLevel, bridge.Config{}, err
	}
	return level, bc, nil
}

// applyRunFlags folds explicitly set flags into the file config.
func applyRunFlags(c *cli.Context, cfg *config.Config) {
	cfg.CaptureRoot = resolveString(c, "capture-root", cfg.CaptureRoot)
	cfg.Camera.Host = resolveString(c, "camera-host", cfg.Camera.Host)
	cfg.Camera.Ports = resolveInts(c, "camera-port", cfg.Camera.Ports)
	cfg.Remote.URL = resolveString(c, "remote-url", cfg.Remote.URL)
	cfg.API.Listen = resolveString(c, "listen", cfg.API.Listen)
	cfg.API.PublicURL = resolveString(c, "public-url", cfg.API.PublicURL)
	cfg.Fanout.Enabled = resolveBool(c, "fanout", cfg.Fanout.Enabled)
	cfg.Sync.Interval.Duration = resolveDuration(c, "sync-interval", cfg.Sync.Interval.Duration)
	cfg.Sync.Quality = resolveInt(c, "sync-quality", cfg.Sync.Quality)
	cfg.LogLevel = resolveString(c, "log-level", cfg.LogLevel)
}

func newBridgeMeta() types.BridgeMeta {
	host, _ := os.Hostname()
	return types.BridgeMeta{
		BridgeID: uuid.NewString(),
		Version:  types.Version,
		Hostname: host,
	}
}

func printBanner(meta types.BridgeMeta, bc bridge.Config) {
	fmt.Fprintf(os.Stderr, "boothbridge %s\n", meta.Version)
	fmt.Fprintf(os.Stderr, "  bridge id:    %s\n", meta.BridgeID)
	fmt.Fprintf(os.Stderr, "  capture root: %s\n", bc.CaptureRoot)
	fmt.Fprintf(os.Stderr, "  camera ports: %v\n", bc.Camera.Ports)
	if bc.Remote.BaseURL != "" {
		fmt.Fprintf(os.Stderr, "  remote:       %s\n", bc.Remote.BaseURL)
	}
	if !bc.API.Disabled {
		listen := bc.API.Listen
		if listen == "" {
			listen = api.DefaultListen
		}
		fmt.Fprintf(os.Stderr, "  api:          http://%s\n", listen)
	}
}
