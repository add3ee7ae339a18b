// Package cmd provides CLI commands for the boothbridge binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/boothbridge/cli/config"
)

// Exit codes.
const (
	exitSuccess     = 0
	exitFailure     = 1
	exitConfigError = 2
	exitBusy        = 3
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for the status command.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (status only)",
	}
)

// ConfigFlag points at the boothbridge.yaml file. A missing file at the
// default path is not an error.
func ConfigFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to boothbridge.yaml",
		Value:   config.DefaultPath,
		EnvVars: []string{"BOOTHBRIDGE_CONFIG"},
	}
}

// APIFlag locates a running bridge's local API.
func APIFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "api",
		Usage:   "Base URL of the bridge API (default: api.public_url from config, else http://127.0.0.1:5600)",
		EnvVars: []string{"BOOTHBRIDGE_API"},
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// bridgeClientFlags are the flags of commands that talk to a running bridge.
func bridgeClientFlags() []cli.Flag {
	return append(ReadOnlyFlags(), ConfigFlag(), APIFlag())
}
