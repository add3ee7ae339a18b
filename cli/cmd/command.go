package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/boothbridge/bridge"
	"github.com/pithecene-io/boothbridge/cli/config"
	"github.com/pithecene-io/boothbridge/cli/render"
	"github.com/pithecene-io/boothbridge/relay/redisqueue"
	"github.com/pithecene-io/boothbridge/remote"
	"github.com/pithecene-io/boothbridge/types"
)

// CommandSent is the output of command send.
type CommandSent struct {
	Command types.CommandType `json:"command"`
	Params  map[string]any    `json:"params"`
	Source  string            `json:"source"`
}

// CommandCommand returns the command command with subcommands.
func CommandCommand() *cli.Command {
	return &cli.Command{
		Name:  "command",
		Usage: "Work with the bridge command queue",
		Subcommands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Enqueue a SET_EVENT, SEND_EMAIL or PRINT command",
				ArgsUsage: "[key=value ...]",
				Flags: []cli.Flag{
					FormatFlag,
					NoColorFlag,
					ConfigFlag(),
					&cli.StringFlag{
						Name:     "type",
						Aliases:  []string{"t"},
						Usage:    "Command type: SET_EVENT, SEND_EMAIL, PRINT",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "params",
						Usage: "Command parameters as a JSON object; key=value arguments are merged on top",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Queue to write to: remote or redis (overrides commands.source)",
					},
					&cli.StringFlag{
						Name:    "remote-url",
						Usage:   "Cloud backend base URL (overrides remote.url)",
						EnvVars: []string{"BOOTHBRIDGE_REMOTE_URL"},
					},
					&cli.StringFlag{
						Name:  "redis-url",
						Usage: "Redis URL of the command queue (overrides commands.url)",
					},
				},
				Action: commandSendAction,
			},
		},
	}
}

func commandSendAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	typ := types.CommandType(strings.ToUpper(c.String("type")))
	params, err := buildParams(c.String("params"), c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	if err := validateCommand(typ, raw); err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	source := resolveString(c, "source", cfg.Commands.Source)
	if source == "" {
		source = bridge.SourceRemote
	}
	if err := enqueue(c, cfg, source, typ, raw); err != nil {
		return cli.Exit(fmt.Sprintf("command send: %v", err), exitFailure)
	}
	return r.Render(CommandSent{Command: typ, Params: params, Source: source})
}

func enqueue(c *cli.Context, cfg *config.Config, source string, typ types.CommandType, raw json.RawMessage) error {
	switch source {
	case bridge.SourceRemote:
		url := resolveString(c, "remote-url", cfg.Remote.URL)
		if url == "" {
			return fmt.Errorf("remote source requires --remote-url or remote.url")
		}
		client, err := remote.New(remote.Config{
			BaseURL: url,
			Headers: cfg.Remote.Headers,
			Timeout: cfg.Remote.Timeout.Duration,
		})
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		return client.EnqueueCommand(c.Context, typ, raw)
	case bridge.SourceRedis:
		url := resolveString(c, "redis-url", cfg.Commands.URL)
		if url == "" {
			return fmt.Errorf("redis source requires --redis-url or commands.url")
		}
		q, err := redisqueue.New(redisqueue.Config{
			URL:     url,
			Key:     cfg.Commands.Key,
			Timeout: cfg.Commands.Timeout.Duration,
		})
		if err != nil {
			return err
		}
		defer func() { _ = q.Close() }()
		return q.Push(c.Context, typ, raw)
	default:
		return fmt.Errorf("unknown source %q (must be remote or redis)", source)
	}
}

// buildParams merges key=value arguments over a JSON object. Values that
// parse as JSON scalars (numbers, booleans) keep their type.
func buildParams(jsonObj string, kvs []string) (map[string]any, error) {
	params := map[string]any{}
	if jsonObj != "" {
		if err := json.Unmarshal([]byte(jsonObj), &params); err != nil {
			return nil, fmt.Errorf("invalid --params: %w", err)
		}
		if params == nil {
			params = map[string]any{}
		}
	}
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", kv)
		}
		var scalar any
		if err := json.Unmarshal([]byte(v), &scalar); err == nil {
			switch scalar.(type) {
			case float64, bool:
				params[k] = scalar
				continue
			}
		}
		params[k] = v
	}
	return params, nil
}

// validateCommand applies the same checks the relay applies on receipt.
func validateCommand(typ types.CommandType, raw json.RawMessage) error {
	cmd := types.Command{Type: typ, Params: raw}
	switch typ {
	case types.CommandSetEvent:
		var p types.SetEventParams
		if err := cmd.DecodeParams(&p); err != nil {
			return err
		}
		return p.Validate()
	case types.CommandSendEmail:
		var p types.SendEmailParams
		if err := cmd.DecodeParams(&p); err != nil {
			return err
		}
		return p.Validate()
	case types.CommandPrint:
		var p types.PrintParams
		if err := cmd.DecodeParams(&p); err != nil {
			return err
		}
		return p.Validate()
	default:
		return fmt.Errorf("unknown command type %q (must be SET_EVENT, SEND_EMAIL or PRINT)", typ)
	}
}
