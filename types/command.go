package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CommandType discriminates remote commands.
type CommandType string

// Known command types. Anything else is ignored by the relay.
const (
	CommandSetEvent  CommandType = "SET_EVENT"
	CommandSendEmail CommandType = "SEND_EMAIL"
	CommandPrint     CommandType = "PRINT"
)

// Command is one entry of the remote command queue.
type Command struct {
	ID     string          `json:"id,omitempty"`
	Type   CommandType     `json:"command"`
	Params json.RawMessage `json:"params,omitempty"`
}

// CommandResponse is the body returned by GET <remote>/command.
// Command is nil when the queue is empty.
type CommandResponse struct {
	ID      string          `json:"id,omitempty"`
	Command *CommandType    `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Envelope converts the response into a Command, or nil for an empty queue.
func (r CommandResponse) Envelope() *Command {
	if r.Command == nil || *r.Command == "" {
		return nil
	}
	return &Command{ID: r.ID, Type: *r.Command, Params: r.Params}
}

// SetEventParams are the parameters of a SET_EVENT command.
type SetEventParams struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// SendEmailParams are the parameters of a SEND_EMAIL command.
type SendEmailParams struct {
	Email    string `json:"email"`
	Filename string `json:"filename,omitempty"`
	PhotoURL string `json:"photoUrl,omitempty"`
	IsTest   bool   `json:"isTest,omitempty"`
}

// PrintParams are the parameters of a PRINT command.
type PrintParams struct {
	Filename string `json:"filename"`
	Copies   int    `json:"copies,omitempty"`
}

// ErrInvalidParams is returned when command parameters fail validation.
var ErrInvalidParams = errors.New("invalid command params")

// DecodeParams unmarshals the command parameters into v.
func (c *Command) DecodeParams(v any) error {
	if len(c.Params) == 0 {
		return fmt.Errorf("%w: %s has no params", ErrInvalidParams, c.Type)
	}
	if err := json.Unmarshal(c.Params, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidParams, c.Type, err)
	}
	return nil
}

// Validate checks SET_EVENT parameters. The slug becomes a directory name,
// so path separators and dot segments are rejected.
func (p SetEventParams) Validate() error {
	if p.Slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidParams)
	}
	if p.Slug == "." || p.Slug == ".." || strings.ContainsAny(p.Slug, `/\`) || strings.HasPrefix(p.Slug, ".") {
		return fmt.Errorf("%w: slug %q is not a valid directory name", ErrInvalidParams, p.Slug)
	}
	return nil
}

// Validate checks SEND_EMAIL parameters.
func (p SendEmailParams) Validate() error {
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidParams)
	}
	if p.Filename == "" && p.PhotoURL == "" {
		return fmt.Errorf("%w: filename or photoUrl is required", ErrInvalidParams)
	}
	return nil
}

// Validate checks PRINT parameters.
func (p PrintParams) Validate() error {
	if p.Filename == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidParams)
	}
	if p.Copies < 0 {
		return fmt.Errorf("%w: copies must be >= 0, got %d", ErrInvalidParams, p.Copies)
	}
	return nil
}
