// Package driver defines the pluggable backend contract for agents and the
// registry that maps driver types to factories.
//
// A driver only has to report its type. Every other capability is optional
// and discovered through the interfaces below; an agent treats a missing
// capability as a no-op.
package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/aiswarm/orchestrator/comms"
)

// Driver is a backend bound to exactly one agent.
type Driver interface {
	Type() string
}

// Instructor handles a message delivered to the agent. A nil Reply means
// there is nothing to send back.
type Instructor interface {
	Instruct(ctx context.Context, msg *comms.Message) (*Reply, error)
}

// Pauser is implemented by drivers that can suspend their own activity.
type Pauser interface {
	Pause()
}

// Resumer is implemented by drivers that can resume after Pause.
type Resumer interface {
	Resume()
}

// Remover is the teardown hook, called once when the agent is removed.
type Remover interface {
	Remove(agent string)
}

// StatusReporter exposes a driver-defined status value that the agent polls.
type StatusReporter interface {
	Status() string
}

// StatusNotifier is implemented by drivers that push status changes. The
// returned function detaches fn.
type StatusNotifier interface {
	OnStatus(fn func(status string)) (cancel func())
}

// Reply is the result of an instruction. Exactly one of Text or Message is
// meaningful; Message takes precedence.
type Reply struct {
	Text    string
	Message *comms.Message
}

// Text returns a Reply carrying plain text, or nil when s is empty.
func Text(s string) *Reply {
	if s == "" {
		return nil
	}
	return &Reply{Text: s}
}

// Forward returns a Reply that re-emits msg as is.
func Forward(msg *comms.Message) *Reply {
	if msg == nil {
		return nil
	}
	return &Reply{Message: msg}
}

// Roster lists the addressable names in the system.
type Roster interface {
	AgentNames() []string
	GroupNames() []string
}

// Settings is the free-form driver configuration of one agent.
type Settings map[string]any

// Decode copies the settings into v using its yaml tags.
func (s Settings) Decode(v any) error {
	raw, err := yaml.Marshal(map[string]any(s))
	if err != nil {
		return fmt.Errorf("encode driver settings: %w", err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode driver settings: %w", err)
	}
	return nil
}

// String returns the string value under key, or "".
func (s Settings) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Tool describes a skill offered to a driver. Parameters is a JSON schema.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Toolbox runs the skills an agent is allowed to use, on its behalf.
type Toolbox interface {
	Tools() []Tool
	Call(ctx context.Context, name string, args map[string]any) (any, error)
}

// Params is everything a factory gets to build a driver for one agent.
type Params struct {
	Agent        string
	Instructions string
	Settings     Settings
	Bus          *comms.Bus
	Roster       Roster
	// Skills is nil when the agent has no skills.
	Skills Toolbox
	Logger *slog.Logger
}

// Log returns the configured logger or a discarding one.
func (p Params) Log() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p.Logger
}

// Factory builds a driver instance.
type Factory func(p Params) (Driver, error)
