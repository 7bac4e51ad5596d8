// Package llm adapts a chat provider into an agent driver. Each driver keeps
// the conversation of its own agent, with the agent's instructions as the
// system prompt. The agent's skills are offered to the provider as tools.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/driver"
	"github.com/aiswarm/orchestrator/provider"
	"github.com/aiswarm/orchestrator/provider/anthropic"
	"github.com/aiswarm/orchestrator/provider/mock"
	"github.com/aiswarm/orchestrator/provider/openai"
)

// Driver types served by this package.
const (
	TypeMock      = "mock"
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"
)

const (
	StatusIdle    = "idle"
	StatusWorking = "working"
	StatusError   = "error"
)

const defaultMemory = 50

// maxToolRounds bounds the tool-call exchanges of one instruction.
const maxToolRounds = 10

// Config holds the driver settings.
type Config struct {
	provider.Config `yaml:",inline"`
	// Memory caps the number of remembered user and assistant turns.
	Memory int `yaml:"memory"`
	// Responses scripts the mock provider.
	Responses []string `yaml:"responses"`
}

// Factories returns a factory for each provider-backed driver type.
func Factories() map[string]driver.Factory {
	return map[string]driver.Factory{
		TypeMock:      Factory(TypeMock),
		TypeOpenAI:    Factory(TypeOpenAI),
		TypeAnthropic: Factory(TypeAnthropic),
	}
}

// Factory returns a driver.Factory that builds a provider of the given kind
// from the agent's settings.
func Factory(kind string) driver.Factory {
	return func(p driver.Params) (driver.Driver, error) {
		var cfg Config
		if err := p.Settings.Decode(&cfg); err != nil {
			return nil, err
		}
		prov, err := newProvider(kind, cfg)
		if err != nil {
			return nil, err
		}
		return New(kind, prov, p, cfg.Memory), nil
	}
}

func newProvider(kind string, cfg Config) (provider.Provider, error) {
	switch kind {
	case TypeMock:
		return mock.New(cfg.Responses...), nil
	case TypeOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		return openai.New(cfg.Config)
	case TypeAnthropic:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return anthropic.New(cfg.Config)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}

// Driver talks to a provider on behalf of one agent.
type Driver struct {
	kind     string
	agent    string
	system   string
	memory   int
	provider provider.Provider
	skills   driver.Toolbox
	logger   *slog.Logger

	// turn serializes instructions so the conversation stays coherent.
	turn         sync.Mutex
	conversation []provider.Message

	mu        sync.Mutex
	status    string
	listeners map[int]func(string)
	nextID    int
}

// New wraps prov as a driver of type kind for the agent in p.
func New(kind string, prov provider.Provider, p driver.Params, memory int) *Driver {
	if memory <= 0 {
		memory = defaultMemory
	}
	return &Driver{
		kind:      kind,
		agent:     p.Agent,
		system:    p.Instructions,
		memory:    memory,
		provider:  prov,
		skills:    p.Skills,
		logger:    p.Log().With(slog.String("agent", p.Agent), slog.String("driver", kind)),
		status:    StatusIdle,
		listeners: make(map[int]func(string)),
	}
}

func (d *Driver) Type() string { return d.kind }

// Status implements driver.StatusReporter.
func (d *Driver) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// OnStatus implements driver.StatusNotifier.
func (d *Driver) OnStatus(fn func(string)) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

func (d *Driver) setStatus(s string) {
	d.mu.Lock()
	if d.status == s {
		d.mu.Unlock()
		return
	}
	d.status = s
	fns := make([]func(string), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// Instruct sends the message to the provider and replies with its answer.
// Tool calls are run through the agent's skills and their results fed back
// until the provider answers without calling a tool. Only the instruction and
// the final answer are remembered.
func (d *Driver) Instruct(ctx context.Context, msg *comms.Message) (*driver.Reply, error) {
	d.turn.Lock()
	defer d.turn.Unlock()

	d.setStatus(StatusWorking)
	user := provider.Message{Role: provider.RoleUser, Content: fmt.Sprintf("%s: %s", msg.Source(), msg.Content())}

	convo := make([]provider.Message, 0, len(d.conversation)+2)
	if d.system != "" {
		convo = append(convo, provider.Message{Role: provider.RoleSystem, Content: d.system})
	}
	convo = append(convo, d.conversation...)
	convo = append(convo, user)
	tools := d.toolDefs()

	var resp *provider.Response
	for round := 1; ; round++ {
		var err error
		resp, err = d.provider.Chat(ctx, convo, tools)
		if err != nil {
			d.setStatus(StatusError)
			return nil, fmt.Errorf("%s chat for %s: %w", d.kind, d.agent, err)
		}
		d.logger.Debug("provider replied",
			slog.Int64("message", msg.ID()),
			slog.Int("tool_calls", len(resp.ToolCalls)),
			slog.Int("input_tokens", resp.Usage.InputTokens),
			slog.Int("output_tokens", resp.Usage.OutputTokens))
		if len(resp.ToolCalls) == 0 {
			break
		}
		if round == maxToolRounds {
			d.logger.Warn("tool call limit reached", slog.Int64("message", msg.ID()), slog.Int("rounds", round))
			break
		}

		calls := make([]provider.ToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			if tc.Arguments == nil {
				tc.Arguments = map[string]any{}
			}
			calls[i] = tc
		}
		convo = append(convo, provider.Message{Role: provider.RoleAssistant, Content: resp.Content, ToolCalls: calls})
		for _, tc := range calls {
			convo = append(convo, provider.Message{
				Role:       provider.RoleTool,
				Content:    d.runTool(ctx, tc),
				ToolCallID: tc.ID,
			})
		}
	}

	d.conversation = append(d.conversation, user, provider.Message{Role: provider.RoleAssistant, Content: resp.Content})
	if over := len(d.conversation) - d.memory; over > 0 {
		d.conversation = append([]provider.Message(nil), d.conversation[over:]...)
	}
	d.setStatus(StatusIdle)
	return driver.Text(resp.Content), nil
}

func (d *Driver) toolDefs() []provider.ToolDef {
	if d.skills == nil {
		return nil
	}
	tools := d.skills.Tools()
	defs := make([]provider.ToolDef, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, provider.ToolDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return defs
}

// runTool executes one tool call. Failures are reported back to the model as
// the tool result.
func (d *Driver) runTool(ctx context.Context, tc provider.ToolCall) string {
	if d.skills == nil {
		return fmt.Sprintf("error: %s has no skills", d.agent)
	}
	out, err := d.skills.Call(ctx, tc.Name, tc.Arguments)
	if err != nil {
		d.logger.Warn("skill call failed", slog.String("skill", tc.Name), slog.Any("err", err))
		return "error: " + err.Error()
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "error: " + err.Error()
	}
	return string(raw)
}

// Remove drops the conversation.
func (d *Driver) Remove(string) {
	d.turn.Lock()
	d.conversation = nil
	d.turn.Unlock()
}
