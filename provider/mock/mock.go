// Package mock provides a scripted chat provider for tests and offline runs.
package mock

import (
	"context"
	"sync"

	"github.com/aiswarm/orchestrator/provider"
)

const defaultResponse = "Task acknowledged. Working on it."

// Provider implements provider.Provider by cycling through scripted responses.
type Provider struct {
	mu        sync.Mutex
	responses []provider.Response
	idx       int
	calls     [][]provider.Message
	tools     [][]provider.ToolDef
}

// New creates a Provider that cycles through the given text responses.
func New(responses ...string) *Provider {
	scripted := make([]provider.Response, len(responses))
	for i, r := range responses {
		scripted[i] = provider.Response{Content: r}
	}
	return &Provider{responses: scripted}
}

// NewScripted creates a Provider that cycles through full responses, tool
// calls included.
func NewScripted(responses ...provider.Response) *Provider {
	return &Provider{responses: append([]provider.Response(nil), responses...)}
}

// Name returns the provider identifier.
func (m *Provider) Name() string { return "mock" }

// Chat returns the next scripted response and records the conversation and
// tools it saw.
func (m *Provider) Chat(_ context.Context, messages []provider.Message, tools []provider.ToolDef) (*provider.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]provider.Message(nil), messages...))
	m.tools = append(m.tools, append([]provider.ToolDef(nil), tools...))

	resp := provider.Response{Content: defaultResponse}
	if len(m.responses) > 0 {
		resp = m.responses[m.idx%len(m.responses)]
		m.idx++
	}
	in := 0
	for _, msg := range messages {
		in += len(msg.Content)
	}
	resp.Usage = provider.Usage{InputTokens: in, OutputTokens: len(resp.Content)}
	resp.ToolCalls = append([]provider.ToolCall(nil), resp.ToolCalls...)
	return &resp, nil
}

// Calls returns the conversations passed to Chat, oldest first.
func (m *Provider) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]provider.Message(nil), m.calls...)
}

// Tools returns the tool lists passed to Chat, oldest first.
func (m *Provider) Tools() [][]provider.ToolDef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]provider.ToolDef(nil), m.tools...)
}
