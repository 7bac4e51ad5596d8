package mock

import (
	"context"
	"testing"

	"github.com/aiswarm/orchestrator/provider"
)

func TestProvider_Name(t *testing.T) {
	m := New()
	if got := m.Name(); got != "mock" {
		t.Errorf("Name() = %q, want %q", got, "mock")
	}
}

func TestProvider_Chat_DefaultResponse(t *testing.T) {
	m := New()
	resp, err := m.Chat(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != defaultResponse {
		t.Errorf("Chat() content = %q, want %q", resp.Content, defaultResponse)
	}
}

func TestProvider_Chat_CyclesResponses(t *testing.T) {
	m := New("first", "second", "third")

	want := []string{"first", "second", "third", "first"}
	for i, w := range want {
		resp, err := m.Chat(context.Background(), nil, nil)
		if err != nil {
			t.Fatalf("Chat() call %d error = %v", i, err)
		}
		if resp.Content != w {
			t.Errorf("Chat() call %d = %q, want %q", i, resp.Content, w)
		}
	}
}

func TestProvider_RecordsCalls(t *testing.T) {
	m := New("ok")
	msgs := []provider.Message{{Role: provider.RoleUser, Content: "hi"}}
	if _, err := m.Chat(context.Background(), msgs, nil); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	msgs[0].Content = "changed"

	calls := m.Calls()
	if len(calls) != 1 || calls[0][0].Content != "hi" {
		t.Errorf("Calls() = %+v", calls)
	}
}

func TestProvider_ScriptedToolCalls(t *testing.T) {
	call := provider.ToolCall{ID: "c1", Name: "sendMessage", Arguments: map[string]any{"target": "bob"}}
	m := NewScripted(provider.Response{ToolCalls: []provider.ToolCall{call}}, provider.Response{Content: "done"})
	tools := []provider.ToolDef{{Name: "sendMessage"}}

	resp, err := m.Chat(context.Background(), nil, tools)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "sendMessage" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	resp, _ = m.Chat(context.Background(), nil, nil)
	if resp.Content != "done" || len(resp.ToolCalls) != 0 {
		t.Errorf("second response = %+v", resp)
	}

	seen := m.Tools()
	if len(seen) != 2 || len(seen[0]) != 1 || seen[0][0].Name != "sendMessage" || len(seen[1]) != 0 {
		t.Errorf("Tools() = %+v", seen)
	}
}

func TestSplit(t *testing.T) {
	system, turns := provider.Split([]provider.Message{
		{Role: provider.RoleSystem, Content: "be brief"},
		{Role: provider.RoleUser, Content: "hi"},
		{Role: provider.RoleAssistant, Content: "hello"},
	})
	if system != "be brief" {
		t.Errorf("system = %q", system)
	}
	if len(turns) != 2 || turns[1].Role != provider.RoleAssistant {
		t.Errorf("turns = %+v", turns)
	}
}
