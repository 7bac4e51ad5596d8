package skill

import (
	"context"
	"errors"
	"testing"

	"github.com/aiswarm/orchestrator/agent"
	"github.com/aiswarm/orchestrator/config"
)

// creatorFunc adapts a function to AgentCreator.
type creatorFunc func(string, config.AgentConfig) (*agent.Agent, error)

func (f creatorFunc) CreateAgent(name string, cfg config.AgentConfig) (*agent.Agent, error) {
	return f(name, cfg)
}

func TestToolbox_ExpandsCollections(t *testing.T) {
	f := newFixture(t)
	f.reg.AddCollection("core", []string{"sendMessage", "createGroup"})

	tb := f.reg.Toolbox("bot", []string{"core", "sendMessage", "later"})
	tools := tb.Tools()
	if len(tools) != 2 || tools[0].Name != "sendMessage" || tools[1].Name != "createGroup" {
		t.Fatalf("tools = %+v", tools)
	}
	if tools[0].Parameters["type"] != "object" {
		t.Errorf("parameters = %v", tools[0].Parameters)
	}

	f.reg.Add(echoSkill{})
	_, err := tb.Call(context.Background(), "later", map[string]any{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unregistered name: err = %v", err)
	}
	f.reg.AddCollection("more", []string{"echo"})
	if _, err := tb.Call(context.Background(), "echo", map[string]any{"text": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("skill outside the toolbox: err = %v", err)
	}
}

func TestToolbox_CallRunsAsAgent(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Add(echoSkill{})

	out, err := r.Toolbox("bot", []string{"echo"}).Call(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "bot: hi" {
		t.Errorf("out = %v", out)
	}
}

func TestCreateAgent(t *testing.T) {
	f := newFixture(t)
	var got config.AgentConfig
	creator := creatorFunc(func(name string, cfg config.AgentConfig) (*agent.Agent, error) {
		got = cfg
		return f.agents.Create(name, cfg)
	})
	ca := NewCreateAgent(f.agents, creator,
		func() []string { return []string{"simple"} },
		f.reg.List)
	f.reg.Add(ca)

	if enum := ca.Parameters()["driver"].Enum; len(enum) != 1 || enum[0] != "simple" {
		t.Errorf("driver enum = %v", enum)
	}

	out, err := f.reg.Execute(context.Background(), "createAgent", map[string]any{
		"name":         "helper",
		"driver":       "simple",
		"instructions": "help",
		"skills":       []any{"sendMessage"},
	}, "lead")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res := out.(map[string]any)
	if res["name"] != "helper" || res["type"] != "agent" || res["driver"] != "simple" {
		t.Errorf("result = %v", res)
	}
	if got.Instructions != "help" || len(got.Skills) != 1 || got.Driver.Type() != "simple" {
		t.Errorf("config = %+v", got)
	}
	if !f.agents.Has("helper") {
		t.Error("agent not created")
	}

	out, err = f.reg.Execute(context.Background(), "createAgent", map[string]any{"name": "helper", "driver": "simple"}, "lead")
	if err != nil || out != "Agent helper already exists" {
		t.Errorf("duplicate = %v, %v", out, err)
	}

	_, err = f.reg.Execute(context.Background(), "createAgent", map[string]any{"name": "x", "driver": "nope"}, "lead")
	if err == nil {
		t.Error("expected error for unknown driver")
	}
}
