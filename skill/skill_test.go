package skill

import (
	"context"
	"errors"
	"testing"

	"github.com/aiswarm/orchestrator/agent"
	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/driver"
	"github.com/aiswarm/orchestrator/driver/simple"
	"github.com/aiswarm/orchestrator/errdefs"
	"github.com/aiswarm/orchestrator/events"
	"github.com/aiswarm/orchestrator/group"
)

type echoSkill struct{ fail error }

func (echoSkill) Name() string                     { return "echo" }
func (echoSkill) Description() string              { return "echoes" }
func (echoSkill) Parameters() map[string]Parameter { return map[string]Parameter{"text": {Type: "string"}} }
func (echoSkill) Required() []string               { return []string{"text"} }

func (e echoSkill) Execute(_ context.Context, args map[string]any, caller string) (any, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return caller + ": " + args["text"].(string), nil
}

func TestRegistry_AddListExecute(t *testing.T) {
	hub := events.NewHub()
	var registered []any
	hub.On(events.SkillRegistered, func(ev events.Event) { registered = append(registered, ev.Payload) })

	r := NewRegistry(hub, nil)
	r.Add(echoSkill{})
	if len(registered) != 1 || registered[0] != "echo" {
		t.Fatalf("expected skill.registered for echo, got %v", registered)
	}
	if got := r.List(); len(got) != 1 || got[0] != "echo" {
		t.Fatalf("List = %v", got)
	}

	out, err := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"}, "bot")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "bot: hi" {
		t.Errorf("unexpected result %v", out)
	}
}

func TestRegistry_ExecuteErrors(t *testing.T) {
	r := NewRegistry(nil, nil)

	if _, err := r.Execute(context.Background(), "missing", nil, "bot"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	r.Add(echoSkill{})
	if _, err := r.Execute(context.Background(), "echo", nil, "bot"); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Errorf("missing required argument: got %v", err)
	}

	boom := errors.New("boom")
	r.Add(echoSkill{fail: boom})
	_, err := r.Execute(context.Background(), "echo", map[string]any{"text": "x"}, "bot")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if want := "error executing skill echo: boom"; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestRegistry_Collections(t *testing.T) {
	r := NewRegistry(nil, nil)
	src := []string{"sendMessage", "createGroup"}
	r.AddCollection("core", src)
	src[0] = "changed"

	got, ok := r.Collection("core")
	if !ok || len(got) != 2 || got[0] != "sendMessage" {
		t.Fatalf("Collection = %v, %v", got, ok)
	}
	if _, ok := r.Collection("none"); ok {
		t.Error("unexpected collection")
	}
}

func TestDefinition(t *testing.T) {
	def := Definition(&AgentsAndGroups{})
	if def["name"] != "getAgentsAndGroups" {
		t.Errorf("name = %v", def["name"])
	}
	params := def["parameters"].(map[string]any)
	if req := params["required"].([]string); len(req) != 0 {
		t.Errorf("required = %v", req)
	}
}

type fixture struct {
	bus    *comms.Bus
	groups *group.Directory
	agents *agent.Directory
	reg    *Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.groups = group.NewDirectory(func(n string) bool { return f.agents.Has(n) }, nil)
	f.bus = comms.NewBus(comms.Options{Groups: f.groups})
	drivers := driver.NewRegistry(nil)
	drivers.Register(simple.Type, simple.New)
	f.agents = agent.NewDirectory(agent.DirectoryOptions{
		Registry:  drivers,
		Bus:       f.bus,
		IsGroup:   f.groups.Has,
		GroupsFor: f.groups.ForAgent,
	})
	t.Cleanup(f.agents.Close)

	f.reg = NewRegistry(nil, nil)
	for _, s := range Core(f.bus, f.groups, f.agents) {
		f.reg.Add(s)
	}
	return f
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	got := make(chan *comms.Message, 1)
	f.bus.Subscribe("peer", func(_ context.Context, m *comms.Message) error {
		got <- m
		return nil
	})

	out, err := f.reg.Execute(context.Background(), "sendMessage",
		map[string]any{"target": "peer", "message": "hello"}, "bot")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	rec, ok := out.(comms.Record)
	if !ok {
		t.Fatalf("expected comms.Record, got %T", out)
	}
	if rec.Source != "bot" || rec.Target != "peer" || rec.Content != "hello" || rec.Type != "string" {
		t.Errorf("unexpected record %+v", rec)
	}
	m := <-got
	if m.Source() != "bot" {
		t.Errorf("source = %q", m.Source())
	}

	_, err = f.reg.Execute(context.Background(), "sendMessage",
		map[string]any{"target": "peer", "message": "x", "type": "bogus"}, "bot")
	if !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)

	out, err := f.reg.Execute(context.Background(), "createGroup",
		map[string]any{"name": "team", "members": []any{"a", "b"}}, "bot")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	res := out.(map[string]any)
	if members := res["members"].([]string); len(members) != 2 || members[0] != "a" {
		t.Errorf("members = %v", members)
	}

	out, err = f.reg.Execute(context.Background(), "createGroup", map[string]any{"name": "team"}, "bot")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Group team already exists" {
		t.Errorf("unexpected result %v", out)
	}

	_, err = f.reg.Execute(context.Background(), "createGroup",
		map[string]any{"name": "x", "members": "a"}, "bot")
	if !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestAgentsAndGroups(t *testing.T) {
	f := newFixture(t)
	if _, err := f.agents.Create("alice", config.AgentConfig{Driver: config.DriverConfig{"type": simple.Type}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.groups.Add("team", "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx := context.Background()
	out, err := f.reg.Execute(ctx, "getAgentsAndGroups", map[string]any{"name": "alice"}, "bot")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	info, ok := out.(agent.Info)
	if !ok || info.Name != "alice" || len(info.Groups) != 1 || info.Groups[0] != "team" {
		t.Errorf("unexpected agent info %+v", out)
	}

	out, _ = f.reg.Execute(ctx, "getAgentsAndGroups", map[string]any{"name": "team"}, "bot")
	if res := out.(map[string]any); res["name"] != "team" {
		t.Errorf("unexpected group %v", res)
	}

	out, _ = f.reg.Execute(ctx, "getAgentsAndGroups", map[string]any{"name": "nobody"}, "bot")
	if out != nil {
		t.Errorf("expected nil for unknown name, got %v", out)
	}

	out, _ = f.reg.Execute(ctx, "getAgentsAndGroups", nil, "bot")
	res := out.(map[string]any)
	if infos := res["agents"].([]agent.Info); len(infos) != 1 {
		t.Errorf("agents = %v", infos)
	}
	if groups := res["groups"].(map[string][]string); len(groups["team"]) != 1 {
		t.Errorf("groups = %v", groups)
	}
}

func TestSkillInfo(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Add(echoSkill{})
	r.Add(NewSkillInfo(r))

	out, err := r.Execute(context.Background(), "getSkillInfo", map[string]any{"name": "echo"}, "bot")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if def := out.(map[string]any); def["description"] != "echoes" {
		t.Errorf("unexpected definition %v", def)
	}

	out, _ = r.Execute(context.Background(), "getSkillInfo", map[string]any{"name": "nope"}, "bot")
	if out != "Skill nope not found" {
		t.Errorf("unexpected result %v", out)
	}

	out, _ = r.Execute(context.Background(), "getSkillInfo", nil, "bot")
	if defs := out.([]map[string]any); len(defs) != 2 || defs[0]["name"] != "echo" {
		t.Errorf("unexpected list %v", defs)
	}
}
