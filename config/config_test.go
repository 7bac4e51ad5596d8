package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aiswarm/orchestrator/errdefs"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "swarm.yaml", `
log_level: debug
poll_interval: 100ms
comms:
  history:
    limits:
      all: 50
    sweep_interval: 2s
groups:
  team: [alice]
agents:
  alice:
    entrypoint: true
    driver:
      type: simple
      response: hi
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.PollInterval.Duration != 100*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.Comms.History.Limits.All != 50 {
		t.Errorf("All limit = %d", cfg.Comms.History.Limits.All)
	}
	if cfg.Comms.History.Limits.Individual != 1000 {
		t.Errorf("Individual limit default lost: %d", cfg.Comms.History.Limits.Individual)
	}
	if cfg.Comms.History.SweepInterval.Duration != 2*time.Second {
		t.Errorf("SweepInterval = %v", cfg.Comms.History.SweepInterval)
	}
	alice := cfg.Agents["alice"]
	if !alice.EntryPoint || alice.Driver.Type() != "simple" || alice.Driver["response"] != "hi" {
		t.Errorf("alice = %+v", alice)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr default lost: %q", cfg.Server.Addr)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "swarm.toml", `
poll_interval = "50ms"

[agents.bob.driver]
type = "generator"
interval = "1s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval.Duration != 50*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	bob := cfg.Agents["bob"]
	if bob.Driver.Type() != "generator" || bob.Driver["interval"] != "1s" {
		t.Errorf("bob = %+v", bob)
	}
}

func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "swarm.jsonc", `{
	// comments are fine
	"agents": {
		"carol": {"driver": {"type": "mock", "responses": ["x"]},},
	},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agents["carol"].Driver.Type() != "mock" {
		t.Errorf("carol = %+v", cfg.Agents["carol"])
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "swarm.ini", "x=1")); err == nil {
		t.Error("expected error for unknown extension")
	}
	if _, err := Load(writeFile(t, "bad.yaml", "agents: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestPrepare(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.Agents = AgentConfig{
		Instructions: "be nice",
		Creator:      true,
		Skills:       []string{"sendMessage"},
		Driver:       DriverConfig{"type": "mock", "memory": 10},
	}
	cfg.Drivers["mock"] = DriverConfig{"responses": []any{"default"}, "memory": 5}
	cfg.Groups["team"] = []string{"alice"}
	cfg.Agents["alice"] = AgentConfig{Skills: []string{"createGroup"}}
	cfg.Agents["bob"] = AgentConfig{
		Isolate: true,
		Groups:  []string{"ops"},
		Driver:  DriverConfig{"type": "simple", "response": "ok"},
	}

	if err := Prepare(cfg); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	alice := cfg.Agents["alice"]
	if alice.Instructions != "be nice" || !alice.Creator {
		t.Errorf("global defaults not applied: %+v", alice)
	}
	if len(alice.Skills) != 2 || alice.Skills[0] != "sendMessage" || alice.Skills[1] != "createGroup" {
		t.Errorf("skills = %v", alice.Skills)
	}
	if alice.Driver.Type() != "mock" || alice.Driver["memory"] != 10 {
		t.Errorf("alice driver = %v", alice.Driver)
	}
	if _, ok := alice.Driver["responses"]; !ok {
		t.Errorf("driver defaults not applied: %v", alice.Driver)
	}
	if len(alice.Groups) != 1 || alice.Groups[0] != "team" {
		t.Errorf("alice groups = %v", alice.Groups)
	}

	bob := cfg.Agents["bob"]
	if bob.Creator {
		t.Error("isolated agent must not be a creator")
	}
	if bob.Driver.Type() != "simple" {
		t.Errorf("bob driver = %v", bob.Driver)
	}
	if members := cfg.Groups["ops"]; len(members) != 1 || members[0] != "bob" {
		t.Errorf("ops = %v", members)
	}
	if settings := bob.Driver.Settings(); settings["type"] != nil || settings["response"] != "ok" {
		t.Errorf("Settings = %v", settings)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Errorf("empty config err = %v", err)
	}

	cfg.Agents["alice"] = AgentConfig{}
	if err := Validate(cfg); !errors.Is(err, errdefs.ErrInvalidArgument) {
		t.Errorf("missing driver err = %v", err)
	}

	cfg.Agents["alice"] = AgentConfig{Driver: DriverConfig{"type": "simple"}}
	cfg.Groups["alice"] = []string{"x"}
	if err := Validate(cfg); !errors.Is(err, errdefs.ErrNamingConflict) {
		t.Errorf("clash err = %v", err)
	}

	delete(cfg.Groups, "alice")
	if err := Validate(cfg); err != nil {
		t.Errorf("valid config err = %v", err)
	}
}
