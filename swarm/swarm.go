// Package swarm wires the bus, directories and registries into one running
// system.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/aiswarm/orchestrator/agent"
	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/driver"
	"github.com/aiswarm/orchestrator/driver/generator"
	"github.com/aiswarm/orchestrator/driver/llm"
	"github.com/aiswarm/orchestrator/driver/simple"
	"github.com/aiswarm/orchestrator/errdefs"
	"github.com/aiswarm/orchestrator/events"
	"github.com/aiswarm/orchestrator/group"
	"github.com/aiswarm/orchestrator/skill"
)

// UserSource is the source of messages that enter the system from outside.
const UserSource = "user"

// RunIDKey is the metadata key carrying the run ID of externally originated
// messages.
const RunIDKey = "run_id"

// CoreCollection names the skill collection holding every built-in skill
// except createAgent. Agents without configured skills get it.
const CoreCollection = "core"

// CreateAgentSkill is offered to creator agents on top of their skills.
const CreateAgentSkill = "createAgent"

// System owns the running state and every component of a swarm.
type System struct {
	cfg    *config.Config
	logger *slog.Logger
	hub    *events.Hub

	running atomic.Bool

	history *comms.History
	bus     *comms.Bus
	groups  *group.Directory
	agents  *agent.Directory
	drivers *driver.Registry
	skills  *skill.Registry
}

// New builds a System from cfg. The system starts running; agents are not
// created until Initialize. A nil cfg uses config.DefaultConfig.
func New(cfg *config.Config, logger *slog.Logger) *System {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &System{
		cfg:    cfg,
		logger: logger,
		hub:    events.NewHub(),
	}
	s.running.Store(true)

	hc := cfg.Comms.History
	s.history = comms.NewHistory(hc.Limits, hc.SweepInterval.Duration)
	s.groups = group.NewDirectory(func(name string) bool { return s.agents.Has(name) }, s.hub)
	s.bus = comms.NewBus(comms.Options{
		History:  s.history,
		Groups:   s.groups,
		State:    s,
		Notifier: s.hub,
		Logger:   logger.With(slog.String("component", "bus")),
	})
	s.drivers = driver.NewRegistry(s.hub)
	s.agents = agent.NewDirectory(agent.DirectoryOptions{
		Registry:     s.drivers,
		Bus:          s.bus,
		Roster:       roster{s},
		Notifier:     s.hub,
		Logger:       logger.With(slog.String("component", "agents")),
		PollInterval: cfg.PollInterval.Duration,
		IsGroup:      s.groups.Has,
		GroupsFor:    s.groups.ForAgent,
		Toolbox:      s.toolbox,
	})
	s.skills = skill.NewRegistry(s.hub, logger.With(slog.String("component", "skills")))

	s.registerBuiltins()
	return s
}

func (s *System) registerBuiltins() {
	s.drivers.Register(simple.Type, simple.New)
	s.drivers.Register(generator.Type, generator.New)
	for typ, f := range llm.Factories() {
		s.drivers.Register(typ, f)
	}

	for _, sk := range skill.Core(s.bus, s.groups, s.agents) {
		s.skills.Add(sk)
	}
	s.skills.Add(skill.NewSkillInfo(s.skills))
	s.skills.AddCollection(CoreCollection, s.skills.List())
	s.skills.Add(skill.NewCreateAgent(s.agents, s, s.drivers.Available, s.skills.List))
}

// toolbox picks the skills of a new agent: its configured skills or the core
// collection, plus createAgent for creators. Isolated agents get only what
// they are configured with.
func (s *System) toolbox(name string, cfg config.AgentConfig) driver.Toolbox {
	names := slices.Clone(cfg.Skills)
	if len(names) == 0 && !cfg.Isolate {
		names = []string{CoreCollection}
	}
	if cfg.Creator && !cfg.Isolate {
		names = append(names, CreateAgentSkill)
	}
	if len(names) == 0 {
		return nil
	}
	return s.skills.Toolbox(name, names)
}

// Config returns the configuration the system was built from.
func (s *System) Config() *config.Config { return s.cfg }

// Events returns the notification hub.
func (s *System) Events() *events.Hub { return s.hub }

// Bus returns the communication bus.
func (s *System) Bus() *comms.Bus { return s.bus }

// Groups returns the group directory.
func (s *System) Groups() *group.Directory { return s.groups }

// Agents returns the agent directory.
func (s *System) Agents() *agent.Directory { return s.agents }

// Drivers returns the driver registry.
func (s *System) Drivers() *driver.Registry { return s.drivers }

// Skills returns the skill registry.
func (s *System) Skills() *skill.Registry { return s.skills }

// Running implements comms.RunState.
func (s *System) Running() bool { return s.running.Load() }

// Pause stops the bus from accepting messages and pauses every agent.
func (s *System) Pause() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.agents.PauseAll()
	s.logger.Info("system paused")
	s.hub.Emit(events.SystemPaused, nil)
}

// Resume reopens the bus and resumes every agent.
func (s *System) Resume() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.agents.ResumeAll()
	s.logger.Info("system resumed")
	s.hub.Emit(events.SystemResumed, nil)
}

// RegisterDriver makes a driver type available to agents created afterwards.
func (s *System) RegisterDriver(typ string, f driver.Factory) {
	s.drivers.Register(typ, f)
}

// RegisterSkill adds a skill to the registry.
func (s *System) RegisterSkill(sk skill.Skill) {
	s.skills.Add(sk)
}

// CreateAgent creates an agent, or returns the existing one with that name.
func (s *System) CreateAgent(name string, cfg config.AgentConfig) (*agent.Agent, error) {
	a, err := s.agents.Create(name, cfg)
	if err != nil {
		return nil, err
	}
	for _, g := range cfg.Groups {
		if _, err := s.groups.Add(g, name); err != nil {
			return a, err
		}
	}
	return a, nil
}

// CreateGroup creates a group or adds members to an existing one.
func (s *System) CreateGroup(name string, members ...string) error {
	_, err := s.groups.Add(name, members...)
	return err
}

// Initialize performs the initial bulk load: configured groups first, then
// every configured agent. If no agent is flagged as an entry point, every
// loaded agent becomes one. Errors are collected and returned together.
func (s *System) Initialize() error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(s.cfg.Groups)) {
		if _, err := s.groups.Add(name, s.cfg.Groups[name]...); err != nil {
			errs = append(errs, err)
		}
	}
	created, err := s.agents.Load(s.cfg.Agents)
	if err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("swarm initialized",
		slog.Int("agents", len(created)),
		slog.Int("groups", len(s.groups.List())))
	return errors.Join(errs...)
}

// Run resumes the system and sends instructions from the user to every
// entry-point agent. All messages of one run share a run ID in their
// metadata, which is returned.
func (s *System) Run(ctx context.Context, instructions string) (string, error) {
	s.Resume()
	entries := s.agents.WithEntryPoints()
	if len(entries) == 0 {
		return "", fmt.Errorf("no entry-point agents to run: %w", errdefs.ErrIllegalState)
	}

	runID := uuid.NewString()
	s.logger.Info("running swarm", slog.String("run", runID), slog.Int("entrypoints", len(entries)))
	var errs []error
	for _, a := range entries {
		_, _, err := s.bus.EmitEnvelope(ctx, comms.Envelope{
			Target:   a.Name(),
			Source:   UserSource,
			Content:  instructions,
			Type:     comms.TypeString,
			Metadata: map[string]any{RunIDKey: runID},
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return runID, errors.Join(errs...)
}

// Close removes every agent and stops the history sweep.
func (s *System) Close() {
	s.agents.Close()
	s.history.Close()
}

type roster struct{ s *System }

func (r roster) AgentNames() []string { return r.s.agents.Names() }
func (r roster) GroupNames() []string { return r.s.groups.List() }
