package agent

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/driver"
	"github.com/aiswarm/orchestrator/errdefs"
	"github.com/aiswarm/orchestrator/events"
)

// DirectoryOptions wires a Directory into the system.
type DirectoryOptions struct {
	Registry     *driver.Registry
	Bus          *comms.Bus
	Roster       driver.Roster
	Notifier     events.Notifier
	Logger       *slog.Logger
	PollInterval time.Duration
	// IsGroup reports whether a name is taken by a group.
	IsGroup   func(name string) bool
	GroupsFor func(name string) []string
	// Toolbox returns the skills handed to the driver of a new agent.
	Toolbox func(name string, cfg config.AgentConfig) driver.Toolbox
}

// Directory creates agents through the driver registry and indexes them by
// name, by driver type and by entry-point flag.
type Directory struct {
	opts DirectoryOptions

	mu          sync.RWMutex
	agents      map[string]*Agent
	byDriver    map[string][]*Agent
	entryPoints []*Agent
}

// NewDirectory creates an empty Directory.
func NewDirectory(opts DirectoryOptions) *Directory {
	if opts.Registry == nil {
		opts.Registry = driver.NewRegistry(opts.Notifier)
	}
	if opts.Notifier == nil {
		opts.Notifier = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.IsGroup == nil {
		opts.IsGroup = func(string) bool { return false }
	}
	return &Directory{
		opts:     opts,
		agents:   make(map[string]*Agent),
		byDriver: make(map[string][]*Agent),
	}
}

// Create returns the agent called name, creating it first if needed. It fails
// with errdefs.ErrNamingConflict when name belongs to a group and with a
// *errdefs.DriverNotFoundError when the driver cannot be built; in both cases
// nothing is indexed. Agents flagged as entry points are added to the
// entry-point set.
func (d *Directory) Create(name string, cfg config.AgentConfig) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent name is empty: %w", errdefs.ErrInvalidArgument)
	}
	if d.opts.IsGroup(name) {
		return nil, errdefs.NamingConflict("agent", name, "a group")
	}
	if a, ok := d.Get(name); ok {
		return a, nil
	}

	typ := cfg.Driver.Type()
	var tools driver.Toolbox
	if d.opts.Toolbox != nil {
		tools = d.opts.Toolbox(name, cfg)
	}
	drv, err := d.opts.Registry.New(typ, driver.Params{
		Agent:        name,
		Instructions: cfg.Instructions,
		Settings:     driver.Settings(cfg.Driver.Settings()),
		Bus:          d.opts.Bus,
		Roster:       d.opts.Roster,
		Skills:       tools,
		Logger:       d.opts.Logger,
	})
	if err != nil {
		d.opts.Logger.Error("driver instantiation failed",
			slog.String("agent", name),
			slog.String("driver", typ),
			slog.Any("err", err))
		return nil, &errdefs.DriverNotFoundError{Agent: name, DriverType: typ}
	}

	d.mu.Lock()
	if existing, ok := d.agents[name]; ok {
		d.mu.Unlock()
		if r, ok := drv.(driver.Remover); ok {
			r.Remove(name)
		}
		return existing, nil
	}
	a := New(name, cfg, drv, Options{
		Bus:          d.opts.Bus,
		Notifier:     d.opts.Notifier,
		Logger:       d.opts.Logger,
		PollInterval: d.opts.PollInterval,
		GroupsFor:    d.opts.GroupsFor,
	})
	d.agents[name] = a
	d.byDriver[typ] = append(d.byDriver[typ], a)
	if cfg.EntryPoint {
		d.entryPoints = append(d.entryPoints, a)
	}
	d.mu.Unlock()

	d.opts.Logger.Info("created agent", slog.String("agent", name), slog.String("driver", typ))
	d.opts.Notifier.Emit(events.AgentCreated, a)
	return a, nil
}

// Load is the initial bulk load. Agents are created in name order; failures
// are collected and do not stop the rest of the batch. If no agent in the
// batch is flagged as an entry point, every agent created by this call
// becomes one. Agents created later are never added by this fallback.
func (d *Directory) Load(cfgs map[string]config.AgentConfig) ([]*Agent, error) {
	var (
		created []*Agent
		errs    []error
		flagged bool
	)
	for _, name := range slices.Sorted(maps.Keys(cfgs)) {
		a, err := d.Create(name, cfgs[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		created = append(created, a)
		if cfgs[name].EntryPoint {
			flagged = true
		}
	}
	if !flagged && len(created) > 0 {
		d.mu.Lock()
		for _, a := range created {
			if !slices.Contains(d.entryPoints, a) {
				d.entryPoints = append(d.entryPoints, a)
			}
		}
		d.mu.Unlock()
	}
	return created, errors.Join(errs...)
}

// Get returns the agent called name.
func (d *Directory) Get(name string) (*Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[name]
	return a, ok
}

// Has reports whether name is an agent.
func (d *Directory) Has(name string) bool {
	_, ok := d.Get(name)
	return ok
}

// All returns every agent sorted by name.
func (d *Directory) All() []*Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Agent, 0, len(d.agents))
	for _, name := range slices.Sorted(maps.Keys(d.agents)) {
		out = append(out, d.agents[name])
	}
	return out
}

// Names returns every agent name, sorted.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.agents))
}

// ByDriver returns the agents using driver type typ, in creation order.
func (d *Directory) ByDriver(typ string) []*Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.byDriver[typ])
}

// WithEntryPoints returns the entry-point agents in the order they were added.
func (d *Directory) WithEntryPoints() []*Agent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.entryPoints)
}

// Remove tears down the agent called name and drops it from every index.
func (d *Directory) Remove(name string) bool {
	d.mu.Lock()
	a, ok := d.agents[name]
	if !ok {
		d.mu.Unlock()
		return false
	}
	delete(d.agents, name)
	for typ, list := range d.byDriver {
		list = slices.DeleteFunc(slices.Clone(list), func(x *Agent) bool { return x == a })
		if len(list) == 0 {
			delete(d.byDriver, typ)
		} else {
			d.byDriver[typ] = list
		}
	}
	d.entryPoints = slices.DeleteFunc(slices.Clone(d.entryPoints), func(x *Agent) bool { return x == a })
	d.mu.Unlock()

	a.Remove()
	d.opts.Logger.Info("removed agent", slog.String("agent", name))
	d.opts.Notifier.Emit(events.AgentRemoved, a)
	return true
}

// PauseAll forwards Pause to every agent.
func (d *Directory) PauseAll() {
	for _, a := range d.All() {
		a.Pause()
	}
}

// ResumeAll forwards Resume to every agent.
func (d *Directory) ResumeAll() {
	for _, a := range d.All() {
		a.Resume()
	}
}

// Close removes every agent.
func (d *Directory) Close() {
	for _, name := range d.Names() {
		d.Remove(name)
	}
}
