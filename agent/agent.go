// Package agent binds named agents to driver instances, supervises them and
// tracks them in a directory.
package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/driver"
	"github.com/aiswarm/orchestrator/events"
)

// DefaultPollInterval is how often driver status is polled.
const DefaultPollInterval = 250 * time.Millisecond

// Info provides read-only metadata about an agent.
type Info struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Driver      string    `json:"driver"`
	Status      string    `json:"status,omitempty"`
	Description string    `json:"description,omitempty"`
	EntryPoint  bool      `json:"entrypoint"`
	Groups      []string  `json:"groups"`
	CreatedAt   time.Time `json:"created_at"`
}

// Options wires an Agent into the system.
type Options struct {
	Bus          *comms.Bus
	Notifier     events.Notifier
	Logger       *slog.Logger
	PollInterval time.Duration
	// GroupsFor returns the groups an agent belongs to.
	GroupsFor func(name string) []string
}

// Agent is a named participant bound to one driver instance.
type Agent struct {
	id        string
	name      string
	cfg       config.AgentConfig
	driver    driver.Driver
	bus       *comms.Bus
	notify    events.Notifier
	logger    *slog.Logger
	groupsFor func(string) []string
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()

	stopPoll   chan struct{}
	pollDone   chan struct{}
	cancelPush func()

	mu      sync.RWMutex
	status  string
	removed bool
}

// New creates an agent, subscribes it to the bus under name and starts
// status supervision.
func New(name string, cfg config.AgentConfig, d driver.Driver, opts Options) *Agent {
	if opts.Notifier == nil {
		opts.Notifier = events.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.GroupsFor == nil {
		opts.GroupsFor = func(string) []string { return nil }
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		id:        uuid.NewString(),
		name:      name,
		cfg:       cfg,
		driver:    d,
		bus:       opts.Bus,
		notify:    opts.Notifier,
		logger:    opts.Logger.With(slog.String("agent", name)),
		groupsFor: opts.GroupsFor,
		createdAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	if r, ok := d.(driver.StatusReporter); ok {
		a.status = r.Status()
	}
	if a.bus != nil {
		a.unsub = a.bus.Subscribe(name, a.handle)
	}
	a.supervise(opts.PollInterval)
	return a
}

func (a *Agent) ID() string                 { return a.id }
func (a *Agent) Name() string               { return a.name }
func (a *Agent) Config() config.AgentConfig { return a.cfg }
func (a *Agent) Driver() driver.Driver      { return a.driver }

// DriverType returns the type reported by the driver.
func (a *Agent) DriverType() string { return a.driver.Type() }

// Groups returns the groups this agent currently belongs to.
func (a *Agent) Groups() []string { return a.groupsFor(a.name) }

// Status returns the last observed driver status.
func (a *Agent) Status() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Info returns a snapshot of the agent.
func (a *Agent) Info() Info {
	groups := a.Groups()
	if groups == nil {
		groups = []string{}
	}
	return Info{
		ID:          a.id,
		Name:        a.name,
		Driver:      a.driver.Type(),
		Status:      a.Status(),
		Description: a.cfg.Description,
		EntryPoint:  a.cfg.EntryPoint,
		Groups:      groups,
		CreatedAt:   a.createdAt,
	}
}

// MarshalJSON encodes the agent as its Info.
func (a *Agent) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Info())
}

// handle is the bus subscription. It never blocks on the driver: the
// instruction runs on its own goroutine and its reply re-enters the bus.
func (a *Agent) handle(_ context.Context, msg *comms.Message) error {
	if msg.Type() == comms.TypeSkill {
		return nil
	}
	// Our own message reaching us through a group we belong to.
	if msg.Source() == a.name && msg.Target() != a.name {
		return nil
	}
	instr, ok := a.driver.(driver.Instructor)
	if !ok {
		return nil
	}
	if a.isRemoved() {
		return nil
	}
	if err := msg.SetStatus(comms.StatusProcessing); err != nil {
		return err
	}
	go a.instruct(instr, msg)
	return nil
}

func (a *Agent) instruct(instr driver.Instructor, msg *comms.Message) {
	reply, err := instr.Instruct(a.ctx, msg)
	if err != nil {
		a.logger.Error("instruct failed", slog.Int64("message", msg.ID()), slog.Any("err", err))
		_ = msg.SetStatus(comms.StatusError)
		return
	}
	_ = msg.SetStatus(comms.StatusComplete)
	if reply == nil || a.isRemoved() {
		return
	}

	out := reply.Message
	if out != nil {
		_ = out.SetStatus(comms.StatusComplete)
	} else {
		if reply.Text == "" {
			return
		}
		out, err = a.bus.CreateMessage(msg.Source(), a.name, reply.Text, comms.TypeString)
		if err != nil {
			a.logger.Error("build reply", slog.Int64("message", msg.ID()), slog.Any("err", err))
			return
		}
	}
	if _, err := a.bus.Emit(a.ctx, out); err != nil {
		a.logger.Warn("reply not delivered",
			slog.Int64("message", msg.ID()),
			slog.Int64("reply", out.ID()),
			slog.Any("err", err))
	}
}

// Pause forwards to the driver's pause hook, if any.
func (a *Agent) Pause() {
	if p, ok := a.driver.(driver.Pauser); ok {
		p.Pause()
	}
}

// Resume forwards to the driver's resume hook, if any.
func (a *Agent) Resume() {
	if r, ok := a.driver.(driver.Resumer); ok {
		r.Resume()
	}
}

// Remove unsubscribes the agent, stops supervision, cancels in-flight
// instructions and calls the driver's teardown hook. Only the first call has
// an effect.
func (a *Agent) Remove() {
	a.mu.Lock()
	if a.removed {
		a.mu.Unlock()
		return
	}
	a.removed = true
	a.mu.Unlock()

	if a.unsub != nil {
		a.unsub()
	}
	a.stopSupervision()
	a.cancel()
	if r, ok := a.driver.(driver.Remover); ok {
		r.Remove(a.name)
	}
}

func (a *Agent) isRemoved() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.removed
}
