// Package generator provides a driver that produces synthetic traffic: every
// interval its agent sends a message to a configured or randomly chosen
// target. It is used to exercise the bus without a real backend.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/driver"
)

// Type is the registry key for this driver.
const Type = "generator"

const DefaultInterval = 5 * time.Second

const (
	StatusRunning = "running"
	StatusPaused  = "paused"
	StatusStopped = "stopped"
)

// Config holds the driver settings. Interval is either a number of
// milliseconds (5000) or a duration string ("5s").
type Config struct {
	Interval any    `yaml:"interval"`
	To       string `yaml:"to"`
	Content  string `yaml:"content"`
}

// ParseInterval converts an interval setting to a duration. Numbers and
// numeric strings are milliseconds. A nil value yields zero.
func ParseInterval(v any) (time.Duration, error) {
	ms := func(f float64) time.Duration { return time.Duration(f * float64(time.Millisecond)) }
	switch x := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return x, nil
	case int:
		return time.Duration(x) * time.Millisecond, nil
	case int64:
		return time.Duration(x) * time.Millisecond, nil
	case uint64:
		return time.Duration(x) * time.Millisecond, nil
	case float64:
		return ms(x), nil
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return ms(f), nil
		}
		d, err := time.ParseDuration(x)
		if err != nil {
			return 0, fmt.Errorf("invalid generator interval %q: %w", x, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("invalid generator interval %v (%T)", v, v)
	}
}

// Driver emits a message per tick while running.
type Driver struct {
	agent    string
	cfg      Config
	interval time.Duration
	bus    *comms.Bus
	roster driver.Roster
	logger *slog.Logger

	mu        sync.Mutex
	status    string
	stop      chan struct{}
	listeners map[int]func(string)
	nextID    int
}

// New is a driver.Factory. The first tick fires after a random delay shorter
// than the interval so that many generators do not fire in lockstep.
func New(p driver.Params) (driver.Driver, error) {
	var cfg Config
	if err := p.Settings.Decode(&cfg); err != nil {
		return nil, err
	}
	// Read the raw value so a time.Duration passed in from Go keeps its unit.
	interval, err := ParseInterval(p.Settings["interval"])
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if p.Bus == nil {
		return nil, fmt.Errorf("generator driver for %s needs a bus", p.Agent)
	}
	d := &Driver{
		agent:     p.Agent,
		cfg:       cfg,
		interval:  interval,
		bus:       p.Bus,
		roster:    p.Roster,
		logger:    p.Log().With(slog.String("agent", p.Agent), slog.String("driver", Type)),
		listeners: make(map[int]func(string)),
	}
	d.start(time.Duration(rand.Int64N(int64(interval))))
	d.logger.Debug("created generator driver", slog.Duration("interval", interval))
	return d, nil
}

func (d *Driver) Type() string { return Type }

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

// Instruct logs incoming traffic; a generator never replies.
func (d *Driver) Instruct(_ context.Context, msg *comms.Message) (*driver.Reply, error) {
	if msg.Target() != d.agent {
		d.logger.Debug("received group message", slog.String("message", msg.String()))
	} else {
		d.logger.Debug("received message", slog.String("message", msg.String()))
	}
	return nil, nil
}

// Pause stops ticking until Resume.
func (d *Driver) Pause() {
	d.mu.Lock()
	if d.status == StatusStopped {
		d.mu.Unlock()
		return
	}
	d.haltLocked()
	fns := d.setStatusLocked(StatusPaused)
	d.mu.Unlock()
	notify(fns, StatusPaused)
}

// Resume restarts ticking; the next tick is one interval away.
func (d *Driver) Resume() {
	d.start(d.interval)
}

// Remove stops the driver permanently.
func (d *Driver) Remove(string) {
	d.mu.Lock()
	d.haltLocked()
	fns := d.setStatusLocked(StatusStopped)
	d.mu.Unlock()
	notify(fns, StatusStopped)
}

func (d *Driver) start(first time.Duration) {
	d.mu.Lock()
	if d.status == StatusStopped {
		d.mu.Unlock()
		return
	}
	d.haltLocked()
	stop := make(chan struct{})
	d.stop = stop
	fns := d.setStatusLocked(StatusRunning)
	d.mu.Unlock()
	notify(fns, StatusRunning)

	go d.loop(stop, first)
}

func (d *Driver) haltLocked() {
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
}

func (d *Driver) setStatusLocked(s string) []func(string) {
	if d.status == s {
		return nil
	}
	d.status = s
	fns := make([]func(string), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(string), status string) {
	for _, fn := range fns {
		fn(status)
	}
}

func (d *Driver) loop(stop <-chan struct{}, first time.Duration) {
	timer := time.NewTimer(first)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			d.tick()
			timer.Reset(d.interval)
		}
	}
}

func (d *Driver) tick() {
	to := d.cfg.To
	if to == "" {
		to = d.pickTarget()
	}
	if to == "" {
		d.logger.Debug("no target to send to")
		return
	}
	content := d.cfg.Content
	if content == "" {
		content = fmt.Sprintf("Message from %s to %s", d.agent, to)
	}
	msg, _, err := d.bus.Send(context.Background(), to, d.agent, content, comms.TypeString)
	if err != nil {
		d.logger.Debug("generated message not sent", slog.Any("err", err))
		return
	}
	d.logger.Info(msg.String())
}

func (d *Driver) pickTarget() string {
	if d.roster == nil {
		return ""
	}
	candidates := d.roster.GroupNames()
	for _, name := range d.roster.AgentNames() {
		if name != d.agent && !slices.Contains(candidates, name) {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[rand.IntN(len(candidates))]
}
