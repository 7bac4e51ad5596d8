package comms

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aiswarm/orchestrator/errdefs"
	"github.com/aiswarm/orchestrator/events"
)

// Route labels how a handler was reached.
type Route string

const (
	RouteTap    Route = "all"
	RouteGroup  Route = "group"
	RouteDirect Route = "direct"
)

type handlerEntry struct {
	id      int64
	handler Handler
}

type delivery struct {
	ctx     context.Context
	msg     *Message
	route   Route
	channel string
	handler Handler
	// done marks a waiter's place in the queue; it has no handler.
	done chan struct{}
}

// dispatchKey marks the contexts handed to handlers by a Bus.
type dispatchKey struct{}

// Options configures a Bus. Every field is optional.
type Options struct {
	History  *History
	Groups   GroupResolver
	State    RunState
	Notifier events.Notifier
	Logger   *slog.Logger
}

// Bus is the in-process publish/subscribe hub. Handlers are invoked
// synchronously and in emission order: a message emitted from inside a
// handler is queued and delivered after the current one has reached every
// subscriber. Handlers that emit must pass on the context they were given.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]handlerEntry
	seq      int64
	queue    []delivery
	draining bool

	history  *History
	groups   GroupResolver
	state    RunState
	notifier events.Notifier
	logger   *slog.Logger
}

// NewBus creates a Bus. A missing history gets default limits and no
// background sweep.
func NewBus(opts Options) *Bus {
	b := &Bus{
		handlers: make(map[string][]handlerEntry),
		history:  opts.History,
		groups:   opts.Groups,
		state:    opts.State,
		notifier: opts.Notifier,
		logger:   opts.Logger,
	}
	if b.history == nil {
		b.history = NewHistory(Limits{}, 0)
	}
	if b.notifier == nil {
		b.notifier = events.Nop{}
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return b
}

// History returns the message store backing the bus.
func (b *Bus) History() *History { return b.history }

// Subscribe registers handler on channel (an agent name or AllChannel).
// The returned function removes it.
func (b *Bus) Subscribe(channel string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := b.seq
	b.handlers[channel] = append(b.handlers[channel], handlerEntry{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[channel]
		filtered := make([]handlerEntry, 0, len(entries))
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(b.handlers, channel)
		} else {
			b.handlers[channel] = filtered
		}
	}
}

// CreateMessage builds a message bound to the bus notifier without emitting it.
func (b *Bus) CreateMessage(target, source, content string, typ Type, opts ...Option) (*Message, error) {
	opts = append([]Option{WithNotifier(b.notifier)}, opts...)
	return NewMessage(target, source, content, typ, opts...)
}

// Emit records msg in history and delivers it: first to the all tap (unless
// msg targets it), then to every member of a group target, then to the
// target's own subscribers. Group deliveries keep the group as the target.
//
// The boolean reports whether any group member or target subscriber existed;
// the tap does not count. Emit fails with errdefs.ErrIllegalState while the
// system is paused.
//
// Emit returns once msg has reached every subscriber, with one exception: an
// emit from inside a handler returns immediately and its deliveries run after
// the current one. When another goroutine is already dispatching, Emit waits
// for it to work through msg, or until ctx is done.
func (b *Bus) Emit(ctx context.Context, msg *Message) (bool, error) {
	if msg == nil {
		return false, fmt.Errorf("emit nil message: %w", errdefs.ErrInvalidArgument)
	}
	if b.state != nil && !b.state.Running() {
		messagesRejected.Inc()
		return false, fmt.Errorf("emit message %d: system is paused: %w", msg.ID(), errdefs.ErrIllegalState)
	}

	var members []string
	isGroup := false
	if b.groups != nil {
		members, isGroup = b.groups.Members(msg.Target())
	}

	b.mu.Lock()
	b.history.Add(msg)
	historySize.Set(float64(b.history.Len()))
	messagesEmitted.WithLabelValues(string(msg.Type())).Inc()

	queued := len(b.queue)
	found := false
	if msg.Target() != AllChannel {
		b.enqueueLocked(ctx, msg, AllChannel, RouteTap)
	}
	if isGroup {
		for _, member := range members {
			if b.enqueueLocked(ctx, msg, member, RouteGroup) {
				found = true
			}
		}
	}
	if b.enqueueLocked(ctx, msg, msg.Target(), RouteDirect) {
		found = true
	}

	if b.draining {
		if len(b.queue) == queued || ctx.Value(dispatchKey{}) == b {
			b.mu.Unlock()
			return found, nil
		}
		done := make(chan struct{})
		b.queue = append(b.queue, delivery{done: done})
		b.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return found, nil
	}
	b.draining = true
	b.mu.Unlock()

	b.drain()
	return found, nil
}

func (b *Bus) enqueueLocked(ctx context.Context, msg *Message, channel string, route Route) bool {
	entries := b.handlers[channel]
	for _, e := range entries {
		b.queue = append(b.queue, delivery{ctx: ctx, msg: msg, route: route, channel: channel, handler: e.handler})
	}
	return len(entries) > 0
}

func (b *Bus) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.draining = false
			b.mu.Unlock()
			return
		}
		d := b.queue[0]
		b.queue[0] = delivery{}
		b.queue = b.queue[1:]
		b.mu.Unlock()

		if d.done != nil {
			close(d.done)
			continue
		}
		b.deliver(d)
	}
}

func (b *Bus) deliver(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			handlerErrors.Inc()
			b.logger.Error("message handler panicked",
				slog.String("channel", d.channel),
				slog.Int64("message", d.msg.ID()),
				slog.Any("panic", r))
		}
	}()
	deliveries.WithLabelValues(string(d.route)).Inc()
	ctx := context.WithValue(d.ctx, dispatchKey{}, b)
	if err := d.handler(ctx, d.msg); err != nil {
		handlerErrors.Inc()
		b.logger.Warn("message handler failed",
			slog.String("channel", d.channel),
			slog.Int64("message", d.msg.ID()),
			slog.Any("err", err))
	}
}

// Envelope carries the fields of a message to construct and emit in one step.
type Envelope struct {
	Target   string
	Source   string
	Content  string
	Type     Type
	Status   Status
	Metadata map[string]any
}

// EmitEnvelope constructs a message from env and emits it. Construction
// errors are returned without emitting.
func (b *Bus) EmitEnvelope(ctx context.Context, env Envelope) (*Message, bool, error) {
	var opts []Option
	if env.Status != "" {
		opts = append(opts, WithStatus(env.Status))
	}
	if len(env.Metadata) > 0 {
		opts = append(opts, WithMetadata(env.Metadata))
	}
	msg, err := b.CreateMessage(env.Target, env.Source, env.Content, env.Type, opts...)
	if err != nil {
		return nil, false, err
	}
	found, err := b.Emit(ctx, msg)
	return msg, found, err
}

// Send is shorthand for emitting a plain message.
func (b *Bus) Send(ctx context.Context, target, source, content string, typ Type) (*Message, bool, error) {
	return b.EmitEnvelope(ctx, Envelope{Target: target, Source: source, Content: content, Type: typ})
}
