// Package events provides the notification hub that components use to tell
// external observers (loggers, the HTTP event stream, UIs) about state changes.
package events

import (
	"sync"
	"sync/atomic"
)

// Topic names a notification kind.
type Topic string

const (
	MessageUpdated   Topic = "message.updated"
	AgentCreated     Topic = "agent.created"
	AgentUpdated     Topic = "agent.updated"
	AgentRemoved     Topic = "agent.removed"
	GroupCreated     Topic = "group.created"
	GroupUpdated     Topic = "group.updated"
	GroupRemoved     Topic = "group.removed"
	DriverRegistered Topic = "driver.registered"
	SkillRegistered  Topic = "skill.registered"
	SystemPaused     Topic = "system.paused"
	SystemResumed    Topic = "system.resumed"
)

// Any subscribes to every topic.
const Any Topic = "*"

// Event is one notification. Payload is shared with every listener and must
// not be mutated.
type Event struct {
	Topic   Topic `json:"type"`
	Payload any   `json:"payload,omitempty"`
}

// Listener receives notifications.
type Listener func(Event)

type listenerEntry struct {
	id int64
	fn Listener
}

// Notifier is the emitting half of a Hub.
type Notifier interface {
	Emit(topic Topic, payload any)
}

// Hub is a synchronous in-process publish/subscribe hub.
type Hub struct {
	mu        sync.RWMutex
	listeners map[Topic][]listenerEntry
	seq       atomic.Int64
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{listeners: make(map[Topic][]listenerEntry)}
}

// On registers fn for topic (or Any). The returned function removes it.
func (h *Hub) On(topic Topic, fn Listener) (off func()) {
	id := h.seq.Add(1)
	h.mu.Lock()
	h.listeners[topic] = append(h.listeners[topic], listenerEntry{id: id, fn: fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		entries := h.listeners[topic]
		filtered := make([]listenerEntry, 0, len(entries))
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(h.listeners, topic)
		} else {
			h.listeners[topic] = filtered
		}
	}
}

// Emit delivers payload to the topic's listeners and then to Any listeners.
// Listeners run on the caller's goroutine, outside the hub lock.
func (h *Hub) Emit(topic Topic, payload any) {
	h.mu.RLock()
	targets := make([]Listener, 0, len(h.listeners[topic])+len(h.listeners[Any]))
	for _, e := range h.listeners[topic] {
		targets = append(targets, e.fn)
	}
	if topic != Any {
		for _, e := range h.listeners[Any] {
			targets = append(targets, e.fn)
		}
	}
	h.mu.RUnlock()

	ev := Event{Topic: topic, Payload: payload}
	for _, fn := range targets {
		fn(ev)
	}
}

// Nop discards notifications.
type Nop struct{}

// Emit implements Notifier.
func (Nop) Emit(Topic, any) {}
