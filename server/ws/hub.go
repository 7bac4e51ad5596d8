// Package ws implements a Server-Sent Events (SSE) hub that streams swarm
// notifications to connected clients.
//
// Clients may narrow the stream with a topics query parameter holding a
// comma-separated list of topics or topic prefixes ending in a dot, for
// example ?topics=agent.,system.paused.
package ws

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aiswarm/orchestrator/events"
)

// DefaultKeepAlive is the interval between comment frames on idle streams.
const DefaultKeepAlive = 15 * time.Second

const clientBuffer = 64

var (
	registerOnce sync.Once

	connectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "swarm",
		Subsystem: "sse",
		Name:      "clients",
		Help:      "Connected event stream clients.",
	})
	droppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swarm",
		Subsystem: "sse",
		Name:      "events_dropped_total",
		Help:      "Events not delivered because a client buffer was full.",
	})
)

// RegisterMetrics registers the stream collectors with the default registry.
// Safe to call repeatedly.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connectedClients, droppedEvents)
	})
}

// Event is a notification as streamed to clients.
type Event struct {
	ID      uint64 `json:"id"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type frame struct {
	event Event
	data  []byte
}

type client struct {
	ch      chan frame
	filter  []string
	dropped atomic.Uint64
}

// wants reports whether the client subscribed to topic. An empty filter
// matches everything.
func (c *client) wants(topic string) bool {
	if len(c.filter) == 0 {
		return true
	}
	for _, f := range c.filter {
		if f == topic || (strings.HasSuffix(f, ".") && strings.HasPrefix(topic, f)) {
			return true
		}
	}
	return false
}

func parseFilter(raw string) []string {
	var out []string
	for _, f := range strings.Split(raw, ",") {
		if f = strings.TrimSpace(f); f != "" && f != string(events.Any) {
			out = append(out, f)
		}
	}
	return out
}

// Hub fans notifications out to SSE clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *slog.Logger
	seq     atomic.Uint64

	// KeepAlive is the idle interval between comment frames. Zero uses
	// DefaultKeepAlive.
	KeepAlive time.Duration
}

// NewHub creates a Hub ready to accept connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// Attach forwards every notification raised on src to connected clients.
func (h *Hub) Attach(src *events.Hub) (detach func()) {
	return src.On(events.Any, func(ev events.Event) {
		h.Broadcast(string(ev.Topic), ev.Payload)
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast numbers the event and queues it for every client subscribed to
// topic. A client whose buffer is full misses the event.
func (h *Hub) Broadcast(topic string, payload any) {
	ev := Event{ID: h.seq.Add(1), Type: topic, Payload: payload}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("hub broadcast marshal", slog.String("type", topic), slog.Any("err", err))
		return
	}
	f := frame{event: ev, data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.ch <- f:
		default:
			c.dropped.Add(1)
			droppedEvents.Inc()
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	connectedClients.Inc()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	connectedClients.Dec()
	if n := c.dropped.Load(); n > 0 {
		h.logger.Warn("event stream client missed events", slog.Uint64("dropped", n))
	}
}

// ServeSSE streams events until the request ends. Each event is written with
// its sequence number as the SSE id and its topic as the SSE event name.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	c := &client{ch: make(chan frame, clientBuffer), filter: parseFilter(r.URL.Query().Get("topics"))}
	h.add(c)
	defer h.remove(c)

	hello, _ := json.Marshal(map[string]any{"type": "connected", "topics": c.filter})
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", hello) //nolint:errcheck
	flusher.Flush()

	every := h.KeepAlive
	if every <= 0 {
		every = DefaultKeepAlive
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n") //nolint:errcheck
			flusher.Flush()
		case f := <-c.ch:
			// json.Marshal never emits raw newlines, so one data line suffices.
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", f.event.ID, f.event.Type, f.data) //nolint:errcheck
			flusher.Flush()
		}
	}
}
