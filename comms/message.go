package comms

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aiswarm/orchestrator/errdefs"
	"github.com/aiswarm/orchestrator/events"
)

// lastID is shared by every message in the process; ids are never reused.
var lastID atomic.Int64

var titleCaser = cases.Title(language.English)

// Message is one unit of communication between agents, groups and the user.
// Identity, addressing, type and timestamp are fixed at construction; content
// and status change over the message's lifetime.
type Message struct {
	mu        sync.RWMutex
	id        int64
	target    string
	source    string
	content   string
	typ       Type
	status    Status
	timestamp time.Time
	metadata  map[string]any
	notifier  events.Notifier
}

// Option customizes a message at construction.
type Option func(*Message)

// WithStatus sets the initial status. Construction fails if it is not enumerated.
func WithStatus(s Status) Option {
	return func(m *Message) { m.status = s }
}

// WithMetadata attaches metadata. The map is copied.
func WithMetadata(md map[string]any) Option {
	return func(m *Message) {
		for k, v := range md {
			m.metadata[k] = v
		}
	}
}

// WithNotifier sets where "message updated" notifications go.
func WithNotifier(n events.Notifier) Option {
	return func(m *Message) {
		if n != nil {
			m.notifier = n
		}
	}
}

// NewMessage constructs a message. An empty typ means TypeString. It fails
// with errdefs.ErrInvalidArgument for unknown types or statuses.
func NewMessage(target, source, content string, typ Type, opts ...Option) (*Message, error) {
	if typ == "" {
		typ = TypeString
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("invalid message type %q: %w", typ, errdefs.ErrInvalidArgument)
	}
	m := &Message{
		target:    target,
		source:    source,
		content:   content,
		typ:       typ,
		status:    StatusCreated,
		timestamp: time.Now(),
		metadata:  make(map[string]any),
		notifier:  events.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.status.Valid() {
		return nil, fmt.Errorf("invalid message status %q: %w", m.status, errdefs.ErrInvalidArgument)
	}
	m.id = lastID.Add(1)
	return m, nil
}

func (m *Message) ID() int64            { return m.id }
func (m *Message) Target() string       { return m.target }
func (m *Message) Source() string       { return m.source }
func (m *Message) Type() Type           { return m.typ }
func (m *Message) Timestamp() time.Time { return m.timestamp }

// Content returns the current text payload.
func (m *Message) Content() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.content
}

// Status returns the current lifecycle state.
func (m *Message) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// SetStatus transitions the message. Setting the current status is a silent
// no-op; any other enumerated value raises a message-updated notification.
func (m *Message) SetStatus(s Status) error {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return nil
	}
	if !s.Valid() {
		m.mu.Unlock()
		return fmt.Errorf("invalid message status %q: %w", s, errdefs.ErrInvalidArgument)
	}
	m.status = s
	n := m.notifier
	m.mu.Unlock()

	n.Emit(events.MessageUpdated, m)
	return nil
}

// Append concatenates content to the payload and raises a notification.
func (m *Message) Append(content string) {
	m.mu.Lock()
	m.content += content
	n := m.notifier
	m.mu.Unlock()

	n.Emit(events.MessageUpdated, m)
}

// Metadata returns the value stored under key.
func (m *Message) Metadata(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.metadata[key]
	return v, ok
}

// MetadataMap returns a copy of all metadata.
func (m *Message) MetadataMap() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.metadata))
	for k, v := range m.metadata {
		out[k] = v
	}
	return out
}

// MetadataEntry is one flattened metadata pair. Value is JSON text.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Record is the plain serializable form of a message.
type Record struct {
	ID        int64           `json:"id"`
	Source    string          `json:"source"`
	Target    string          `json:"target"`
	Content   string          `json:"content"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Status    string          `json:"status"`
	Metadata  []MetadataEntry `json:"metadata"`
}

// Object flattens the message into a Record. Metadata values that cannot be
// encoded as JSON are rendered as null.
func (m *Message) Object() Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.metadata))
	for k := range m.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	md := make([]MetadataEntry, 0, len(keys))
	for _, k := range keys {
		raw, err := json.Marshal(m.metadata[k])
		if err != nil {
			raw = []byte("null")
		}
		md = append(md, MetadataEntry{Key: k, Value: string(raw)})
	}

	return Record{
		ID:        m.id,
		Source:    m.source,
		Target:    m.target,
		Content:   m.content,
		Type:      string(m.typ),
		Timestamp: m.timestamp.UTC().Format(time.RFC3339Nano),
		Status:    string(m.status),
		Metadata:  md,
	}
}

// MarshalJSON encodes the message as its Record.
func (m *Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Object())
}

// String renders a short human-readable description.
func (m *Message) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	at := m.timestamp.Format(time.TimeOnly)
	switch m.typ {
	case TypeImage, TypeVideo, TypeAudio:
		return fmt.Sprintf("%s %d from %s to %s at %s is %s",
			titleCaser.String(string(m.typ)), m.id, m.source, m.target, at, m.status)
	}
	s := fmt.Sprintf("Message %d from %s to %s at %s is %s: %s",
		m.id, m.source, m.target, at, m.status, m.content)
	if len(m.metadata) > 0 {
		if raw, err := json.Marshal(m.metadata); err == nil {
			s += " with metadata " + string(raw)
		}
	}
	return s
}
