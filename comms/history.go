package comms

import (
	"sync"
	"time"
)

const (
	DefaultAllLimit        = 10000
	DefaultIndividualLimit = 1000
	DefaultSweepInterval   = time.Second
)

// Limits caps the history buckets. Zero values take the defaults.
type Limits struct {
	All        int `yaml:"all" toml:"all" json:"all"`
	Individual int `yaml:"individual" toml:"individual" json:"individual"`
}

func (l Limits) withDefaults() Limits {
	if l.All <= 0 {
		l.All = DefaultAllLimit
	}
	if l.Individual <= 0 {
		l.Individual = DefaultIndividualLimit
	}
	return l
}

// History is a bounded, time-ordered record of emitted messages indexed by
// target and source. Buckets may briefly exceed their limit; a periodic sweep
// drops the oldest entries.
type History struct {
	mu       sync.RWMutex
	limits   Limits
	all      []*Message
	byTarget map[string][]*Message
	bySource map[string][]*Message

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHistory creates a History. When interval is positive a background sweep
// runs until Close.
func NewHistory(limits Limits, interval time.Duration) *History {
	h := &History{
		limits:   limits.withDefaults(),
		byTarget: make(map[string][]*Message),
		bySource: make(map[string][]*Message),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if interval > 0 {
		go h.loop(interval)
	} else {
		close(h.done)
	}
	return h
}

func (h *History) loop(interval time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Close stops the background sweep and waits for it to exit.
func (h *History) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// Limits returns the effective limits.
func (h *History) Limits() Limits { return h.limits }

// Add records msg in the all bucket and in its target and source buckets.
func (h *History) Add(msg *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all = append(h.all, msg)
	h.byTarget[msg.Target()] = append(h.byTarget[msg.Target()], msg)
	h.bySource[msg.Source()] = append(h.bySource[msg.Source()], msg)
}

// Sweep trims every bucket to its limit, dropping the oldest entries. A
// target or source whose messages have all left the all bucket is forgotten.
func (h *History) Sweep() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all = trim(h.all, h.limits.All)
	oldest := int64(-1)
	for _, m := range h.all {
		if oldest < 0 || m.ID() < oldest {
			oldest = m.ID()
		}
	}
	sweepIndex(h.byTarget, h.limits.Individual, oldest)
	sweepIndex(h.bySource, h.limits.Individual, oldest)
	historySize.Set(float64(len(h.all)))
}

// sweepIndex trims each bucket of idx and deletes buckets holding only
// messages older than oldest. A negative oldest means the all bucket is empty.
func sweepIndex(idx map[string][]*Message, limit int, oldest int64) {
	for k, v := range idx {
		v = trim(v, limit)
		if len(v) == 0 || oldest < 0 || newest(v) < oldest {
			delete(idx, k)
			continue
		}
		idx[k] = v
	}
}

func newest(msgs []*Message) int64 {
	var id int64
	for _, m := range msgs {
		id = max(id, m.ID())
	}
	return id
}

func trim(msgs []*Message, limit int) []*Message {
	if len(msgs) <= limit {
		return msgs
	}
	out := make([]*Message, limit)
	copy(out, msgs[len(msgs)-limit:])
	return out
}

// All returns the newest limit messages in emission order. A non-positive
// limit uses the all-bucket limit.
func (h *History) All(limit int) []*Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 {
		limit = h.limits.All
	}
	return tail(h.all, limit)
}

// ByTarget returns the newest messages addressed to name. Unknown names
// yield an empty result.
func (h *History) ByTarget(name string, limit int) []*Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 {
		limit = h.limits.Individual
	}
	return tail(h.byTarget[name], limit)
}

// BySource returns the newest messages sent by name.
func (h *History) BySource(name string, limit int) []*Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 {
		limit = h.limits.Individual
	}
	return tail(h.bySource[name], limit)
}

// Len returns the size of the all bucket.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func tail(msgs []*Message, limit int) []*Message {
	start := 0
	if len(msgs) > limit {
		start = len(msgs) - limit
	}
	out := make([]*Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}
