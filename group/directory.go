// Package group manages named member sets that act as fan-out targets on the
// communication bus. Group names share one namespace with agent names.
package group

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aiswarm/orchestrator/errdefs"
	"github.com/aiswarm/orchestrator/events"
)

// Group is a snapshot of one group.
type Group struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Directory stores groups in creation order.
type Directory struct {
	mu      sync.RWMutex
	groups  map[string][]string
	order   []string
	isAgent func(name string) bool
	notify  events.Notifier
}

// NewDirectory creates an empty Directory. isAgent reports whether a name is
// already taken by an agent; nil means no agents exist.
func NewDirectory(isAgent func(name string) bool, notify events.Notifier) *Directory {
	if isAgent == nil {
		isAgent = func(string) bool { return false }
	}
	if notify == nil {
		notify = events.Nop{}
	}
	return &Directory{
		groups:  make(map[string][]string),
		isAgent: isAgent,
		notify:  notify,
	}
}

// Add creates name with members, or merges members into an existing group.
// Members keep first-insertion order and are never duplicated. It reports
// whether the group was created and fails with errdefs.ErrNamingConflict when
// name belongs to an agent.
func (d *Directory) Add(name string, members ...string) (created bool, err error) {
	if name == "" {
		return false, fmt.Errorf("group name is empty: %w", errdefs.ErrInvalidArgument)
	}
	if d.isAgent(name) {
		return false, errdefs.NamingConflict("group", name, "an agent")
	}

	d.mu.Lock()
	existing, ok := d.groups[name]
	merged := merge(existing, members)
	d.groups[name] = merged
	if !ok {
		d.order = append(d.order, name)
	}
	snapshot := Group{Name: name, Members: append([]string(nil), merged...)}
	d.mu.Unlock()

	if ok {
		d.notify.Emit(events.GroupUpdated, snapshot)
		return false, nil
	}
	d.notify.Emit(events.GroupCreated, snapshot)
	return true, nil
}

func merge(existing, add []string) []string {
	out := make([]string, 0, len(existing)+len(add))
	seen := make(map[string]struct{}, len(existing)+len(add))
	for _, list := range [][]string{existing, add} {
		for _, m := range list {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

// AutoName returns the canonical group name for a set of names.
func AutoName(names ...string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}

// Auto ensures a group containing exactly names exists under its canonical
// name and returns that name. Call order of names does not matter.
func (d *Directory) Auto(names ...string) (string, error) {
	name := AutoName(names...)
	if _, err := d.Add(name, names...); err != nil {
		return "", err
	}
	return name, nil
}

// Get returns a copy of the members of name.
func (d *Directory) Get(name string) ([]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members, ok := d.groups[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), members...), true
}

// Members implements comms.GroupResolver.
func (d *Directory) Members(name string) ([]string, bool) {
	return d.Get(name)
}

// Has reports whether name is a group.
func (d *Directory) Has(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.groups[name]
	return ok
}

// Remove deletes name and reports whether it existed.
func (d *Directory) Remove(name string) bool {
	d.mu.Lock()
	if _, ok := d.groups[name]; !ok {
		d.mu.Unlock()
		return false
	}
	delete(d.groups, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	d.notify.Emit(events.GroupRemoved, Group{Name: name})
	return true
}

// List returns group names in creation order.
func (d *Directory) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// ForAgent returns the groups that contain member, in creation order.
func (d *Directory) ForAgent(member string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for _, name := range d.order {
		for _, m := range d.groups[name] {
			if m == member {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// Map returns a copy of every group's members keyed by name.
func (d *Directory) Map() map[string][]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string][]string, len(d.groups))
	for name, members := range d.groups {
		out[name] = append([]string(nil), members...)
	}
	return out
}

// All returns snapshots of every group in creation order.
func (d *Directory) All() []Group {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Group, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, Group{Name: name, Members: append([]string(nil), d.groups[name]...)})
	}
	return out
}
