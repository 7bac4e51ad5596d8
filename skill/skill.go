// Package skill defines the skills agents can invoke and the registry that
// executes them.
package skill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/aiswarm/orchestrator/errdefs"
	"github.com/aiswarm/orchestrator/events"
)

// ErrNotFound is returned when executing an unknown skill.
var ErrNotFound = errors.New("skill not found")

// Parameter describes one skill argument.
type Parameter struct {
	Type        string     `json:"type"`
	Description string     `json:"description"`
	Enum        []string   `json:"enum,omitempty"`
	Items       *Parameter `json:"items,omitempty"`
}

// Skill is a command an agent can execute.
type Skill interface {
	// Name returns the unique skill identifier.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Parameters describes the accepted arguments.
	Parameters() map[string]Parameter

	// Required lists the mandatory arguments.
	Required() []string

	// Execute runs the skill on behalf of agent.
	Execute(ctx context.Context, args map[string]any, agent string) (any, error)
}

// Definition renders s as a JSON-schema tool definition.
func Definition(s Skill) map[string]any {
	required := s.Required()
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"name":        s.Name(),
		"description": s.Description(),
		"parameters": map[string]any{
			"type":       "object",
			"properties": s.Parameters(),
			"required":   required,
		},
	}
}

// Registry manages skills and named skill collections in memory.
type Registry struct {
	mu          sync.RWMutex
	skills      map[string]Skill
	collections map[string][]string
	notify      events.Notifier
	logger      *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(notify events.Notifier, logger *slog.Logger) *Registry {
	if notify == nil {
		notify = events.Nop{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		skills:      make(map[string]Skill),
		collections: make(map[string][]string),
		notify:      notify,
		logger:      logger,
	}
}

// Add registers s, replacing any skill with the same name.
func (r *Registry) Add(s Skill) {
	r.mu.Lock()
	r.skills[s.Name()] = s
	r.mu.Unlock()
	r.notify.Emit(events.SkillRegistered, s.Name())
}

// Get returns a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// List returns all skill names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.skills))
	for name := range r.skills {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AddCollection stores a named list of skill names.
func (r *Registry) AddCollection(name string, skills []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[name] = append([]string(nil), skills...)
}

// Collection returns the skill names stored under name.
func (r *Registry) Collection(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[name]
	return append([]string(nil), c...), ok
}

// Execute runs the named skill for agent. Failures are logged and returned
// wrapped with the skill name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, agent string) (any, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("executing skill %s: %w", name, ErrNotFound)
	}
	if args == nil {
		args = map[string]any{}
	}
	for _, req := range s.Required() {
		if _, ok := args[req]; !ok {
			return nil, fmt.Errorf("error executing skill %s: missing argument %q: %w", name, req, errdefs.ErrInvalidArgument)
		}
	}
	out, err := s.Execute(ctx, args, agent)
	if err != nil {
		r.logger.Error("skill failed",
			slog.String("skill", name),
			slog.String("agent", agent),
			slog.Any("err", err))
		return nil, fmt.Errorf("error executing skill %s: %w", name, err)
	}
	return out, nil
}
