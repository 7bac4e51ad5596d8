package skill

import (
	"context"
	"fmt"
	"slices"

	"github.com/aiswarm/orchestrator/driver"
)

// Toolbox returns the skills in names, run on behalf of agentName. A name
// that matches a collection expands to its skills. Unknown names are kept so
// that skills registered later become available.
func (r *Registry) Toolbox(agentName string, names []string) driver.Toolbox {
	var expanded []string
	for _, name := range names {
		members, ok := r.Collection(name)
		if !ok {
			members = []string{name}
		}
		for _, m := range members {
			if !slices.Contains(expanded, m) {
				expanded = append(expanded, m)
			}
		}
	}
	return &toolbox{reg: r, agent: agentName, names: expanded}
}

type toolbox struct {
	reg   *Registry
	agent string
	names []string
}

func (t *toolbox) Tools() []driver.Tool {
	out := make([]driver.Tool, 0, len(t.names))
	for _, name := range t.names {
		s, ok := t.reg.Get(name)
		if !ok {
			continue
		}
		params, _ := Definition(s)["parameters"].(map[string]any)
		out = append(out, driver.Tool{Name: s.Name(), Description: s.Description(), Parameters: params})
	}
	return out
}

func (t *toolbox) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	if !slices.Contains(t.names, name) {
		return nil, fmt.Errorf("skill %s is not available to %s: %w", name, t.agent, ErrNotFound)
	}
	return t.reg.Execute(ctx, name, args, t.agent)
}
