package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/aiswarm/orchestrator/errdefs"
)

// Prepare normalizes and validates c in place: global agent defaults, driver
// defaults and group membership are applied before validation.
func Prepare(c *Config) error {
	c.ensureMaps()
	ApplyGlobal(c)
	ApplyDrivers(c)
	ApplyGroups(c)
	return Validate(c)
}

// ApplyGlobal merges Global.Agents under every agent. Agent values win for
// scalars and driver keys; lists are unioned; flags are or-ed.
func ApplyGlobal(c *Config) {
	g := c.Global.Agents
	for name, a := range c.Agents {
		if a.Description == "" {
			a.Description = g.Description
		}
		if a.Instructions == "" {
			a.Instructions = g.Instructions
		}
		a.EntryPoint = a.EntryPoint || g.EntryPoint
		a.Creator = a.Creator || g.Creator
		a.Isolate = a.Isolate || g.Isolate
		if a.Isolate {
			a.Creator = false
		}
		a.Skills = union(g.Skills, a.Skills)
		a.Groups = union(g.Groups, a.Groups)
		a.Driver = mergeDriver(g.Driver, a.Driver)
		c.Agents[name] = a
	}
}

// ApplyDrivers merges the per-type defaults from Drivers under each agent's
// driver settings.
func ApplyDrivers(c *Config) {
	for name, a := range c.Agents {
		defaults, ok := c.Drivers[a.Driver.Type()]
		if !ok {
			continue
		}
		a.Driver = mergeDriver(defaults, a.Driver)
		c.Agents[name] = a
	}
}

// ApplyGroups makes group membership symmetric: an agent listed in a group
// gets the group in its Groups, and a group named in an agent's Groups gets
// the agent as a member.
func ApplyGroups(c *Config) {
	agentNames := slices.Sorted(maps.Keys(c.Agents))
	for _, group := range slices.Sorted(maps.Keys(c.Groups)) {
		members := c.Groups[group]
		for _, name := range agentNames {
			if slices.Contains(members, name) {
				a := c.Agents[name]
				if !slices.Contains(a.Groups, group) {
					a.Groups = append(a.Groups, group)
					c.Agents[name] = a
				}
			}
		}
	}
	for _, name := range agentNames {
		for _, group := range c.Agents[name].Groups {
			if !slices.Contains(c.Groups[group], name) {
				c.Groups[group] = append(c.Groups[group], name)
			}
		}
	}
}

// Validate checks that every agent names a driver type, that something is
// configured at all, and that no group shares a name with an agent.
func Validate(c *Config) error {
	var errs []error
	for _, name := range slices.Sorted(maps.Keys(c.Agents)) {
		if c.Agents[name].Driver.Type() == "" {
			errs = append(errs, fmt.Errorf("agent %s does not have a driver type: %w", name, errdefs.ErrInvalidArgument))
		}
		if _, clash := c.Groups[name]; clash {
			errs = append(errs, errdefs.NamingConflict("group", name, "an agent"))
		}
	}
	if len(c.Agents) == 0 && len(c.Drivers) == 0 {
		errs = append(errs, fmt.Errorf("no agents or drivers configured: %w", errdefs.ErrInvalidArgument))
	}
	return errors.Join(errs...)
}

func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(slices.Clone(a), b...) {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// mergeDriver deep-merges override onto base without mutating either.
func mergeDriver(base, override DriverConfig) DriverConfig {
	if len(base) == 0 && len(override) == 0 {
		return override
	}
	return DriverConfig(deepMerge(base, override))
}

func deepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if bm, ok := out[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				out[k] = deepMerge(bm, om)
				continue
			}
		}
		out[k] = v
	}
	return out
}
