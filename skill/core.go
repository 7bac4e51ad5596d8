package skill

import (
	"context"
	"fmt"

	"github.com/aiswarm/orchestrator/agent"
	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/errdefs"
)

// Sender emits messages on the bus.
type Sender interface {
	Send(ctx context.Context, target, source, content string, typ comms.Type) (*comms.Message, bool, error)
}

// Groups is the group directory view the core skills need.
type Groups interface {
	Get(name string) ([]string, bool)
	Add(name string, members ...string) (bool, error)
	Map() map[string][]string
}

// Agents is the agent directory view the core skills need.
type Agents interface {
	Get(name string) (*agent.Agent, bool)
	All() []*agent.Agent
}

// Core returns the built-in skills.
func Core(bus Sender, groups Groups, agents Agents) []Skill {
	return []Skill{
		&SendMessage{bus: bus},
		&CreateGroup{groups: groups},
		&AgentsAndGroups{agents: agents, groups: groups},
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string: %w", key, errdefs.ErrInvalidArgument)
	}
	return s, nil
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("argument %q must be a list of strings: %w", key, errdefs.ErrInvalidArgument)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q must be a list of strings: %w", key, errdefs.ErrInvalidArgument)
	}
}

// SendMessage emits a message from the calling agent.
type SendMessage struct{ bus Sender }

func (*SendMessage) Name() string { return "sendMessage" }
func (*SendMessage) Description() string {
	return "Sends a message to an agent or group."
}

func (*SendMessage) Parameters() map[string]Parameter {
	return map[string]Parameter{
		"target":  {Type: "string", Description: "The agent or group to send the message to."},
		"message": {Type: "string", Description: "The message content."},
		"type":    {Type: "string", Description: "The message type, string by default."},
	}
}

func (*SendMessage) Required() []string { return []string{"target", "message"} }

func (s *SendMessage) Execute(ctx context.Context, args map[string]any, agentName string) (any, error) {
	target, err := stringArg(args, "target")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "message")
	if err != nil {
		return nil, err
	}
	rawType, err := stringArg(args, "type")
	if err != nil {
		return nil, err
	}
	typ, err := comms.ParseType(rawType)
	if err != nil {
		return nil, err
	}
	msg, _, err := s.bus.Send(ctx, target, agentName, content, typ)
	if err != nil {
		return nil, err
	}
	return msg.Object(), nil
}

// CreateGroup creates a group, or reports that it exists.
type CreateGroup struct{ groups Groups }

func (*CreateGroup) Name() string        { return "createGroup" }
func (*CreateGroup) Description() string { return "Creates a new group of agents." }

func (*CreateGroup) Parameters() map[string]Parameter {
	return map[string]Parameter{
		"name": {Type: "string", Description: "The group name."},
		"members": {
			Type:        "array",
			Description: "The agents to add to the group.",
			Items:       &Parameter{Type: "string", Description: "An agent name."},
		},
	}
}

func (*CreateGroup) Required() []string { return []string{"name"} }

func (c *CreateGroup) Execute(_ context.Context, args map[string]any, _ string) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	members, err := stringsArg(args, "members")
	if err != nil {
		return nil, err
	}
	if _, ok := c.groups.Get(name); ok {
		return fmt.Sprintf("Group %s already exists", name), nil
	}
	if _, err := c.groups.Add(name, members...); err != nil {
		return nil, err
	}
	current, _ := c.groups.Get(name)
	return map[string]any{"name": name, "members": current}, nil
}

// AgentsAndGroups looks up one agent or group by name, or lists everything.
type AgentsAndGroups struct {
	agents Agents
	groups Groups
}

func (*AgentsAndGroups) Name() string { return "getAgentsAndGroups" }
func (*AgentsAndGroups) Description() string {
	return "Returns the named agent or group, or all agents and groups when no name is given."
}

func (*AgentsAndGroups) Parameters() map[string]Parameter {
	return map[string]Parameter{
		"name": {Type: "string", Description: "An agent or group name."},
	}
}

func (*AgentsAndGroups) Required() []string { return nil }

func (g *AgentsAndGroups) Execute(_ context.Context, args map[string]any, _ string) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	if name != "" {
		if a, ok := g.agents.Get(name); ok {
			return a.Info(), nil
		}
		if members, ok := g.groups.Get(name); ok {
			return map[string]any{"name": name, "members": members}, nil
		}
		return nil, nil
	}

	all := g.agents.All()
	infos := make([]agent.Info, 0, len(all))
	for _, a := range all {
		infos = append(infos, a.Info())
	}
	return map[string]any{"agents": infos, "groups": g.groups.Map()}, nil
}

// AgentCreator creates agents from configuration.
type AgentCreator interface {
	CreateAgent(name string, cfg config.AgentConfig) (*agent.Agent, error)
}

// CreateAgent adds a new agent. It is kept out of the core collection and
// offered only to creator agents.
type CreateAgent struct {
	agents  Agents
	creator AgentCreator
	drivers func() []string
	skills  func() []string
}

// NewCreateAgent returns the createAgent skill. drivers and skills list the
// values offered in the parameter enums.
func NewCreateAgent(agents Agents, creator AgentCreator, drivers, skills func() []string) *CreateAgent {
	return &CreateAgent{agents: agents, creator: creator, drivers: drivers, skills: skills}
}

func (*CreateAgent) Name() string { return "createAgent" }
func (*CreateAgent) Description() string {
	return "Creates a new agent that you can communicate with via sendMessage."
}

func (c *CreateAgent) Parameters() map[string]Parameter {
	return map[string]Parameter{
		"name":         {Type: "string", Description: "The name of the agent to create."},
		"driver":       {Type: "string", Description: "The type of driver to use for the agent.", Enum: c.drivers()},
		"description":  {Type: "string", Description: "A description of the agent."},
		"instructions": {Type: "string", Description: "Initial instructions for the agent to follow."},
		"skills": {
			Type:        "array",
			Description: "The skills to assign to the agent.",
			Items:       &Parameter{Type: "string", Enum: c.skills()},
		},
	}
}

func (*CreateAgent) Required() []string { return []string{"name", "driver"} }

func (c *CreateAgent) Execute(_ context.Context, args map[string]any, _ string) (any, error) {
	var fields [4]string
	for i, key := range []string{"name", "driver", "description", "instructions"} {
		v, err := stringArg(args, key)
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	skills, err := stringsArg(args, "skills")
	if err != nil {
		return nil, err
	}
	name := fields[0]
	if _, ok := c.agents.Get(name); ok {
		return fmt.Sprintf("Agent %s already exists", name), nil
	}
	a, err := c.creator.CreateAgent(name, config.AgentConfig{
		Description:  fields[2],
		Instructions: fields[3],
		Driver:       config.DriverConfig{"type": fields[1]},
		Skills:       skills,
	})
	if err != nil {
		return nil, err
	}
	info := a.Info()
	return map[string]any{"name": info.Name, "type": "agent", "groups": info.Groups, "driver": info.Driver}, nil
}

// SkillInfo describes registered skills.
type SkillInfo struct{ reg *Registry }

// NewSkillInfo returns the getSkillInfo skill backed by reg.
func NewSkillInfo(reg *Registry) *SkillInfo { return &SkillInfo{reg: reg} }

func (*SkillInfo) Name() string { return "getSkillInfo" }
func (*SkillInfo) Description() string {
	return "Returns the description and parameters of a skill, or of every skill when no name is given."
}

func (*SkillInfo) Parameters() map[string]Parameter {
	return map[string]Parameter{
		"name": {Type: "string", Description: "The skill to describe."},
	}
}

func (*SkillInfo) Required() []string { return nil }

func (s *SkillInfo) Execute(_ context.Context, args map[string]any, _ string) (any, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return nil, err
	}
	if name != "" {
		sk, ok := s.reg.Get(name)
		if !ok {
			return fmt.Sprintf("Skill %s not found", name), nil
		}
		return Definition(sk), nil
	}
	names := s.reg.List()
	out := make([]map[string]any, 0, len(names))
	for _, n := range names {
		if sk, ok := s.reg.Get(n); ok {
			out = append(out, Definition(sk))
		}
	}
	return out, nil
}
