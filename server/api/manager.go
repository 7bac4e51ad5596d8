// Package api defines the REST API handlers and interfaces for the swarm
// server.
package api

import (
	"context"

	"github.com/aiswarm/orchestrator/agent"
	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/driver"
	"github.com/aiswarm/orchestrator/group"
	"github.com/aiswarm/orchestrator/skill"
)

// System is the interface the API uses to observe and control a swarm.
// Implemented by *swarm.System.
type System interface {
	Running() bool
	Pause()
	Resume()
	Run(ctx context.Context, instructions string) (string, error)
	CreateAgent(name string, cfg config.AgentConfig) (*agent.Agent, error)
	CreateGroup(name string, members ...string) error

	Bus() *comms.Bus
	Agents() *agent.Directory
	Groups() *group.Directory
	Drivers() *driver.Registry
	Skills() *skill.Registry
}
