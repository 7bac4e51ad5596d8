// Package simple provides a driver that answers every instruction with a
// fixed response.
package simple

import (
	"context"

	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/driver"
)

// Type is the registry key for this driver.
const Type = "simple"

// Config holds the driver settings.
type Config struct {
	Response string `yaml:"response"`
}

// Driver echoes the prompt together with the configured response.
type Driver struct {
	cfg Config
}

// New is a driver.Factory.
func New(p driver.Params) (driver.Driver, error) {
	var cfg Config
	if err := p.Settings.Decode(&cfg); err != nil {
		return nil, err
	}
	return &Driver{cfg: cfg}, nil
}

func (d *Driver) Type() string { return Type }

// Instruct implements driver.Instructor.
func (d *Driver) Instruct(_ context.Context, msg *comms.Message) (*driver.Reply, error) {
	return driver.Text("Prompt: " + msg.Content() + "\nResponse: " + d.cfg.Response), nil
}
