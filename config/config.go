// Package config defines the swarm configuration and loads it from a single
// YAML, TOML or JSON(C) file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/aiswarm/orchestrator/comms"
)

// Config is the top-level swarm configuration.
type Config struct {
	LogLevel     string                  `json:"log_level" yaml:"log_level" toml:"log_level"`
	PollInterval Duration                `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	Comms        CommsConfig             `json:"comms" yaml:"comms" toml:"comms"`
	Server       ServerConfig            `json:"server" yaml:"server" toml:"server"`
	Global       GlobalConfig            `json:"global" yaml:"global" toml:"global"`
	Drivers      map[string]DriverConfig `json:"drivers" yaml:"drivers" toml:"drivers"`
	Groups       map[string][]string     `json:"groups" yaml:"groups" toml:"groups"`
	Agents       map[string]AgentConfig  `json:"agents" yaml:"agents" toml:"agents"`
}

// CommsConfig controls the communication bus.
type CommsConfig struct {
	History HistoryConfig `json:"history" yaml:"history" toml:"history"`
}

// HistoryConfig bounds the message history.
type HistoryConfig struct {
	Limits        comms.Limits `json:"limits" yaml:"limits" toml:"limits"`
	SweepInterval Duration     `json:"sweep_interval" yaml:"sweep_interval" toml:"sweep_interval"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string     `json:"addr" yaml:"addr" toml:"addr"` // listen address, e.g., ":9090"
	Auth AuthConfig `json:"auth" yaml:"auth" toml:"auth"`
}

// AuthConfig controls API authentication. Auth is disabled without a secret.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret" toml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user" toml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass" toml:"admin_pass"` // bcrypt hash
}

// GlobalConfig holds defaults applied to every agent.
type GlobalConfig struct {
	Agents AgentConfig `json:"agents" yaml:"agents" toml:"agents"`
}

// AgentConfig defines a single agent.
type AgentConfig struct {
	Description  string       `json:"description,omitempty" yaml:"description" toml:"description"`
	Instructions string       `json:"instructions,omitempty" yaml:"instructions" toml:"instructions"`
	EntryPoint   bool         `json:"entrypoint,omitempty" yaml:"entrypoint" toml:"entrypoint"`
	Creator      bool         `json:"creator,omitempty" yaml:"creator" toml:"creator"`
	Isolate      bool         `json:"isolate,omitempty" yaml:"isolate" toml:"isolate"` // implies creator=false
	Skills       []string     `json:"skills,omitempty" yaml:"skills" toml:"skills"`
	Groups       []string     `json:"groups,omitempty" yaml:"groups" toml:"groups"`
	Driver       DriverConfig `json:"driver,omitempty" yaml:"driver" toml:"driver"`
}

// DriverConfig is a driver's settings. The "type" key selects the driver;
// every other key is passed to the driver's factory.
type DriverConfig map[string]any

// Type returns the driver type.
func (d DriverConfig) Type() string {
	t, _ := d["type"].(string)
	return t
}

// Settings returns a copy of the settings without the type key.
func (d DriverConfig) Settings() map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if k != "type" {
			out[k] = v
		}
	}
	return out
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		PollInterval: Duration{250 * time.Millisecond},
		Comms: CommsConfig{
			History: HistoryConfig{
				Limits: comms.Limits{
					All:        comms.DefaultAllLimit,
					Individual: comms.DefaultIndividualLimit,
				},
				SweepInterval: Duration{comms.DefaultSweepInterval},
			},
		},
		Server: ServerConfig{
			Addr: ":9090",
			Auth: AuthConfig{AdminUser: "admin"},
		},
		Drivers: map[string]DriverConfig{},
		Groups:  map[string][]string{},
		Agents:  map[string]AgentConfig{},
	}
}

// Load reads a config file and returns the parsed configuration on top of
// DefaultConfig. The format is chosen by extension: .yaml/.yml, .toml, or
// .json/.jsonc (comments and trailing commas allowed). Load does not
// normalize; call Prepare for that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ensureMaps()
	return cfg, nil
}

func (c *Config) ensureMaps() {
	if c.Drivers == nil {
		c.Drivers = map[string]DriverConfig{}
	}
	if c.Groups == nil {
		c.Groups = map[string][]string{}
	}
	if c.Agents == nil {
		c.Agents = map[string]AgentConfig{}
	}
}
