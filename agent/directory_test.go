package agent

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiswarm/orchestrator/comms"
	"github.com/aiswarm/orchestrator/config"
	"github.com/aiswarm/orchestrator/driver"
	"github.com/aiswarm/orchestrator/errdefs"
	"github.com/aiswarm/orchestrator/events"
)

func newTestDirectory(t *testing.T, isGroup func(string) bool) (*Directory, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	reg := driver.NewRegistry(nil)
	reg.Register("bare", func(driver.Params) (driver.Driver, error) { return bareDriver{}, nil })
	reg.Register("broken", func(driver.Params) (driver.Driver, error) {
		return nil, errors.New("secret credential missing")
	})
	d := NewDirectory(DirectoryOptions{
		Registry: reg,
		Bus:      comms.NewBus(comms.Options{}),
		Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
		IsGroup:  isGroup,
	})
	t.Cleanup(d.Close)
	return d, &logs
}

func bareConfig(entry bool) config.AgentConfig {
	return config.AgentConfig{EntryPoint: entry, Driver: config.DriverConfig{"type": "bare"}}
}

func TestDirectory_CreateIdempotent(t *testing.T) {
	d, _ := newTestDirectory(t, nil)

	a1, err := d.Create("alice", bareConfig(false))
	require.NoError(t, err)
	a2, err := d.Create("alice", bareConfig(true))
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Len(t, d.ByDriver("bare"), 1)
	assert.Empty(t, d.WithEntryPoints(), "second create must not change the existing agent")
}

func TestDirectory_DriverNotFound(t *testing.T) {
	d, logs := newTestDirectory(t, nil)

	for _, typ := range []string{"unknown", "broken", ""} {
		_, err := d.Create("bob", config.AgentConfig{Driver: config.DriverConfig{"type": typ}})
		require.Error(t, err, typ)
		assert.True(t, errors.Is(err, errdefs.ErrDriverNotFound), typ)

		var dnf *errdefs.DriverNotFoundError
		require.True(t, errors.As(err, &dnf))
		assert.Equal(t, "bob", dnf.Agent)
		assert.Equal(t, typ, dnf.DriverType)
		assert.NotContains(t, err.Error(), "secret")
	}
	assert.False(t, d.Has("bob"))
	assert.Empty(t, d.All())
	assert.Empty(t, d.ByDriver("broken"))
	assert.True(t, strings.Contains(logs.String(), "secret credential missing"), "factory failure must be logged")
}

func TestDirectory_GroupConflict(t *testing.T) {
	d, _ := newTestDirectory(t, func(name string) bool { return name == "team" })
	_, err := d.Create("team", bareConfig(false))
	assert.True(t, errors.Is(err, errdefs.ErrNamingConflict))
	assert.False(t, d.Has("team"))
}

func TestDirectory_LoadEntryPointFallback(t *testing.T) {
	d, _ := newTestDirectory(t, nil)

	created, err := d.Load(map[string]config.AgentConfig{
		"a": bareConfig(false),
		"b": bareConfig(false),
		"c": bareConfig(false),
	})
	require.NoError(t, err)
	assert.Len(t, created, 3)

	names := func(list []*Agent) []string {
		out := make([]string, 0, len(list))
		for _, a := range list {
			out = append(out, a.Name())
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, names(d.WithEntryPoints()))

	_, err = d.Create("late", bareConfig(false))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names(d.WithEntryPoints()))

	_, err = d.Create("flagged", bareConfig(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "flagged"}, names(d.WithEntryPoints()))
}

func TestDirectory_LoadWithFlaggedEntryPoint(t *testing.T) {
	d, _ := newTestDirectory(t, nil)
	_, err := d.Load(map[string]config.AgentConfig{
		"a":   bareConfig(true),
		"b":   bareConfig(false),
		"bad": {Driver: config.DriverConfig{"type": "broken"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrDriverNotFound))

	eps := d.WithEntryPoints()
	require.Len(t, eps, 1)
	assert.Equal(t, "a", eps[0].Name())
	assert.Equal(t, []string{"a", "b"}, d.Names())
}

func TestDirectory_RemoveAndNotifications(t *testing.T) {
	hub := events.NewHub()
	var topics []events.Topic
	hub.On(events.Any, func(ev events.Event) { topics = append(topics, ev.Topic) })

	reg := driver.NewRegistry(nil)
	reg.Register("bare", func(driver.Params) (driver.Driver, error) { return bareDriver{}, nil })
	d := NewDirectory(DirectoryOptions{Registry: reg, Notifier: hub})

	_, err := d.Create("alice", bareConfig(true))
	require.NoError(t, err)
	assert.True(t, d.Remove("alice"))
	assert.False(t, d.Remove("alice"))
	assert.False(t, d.Has("alice"))
	assert.Empty(t, d.ByDriver("bare"))
	assert.Empty(t, d.WithEntryPoints())
	assert.Equal(t, []events.Topic{events.AgentCreated, events.AgentRemoved}, topics)
}

func TestDirectory_PauseResumeAll(t *testing.T) {
	md := &MockDriver{}
	md.On("Pause").Return().Once()
	md.On("Resume").Return().Once()
	md.On("Remove", "m").Return().Once()

	reg := driver.NewRegistry(nil)
	reg.Register("m", func(driver.Params) (driver.Driver, error) { return md, nil })
	d := NewDirectory(DirectoryOptions{Registry: reg})

	_, err := d.Create("m", config.AgentConfig{Driver: config.DriverConfig{"type": "m"}})
	require.NoError(t, err)
	d.PauseAll()
	d.ResumeAll()
	d.Close()
	md.AssertExpectations(t)
}
