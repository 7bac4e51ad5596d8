// Package comms provides the inter-agent communication bus: the message
// entity, the bounded message history and the publish/subscribe hub that
// fans messages out to agents and groups.
package comms

import (
	"context"
	"fmt"

	"github.com/aiswarm/orchestrator/errdefs"
)

// AllChannel is the observability tap. Every message not addressed to it is
// also delivered here.
const AllChannel = "all"

// Type identifies the payload kind of a message.
type Type string

const (
	TypeString Type = "string"
	TypeImage  Type = "image"
	TypeVideo  Type = "video"
	TypeAudio  Type = "audio"
	TypeSkill  Type = "skill" // control-plane signal, never dispatched to drivers
)

// Valid reports whether t is one of the enumerated types.
func (t Type) Valid() bool {
	switch t {
	case TypeString, TypeImage, TypeVideo, TypeAudio, TypeSkill:
		return true
	}
	return false
}

// ParseType converts s into a Type. The empty string maps to TypeString.
func ParseType(s string) (Type, error) {
	if s == "" {
		return TypeString, nil
	}
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid message type %q: %w", s, errdefs.ErrInvalidArgument)
	}
	return t, nil
}

// Status is the lifecycle state of a message.
type Status string

const (
	StatusCreated    Status = "created"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusQueued, StatusProcessing, StatusComplete, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusCancelled || s == StatusError
}

// ParseStatus converts s into a Status. The empty string maps to StatusCreated.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusCreated, nil
	}
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid message status %q: %w", s, errdefs.ErrInvalidArgument)
	}
	return st, nil
}

// Handler processes a message delivered on a channel. Returned errors are
// logged by the bus; they never abort delivery to other subscribers.
type Handler func(ctx context.Context, msg *Message) error

// GroupResolver resolves a target name to its current group members.
type GroupResolver interface {
	Members(name string) ([]string, bool)
}

// RunState reports whether the owning system accepts traffic.
type RunState interface {
	Running() bool
}
