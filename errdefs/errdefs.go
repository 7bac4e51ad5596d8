// Package errdefs defines the error taxonomy shared by the orchestrator's
// components. Callers match on the sentinels with errors.Is.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports an unknown message type or status value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIllegalState reports an operation attempted while the system is paused.
	ErrIllegalState = errors.New("illegal state")

	// ErrNamingConflict reports an agent/group name collision.
	ErrNamingConflict = errors.New("naming conflict")

	// ErrDriverNotFound reports an unregistered driver type or a failing driver factory.
	ErrDriverNotFound = errors.New("driver not found")
)

// DriverNotFoundError is returned when an agent's driver cannot be instantiated.
// The underlying factory failure is deliberately not part of the message.
type DriverNotFoundError struct {
	Agent      string
	DriverType string
}

func (e *DriverNotFoundError) Error() string {
	return fmt.Sprintf("driver %s for agent %s not found", e.DriverType, e.Agent)
}

// Is makes errors.Is(err, ErrDriverNotFound) match.
func (e *DriverNotFoundError) Is(target error) bool {
	return target == ErrDriverNotFound
}

// NamingConflict builds a wrapped ErrNamingConflict for name.
func NamingConflict(kind, name, existing string) error {
	return fmt.Errorf("%s %s already exists as %s: %w", kind, name, existing, ErrNamingConflict)
}
