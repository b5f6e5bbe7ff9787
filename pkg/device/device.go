// Package device implements the session with an EdgeOS device: fetching
// the active configuration, pushing statements and saving.
package device

import (
	"context"
	"errors"
)

// CompareSavedClean is what CompareSaved returns when the active
// configuration matches the saved one.
const CompareSavedClean = "[edit]"

var (
	// ErrInvalidCommand is returned for a pushed line that is not a
	// set or delete statement.
	ErrInvalidCommand = errors.New("invalid configuration command")

	// ErrNoSuchRollback is returned when a rollback index is out of range.
	ErrNoSuchRollback = errors.New("no such configuration")
)

// Device is a managed configuration endpoint.
type Device interface {
	// FetchConfig returns the active configuration as flat statements,
	// one per line.
	FetchConfig(ctx context.Context) (string, error)

	// PushCommands loads commands into a configuration session. With
	// commit set the session is committed with comment, otherwise it is
	// discarded. The returned text is the device's output.
	PushCommands(ctx context.Context, commands []string, commit bool, comment string) (string, error)

	// SaveConfig persists the active configuration for the next boot.
	SaveConfig(ctx context.Context) error

	// CompareSaved returns the difference between the active and saved
	// configuration, or CompareSavedClean when there is none.
	CompareSaved(ctx context.Context) (string, error)
}
