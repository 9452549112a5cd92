package command

import (
	"errors"
	"fmt"

	"github.com/nerrad567/seestar-core/internal/telescope/client"
)

// Domain errors for the command package.
//
// A resolved Result carries one of these (or a *client.Error) in Err:
//
//	if errors.Is(res.Err, command.ErrTimedOut) {
//	    // the device never reached the target state
//	}
var (
	// ErrInvalidIntent is returned by Submit for intents that cannot be
	// reconciled at all, such as an unknown kind. It indicates a caller bug.
	ErrInvalidIntent = errors.New("command: invalid intent")

	// ErrOutOfRange fails an intent whose parameters exceed the device's
	// capabilities. It matches client.ErrRejected, so callers see the same
	// classification whether the core or the device refused.
	ErrOutOfRange = fmt.Errorf("command: parameter out of range: %w", client.ErrRejected)

	// ErrStateUnknown fails an intent that needs the device's current state
	// while no fresh snapshot is available. It matches client.ErrRejected.
	ErrStateUnknown = fmt.Errorf("command: device state unknown: %w", client.ErrRejected)

	// ErrDeviceFault fails an intent whose operation the device reported as failed.
	ErrDeviceFault = errors.New("command: device reported fault")

	// ErrTimedOut resolves an intent whose deadline passed first.
	ErrTimedOut = errors.New("command: timed out")

	// ErrCancelled resolves an intent cancelled by a caller or superseded by
	// a newer intent on the same axis.
	ErrCancelled = errors.New("command: cancelled")

	// ErrNotFound is returned for unknown command IDs.
	ErrNotFound = errors.New("command: not found")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("command: coordinator closed")

	// ErrInvalidRequest is returned when a wire request cannot be turned into an intent.
	ErrInvalidRequest = errors.New("command: invalid request")
)
