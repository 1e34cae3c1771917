package fleet

import "errors"

// Sentinel errors reported to callers. Nothing here is fatal to the process;
// a single client's failure leaves other clients unaffected.
var (
	// ErrUnknownCommand is returned for a command type outside the whitelist.
	ErrUnknownCommand = errors.New("unrecognized command")

	// ErrUnknownClient is returned when no record exists for the client ID.
	ErrUnknownClient = errors.New("client doesn't exist")

	// ErrDuplicateQueued is returned when a command of the same type is
	// already pending for the client.
	ErrDuplicateQueued = errors.New("a similar command has already been queued")

	// ErrUnknownPage is returned for a page selector outside the closed set.
	ErrUnknownPage = errors.New("unknown page")
)
