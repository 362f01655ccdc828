package vcontrold

import "errors"

// Error classes returned by the client. Use errors.Is to check for them;
// the concrete cause stays in the chain.
var (
	// ErrConnection covers DNS failures, refused connections, I/O errors,
	// deadline expiry and caller cancellation.
	ErrConnection = errors.New("vcontrold: connection error")

	// ErrProtocol is returned when a reply does not have the expected shape:
	// missing prompt, non-OK acknowledgement, unparsable value or an enum
	// value the catalog does not list.
	ErrProtocol = errors.New("vcontrold: protocol error")

	// ErrUnknownCommand is returned when a command is absent from the catalog.
	// It is always detected before any I/O takes place.
	ErrUnknownCommand = errors.New("vcontrold: unknown command")

	// ErrTypeMismatch is returned when a value's kind does not match the
	// declared type of the command it is sent to.
	ErrTypeMismatch = errors.New("vcontrold: type mismatch")

	// ErrRetriesExhausted wraps the last error once a retry policy gives up.
	ErrRetriesExhausted = errors.New("vcontrold: retries exhausted")

	// ErrBusy is returned when a second request is issued on a connection
	// while the reply to the first one has not been read yet.
	ErrBusy = errors.New("vcontrold: request already in flight")
)
