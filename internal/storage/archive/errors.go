package archive

import "errors"

var (
	// ErrNotFound indicates that no report is stored under a key.
	ErrNotFound = errors.New("report not found")

	// ErrUnknownBackend indicates that no backend is registered under a name.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrClosed indicates that the store has been closed.
	ErrClosed = errors.New("store is closed")

	// ErrCorrupt indicates that a stored record could not be decoded.
	ErrCorrupt = errors.New("corrupt record")
)
