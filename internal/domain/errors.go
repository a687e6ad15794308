package domain

import "errors"

// Sentinel errors shared across services and handlers. Callers match with
// errors.Is; the API layer maps them onto HTTP status codes.
var (
	// ErrNotFound indicates an unknown channel, video, or stock.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness violation on intake, e.g.
	// creating a channel whose source identifier is already tracked.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState indicates an operation that is not valid for the
	// record's current status, e.g. cancelling a channel that is not
	// processing.
	ErrInvalidState = errors.New("invalid state")
)
