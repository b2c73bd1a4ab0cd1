package playback

import "errors"

var (
	// ErrAdmissionDenied: the channel is full and the interrupt policy
	// allowed no eviction, or the channel admits nothing at all.
	ErrAdmissionDenied = errors.New("admission denied")

	// ErrBackendStart: the backend could not begin output after admission.
	ErrBackendStart = errors.New("backend failed to start playback")

	// ErrBackendStall: the backend stopped making progress after starting.
	ErrBackendStall = errors.New("backend stalled")

	// ErrBackendError: the backend reported an error after starting.
	ErrBackendError = errors.New("backend playback error")

	ErrDuplicateSource = errors.New("source already registered")
	ErrUnknownInstance = errors.New("instance not tracked by this service")
	ErrDuplicateAlias  = errors.New("id already used by another source")
	ErrClosed          = errors.New("playback service closed")
)
