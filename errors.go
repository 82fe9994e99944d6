package gather

import "errors"

var (
	// ErrInvalidTopic indicates a request was submitted with an empty topic.
	// Nothing is registered or dispatched when this error is returned.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrUnknownRequest indicates the request id was never dispatched or has been garbage-collected.
	ErrUnknownRequest = errors.New("unknown request")

	// ErrInvalidCollectorIndex indicates a partial was reported with an index outside [0, N).
	ErrInvalidCollectorIndex = errors.New("invalid collector index")

	// ErrNotReady indicates the request exists but its summary has not been produced yet.
	ErrNotReady = errors.New("result not ready")

	// ErrNotFound indicates no request exists for the queried id.
	ErrNotFound = errors.New("result not found")

	// ErrStoreUnavailable indicates the partial state store could not be reached.
	// The core never retries; retrying the unit of work is the executor's concern.
	ErrStoreUnavailable = errors.New("store unavailable")
)
