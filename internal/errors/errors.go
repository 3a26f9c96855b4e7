package errors

import "errors"

var (
	NetworkError           = errors.New("Network error")
	ConflictError          = errors.New("Conflict")
	ValidationError        = errors.New("Validation error")
	NotFoundError          = errors.New("Not found")
	RatelimitExceededError = errors.New("Ratelimit exceeded")
)
