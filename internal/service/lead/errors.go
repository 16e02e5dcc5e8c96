package lead

import "errors"

// Sentinel errors for the lead service layer.
var (
	ErrNotFound     = errors.New("lead not found")
	ErrInvalidToken = errors.New("invalid unsubscribe token")
)
