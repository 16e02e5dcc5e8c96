package campaign

import "errors"

// ErrNotFound is returned when no campaign has the requested id.
var ErrNotFound = errors.New("campaign not found")

// ErrInvalidTransition is returned by conditional updates when the stored
// status is not one of UpdateFields.ExpectStatus.
var ErrInvalidTransition = errors.New("campaign status does not allow this transition")
