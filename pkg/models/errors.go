package models

import "errors"

// ErrValidation marks malformed input. Surfaced to callers as a client
// error; never retried.
var ErrValidation = errors.New("validation failed")

// ErrInvalidState marks an illegal state transition on an aggregate.
var ErrInvalidState = errors.New("invalid state transition")
