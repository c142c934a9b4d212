package domain

import "errors"

var (
	// ErrInvalidEvent marks a malformed order event (negative value,
	// unrecognized kind, missing timestamp). The profile is left unchanged.
	ErrInvalidEvent = errors.New("invalid order event")

	// ErrInvalidConfig marks a risk configuration the scoring engine
	// refuses to evaluate with. No partial assessment is ever produced.
	ErrInvalidConfig = errors.New("invalid risk configuration")
)
