package domain

import "errors"

var (
	// ErrNotFound is returned when a feature name/id is unknown or an entity has no value
	ErrNotFound = errors.New("not found")

	// ErrInvalidDefinition is returned when a feature or group registration is malformed
	ErrInvalidDefinition = errors.New("invalid definition")

	// ErrCorruptValue is returned when a stored value fails to deserialize.
	// Kept distinct from ErrNotFound so callers can alert on data corruption
	// instead of treating it as absence.
	ErrCorruptValue = errors.New("corrupt value")

	// ErrUpstreamUnavailable is returned when the upstream analytical source is unreachable
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
