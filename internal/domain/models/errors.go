package models

import "errors"

// Error classes shared by the engine and its callers. Wrap them with
// fmt.Errorf("%w: ...") so callers can branch with errors.Is.
var (
	// ErrConfig marks an invalid parameter combination, detected before any computation.
	ErrConfig = errors.New("invalid configuration")
	// ErrDataShape marks input that lacks what the computation needs.
	ErrDataShape = errors.New("invalid panel shape")
	// ErrInvariant marks a broken internal guarantee; it indicates a bug, not bad input.
	ErrInvariant = errors.New("internal invariant violated")
	// ErrUnavailable marks a backing service that is down or shedding load.
	ErrUnavailable = errors.New("service unavailable")
)
