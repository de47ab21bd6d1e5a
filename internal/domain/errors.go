package domain

import "errors"

var (
	// ErrUpstreamUnavailable signals that the origin could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrSeedingDisabled signals that install seeding is disabled in dev mode.
	ErrSeedingDisabled = errors.New("seeding disabled in dev mode")
)
