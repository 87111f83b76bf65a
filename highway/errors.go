package highway

import "errors"

var (
	// ErrConfiguration marks setup that cannot run safely: odd ring under parity scheduling,
	// buckets sized below worst-case occupancy, non-positive dimensions
	ErrConfiguration = errors.New("configuration error")

	// ErrCapacityExceeded marks an append past a bucket's preallocated capacity
	// Buckets never grow; this is a sizing bug in the configuration
	ErrCapacityExceeded = errors.New("bucket capacity exceeded")

	// ErrOrderViolation marks a bucket found out of ascending position order at a phase boundary
	ErrOrderViolation = errors.New("bucket order violated")
)
