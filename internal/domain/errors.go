package domain

import "errors"

var (
	ErrAlreadyBound              = errors.New("item already bound to a slot")
	ErrNoEligibleSlot            = errors.New("no eligible slot")
	ErrStaleRelease              = errors.New("stale release")
	ErrInvalidCapacityTransition = errors.New("invalid capacity transition")
	ErrItemNotFound              = errors.New("item not found")
	ErrSessionClosed             = errors.New("session closed")
	ErrRateLimited               = errors.New("manual view rate limited")
)
