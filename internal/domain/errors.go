package domain

import "errors"

var (
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyCancelled     = errors.New("booking already cancelled")
	ErrInvalidWindow        = errors.New("invalid time window")
	ErrAlreadyWaitlisted    = errors.New("already on the waitlist for this slot")
	ErrResourceBusy         = errors.New("resource busy, retry later")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrForbidden            = errors.New("not the owner")
	ErrOverRelease          = errors.New("release exceeds total stock")
)
