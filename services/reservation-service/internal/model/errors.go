package model

import "errors"

// Every error the core returns to a caller wraps one of these.
var (
	ErrInvalidRange      = errors.New("invalid time range")
	ErrOutOfHorizon      = errors.New("date outside booking horizon")
	ErrSlotUnavailable   = errors.New("time slot unavailable")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidInput      = errors.New("invalid input")
)
