package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidEvent  = errors.New("invalid event")
	ErrInvalidOdds   = errors.New("invalid odds")
	ErrMarketClosed  = errors.New("market closed")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock held")
)
