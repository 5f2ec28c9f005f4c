package domain

import "errors"

var (
	ErrDuplicateSymbol     = errors.New("token symbol already registered")
	ErrUnknownToken        = errors.New("unknown token")
	ErrUnknownPosition     = errors.New("unknown position")
	ErrNotOwner            = errors.New("caller does not own position")
	ErrAlreadyClosed       = errors.New("position already closed")
	ErrZeroAmount          = errors.New("amount must be greater than zero")
	ErrInvalidTimeRange    = errors.New("invalid time range")
	ErrTransferFailed      = errors.New("asset transfer failed")
	ErrInsufficientReserve = errors.New("insufficient interest reserve")
	ErrUnauthorized        = errors.New("unauthorized")
)
