package domain

import "errors"

var (
	ErrUnknownSendMode  = errors.New("unknown send mode")
	ErrInvalidMessage   = errors.New("invalid message payload")
	ErrScheduleNotFound = errors.New("schedule not found")
)
