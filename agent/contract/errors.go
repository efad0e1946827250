package contract

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNilSession      = errors.New("session is nil")
	ErrInvalidSession  = errors.New("session id is empty")
	ErrUnknownField    = errors.New("unknown field")
)
