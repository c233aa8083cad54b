package session

import "errors"

var (
	ErrSessionBusy     = errors.New("session: session busy")
	ErrBindFailure     = errors.New("session: bind failure")
	ErrConnectFailure  = errors.New("session: connect failure")
	ErrNoActiveSession = errors.New("session: no active session")
	ErrInvalidConfig   = errors.New("session: invalid connection config")
	ErrStopped         = errors.New("session: stopped")
)
