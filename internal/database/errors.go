package database

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrDuplicateCode   = errors.New("access code already in use")
	ErrManagerClosed   = errors.New("database manager is closed")
	ErrWriteTimeout    = errors.New("write operation timed out")
)
