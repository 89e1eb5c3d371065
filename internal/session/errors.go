package session

import "errors"

var (
	ErrInvalidTitle   = errors.New("session title must be 1-200 characters")
	ErrInvalidTeacher = errors.New("teacher email is not a valid address")
	ErrSessionEnded   = errors.New("session already ended")
)
