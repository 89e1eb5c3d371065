package types

import "errors"

var (
	ErrInvalidTitle      = errors.New("session title must be 1-200 characters")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidUniqueCode = errors.New("access code must be 4-32 alphanumeric characters")
)
