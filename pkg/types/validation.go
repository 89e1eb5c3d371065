package types

import (
	"regexp"
)

var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	codeRegex  = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// Validate ensures the session meets all requirements.
func (s *Session) Validate() error {
	if len(s.Title) < 1 || len(s.Title) > 200 {
		return ErrInvalidTitle
	}
	if !IsValidEmail(s.TeacherEmail) {
		return ErrInvalidEmail
	}
	if !IsValidUniqueCode(s.UniqueCode) {
		return ErrInvalidUniqueCode
	}
	return nil
}

// IsValidEmail checks the participant identity format. Intentionally loose:
// the surrounding platform owns real account validation.
func IsValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// IsValidUniqueCode checks a session access code: 4-32 alphanumeric chars.
func IsValidUniqueCode(code string) bool {
	if len(code) < 4 || len(code) > 32 {
		return false
	}
	return codeRegex.MatchString(code)
}
