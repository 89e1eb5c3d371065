package types

import (
	"time"
)

// Session statuses.
const (
	SessionStatusActive = "active"
	SessionStatusEnded  = "ended"
)

// Session is one live evaluation sitting. Students join with the unique
// access code; the code combined with a participant email forms the
// coordination key used by the message bus and the block registry.
// Immutable after creation except for EndTime and Status.
type Session struct {
	ID           string     `json:"id" db:"id"`
	Title        string     `json:"title" db:"title"`
	TeacherEmail string     `json:"teacher_email" db:"teacher_email"`
	UniqueCode   string     `json:"unique_code" db:"unique_code"`
	StartTime    time.Time  `json:"start_time" db:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty" db:"end_time"`
	Status       string     `json:"status" db:"status"`
}

// Active reports whether the session still accepts participants.
func (s *Session) Active() bool {
	return s.Status == SessionStatusActive
}

// ParticipantKey builds the composite coordination key for one participant
// of one session. The bus and the registry treat keys as opaque strings;
// this is the one place the format is defined.
func ParticipantKey(uniqueCode, email string) string {
	return uniqueCode + "|" + email
}
