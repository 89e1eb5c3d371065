// Package session manages live evaluation sessions: creation with a
// generated unique access code, lookup by code, and termination. Active
// sessions are cached in memory; the database remains the source of truth
// across restarts.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jfinfoproyectos/seiac-live/internal/database"
	"github.com/jfinfoproyectos/seiac-live/pkg/types"
)

// Store is the persistence surface the manager needs.
type Store interface {
	CreateSession(ctx context.Context, session *types.Session) error
	GetSessionByCode(ctx context.Context, code string) (*types.Session, error)
	UpdateSession(ctx context.Context, session *types.Session) error
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)
}

// Manager caches active sessions by unique code.
type Manager struct {
	store  Store
	log    zerolog.Logger
	active map[string]*types.Session // uniqueCode -> Session
	mu     sync.RWMutex
}

// NewManager creates a session manager backed by the given store.
func NewManager(store Store, log zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		log:    log.With().Str("component", "session").Logger(),
		active: make(map[string]*types.Session),
	}
}

// LoadActiveSessions warms the cache from the database at startup.
func (m *Manager) LoadActiveSessions(ctx context.Context) error {
	sessions, err := m.store.ListActiveSessions(ctx)
	if err != nil {
		return errors.Wrap(err, "loading active sessions")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range sessions {
		m.active[session.UniqueCode] = session
	}

	m.log.Info().Int("count", len(sessions)).Msg("loaded active sessions")
	return nil
}

// CreateSession creates and persists a new session with a generated access
// code, retrying on the (vanishingly rare) code collision.
func (m *Manager) CreateSession(ctx context.Context, title, teacherEmail string) (*types.Session, error) {
	title = strings.TrimSpace(title)
	if len(title) < 1 || len(title) > 200 {
		return nil, ErrInvalidTitle
	}
	if !types.IsValidEmail(teacherEmail) {
		return nil, ErrInvalidTeacher
	}

	for attempt := 0; attempt < 3; attempt++ {
		session := &types.Session{
			ID:           uuid.New().String(),
			Title:        title,
			TeacherEmail: teacherEmail,
			UniqueCode:   newAccessCode(),
			StartTime:    time.Now().UTC(),
			Status:       types.SessionStatusActive,
		}

		err := m.store.CreateSession(ctx, session)
		if errors.Is(err, database.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "creating session")
		}

		m.mu.Lock()
		m.active[session.UniqueCode] = session
		m.mu.Unlock()

		m.log.Info().
			Str("code", session.UniqueCode).
			Str("teacher", session.TeacherEmail).
			Msg("session created")
		return session, nil
	}
	return nil, database.ErrDuplicateCode
}

// GetByCode retrieves a session by access code, from cache when active.
func (m *Manager) GetByCode(ctx context.Context, code string) (*types.Session, error) {
	m.mu.RLock()
	if session, ok := m.active[code]; ok {
		m.mu.RUnlock()
		return session, nil
	}
	m.mu.RUnlock()

	return m.store.GetSessionByCode(ctx, code)
}

// EndSession marks a session ended and evicts it from the cache.
func (m *Manager) EndSession(ctx context.Context, code string) error {
	session, err := m.GetByCode(ctx, code)
	if err != nil {
		return err
	}
	if !session.Active() {
		return ErrSessionEnded
	}

	now := time.Now().UTC()
	session.EndTime = &now
	session.Status = types.SessionStatusEnded

	if err := m.store.UpdateSession(ctx, session); err != nil {
		return errors.Wrap(err, "ending session")
	}

	m.mu.Lock()
	delete(m.active, code)
	m.mu.Unlock()

	m.log.Info().Str("code", code).Msg("session ended")
	return nil
}

// ListActive returns the cached active sessions.
func (m *Manager) ListActive() []*types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*types.Session, 0, len(m.active))
	for _, session := range m.active {
		sessions = append(sessions, session)
	}
	return sessions
}

// newAccessCode generates an 8-character hex code students type in to join.
func newAccessCode() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
