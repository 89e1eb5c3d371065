// Package database persists live-session records in SQLite. All writes go
// through a single goroutine; SQLite handles concurrent reads fine but
// serializing writes avoids busy-lock contention under WAL.
package database

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jfinfoproyectos/seiac-live/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	teacher_email TEXT NOT NULL,
	unique_code   TEXT NOT NULL UNIQUE,
	start_time    DATETIME NOT NULL,
	end_time      DATETIME,
	status        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

const writeTimeout = 30 * time.Second

// Manager owns the SQLite handle and the single-writer loop.
type Manager struct {
	db           *sql.DB
	log          zerolog.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies the schema and starts the write
// loop.
func NewManager(path string, log zerolog.Logger) (*Manager, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "applying schema")
	}

	m := &Manager{
		db:           db,
		log:          log.With().Str("component", "database").Logger(),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.writeLoop()

	return m, nil
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.log.Warn().Err(err).Msg("write failed, retrying once")
				time.Sleep(time.Second)
				err = op.operation(m.db)
				if err != nil {
					m.log.Error().Err(err).Msg("write failed after retry")
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// CreateSession inserts a new session record.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO sessions (id, title, teacher_email, unique_code, start_time, status)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			session.ID,
			session.Title,
			session.TeacherEmail,
			session.UniqueCode,
			session.StartTime,
			session.Status,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return ErrDuplicateCode
			}
			return errors.Wrap(err, "inserting session")
		}
		return nil
	})
}

// GetSessionByCode retrieves a session by its unique access code. Reads run
// concurrently against the pool, outside the write loop.
func (m *Manager) GetSessionByCode(ctx context.Context, code string) (*types.Session, error) {
	query := `
		SELECT id, title, teacher_email, unique_code, start_time, end_time, status
		FROM sessions
		WHERE unique_code = ?
	`
	return m.scanSession(m.db.QueryRowContext(ctx, query, code))
}

// UpdateSession updates the mutable fields of a session (end_time, status).
func (m *Manager) UpdateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		query := `UPDATE sessions SET end_time = ?, status = ? WHERE id = ?`
		res, err := db.ExecContext(ctx, query, session.EndTime, session.Status, session.ID)
		if err != nil {
			return errors.Wrap(err, "updating session")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

// ListActiveSessions returns every active session, newest first.
func (m *Manager) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	query := `
		SELECT id, title, teacher_email, unique_code, start_time, end_time, status
		FROM sessions
		WHERE status = 'active'
		ORDER BY start_time DESC
	`
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "querying active sessions")
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := m.scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// HealthCheck verifies database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close stops the write loop and closes the handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (m *Manager) scanSession(row rowScanner) (*types.Session, error) {
	var session types.Session
	var endTime sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.Title,
		&session.TeacherEmail,
		&session.UniqueCode,
		&session.StartTime,
		&endTime,
		&session.Status,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "scanning session")
	}
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}
	return &session, nil
}
