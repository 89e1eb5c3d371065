package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfinfoproyectos/seiac-live/pkg/types"
)

func newTestDB(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(filepath.Join(t.TempDir(), "seiac.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func testSession(code string) *types.Session {
	return &types.Session{
		ID:           "id-" + code,
		Title:        "Test Session",
		TeacherEmail: "teacher@school.edu",
		UniqueCode:   code,
		StartTime:    time.Now().UTC(),
		Status:       types.SessionStatusActive,
	}
}

func TestManager_CreateAndGetSession(t *testing.T) {
	m := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, m.CreateSession(ctx, testSession("abcd1234")))

	got, err := m.GetSessionByCode(ctx, "abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "id-abcd1234", got.ID)
	assert.Equal(t, types.SessionStatusActive, got.Status)
	assert.Nil(t, got.EndTime)
}

func TestManager_GetSessionNotFound(t *testing.T) {
	m := newTestDB(t)

	_, err := m.GetSessionByCode(context.Background(), "missing0")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_DuplicateCodeRejected(t *testing.T) {
	m := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, m.CreateSession(ctx, testSession("dupe0001")))

	other := testSession("dupe0001")
	other.ID = "other-id"
	assert.ErrorIs(t, m.CreateSession(ctx, other), ErrDuplicateCode)
}

func TestManager_UpdateSession(t *testing.T) {
	m := newTestDB(t)
	ctx := context.Background()

	session := testSession("upd00001")
	require.NoError(t, m.CreateSession(ctx, session))

	now := time.Now().UTC()
	session.EndTime = &now
	session.Status = types.SessionStatusEnded
	require.NoError(t, m.UpdateSession(ctx, session))

	got, err := m.GetSessionByCode(ctx, "upd00001")
	require.NoError(t, err)
	assert.Equal(t, types.SessionStatusEnded, got.Status)
	require.NotNil(t, got.EndTime)

	unknown := testSession("none0000")
	assert.ErrorIs(t, m.UpdateSession(ctx, unknown), ErrSessionNotFound)
}

func TestManager_ListActiveSessions(t *testing.T) {
	m := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, m.CreateSession(ctx, testSession("act00001")))

	ended := testSession("end00001")
	ended.Status = types.SessionStatusEnded
	require.NoError(t, m.CreateSession(ctx, ended))

	sessions, err := m.ListActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "act00001", sessions[0].UniqueCode)
}

func TestManager_ClosedManagerRejectsWrites(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "seiac.db"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.CreateSession(context.Background(), testSession("late0001")), ErrManagerClosed)
}

func TestManager_HealthCheck(t *testing.T) {
	m := newTestDB(t)
	assert.NoError(t, m.HealthCheck(context.Background()))
}
