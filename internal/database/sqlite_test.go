// internal/database/sqlite_test.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engine "github.com/jason-s-yu/dicehall/engine"
	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
	"github.com/jason-s-yu/dicehall/internal/models"
)

func openTestStore(t *testing.T) (*SQLite, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	log, _ := test.NewNullLogger()
	s, err := OpenSQLite(context.Background(), MemoryPath, WithClock(mock), WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mock
}

func newLobby(code, sessionID string) models.Lobby {
	return models.Lobby{
		ID:         uuid.New(),
		Code:       code,
		HostUserID: "host",
		Type:       "private",
		SessionID:  sessionID,
		HouseRules: models.DefaultHouseRules(),
		CreatedAt:  time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
}

func newSession(t *testing.T, id, code string, players ...string) *engine.GameState {
	t.Helper()
	g := engine.NewGame(id, code, 42, engine.DefaultHouseRules())
	for _, p := range players {
		require.NoError(t, g.AddPlayer(engine.Player{ID: p, Name: p}))
	}
	return g
}

func TestSessionRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	g := newSession(t, "s1", "HJK234", "a", "b")
	require.NoError(t, g.Start())
	require.NoError(t, g.ApplyMove(engine.Move{Type: engine.MoveRoll, MoverID: "a"}))
	require.NoError(t, s.SaveSession(ctx, g))

	got, err := s.LoadSession(ctx, "s1")
	require.NoError(t, err)
	want, err := json.Marshal(g)
	require.NoError(t, err)
	have, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(have))

	require.NoError(t, got.ApplyMove(engine.Move{Type: engine.MoveScore, MoverID: "a", Category: engine.BestAvailableCategory(got.Dice, got.Players[0].Scorecard)}))
	require.NoError(t, s.SaveSession(ctx, got))

	again, err := s.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "b", again.CurrentPlayerID())
	assert.Equal(t, got.RNG, again.RNG, "the generator state survives a reload")
}

func TestLoadSessionMissing(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.LoadSession(context.Background(), "nope")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
}

func TestLoadSessionCorrupt(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions (id, lobby_code, status, state, updated_at) VALUES ('bad', 'HJK234', 'playing', '{not json', 0)`)
	require.NoError(t, err)
	_, err = s.LoadSession(ctx, "bad")
	assert.Equal(t, apperrors.CodeStateCorruption, apperrors.GetCode(err))

	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (id, lobby_code, status, state, updated_at) VALUES ('odd', 'HJK234', 'playing', '{"id":"odd","status":"playing","players":[],"currentPlayerIndex":3}', 0)`)
	require.NoError(t, err)
	_, err = s.LoadSession(ctx, "odd")
	assert.Equal(t, apperrors.CodeStateCorruption, apperrors.GetCode(err))
}

func TestLobbyLifecycle(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	g := newSession(t, "s1", "HJK234", "host")
	require.NoError(t, s.SaveSession(ctx, g))
	l := newLobby("HJK234", "s1")
	l.HouseRules.TurnTimeoutSec = 45
	require.NoError(t, s.CreateLobby(ctx, l))

	got, err := s.Lobby(ctx, "HJK234")
	require.NoError(t, err)
	assert.Equal(t, l, got)

	sid, err := s.SessionForLobby(ctx, "HJK234")
	require.NoError(t, err)
	assert.Equal(t, "s1", sid)

	_, err = s.Lobby(ctx, "ZZZZZZ")
	assert.Equal(t, apperrors.CodeLobbyNotFound, apperrors.GetCode(err))
	_, err = s.SessionForLobby(ctx, "ZZZZZZ")
	assert.Equal(t, apperrors.CodeLobbyNotFound, apperrors.GetCode(err))
}

func TestCreateLobbyCodeTaken(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateLobby(ctx, newLobby("HJK234", "s1")))
	err := s.CreateLobby(ctx, newLobby("HJK234", "s2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrLobbyCodeTaken))
	assert.Equal(t, apperrors.CodeValidation, apperrors.GetCode(err))
}

func TestMembership(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	g := newSession(t, "s1", "HJK234", "host", "guest")
	require.NoError(t, s.SaveSession(ctx, g))
	require.NoError(t, s.CreateLobby(ctx, newLobby("HJK234", "s1")))
	require.NoError(t, s.AddMember(ctx, "HJK234", "host"))
	require.NoError(t, s.AddMember(ctx, "HJK234", "guest"))
	require.NoError(t, s.AddMember(ctx, "HJK234", "guest"), "adding twice is harmless")

	ok, err := s.IsActivePlayer(ctx, "HJK234", "guest")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsActivePlayer(ctx, "HJK234", "stranger")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RemoveMember(ctx, "HJK234", "guest"))
	ok, err = s.IsActivePlayer(ctx, "HJK234", "guest")
	require.NoError(t, err)
	assert.False(t, ok, "removed members are not active")

	err = s.AddMember(ctx, "HJK234", "guest")
	assert.Equal(t, apperrors.CodeLobbyAccessDenied, apperrors.GetCode(err))
	ok, err = s.IsActivePlayer(ctx, "HJK234", "guest")
	require.NoError(t, err)
	assert.False(t, ok, "re-adding does not undo a removal")

	err = s.RemoveMember(ctx, "HJK234", "stranger")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))

	err = s.AddMember(ctx, "ZZZZZZ", "host")
	assert.Equal(t, apperrors.CodeLobbyNotFound, apperrors.GetCode(err))
}

func TestIsActivePlayerEndsWithSession(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	g := newSession(t, "s1", "HJK234", "host", "guest")
	require.NoError(t, g.Start())
	require.NoError(t, s.SaveSession(ctx, g))
	require.NoError(t, s.CreateLobby(ctx, newLobby("HJK234", "s1")))
	require.NoError(t, s.AddMember(ctx, "HJK234", "guest"))

	ok, err := s.IsActivePlayer(ctx, "HJK234", "guest")
	require.NoError(t, err)
	assert.True(t, ok)

	require.True(t, g.Abandon())
	require.NoError(t, s.SaveSession(ctx, g))
	ok, err = s.IsActivePlayer(ctx, "HJK234", "guest")
	require.NoError(t, err)
	assert.False(t, ok, "a closed session has no active players")
}

func TestMigrateIsIdempotent(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	n, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	files, err := migrationFiles("sqlite")
	require.NoError(t, err)
	assert.Equal(t, len(files), n)
	assert.Equal(t, 1, n)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	log, _ := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "dicehall.db")

	s, err := OpenSQLite(ctx, path, WithLogger(log))
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(ctx, newSession(t, "s1", "HJK234", "a")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, WithLogger(log))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "HJK234", got.LobbyCode)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "  ")
	assert.Error(t, err)
}
