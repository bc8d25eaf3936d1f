// internal/database/sqlite.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	engine "github.com/jason-s-yu/dicehall/engine"
	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
	"github.com/jason-s-yu/dicehall/internal/models"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLite is a session and lobby store backed by a single SQLite file.
type SQLite struct {
	db    *sql.DB
	clock clock.Clock
	retry RetryPolicy
	log   logrus.FieldLogger
}

// Option configures a store.
type Option func(*options)

type options struct {
	clock clock.Clock
	retry RetryPolicy
	log   logrus.FieldLogger
}

// WithClock replaces the wall clock used for row timestamps.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option { return func(o *options) { o.retry = p } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.log = l } }

func buildOptions(opts []Option) options {
	o := options{clock: clock.New(), retry: DefaultRetryPolicy, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OpenSQLite opens the database at path and applies pending migrations.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	o := buildOptions(opts)

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if path == MemoryPath {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite store: %w", err)
	}

	s := &SQLite{db: db, clock: o.clock, retry: o.retry, log: o.log.WithField("store", "sqlite")}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate applies embedded migrations that have not run yet.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	files, err := migrationFiles("sqlite")
	if err != nil {
		return err
	}
	for _, file := range files {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+migrationTable+` WHERE name = ?`, file).Scan(&n); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if n > 0 {
			continue
		}
		body, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, file, toMillis(s.clock.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
		s.log.WithField("migration", file).Info("Applied migration")
	}
	return nil
}

// SchemaVersion returns how many migrations have been applied.
func (s *SQLite) SchemaVersion(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+migrationTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return n, nil
}

func (s *SQLite) do(ctx context.Context, what string, op func() error) error {
	return retry(ctx, s.retry, s.log, what, sqliteTransient, op)
}

// LoadSession reads a session by id.
func (s *SQLite) LoadSession(ctx context.Context, id string) (*engine.GameState, error) {
	var raw string
	err := s.do(ctx, "load session", func() error {
		err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE id = ?`, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return sessionNotFound(id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeState(id, []byte(raw))
}

// SaveSession inserts or replaces a session.
func (s *SQLite) SaveSession(ctx context.Context, g *engine.GameState) error {
	b, err := encodeState(g)
	if err != nil {
		return err
	}
	return s.do(ctx, "save session", func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, lobby_code, status, state, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	state = excluded.state,
	updated_at = excluded.updated_at`,
			g.ID, g.LobbyCode, g.Status.String(), string(b), toMillis(s.clock.Now()))
		return err
	})
}

// IsActivePlayer reports whether userID is a non-removed member of a lobby
// whose session is still waiting or playing.
func (s *SQLite) IsActivePlayer(ctx context.Context, lobbyCode, userID string) (bool, error) {
	var ok bool
	err := s.do(ctx, "check membership", func() error {
		var n int
		err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM lobby_members m
JOIN lobbies l ON l.code = m.lobby_code
JOIN sessions s ON s.id = l.session_id
WHERE m.lobby_code = ? AND m.user_id = ? AND m.removed = 0
	AND s.status IN ('waiting', 'playing')`, lobbyCode, userID).Scan(&n)
		ok = n > 0
		return err
	})
	return ok, err
}

// CreateLobby records a new lobby. A taken code fails with a conflict that
// wraps models.ErrLobbyCodeTaken.
func (s *SQLite) CreateLobby(ctx context.Context, l models.Lobby) error {
	rules, err := encodeRules(l.HouseRules)
	if err != nil {
		return err
	}
	return s.do(ctx, "create lobby", func() error {
		_, err := s.db.ExecContext(ctx, `
INSERT INTO lobbies (code, id, host_user_id, type, session_id, house_rules, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.Code, l.ID.String(), l.HostUserID, l.Type, l.SessionID, string(rules), toMillis(l.CreatedAt))
		if isSQLiteUniqueViolation(err) {
			return lobbyCodeTaken()
		}
		return err
	})
}

// Lobby reads a lobby by code.
func (s *SQLite) Lobby(ctx context.Context, code string) (models.Lobby, error) {
	var (
		l       models.Lobby
		id      string
		rules   string
		created int64
	)
	err := s.do(ctx, "load lobby", func() error {
		err := s.db.QueryRowContext(ctx, `
SELECT code, id, host_user_id, type, session_id, house_rules, created_at
FROM lobbies WHERE code = ?`, code).Scan(&l.Code, &id, &l.HostUserID, &l.Type, &l.SessionID, &rules, &created)
		if errors.Is(err, sql.ErrNoRows) {
			return lobbyNotFound(code)
		}
		return err
	})
	if err != nil {
		return models.Lobby{}, err
	}
	if l.ID, err = uuid.Parse(id); err != nil {
		return models.Lobby{}, apperrors.Wrap(apperrors.CodeStateCorruption, "lobby "+code+" has a malformed id", err)
	}
	if l.HouseRules, err = decodeRules(code, []byte(rules)); err != nil {
		return models.Lobby{}, err
	}
	l.CreatedAt = fromMillis(created)
	return l, nil
}

// SessionForLobby returns the id of the lobby's session.
func (s *SQLite) SessionForLobby(ctx context.Context, code string) (string, error) {
	var id string
	err := s.do(ctx, "lookup lobby session", func() error {
		err := s.db.QueryRowContext(ctx, `SELECT session_id FROM lobbies WHERE code = ?`, code).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return lobbyNotFound(code)
		}
		return err
	})
	return id, err
}

// AddMember records userID as a member of the lobby. Adding a member twice is
// harmless. A member the lobby removed stays removed and gets
// LOBBY_ACCESS_DENIED.
func (s *SQLite) AddMember(ctx context.Context, code, userID string) error {
	return s.do(ctx, "add member", func() error {
		var removed bool
		err := s.db.QueryRowContext(ctx, `
INSERT INTO lobby_members (lobby_code, user_id, removed, joined_at)
VALUES (?, ?, 0, ?)
ON CONFLICT(lobby_code, user_id) DO UPDATE SET removed = lobby_members.removed
RETURNING removed`,
			code, userID, toMillis(s.clock.Now())).Scan(&removed)
		if isSQLiteForeignKeyViolation(err) {
			return lobbyNotFound(code)
		}
		if err != nil {
			return err
		}
		if removed {
			return memberRemoved(code, userID)
		}
		return nil
	})
}

// RemoveMember marks userID as removed. Removing a non-member is NOT_FOUND.
func (s *SQLite) RemoveMember(ctx context.Context, code, userID string) error {
	return s.do(ctx, "remove member", func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE lobby_members SET removed = 1 WHERE lobby_code = ? AND user_id = ?`, code, userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return memberNotFound(code, userID)
		}
		return nil
	})
}

func sqliteCode(err error) (int, bool) {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return 0, false
	}
	return se.Code(), true
}

// sqliteTransient matches lock contention, which clears on its own.
func sqliteTransient(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	switch code & 0xff {
	case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
		return true
	}
	return false
}

func isSQLiteUniqueViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE)
}

func isSQLiteForeignKeyViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
