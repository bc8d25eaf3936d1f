// internal/database/postgres.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/dicehall/engine"
	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
	"github.com/jason-s-yu/dicehall/internal/models"
)

// Postgres is a session and lobby store backed by a pgx connection pool.
type Postgres struct {
	pool  *pgxpool.Pool
	clock clock.Clock
	retry RetryPolicy
	log   logrus.FieldLogger
}

// OpenPostgres connects to dsn. Migrations are not applied; run Migrate.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	o := buildOptions(opts)
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	p := &Postgres{pool: pool, clock: o.clock, retry: o.retry, log: o.log.WithField("store", "postgres")}

	// The database may still be starting; connection failures are transient.
	if err := p.do(ctx, "ping", func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, err
	}
	p.log.WithFields(logrus.Fields{"host": cfg.ConnConfig.Host, "database": cfg.ConnConfig.Database}).Info("Connected to postgres")
	return p, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Migrate applies embedded migrations that have not run yet. Each file runs
// in its own transaction.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	files, err := migrationFiles("postgres")
	if err != nil {
		return err
	}
	for _, file := range files {
		var exists bool
		if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+migrationTable+` WHERE name = $1)`, file).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if exists {
			continue
		}
		body, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO `+migrationTable+` (name, applied_at) VALUES ($1, $2)`, file, p.clock.Now())
			return err
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		p.log.WithField("migration", file).Info("Applied migration")
	}
	return nil
}

// SchemaVersion returns how many migrations have been applied. A database
// that was never migrated reports 0.
func (p *Postgres) SchemaVersion(ctx context.Context) (int, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, migrationTable).Scan(&exists); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if !exists {
		return 0, nil
	}
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(1) FROM `+migrationTable).Scan(&n); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return n, nil
}

func (p *Postgres) do(ctx context.Context, what string, op func() error) error {
	return retry(ctx, p.retry, p.log, what, pgTransient, op)
}

// LoadSession reads a session by id.
func (p *Postgres) LoadSession(ctx context.Context, id string) (*engine.GameState, error) {
	var raw []byte
	err := p.do(ctx, "load session", func() error {
		err := p.pool.QueryRow(ctx, `SELECT state FROM sessions WHERE id = $1`, id).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return sessionNotFound(id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return decodeState(id, raw)
}

// SaveSession inserts or replaces a session.
func (p *Postgres) SaveSession(ctx context.Context, g *engine.GameState) error {
	b, err := encodeState(g)
	if err != nil {
		return err
	}
	return p.do(ctx, "save session", func() error {
		_, err := p.pool.Exec(ctx, `
INSERT INTO sessions (id, lobby_code, status, state, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	state = EXCLUDED.state,
	updated_at = EXCLUDED.updated_at`,
			g.ID, g.LobbyCode, g.Status.String(), b, p.clock.Now())
		return err
	})
}

// IsActivePlayer reports whether userID is a non-removed member of a lobby
// whose session is still waiting or playing.
func (p *Postgres) IsActivePlayer(ctx context.Context, lobbyCode, userID string) (bool, error) {
	var ok bool
	err := p.do(ctx, "check membership", func() error {
		return p.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM lobby_members m
	JOIN lobbies l ON l.code = m.lobby_code
	JOIN sessions s ON s.id = l.session_id
	WHERE m.lobby_code = $1 AND m.user_id = $2 AND NOT m.removed
		AND s.status IN ('waiting', 'playing')
)`, lobbyCode, userID).Scan(&ok)
	})
	return ok, err
}

// CreateLobby records a new lobby. A taken code fails with a conflict that
// wraps models.ErrLobbyCodeTaken.
func (p *Postgres) CreateLobby(ctx context.Context, l models.Lobby) error {
	rules, err := encodeRules(l.HouseRules)
	if err != nil {
		return err
	}
	return p.do(ctx, "create lobby", func() error {
		_, err := p.pool.Exec(ctx, `
INSERT INTO lobbies (code, id, host_user_id, type, session_id, house_rules, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.Code, l.ID.String(), l.HostUserID, l.Type, l.SessionID, rules, l.CreatedAt)
		if pgErrCode(err) == "23505" {
			return lobbyCodeTaken()
		}
		return err
	})
}

// Lobby reads a lobby by code.
func (p *Postgres) Lobby(ctx context.Context, code string) (models.Lobby, error) {
	var (
		l     models.Lobby
		id    string
		rules []byte
	)
	err := p.do(ctx, "load lobby", func() error {
		err := p.pool.QueryRow(ctx, `
SELECT code, id::text, host_user_id, type, session_id, house_rules, created_at
FROM lobbies WHERE code = $1`, code).Scan(&l.Code, &id, &l.HostUserID, &l.Type, &l.SessionID, &rules, &l.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
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
	if l.HouseRules, err = decodeRules(code, rules); err != nil {
		return models.Lobby{}, err
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

// SessionForLobby returns the id of the lobby's session.
func (p *Postgres) SessionForLobby(ctx context.Context, code string) (string, error) {
	var id string
	err := p.do(ctx, "lookup lobby session", func() error {
		err := p.pool.QueryRow(ctx, `SELECT session_id FROM lobbies WHERE code = $1`, code).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return lobbyNotFound(code)
		}
		return err
	})
	return id, err
}

// AddMember records userID as a member of the lobby. Adding a member twice is
// harmless. A member the lobby removed stays removed and gets
// LOBBY_ACCESS_DENIED.
func (p *Postgres) AddMember(ctx context.Context, code, userID string) error {
	return p.do(ctx, "add member", func() error {
		var removed bool
		err := p.pool.QueryRow(ctx, `
INSERT INTO lobby_members (lobby_code, user_id, removed, joined_at)
VALUES ($1, $2, FALSE, $3)
ON CONFLICT (lobby_code, user_id) DO UPDATE SET removed = lobby_members.removed
RETURNING removed`,
			code, userID, p.clock.Now()).Scan(&removed)
		if pgErrCode(err) == "23503" {
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
func (p *Postgres) RemoveMember(ctx context.Context, code, userID string) error {
	return p.do(ctx, "remove member", func() error {
		tag, err := p.pool.Exec(ctx, `UPDATE lobby_members SET removed = TRUE WHERE lobby_code = $1 AND user_id = $2`, code, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return memberNotFound(code, userID)
		}
		return nil
	})
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// pgTransient matches failures worth another attempt: lost connections,
// serialization failures, deadlocks and a server that is still starting.
func pgTransient(err error) bool {
	if err == nil {
		return false
	}
	if code := pgErrCode(err); code != "" {
		return strings.HasPrefix(code, "08") || code == "40001" || code == "40P01" || code == "57P03"
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err) || isConnectError(err)
}

func isConnectError(err error) bool {
	var ce *pgconn.ConnectError
	return errors.As(err, &ce)
}
