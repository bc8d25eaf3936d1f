// internal/database/codec.go
package database

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	engine "github.com/jason-s-yu/dicehall/engine"
	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
	"github.com/jason-s-yu/dicehall/internal/models"
)

//go:embed migrations
var migrationFS embed.FS

// migrationTable records applied migration files.
const migrationTable = "schema_migrations"

// migrationFiles lists the dialect's .sql files in apply order.
func migrationFiles(dialect string) ([]string, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, dir+"/"+e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// encodeState serializes a session for storage.
func encodeState(s *engine.GameState) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePersistence, "encode session", err)
	}
	return b, nil
}

// decodeState parses a stored session. Anything unreadable or inconsistent is
// reported as corruption; there is no best-effort recovery.
func decodeState(id string, b []byte) (*engine.GameState, error) {
	var s engine.GameState
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStateCorruption, "session "+id+" is unreadable", err)
	}
	if err := checkState(&s); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStateCorruption, "session "+id+" is inconsistent", err)
	}
	return &s, nil
}

func checkState(s *engine.GameState) error {
	if s.ID == "" {
		return fmt.Errorf("missing id")
	}
	if s.Status == engine.StatusPlaying {
		if s.CurrentPlayer < 0 || s.CurrentPlayer >= len(s.Players) {
			return fmt.Errorf("current player %d out of range", s.CurrentPlayer)
		}
		if s.RollsLeft > engine.MaxRolls {
			return fmt.Errorf("rolls left %d out of range", s.RollsLeft)
		}
	}
	for i, d := range s.Dice {
		if d != 0 && (d < engine.MinFace || d > engine.MaxFace) {
			return fmt.Errorf("die %d shows %d", i, d)
		}
	}
	return nil
}

func encodeRules(r models.HouseRules) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePersistence, "encode house rules", err)
	}
	return b, nil
}

func decodeRules(code string, b []byte) (models.HouseRules, error) {
	var r models.HouseRules
	if err := json.Unmarshal(b, &r); err != nil {
		return r, apperrors.Wrap(apperrors.CodeStateCorruption, "lobby "+code+" rules are unreadable", err)
	}
	return r, nil
}

func sessionNotFound(id string) error {
	return apperrors.Newf(apperrors.CodeNotFound, "session %s not found", id)
}

func lobbyNotFound(code string) error {
	return apperrors.Newf(apperrors.CodeLobbyNotFound, "lobby %s not found", code)
}

func lobbyCodeTaken() error {
	return apperrors.Conflict("lobby code already in use", models.ErrLobbyCodeTaken)
}

func memberNotFound(code, userID string) error {
	return apperrors.Newf(apperrors.CodeNotFound, "%s is not a member of lobby %s", userID, code)
}

func memberRemoved(code, userID string) error {
	return apperrors.Newf(apperrors.CodeLobbyAccessDenied, "%s was removed from lobby %s", userID, code)
}
