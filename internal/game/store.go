// internal/game/store.go
package game

import (
	"context"

	engine "github.com/jason-s-yu/dicehall/engine"
	"github.com/jason-s-yu/dicehall/internal/cache"
	"github.com/jason-s-yu/dicehall/internal/models"
)

// Store persists sessions. Implementations retry transient failures
// themselves and return apperrors codes: NOT_FOUND, STATE_CORRUPTION for
// unreadable state, and PERSISTENCE once retries are exhausted.
type Store interface {
	LoadSession(ctx context.Context, id string) (*engine.GameState, error)
	SaveSession(ctx context.Context, s *engine.GameState) error
	// IsActivePlayer reports whether userID is a current, non-removed member
	// of the lobby's live session. Callers must not cache the answer.
	IsActivePlayer(ctx context.Context, lobbyCode, userID string) (bool, error)
}

// LobbyDirectory maps lobby codes to sessions and tracks lobby membership.
type LobbyDirectory interface {
	CreateLobby(ctx context.Context, lobby models.Lobby) error
	Lobby(ctx context.Context, code string) (models.Lobby, error)
	SessionForLobby(ctx context.Context, code string) (string, error)
	AddMember(ctx context.Context, code, userID string) error
	RemoveMember(ctx context.Context, code, userID string) error
}

// Broadcaster delivers events to lobby rooms. Implementations must not block
// the caller.
type Broadcaster interface {
	Broadcast(lobbyCode string, ev Event)
	BroadcastAll(ev Event)
}

// Historian records applied transitions for replay and audit.
type Historian interface {
	PublishGameAction(ctx context.Context, rec cache.GameActionRecord) error
}

// BotRunner plays one bot turn to completion.
type BotRunner interface {
	RunTurn(ctx context.Context, sessionID, botID string) error
}
