// internal/gateway/gateway.go
package gateway

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/dicehall/engine"
	"github.com/jason-s-yu/dicehall/internal/cache"
	"github.com/jason-s-yu/dicehall/internal/game"
	"github.com/jason-s-yu/dicehall/internal/models"
)

// Service is the lobby and session API behind both surfaces. *game.Service
// implements it.
type Service interface {
	CreateLobby(ctx context.Context, host engine.Player, lobbyType string, rules models.HouseRules) (models.Lobby, *engine.GameState, error)
	Lobby(ctx context.Context, code string) (models.Lobby, error)
	JoinLobby(ctx context.Context, code string, pl engine.Player) (*engine.GameState, error)
	StartLobby(ctx context.Context, code, actor string) (*engine.GameState, error)
	AddBot(ctx context.Context, code, actor, name string) (*engine.GameState, engine.Player, error)
	RemovePlayer(ctx context.Context, code, actor, userID string) (*engine.GameState, error)
	RunBotTurn(ctx context.Context, code, botID string) error
	SubmitMove(ctx context.Context, sessionID, userID string, req game.MoveRequest) (*engine.GameState, error)
	Session(ctx context.Context, sessionID string) (*engine.GameState, error)
	SessionForLobby(ctx context.Context, code string) (*engine.GameState, error)
	IsActivePlayer(ctx context.Context, code, userID string) (bool, error)
	Abandon(ctx context.Context, sessionID, actor string) (*engine.GameState, error)
}

// Presence is told when users come and go from a lobby room.
type Presence interface {
	OnJoin(ctx context.Context, lobbyCode, userID string) error
	OnDisconnect(lobbyCode, userID string)
}

// ActionLog reads recorded transitions.
type ActionLog interface {
	SessionActions(ctx context.Context, sessionID string) ([]cache.GameActionRecord, error)
}

// Gateway serves the HTTP API and the websocket endpoint.
type Gateway struct {
	svc       Service
	auth      *Authenticator
	registry  *Registry
	presence  Presence
	actions   ActionLog
	clock     clock.Clock
	log       logrus.FieldLogger
	rateLimit int
	origins   []string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithPresence enables disconnect grace handling.
func WithPresence(p Presence) Option { return func(g *Gateway) { g.presence = p } }

// WithActionLog exposes recorded actions over HTTP.
func WithActionLog(a ActionLog) Option { return func(g *Gateway) { g.actions = a } }

// WithRateLimit caps inbound frames per connection per second.
func WithRateLimit(n int) Option { return func(g *Gateway) { g.rateLimit = n } }

// WithOriginPatterns sets the websocket origins accepted besides the host's own.
func WithOriginPatterns(p []string) Option { return func(g *Gateway) { g.origins = p } }

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option { return func(g *Gateway) { g.clock = c } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(g *Gateway) { g.log = l } }

// New returns a gateway broadcasting through registry.
func New(svc Service, auth *Authenticator, registry *Registry, opts ...Option) *Gateway {
	g := &Gateway{
		svc:       svc,
		auth:      auth,
		registry:  registry,
		clock:     clock.New(),
		log:       logrus.StandardLogger(),
		rateLimit: 20,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
