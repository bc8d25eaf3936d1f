// internal/game/service.go
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	engine "github.com/jason-s-yu/dicehall/engine"
	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
	"github.com/jason-s-yu/dicehall/internal/models"
)

// BotIDPrefix marks seats played by the server.
const BotIDPrefix = "bot:"

// botTurnTimeout bounds one bot turn, pacing included.
const botTurnTimeout = time.Minute

// codeAttempts is how many lobby codes are tried before giving up.
const codeAttempts = 5

// Service is the lobby and session facade used by the HTTP and websocket
// surfaces and by presence. Every state change goes through the pipeline.
type Service struct {
	pipeline *Pipeline
	store    Store
	lobbies  LobbyDirectory
	bots     BotRunner
	clock    clock.Clock
	log      logrus.FieldLogger

	flight singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService wires the facade. bots may be nil, in which case bot seats are
// left to the turn timer.
func NewService(p *Pipeline, store Store, lobbies LobbyDirectory, bots BotRunner, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		pipeline: p,
		store:    store,
		lobbies:  lobbies,
		bots:     bots,
		clock:    p.clock,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	p.OnTurnStart(s.onTurnStart)
	return s
}

// Pipeline exposes the underlying pipeline.
func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// Close stops pending turn timers and waits for running bot turns.
func (s *Service) Close() {
	s.cancel()
	s.pipeline.Close()
	s.wg.Wait()
}

// CreateLobby opens a lobby with a fresh waiting session and seats the host.
func (s *Service) CreateLobby(ctx context.Context, host engine.Player, lobbyType string, rules models.HouseRules) (models.Lobby, *engine.GameState, error) {
	if host.ID == "" {
		return models.Lobby{}, nil, apperrors.New(apperrors.CodeValidation, "host id is required")
	}
	if lobbyType == "" {
		lobbyType = "private"
	}
	if lobbyType != "public" && lobbyType != "private" {
		return models.Lobby{}, nil, apperrors.Newf(apperrors.CodeValidation, "unknown lobby type %q", lobbyType)
	}
	if err := rules.Validate(); err != nil {
		return models.Lobby{}, nil, apperrors.Wrap(apperrors.CodeValidation, "invalid house rules", err)
	}

	lobby := models.Lobby{
		ID:         uuid.New(),
		HostUserID: host.ID,
		Type:       lobbyType,
		SessionID:  uuid.NewString(),
		HouseRules: rules,
		CreatedAt:  s.clock.Now().UTC(),
	}

	var err error
	for attempt := 0; attempt < codeAttempts; attempt++ {
		if lobby.Code, err = models.NewLobbyCode(); err != nil {
			return models.Lobby{}, nil, apperrors.Wrap(apperrors.CodeUnknown, "generate lobby code", err)
		}
		err = s.lobbies.CreateLobby(ctx, lobby)
		if !errors.Is(err, models.ErrLobbyCodeTaken) {
			break
		}
	}
	if err != nil {
		return models.Lobby{}, nil, err
	}

	host.IsBot = false
	host.Conn = engine.ConnActive
	g := engine.NewGame(lobby.SessionID, lobby.Code, rand.Uint64(), rules.Engine())
	if err := g.AddPlayer(host); err != nil {
		return models.Lobby{}, nil, apperrors.Wrap(apperrors.CodeValidation, "cannot seat host", err)
	}
	if err := s.pipeline.Create(ctx, g); err != nil {
		return models.Lobby{}, nil, err
	}
	if err := s.lobbies.AddMember(ctx, lobby.Code, host.ID); err != nil {
		return models.Lobby{}, nil, err
	}

	s.log.WithFields(logrus.Fields{"lobby": lobby.Code, "session": lobby.SessionID, "user": host.ID}).Info("Lobby created")
	return lobby, g.Clone(), nil
}

// Lobby resolves a lobby by code, checking the code format first.
func (s *Service) Lobby(ctx context.Context, code string) (models.Lobby, error) {
	if !models.ValidLobbyCode(code) {
		return models.Lobby{}, apperrors.Newf(apperrors.CodeInvalidLobbyCode, "malformed lobby code %q", code)
	}
	return s.lobbies.Lobby(ctx, code)
}

// JoinLobby seats pl in the lobby's waiting session. Joining twice is a no-op,
// but a player the lobby removed gets LOBBY_ACCESS_DENIED. The seat is only
// reused once the membership record accepts the caller.
func (s *Service) JoinLobby(ctx context.Context, code string, pl engine.Player) (*engine.GameState, error) {
	lobby, err := s.Lobby(ctx, code)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(pl.ID, BotIDPrefix) {
		return nil, apperrors.New(apperrors.CodeAuthorization, "reserved player id")
	}
	pl.IsBot = false
	pl.Conn = engine.ConnActive

	g, err := s.pipeline.AddPlayer(ctx, lobby.SessionID, pl)
	if err != nil {
		return nil, err
	}
	if err := s.lobbies.AddMember(ctx, code, pl.ID); err != nil {
		return nil, err
	}
	return g, nil
}

// StartLobby starts the lobby's session. Only the host may start.
func (s *Service) StartLobby(ctx context.Context, code, actor string) (*engine.GameState, error) {
	lobby, err := s.hostLobby(ctx, code, actor)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Start(ctx, lobby.SessionID)
}

// AddBot seats a server-played bot. Only the host may add bots, and only if
// the lobby's rules allow them.
func (s *Service) AddBot(ctx context.Context, code, actor, name string) (*engine.GameState, engine.Player, error) {
	lobby, err := s.hostLobby(ctx, code, actor)
	if err != nil {
		return nil, engine.Player{}, err
	}
	if !lobby.HouseRules.AllowBots {
		return nil, engine.Player{}, apperrors.New(apperrors.CodeAuthorization, "bots are disabled for this lobby")
	}

	bot := engine.Player{ID: BotIDPrefix + uuid.NewString(), Name: name, IsBot: true}
	if bot.Name == "" {
		bot.Name = "Bot " + bot.ID[len(BotIDPrefix):len(BotIDPrefix)+4]
	}
	g, err := s.pipeline.AddPlayer(ctx, lobby.SessionID, bot)
	if err != nil {
		return nil, engine.Player{}, err
	}
	if err := s.lobbies.AddMember(ctx, code, bot.ID); err != nil {
		return nil, engine.Player{}, err
	}
	return g, bot, nil
}

// RemovePlayer takes userID out of the lobby. The host may remove anyone and
// players may remove themselves. The seat stays but leaves the rotation.
func (s *Service) RemovePlayer(ctx context.Context, code, actor, userID string) (*engine.GameState, error) {
	lobby, err := s.Lobby(ctx, code)
	if err != nil {
		return nil, err
	}
	if actor != userID && actor != lobby.HostUserID {
		return nil, apperrors.New(apperrors.CodeAuthorization, "only the host can remove other players")
	}
	if err := s.lobbies.RemoveMember(ctx, code, userID); err != nil {
		return nil, err
	}
	g, _, err := s.pipeline.SetConnStatus(ctx, lobby.SessionID, userID, engine.ConnInactive)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"lobby": code, "user": userID, "actor": actor}).Info("Player removed")
	return g, nil
}

// SubmitMove decodes and applies a move sent by userID.
func (s *Service) SubmitMove(ctx context.Context, sessionID, userID string, req MoveRequest) (*engine.GameState, error) {
	m, err := DecodeMove(req, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if m.MoverID != userID {
		return nil, apperrors.New(apperrors.CodeAuthorization, "cannot move for another player")
	}
	return s.pipeline.Submit(ctx, sessionID, m)
}

// Session returns a session by id.
func (s *Service) Session(ctx context.Context, sessionID string) (*engine.GameState, error) {
	return s.pipeline.Load(ctx, sessionID)
}

// SessionForLobby returns the lobby's session.
func (s *Service) SessionForLobby(ctx context.Context, code string) (*engine.GameState, error) {
	if !models.ValidLobbyCode(code) {
		return nil, apperrors.Newf(apperrors.CodeInvalidLobbyCode, "malformed lobby code %q", code)
	}
	id, err := s.lobbies.SessionForLobby(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Load(ctx, id)
}

// IsActivePlayer is the authoritative membership check. It is never cached.
func (s *Service) IsActivePlayer(ctx context.Context, code, userID string) (bool, error) {
	return s.store.IsActivePlayer(ctx, code, userID)
}

// Abandon force-ends a session. Only the lobby host may abandon.
func (s *Service) Abandon(ctx context.Context, sessionID, actor string) (*engine.GameState, error) {
	g, err := s.pipeline.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.hostLobby(ctx, g.LobbyCode, actor); err != nil {
		return nil, err
	}
	return s.pipeline.Abandon(ctx, sessionID, actor)
}

// MarkInactive takes userID out of the rotation after their grace period
// ran out. It returns the ids skipped while advancing the turn. Unknown
// lobbies and seats are ignored.
func (s *Service) MarkInactive(ctx context.Context, code, userID string) ([]string, error) {
	id, err := s.lobbies.SessionForLobby(ctx, code)
	if err != nil {
		return nil, ignoreMissing(err)
	}
	_, skipped, err := s.pipeline.SetConnStatus(ctx, id, userID, engine.ConnInactive)
	if err != nil {
		return nil, ignoreMissing(err)
	}
	return skipped, nil
}

// Rejoin reasserts userID as connected. It is idempotent.
func (s *Service) Rejoin(ctx context.Context, code, userID string) error {
	id, err := s.lobbies.SessionForLobby(ctx, code)
	if err != nil {
		return ignoreMissing(err)
	}
	_, _, err = s.pipeline.SetConnStatus(ctx, id, userID, engine.ConnActive)
	return ignoreMissing(err)
}

// RunBotTurn starts the bot's turn in the background. It fails fast when the
// bot is not the current mover.
func (s *Service) RunBotTurn(ctx context.Context, code, botID string) error {
	g, err := s.SessionForLobby(ctx, code)
	if err != nil {
		return err
	}
	if s.bots == nil {
		return apperrors.New(apperrors.CodeValidation, "bots are not available")
	}
	if g.Status != engine.StatusPlaying {
		return apperrors.New(apperrors.CodeSessionClosed, "session is not in play")
	}
	p := g.Player(botID)
	if p == nil || !p.IsBot {
		return apperrors.Newf(apperrors.CodeNotFound, "no bot %q in lobby", botID)
	}
	if g.CurrentPlayerID() != botID {
		return apperrors.Conflict("not the bot's turn", nil)
	}
	s.triggerBot(g.ID, botID, g.Turn)
	return nil
}

// onTurnStart hands bot turns to the bot runner.
func (s *Service) onTurnStart(g *engine.GameState) {
	if s.bots == nil {
		return
	}
	p := g.Player(g.CurrentPlayerID())
	if p == nil || !p.IsBot {
		return
	}
	s.triggerBot(g.ID, p.ID, g.Turn)
}

// triggerBot runs one bot turn in its own goroutine. Triggers for the same
// session, bot and turn collapse into one run.
func (s *Service) triggerBot(sessionID, botID string, turn int) {
	if s.ctx.Err() != nil {
		return
	}
	key := fmt.Sprintf("%s|%s|%d", sessionID, botID, turn)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err, shared := s.flight.Do(key, func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(s.ctx, botTurnTimeout)
			defer cancel()
			return nil, s.bots.RunTurn(ctx, sessionID, botID)
		})
		if err != nil && !shared {
			s.log.WithFields(logrus.Fields{"session": sessionID, "bot": botID, "turn": turn}).
				WithError(err).Warn("Bot turn aborted")
		}
	}()
}

func (s *Service) hostLobby(ctx context.Context, code, actor string) (models.Lobby, error) {
	lobby, err := s.Lobby(ctx, code)
	if err != nil {
		return models.Lobby{}, err
	}
	if lobby.HostUserID != actor {
		return models.Lobby{}, apperrors.New(apperrors.CodeAuthorization, "only the host can do that")
	}
	return lobby, nil
}

func ignoreMissing(err error) error {
	switch apperrors.GetCode(err) {
	case apperrors.CodeNotFound, apperrors.CodeLobbyNotFound:
		return nil
	}
	return err
}
