// internal/gateway/ws.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
	"github.com/jason-s-yu/dicehall/internal/game"
	"github.com/jason-s-yu/dicehall/internal/models"
)

const (
	readLimit    = 16 << 10
	writeTimeout = 5 * time.Second
)

// ServeWS upgrades the request and runs the connection until either side
// closes it.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, minted, err := g.auth.Resolve(r)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if minted != "" {
		http.SetCookie(w, GuestCookieFor(minted))
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.origins})
	if err != nil {
		g.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{
		id:      uuid.NewString(),
		user:    id,
		send:    make(chan []byte, sendBuffer),
		limiter: newRateLimiter(g.clock, g.rateLimit),
		closeSlow: func() {
			conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
		},
	}
	logger := g.log.WithFields(logrus.Fields{"conn": c.id, "user": id.UserID})
	logger.Info("Websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.registry.add(c)
	go g.writeLoop(ctx, conn, c, logger)
	err = g.readLoop(ctx, conn, c, logger)
	cancel()

	if lobby := g.registry.remove(c); lobby != "" {
		g.disconnected(lobby, id.UserID)
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		logger.Info("Websocket closed")
	default:
		logger.WithError(err).Debug("Websocket ended")
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// writeLoop drains the connection's queue. A failed write closes the socket,
// which ends the read loop.
func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, c *client, logger *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, json.RawMessage(msg))
			cancel()
			if err != nil {
				logger.WithError(err).Debug("Websocket write failed")
				conn.CloseNow()
				return
			}
		}
	}
}

// readLoop decodes and dispatches frames until the connection fails.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, c *client, logger *logrus.Entry) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !c.limiter.Allow() {
			g.sendError(c, apperrors.New(apperrors.CodeRateLimited, "too many messages, slow down"))
			continue
		}
		if typ != websocket.MessageText {
			g.sendError(c, apperrors.New(apperrors.CodeValidation, "frames must be JSON text"))
			continue
		}
		in, err := DecodeInbound(data)
		if err != nil {
			g.sendError(c, err)
			continue
		}
		if err := g.dispatch(ctx, c, in); err != nil {
			logger.WithError(err).Debug("Frame rejected")
			g.sendError(c, err)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *client, in Inbound) error {
	switch f := in.(type) {
	case JoinFrame:
		return g.join(ctx, c, f.LobbyCode)
	case LeaveFrame:
		if prev := g.registry.leave(c); prev != "" {
			g.disconnected(prev, c.user.UserID)
		}
		return nil
	case MoveFrame:
		lobby, err := g.joined(c)
		if err != nil {
			return err
		}
		s, err := g.svc.SessionForLobby(ctx, lobby)
		if err != nil {
			return err
		}
		_, err = g.svc.SubmitMove(ctx, s.ID, c.user.UserID, f.Move)
		return err
	case ChatFrame:
		lobby, err := g.joined(c)
		if err != nil {
			return err
		}
		g.registry.Broadcast(lobby, game.Event{
			Kind:      EventChatMessage,
			LobbyCode: lobby,
			Payload:   ChatPayload{LobbyCode: lobby, UserID: c.user.UserID, Name: c.user.Name, Message: f.Message},
		})
		return nil
	case TypingFrame:
		lobby, err := g.joined(c)
		if err != nil {
			return err
		}
		g.registry.Broadcast(lobby, game.Event{
			Kind:      EventTypingIndicator,
			LobbyCode: lobby,
			Payload:   TypingPayload{LobbyCode: lobby, UserID: c.user.UserID, IsTyping: f.IsTyping},
		})
		return nil
	}
	return apperrors.New(apperrors.CodeValidation, "unsupported frame")
}

// join checks membership on every attempt and subscribes c to the room.
func (g *Gateway) join(ctx context.Context, c *client, code string) error {
	if !models.ValidLobbyCode(code) {
		return apperrors.Newf(apperrors.CodeInvalidLobbyCode, "malformed lobby code %q", code)
	}
	if _, err := g.svc.Lobby(ctx, code); err != nil {
		return err
	}
	ok, err := g.svc.IsActivePlayer(ctx, code, c.user.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.CodeLobbyAccessDenied, "you are not a player in this lobby")
	}

	if prev := g.registry.join(c, code); prev != "" {
		g.disconnected(prev, c.user.UserID)
	}
	if g.presence != nil {
		if err := g.presence.OnJoin(ctx, code, c.user.UserID); err != nil {
			g.log.WithFields(logrus.Fields{"lobby": code, "user": c.user.UserID}).WithError(err).Warn("Rejoin failed")
		}
	}

	g.registry.sendTo(c, game.Event{Kind: EventJoinAck, LobbyCode: code, Payload: JoinAckPayload{Code: code, Success: true}})
	if s, err := g.svc.SessionForLobby(ctx, code); err == nil {
		g.registry.sendTo(c, game.Event{Kind: game.EventSessionUpdate, LobbyCode: code, Payload: game.NewView(s)})
	}
	return nil
}

func (g *Gateway) joined(c *client) (string, error) {
	lobby := g.registry.lobbyOf(c)
	if lobby == "" {
		return "", apperrors.New(apperrors.CodeValidation, "join a lobby first")
	}
	return lobby, nil
}

// disconnected starts the grace period once the user's last connection to
// the lobby is gone.
func (g *Gateway) disconnected(lobby, userID string) {
	if g.presence == nil || g.registry.HasActiveConnection(lobby, userID) {
		return
	}
	g.presence.OnDisconnect(lobby, userID)
}

// sendError reports err to c alone. Uncoded errors are not shown verbatim.
func (g *Gateway) sendError(c *client, err error) {
	p := ErrorPayload{Code: string(apperrors.CodeUnknown), Message: "internal error"}
	var e *apperrors.Error
	if errors.As(err, &e) {
		p = ErrorPayload{Code: string(e.Code), Message: e.Message, UserFacingKey: e.UserFacingKey()}
	}
	g.registry.sendTo(c, game.Event{Kind: EventServerError, Payload: p})
}
