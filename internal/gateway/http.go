// internal/gateway/http.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/dicehall/engine"
	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
	"github.com/jason-s-yu/dicehall/internal/game"
	"github.com/jason-s-yu/dicehall/internal/models"
)

// maxBody caps request bodies.
const maxBody = 64 << 10

// Router builds the HTTP surface.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(g.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/auth/guest", g.createGuest)
	r.Get("/ws", g.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(g.auth.Middleware)

		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			id, _ := IdentityFrom(r.Context())
			writeJSON(w, http.StatusOK, id)
		})

		r.Route("/lobbies", func(r chi.Router) {
			r.Post("/", g.createLobby)
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", g.getLobby)
				r.Post("/players", g.joinLobby)
				r.Delete("/players/{userID}", g.removePlayer)
				r.Post("/start", g.startLobby)
				r.Post("/bots", g.addBot)
				r.Post("/bots/{botID}/turn", g.runBotTurn)
			})
		})

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", g.getSession)
			r.Delete("/", g.abandonSession)
			r.Post("/moves", g.submitMove)
			r.Get("/actions", g.sessionActions)
		})
	})
	return r
}

type createGuestRequest struct {
	Name string `json:"name"`
}

type createGuestResponse struct {
	Identity
	Token string `json:"token"`
}

func (g *Gateway) createGuest(w http.ResponseWriter, r *http.Request) {
	var req createGuestRequest
	if err := decodeBody(r, &req, true); err != nil {
		g.writeError(w, r, err)
		return
	}
	id, tok, err := g.auth.IssueGuest(req.Name)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	http.SetCookie(w, GuestCookieFor(tok))
	writeJSON(w, http.StatusCreated, createGuestResponse{Identity: id, Token: tok})
}

type createLobbyRequest struct {
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	HouseRules *models.HouseRules `json:"houseRules"`
}

type lobbyResponse struct {
	Lobby   models.Lobby     `json:"lobby"`
	Session game.SessionView `json:"session"`
}

func (g *Gateway) createLobby(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req createLobbyRequest
	if err := decodeBody(r, &req, true); err != nil {
		g.writeError(w, r, err)
		return
	}
	rules := models.DefaultHouseRules()
	if req.HouseRules != nil {
		rules = *req.HouseRules
	}
	lobby, s, err := g.svc.CreateLobby(r.Context(), player(id, req.Name), req.Type, rules)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lobbyResponse{Lobby: lobby, Session: game.NewView(s)})
}

func (g *Gateway) getLobby(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	lobby, err := g.svc.Lobby(r.Context(), code)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	s, err := g.svc.Session(r.Context(), lobby.SessionID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lobbyResponse{Lobby: lobby, Session: game.NewView(s)})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (g *Gateway) joinLobby(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req nameRequest
	if err := decodeBody(r, &req, true); err != nil {
		g.writeError(w, r, err)
		return
	}
	s, err := g.svc.JoinLobby(r.Context(), chi.URLParam(r, "code"), player(id, req.Name))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewView(s))
}

func (g *Gateway) removePlayer(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	s, err := g.svc.RemovePlayer(r.Context(), chi.URLParam(r, "code"), id.UserID, chi.URLParam(r, "userID"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewView(s))
}

func (g *Gateway) startLobby(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	s, err := g.svc.StartLobby(r.Context(), chi.URLParam(r, "code"), id.UserID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewView(s))
}

type addBotResponse struct {
	Bot     engine.Player    `json:"bot"`
	Session game.SessionView `json:"session"`
}

func (g *Gateway) addBot(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req nameRequest
	if err := decodeBody(r, &req, true); err != nil {
		g.writeError(w, r, err)
		return
	}
	s, bot, err := g.svc.AddBot(r.Context(), chi.URLParam(r, "code"), id.UserID, req.Name)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, addBotResponse{Bot: bot, Session: game.NewView(s)})
}

func (g *Gateway) runBotTurn(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	code := chi.URLParam(r, "code")
	if err := g.requireMember(r.Context(), code, id.UserID); err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := g.svc.RunBotTurn(r.Context(), code, chi.URLParam(r, "botID")); err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (g *Gateway) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := g.svc.Session(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewView(s))
}

func (g *Gateway) abandonSession(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	s, err := g.svc.Abandon(r.Context(), chi.URLParam(r, "sessionID"), id.UserID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewView(s))
}

type submitMoveRequest struct {
	Move *game.MoveRequest `json:"move"`
}

func (g *Gateway) submitMove(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var req submitMoveRequest
	if err := decodeBody(r, &req, false); err != nil {
		g.writeError(w, r, err)
		return
	}
	if req.Move == nil {
		g.writeError(w, r, apperrors.New(apperrors.CodeValidation, "move is required"))
		return
	}
	s, err := g.svc.SubmitMove(r.Context(), chi.URLParam(r, "sessionID"), id.UserID, *req.Move)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game.NewView(s))
}

func (g *Gateway) sessionActions(w http.ResponseWriter, r *http.Request) {
	if g.actions == nil {
		g.writeError(w, r, apperrors.New(apperrors.CodeNotFound, "action history is not enabled"))
		return
	}
	id, _ := IdentityFrom(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	s, err := g.svc.Session(r.Context(), sessionID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	if err := g.requireMember(r.Context(), s.LobbyCode, id.UserID); err != nil {
		g.writeError(w, r, err)
		return
	}
	recs, err := g.actions.SessionActions(r.Context(), sessionID)
	if err != nil {
		g.writeError(w, r, apperrors.Wrap(apperrors.CodePersistence, "read action history", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "actions": recs})
}

// requireMember allows the lobby host and the lobby's active players.
func (g *Gateway) requireMember(ctx context.Context, code, userID string) error {
	lobby, err := g.svc.Lobby(ctx, code)
	if err != nil {
		return err
	}
	if lobby.HostUserID == userID {
		return nil
	}
	ok, err := g.svc.IsActivePlayer(ctx, code, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.CodeLobbyAccessDenied, "you are not a player in this lobby")
	}
	return nil
}

// requestLogger logs each request through logrus.
func (g *Gateway) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := g.clock.Now()
		next.ServeHTTP(ww, r)
		g.log.WithFields(logrus.Fields{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  g.clock.Since(start).Round(time.Microsecond),
			"requestId": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

func player(id Identity, name string) engine.Player {
	if name == "" {
		name = id.Name
	}
	return engine.Player{ID: id.UserID, Name: name}
}

// decodeBody reads a JSON body. With optional set an empty body is fine.
func decodeBody(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeValidation, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	UserFacingKey string `json:"userFacingKey,omitempty"`
}

func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, g.log, err)
}

// writeError maps err to its HTTP status. Uncoded errors become 500s and are
// not shown verbatim.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	e, ok := apperrors.As(err)
	if !ok {
		log.WithError(err).WithField("path", r.URL.Path).Error("Unhandled error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: string(apperrors.CodeUnknown)})
		return
	}
	status := e.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: e.Message, Code: string(e.Code), UserFacingKey: e.UserFacingKey()})
}
