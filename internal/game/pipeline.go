// internal/game/pipeline.go
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/dicehall/engine"
	"github.com/jason-s-yu/dicehall/internal/cache"
	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
)

// historianTimeout bounds a single async historian write.
const historianTimeout = 2 * time.Second

// expiryTimeout bounds the load/save of a timeout auto-score.
const expiryTimeout = 10 * time.Second

// Pipeline is the single path by which session state changes: lock, load,
// apply to a copy, save, then broadcast. Human moves, bot moves, turn
// timeouts and connection changes all go through Pipeline.commit.
type Pipeline struct {
	store       Store
	broadcaster Broadcaster
	historian   Historian
	clock       clock.Clock
	log         logrus.FieldLogger
	locks       *sessionLocks

	turnTimeout time.Duration // Default per-turn limit; 0 disables timers.

	mu        sync.Mutex
	timers    map[string]*turnTimer
	actionSeq map[string]int
	turnHooks []func(*engine.GameState)
}

// action describes a committed transition for logs and the historian.
type action struct {
	actor   string
	kind    string
	payload map[string]interface{}
}

// mutation edits a private copy of the session. It reports whether anything
// changed; an unchanged result is neither saved nor broadcast.
type mutation func(s *engine.GameState) (bool, error)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHistorian records every committed transition.
func WithHistorian(h Historian) Option { return func(p *Pipeline) { p.historian = h } }

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option { return func(p *Pipeline) { p.clock = c } }

// WithTurnTimeout sets the default turn limit used when a session's rules do
// not set one.
func WithTurnTimeout(d time.Duration) Option { return func(p *Pipeline) { p.turnTimeout = d } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(p *Pipeline) { p.log = l } }

// NewPipeline returns a pipeline writing to store and announcing through b.
func NewPipeline(store Store, b Broadcaster, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		broadcaster: b,
		clock:       clock.New(),
		log:         logrus.StandardLogger(),
		locks:       newSessionLocks(),
		timers:      make(map[string]*turnTimer),
		actionSeq:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnTurnStart registers fn to run after a committed transition hands the turn
// to a new mover. fn receives a private copy and runs on the committing
// goroutine after the lock is released.
func (p *Pipeline) OnTurnStart(fn func(*engine.GameState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turnHooks = append(p.turnHooks, fn)
}

// Load returns the persisted session without taking the lock.
func (p *Pipeline) Load(ctx context.Context, sessionID string) (*engine.GameState, error) {
	return p.store.LoadSession(ctx, sessionID)
}

// Create saves a brand new session.
func (p *Pipeline) Create(ctx context.Context, s *engine.GameState) error {
	unlock := p.locks.Lock(s.ID)
	defer unlock()
	if err := p.store.SaveSession(ctx, s); err != nil {
		return persistenceError(err)
	}
	p.log.WithFields(logrus.Fields{"session": s.ID, "lobby": s.LobbyCode}).Info("Session created")
	return nil
}

// Submit validates and applies one move. Validation failures reach only the
// caller; nothing is saved or broadcast.
func (p *Pipeline) Submit(ctx context.Context, sessionID string, m engine.Move) (*engine.GameState, error) {
	act := action{actor: m.MoverID, kind: m.Type.String(), payload: movePayload(m)}
	return p.commit(ctx, sessionID, act, func(s *engine.GameState) (bool, error) {
		if s.IsTerminal() {
			return false, apperrors.New(apperrors.CodeSessionClosed, "session is closed")
		}
		if err := s.ApplyMove(m); err != nil {
			return false, moveError(err)
		}
		return true, nil
	})
}

// AddPlayer seats p in a waiting session. Seating someone already seated is a
// no-op.
func (p *Pipeline) AddPlayer(ctx context.Context, sessionID string, pl engine.Player) (*engine.GameState, error) {
	act := action{actor: pl.ID, kind: "player_add", payload: map[string]interface{}{"name": pl.Name, "isBot": pl.IsBot}}
	return p.commit(ctx, sessionID, act, func(s *engine.GameState) (bool, error) {
		if s.PlayerIndex(pl.ID) >= 0 {
			return false, nil
		}
		if err := s.AddPlayer(pl); err != nil {
			switch {
			case errors.Is(err, engine.ErrNotWaiting):
				return false, apperrors.Conflict("session has already started", err)
			case errors.Is(err, engine.ErrTooManyPlayers):
				return false, apperrors.Conflict("lobby is full", err)
			}
			return false, apperrors.Wrap(apperrors.CodeValidation, "cannot seat player", err)
		}
		return true, nil
	})
}

// Start moves a waiting session into play.
func (p *Pipeline) Start(ctx context.Context, sessionID string) (*engine.GameState, error) {
	return p.commit(ctx, sessionID, action{kind: "game_start"}, func(s *engine.GameState) (bool, error) {
		if err := s.Start(); err != nil {
			if errors.Is(err, engine.ErrNotWaiting) {
				return false, apperrors.Conflict("session has already started", err)
			}
			return false, apperrors.Wrap(apperrors.CodeValidation, "cannot start session", err)
		}
		return true, nil
	})
}

// Abandon force-ends the session. It is the only transition that ignores
// move validation. Abandoning a terminal session is a no-op.
func (p *Pipeline) Abandon(ctx context.Context, sessionID, actor string) (*engine.GameState, error) {
	return p.commit(ctx, sessionID, action{actor: actor, kind: "game_abandon"}, func(s *engine.GameState) (bool, error) {
		return s.Abandon(), nil
	})
}

// SetConnStatus records a player's connection status. Marking the current
// mover inactive also advances the turn past them, in the same commit. It
// returns the ids skipped by that advance. Terminal sessions are left alone.
func (p *Pipeline) SetConnStatus(ctx context.Context, sessionID, userID string, status engine.ConnStatus) (*engine.GameState, []string, error) {
	var skipped []string
	payload := map[string]interface{}{}
	act := action{actor: userID, kind: "player_" + status.String(), payload: payload}
	s, err := p.commit(ctx, sessionID, act, func(s *engine.GameState) (bool, error) {
		if s.IsTerminal() {
			return false, nil
		}
		changed, err := s.SetConnStatus(userID, status)
		if err != nil {
			return false, apperrors.Wrap(apperrors.CodeNotFound, "player is not seated", err)
		}
		if status == engine.ConnInactive {
			var moved bool
			skipped, moved = s.AdvancePastInactive()
			changed = changed || moved
			if moved {
				payload["skipped"] = skipped
			}
		}
		return changed, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return s, skipped, nil
}

// commit runs fn under the session lock and, if it changed anything, saves
// and publishes the result.
func (p *Pipeline) commit(ctx context.Context, sessionID string, act action, fn mutation) (*engine.GameState, error) {
	unlock := p.locks.Lock(sessionID)
	prev, next, err := p.apply(ctx, sessionID, fn)
	if err != nil {
		unlock()
		p.log.WithFields(logrus.Fields{"session": sessionID, "user": act.actor, "move": act.kind}).
			WithError(err).Debug("Transition rejected")
		return nil, err
	}
	if next == nil {
		unlock()
		return prev, nil
	}
	p.scheduleTurn(prev, next)
	p.broadcast(prev, next)
	p.record(next, act)
	unlock()

	p.announce(prev, next, act)
	return next.Clone(), nil
}

// apply loads, mutates a copy and saves it. It returns a nil next when fn
// made no change.
func (p *Pipeline) apply(ctx context.Context, sessionID string, fn mutation) (prev, next *engine.GameState, err error) {
	prev, err = p.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	next = prev.Clone()
	changed, err := fn(next)
	if err != nil {
		return nil, nil, err
	}
	if !changed {
		return prev, nil, nil
	}
	p.stampDeadline(prev, next)
	if err := p.store.SaveSession(ctx, next); err != nil {
		return nil, nil, persistenceError(err)
	}
	return prev, next, nil
}

// broadcast hands the transition's events to the broadcaster. It runs under
// the session lock so deliveries follow commit order, and never blocks on
// slow receivers.
func (p *Pipeline) broadcast(prev, next *engine.GameState) {
	room, global := sessionEvents(prev, next)
	for _, ev := range room {
		p.broadcaster.Broadcast(next.LobbyCode, ev)
	}
	for _, ev := range global {
		p.broadcaster.BroadcastAll(ev)
	}
}

// announce logs a committed transition and fires turn hooks. It runs after the
// lock is released.
func (p *Pipeline) announce(prev, next *engine.GameState, act action) {
	logger := p.log.WithFields(logrus.Fields{"session": next.ID, "lobby": next.LobbyCode, "move": act.kind})
	if act.actor != "" {
		logger = logger.WithField("user", act.actor)
	}
	logger.WithFields(logrus.Fields{"status": next.Status.String(), "turn": next.Turn}).Debug("Transition committed")

	if turnStarted(prev, next) {
		p.mu.Lock()
		hooks := append([]func(*engine.GameState){}, p.turnHooks...)
		p.mu.Unlock()
		for _, fn := range hooks {
			fn(next.Clone())
		}
	}
}

// record numbers the transition and sends it to the historian asynchronously.
func (p *Pipeline) record(s *engine.GameState, act action) {
	p.mu.Lock()
	p.actionSeq[s.ID]++
	idx := p.actionSeq[s.ID]
	if s.IsTerminal() {
		delete(p.actionSeq, s.ID)
	}
	p.mu.Unlock()

	if p.historian == nil {
		return
	}
	rec := cache.GameActionRecord{
		GameID:      s.ID,
		LobbyCode:   s.LobbyCode,
		ActionIndex: idx,
		ActorUserID: act.actor,
		ActionType:  act.kind,
		Payload:     act.payload,
		Timestamp:   p.clock.Now().UnixMilli(),
	}
	go func(rec cache.GameActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), historianTimeout)
		defer cancel()
		if err := p.historian.PublishGameAction(ctx, rec); err != nil {
			p.log.WithFields(logrus.Fields{"session": rec.GameID, "action": rec.ActionIndex}).
				WithError(err).Warn("Failed publishing action to historian")
		}
	}(rec)
}

// turnStarted reports whether the transition handed the turn to a mover.
func turnStarted(prev, next *engine.GameState) bool {
	if next.Status != engine.StatusPlaying {
		return false
	}
	return prev.Status != engine.StatusPlaying || prev.Turn != next.Turn
}

func movePayload(m engine.Move) map[string]interface{} {
	switch m.Type {
	case engine.MoveHold:
		return map[string]interface{}{"diceIndex": m.DiceIndex}
	case engine.MoveScore:
		return map[string]interface{}{"category": m.Category.String()}
	}
	return nil
}

// moveError maps an engine validation reason to a coded error. Reasons that
// mean another move won the race are conflicts.
func moveError(err error) error {
	switch {
	case errors.Is(err, engine.ErrWrongMover),
		errors.Is(err, engine.ErrCategoryFilled),
		errors.Is(err, engine.ErrNotPlaying):
		return apperrors.Conflict("stale move", err)
	}
	return apperrors.Wrap(apperrors.CodeValidation, "illegal move", err)
}

// persistenceError keeps coded store errors and wraps anything else.
func persistenceError(err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Wrap(apperrors.CodePersistence, "save session", err)
}
