// internal/bot/executor.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/dicehall/engine"
	"github.com/jason-s-yu/dicehall/engine/agent"
)

// Pipeline is the subset of the session pipeline a bot needs. Every bot move
// goes through Submit like any human move.
type Pipeline interface {
	Load(ctx context.Context, sessionID string) (*engine.GameState, error)
	Submit(ctx context.Context, sessionID string, m engine.Move) (*engine.GameState, error)
}

var (
	// ErrSessionClosed means the session left play while the bot was moving.
	ErrSessionClosed = errors.New("session is no longer in play")
	// ErrNotOnTurn means someone else holds the turn.
	ErrNotOnTurn = errors.New("bot is not the current mover")
)

// Executor plays bot turns one move at a time.
type Executor struct {
	pipe  Pipeline
	obs   Observer
	clock clock.Clock
	pace  time.Duration
	log   logrus.FieldLogger
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver receives each step of every turn.
func WithObserver(o Observer) Option { return func(e *Executor) { e.obs = o } }

// WithClock replaces the wall clock used for pacing.
func WithClock(c clock.Clock) Option { return func(e *Executor) { e.clock = c } }

// WithPace sets the pause before each roll and the final score.
func WithPace(d time.Duration) Option { return func(e *Executor) { e.pace = d } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(e *Executor) { e.log = l } }

// NewExecutor returns an executor submitting through p.
func NewExecutor(p Pipeline, opts ...Option) *Executor {
	e := &Executor{
		pipe:  p,
		obs:   NopObserver{},
		clock: clock.New(),
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunTurn plays botID's current turn to its single Score. It returns nil if
// the session leaves play or the turn moves on while the bot is thinking, and
// an error if a move is rejected. Rejected moves are not retried.
func (e *Executor) RunTurn(ctx context.Context, sessionID, botID string) error {
	logger := e.log.WithFields(logrus.Fields{"session": sessionID, "bot": botID})

	g, err := e.current(ctx, sessionID, botID, 0)
	if err != nil {
		return e.abort(logger, err)
	}
	turn := g.Turn
	e.obs.Thinking(sessionID, botID, turn)

	for {
		if g.RollsLeft == engine.MaxRolls {
			if g, err = e.roll(ctx, sessionID, botID, turn); err != nil {
				return e.abort(logger, err)
			}
			continue
		}
		if g.RollsLeft == 0 || agent.ShouldStop(g.Dice) {
			break
		}

		p := g.Player(botID)
		want := agent.DecideHolds(g.Dice, g.Held, g.RollsLeft, p.Scorecard)
		for _, idx := range agent.Changed(g.Held, want) {
			if g, err = e.step(ctx, sessionID, botID, turn, engine.HoldMove(botID, idx)); err != nil {
				return e.abort(logger, err)
			}
		}
		e.obs.Held(sessionID, botID, g.Held)

		if g, err = e.roll(ctx, sessionID, botID, turn); err != nil {
			return e.abort(logger, err)
		}
	}

	if err := e.pause(ctx); err != nil {
		return err
	}
	card := g.Player(botID).Scorecard
	c := agent.SelectCategory(g.Dice, card)
	points := engine.Score(g.Dice, c)
	if _, err := e.step(ctx, sessionID, botID, turn, engine.ScoreMove(botID, c)); err != nil {
		return e.abort(logger, err)
	}
	e.obs.Scored(sessionID, botID, c, points)
	logger.WithFields(logrus.Fields{"turn": turn, "category": c.String(), "points": points}).Info("Bot turn complete")
	return nil
}

func (e *Executor) roll(ctx context.Context, sessionID, botID string, turn int) (*engine.GameState, error) {
	if err := e.pause(ctx); err != nil {
		return nil, err
	}
	g, err := e.step(ctx, sessionID, botID, turn, engine.RollMove(botID))
	if err != nil {
		return nil, err
	}
	e.obs.Rolled(sessionID, botID, g.Dice, g.RollsLeft)
	return g, nil
}

// step re-checks the session and submits one move.
func (e *Executor) step(ctx context.Context, sessionID, botID string, turn int, m engine.Move) (*engine.GameState, error) {
	if _, err := e.current(ctx, sessionID, botID, turn); err != nil {
		return nil, err
	}
	g, err := e.pipe.Submit(ctx, sessionID, m)
	if err != nil {
		return nil, fmt.Errorf("bot %s rejected: %w", m, err)
	}
	return g, nil
}

// current loads the session and confirms the bot still holds turn. A zero
// turn accepts whatever turn is in progress.
func (e *Executor) current(ctx context.Context, sessionID, botID string, turn int) (*engine.GameState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := e.pipe.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if g.Status != engine.StatusPlaying {
		return nil, ErrSessionClosed
	}
	if g.CurrentPlayerID() != botID || (turn != 0 && g.Turn != turn) {
		return nil, ErrNotOnTurn
	}
	p := g.Player(botID)
	if p == nil || !p.IsBot {
		return nil, ErrNotOnTurn
	}
	return g, nil
}

// pause waits one pacing interval or until ctx is done.
func (e *Executor) pause(ctx context.Context) error {
	if e.pace <= 0 {
		return ctx.Err()
	}
	t := e.clock.Timer(e.pace)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// abort turns a lost turn into a clean stop and passes real failures on.
func (e *Executor) abort(logger *logrus.Entry, err error) error {
	if errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrNotOnTurn) {
		logger.WithError(err).Info("Bot turn stopped")
		return nil
	}
	return err
}
