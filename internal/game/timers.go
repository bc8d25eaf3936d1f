// internal/game/timers.go
package game

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/dicehall/engine"
)

// turnTimer is the pending auto-score for one session turn.
type turnTimer struct {
	turn  int
	timer *clock.Timer
}

// timeoutFor returns the turn limit for s, or 0 when turns are untimed.
func (p *Pipeline) timeoutFor(s *engine.GameState) time.Duration {
	switch {
	case s.Rules.TurnTimeoutSec < 0:
		return 0
	case s.Rules.TurnTimeoutSec > 0:
		return time.Duration(s.Rules.TurnTimeoutSec) * time.Second
	default:
		return p.turnTimeout
	}
}

// stampDeadline sets the deadline of a turn that is about to begin.
func (p *Pipeline) stampDeadline(prev, next *engine.GameState) {
	if !turnStarted(prev, next) {
		return
	}
	if d := p.timeoutFor(next); d > 0 {
		next.TurnDeadline = p.clock.Now().Add(d)
	} else {
		next.TurnDeadline = time.Time{}
	}
}

// scheduleTurn arms or clears the session's timer after a commit. A new timer
// replaces the previous one. Assumes the session lock is held by caller.
func (p *Pipeline) scheduleTurn(prev, next *engine.GameState) {
	if next.IsTerminal() {
		p.cancelTurn(next.ID)
		return
	}
	if !turnStarted(prev, next) || next.TurnDeadline.IsZero() {
		return
	}

	id, turn := next.ID, next.Turn
	wait := next.TurnDeadline.Sub(p.clock.Now())
	t := p.clock.AfterFunc(wait, func() { p.expireTurn(id, turn) })

	p.mu.Lock()
	if old := p.timers[id]; old != nil {
		old.timer.Stop()
	}
	p.timers[id] = &turnTimer{turn: turn, timer: t}
	p.mu.Unlock()
}

func (p *Pipeline) cancelTurn(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t := p.timers[sessionID]; t != nil {
		t.timer.Stop()
		delete(p.timers, sessionID)
	}
}

// expireTurn auto-scores for a mover who ran out of time. It submits one
// system-mover Score through the normal commit path and does nothing if the
// turn has already moved on.
func (p *Pipeline) expireTurn(sessionID string, turn int) {
	p.mu.Lock()
	t := p.timers[sessionID]
	if t == nil || t.turn != turn {
		p.mu.Unlock()
		return
	}
	delete(p.timers, sessionID)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
	defer cancel()

	payload := map[string]interface{}{}
	act := action{actor: engine.SystemMoverID, kind: "turn_timeout", payload: payload}
	_, err := p.commit(ctx, sessionID, act, func(s *engine.GameState) (bool, error) {
		if s.Status != engine.StatusPlaying || s.Turn != turn {
			return false, nil
		}
		cur := s.Players[s.CurrentPlayer]
		c := engine.BestAvailableCategory(s.Dice, cur.Scorecard)
		if s.RollsLeft == engine.MaxRolls {
			c = engine.WasteCategory(cur.Scorecard)
		}
		payload["player"] = cur.ID
		payload["category"] = c.String()
		if err := s.ApplyMove(engine.ScoreMove(engine.SystemMoverID, c)); err != nil {
			return false, moveError(err)
		}
		return true, nil
	})
	logger := p.log.WithFields(logrus.Fields{"session": sessionID, "turn": turn})
	if err != nil {
		logger.WithError(err).Error("Turn timeout auto-score failed")
		return
	}
	logger.WithField("category", payload["category"]).Info("Turn timed out, auto-scored")
}

// PendingTurn reports the turn a session's timer is armed for.
func (p *Pipeline) PendingTurn(sessionID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.timers[sessionID]
	if !ok {
		return 0, false
	}
	return t.turn, true
}

// Close stops every pending turn timer.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, t := range p.timers {
		t.timer.Stop()
		delete(p.timers, id)
	}
}
