// internal/bot/observer.go
package bot

import (
	"github.com/sirupsen/logrus"

	engine "github.com/jason-s-yu/dicehall/engine"
)

// Observer is told about each step of a bot turn. Callbacks must not block
// and cannot influence the turn.
type Observer interface {
	Thinking(sessionID, botID string, turn int)
	Rolled(sessionID, botID string, dice engine.Dice, rollsLeft uint8)
	Held(sessionID, botID string, held engine.HeldMask)
	Scored(sessionID, botID string, c engine.Category, points int)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) Thinking(string, string, int) {}
func (NopObserver) Rolled(string, string, engine.Dice, uint8) {}
func (NopObserver) Held(string, string, engine.HeldMask) {}
func (NopObserver) Scored(string, string, engine.Category, int) {}

// LogObserver writes each step at debug level.
type LogObserver struct {
	Log logrus.FieldLogger
}

func (o LogObserver) entry(sessionID, botID string) *logrus.Entry {
	return o.Log.WithFields(logrus.Fields{"session": sessionID, "bot": botID})
}

func (o LogObserver) Thinking(sessionID, botID string, turn int) {
	o.entry(sessionID, botID).WithField("turn", turn).Debug("Bot thinking")
}

func (o LogObserver) Rolled(sessionID, botID string, dice engine.Dice, rollsLeft uint8) {
	o.entry(sessionID, botID).WithFields(logrus.Fields{"dice": dice, "rollsLeft": rollsLeft}).Debug("Bot rolled")
}

func (o LogObserver) Held(sessionID, botID string, held engine.HeldMask) {
	o.entry(sessionID, botID).WithField("held", held.Indices()).Debug("Bot held dice")
}

func (o LogObserver) Scored(sessionID, botID string, c engine.Category, points int) {
	o.entry(sessionID, botID).WithFields(logrus.Fields{"category": c.String(), "points": points}).Debug("Bot scored")
}
