// Package agent implements the heuristics bots use to play a turn: which dice
// to keep, when to stop rolling, and which category to score.
//
// Every function is pure and reads only the values passed in. The turn loop
// that submits the resulting moves lives in internal/bot.
package agent

import engine "github.com/jason-s-yu/dicehall/engine"

const (
	// StopFourKindSum is the minimum dice sum at which a four-of-a-kind is
	// kept rather than rerolled for a yahtzee.
	StopFourKindSum = 24

	// EndgameOpen is the number of open categories at or below which the bot
	// stops gambling on combinations.
	EndgameOpen = 3

	// faceMiss is the chance a single die does not show a given face.
	faceMiss = 5.0 / 6.0
)

// straightTarget is a run of faces the bot can chase, with the category it
// completes.
type straightTarget struct {
	faces    []uint8
	category engine.Category
	points   float64
}

var straightTargets = []straightTarget{
	{[]uint8{1, 2, 3, 4, 5}, engine.LargeStraight, engine.LargeStraightPoints},
	{[]uint8{2, 3, 4, 5, 6}, engine.LargeStraight, engine.LargeStraightPoints},
	{[]uint8{1, 2, 3, 4}, engine.SmallStraight, engine.SmallStraightPoints},
	{[]uint8{2, 3, 4, 5}, engine.SmallStraight, engine.SmallStraightPoints},
	{[]uint8{3, 4, 5, 6}, engine.SmallStraight, engine.SmallStraightPoints},
}

// top returns the highest face in the run.
func (t straightTarget) top() uint8 { return t.faces[len(t.faces)-1] }
