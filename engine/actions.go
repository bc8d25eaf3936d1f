package engine

import "time"

// ApplyMove validates m and applies it to g. An illegal move returns the
// validation error and leaves g untouched.
func (g *GameState) ApplyMove(m Move) error {
	if err := g.ValidateMove(m); err != nil {
		return err
	}

	switch m.Type {
	case MoveRoll:
		g.roll()
	case MoveHold:
		g.Held[m.DiceIndex] = !g.Held[m.DiceIndex]
	case MoveScore:
		g.score(m.Category)
	}
	return nil
}

// roll re-samples every unheld die.
func (g *GameState) roll() {
	for i := range g.Dice {
		if !g.Held[i] {
			g.Dice[i] = g.rollDie()
		}
	}
	g.RollsLeft--
}

// score writes the current dice into the mover's scorecard and ends the turn.
// Before the first roll of a turn (only reachable by the system mover) the
// category is scratched with 0.
func (g *GameState) score(c Category) {
	points := 0
	if g.RollsLeft < MaxRolls {
		points = Score(g.Dice, c)
	}
	g.Players[g.CurrentPlayer].Scorecard.set(c, points)

	if g.allComplete() {
		g.Status = StatusFinished
		g.LastSkipped = nil
		g.TurnDeadline = time.Time{}
		g.resetTurn()
		return
	}
	g.advanceTurn()
}

// EndsTurn reports whether applying m finishes the current turn.
func (m Move) EndsTurn() bool { return m.Type == MoveScore }
