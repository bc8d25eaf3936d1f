package engine

import "errors"

// Validation reasons. ValidateMove wraps nothing; callers compare with errors.Is.
var (
	ErrNotPlaying         = errors.New("session is not in play")
	ErrWrongMover         = errors.New("not your turn")
	ErrRollExhausted      = errors.New("no rolls left this turn")
	ErrHoldBeforeRoll     = errors.New("cannot hold before the first roll")
	ErrHoldAfterFinalRoll = errors.New("cannot hold after the final roll")
	ErrInvalidDieIndex    = errors.New("die index out of range")
	ErrCategoryFilled     = errors.New("category already scored")
	ErrInvalidCategory    = errors.New("unknown category")
	ErrScoreBeforeRoll    = errors.New("cannot score before rolling")
	ErrSystemMoveType     = errors.New("system mover may only score")
	ErrUnknownMoveType    = errors.New("unknown move type")
)

// ValidateMove reports why m cannot be applied to g, or nil if it can.
// It never mutates g.
func (g *GameState) ValidateMove(m Move) error {
	if g.Status != StatusPlaying {
		return ErrNotPlaying
	}
	if len(g.Players) == 0 {
		return ErrNotPlaying
	}

	system := m.MoverID == SystemMoverID
	if system {
		if m.Type != MoveScore {
			return ErrSystemMoveType
		}
	} else if m.MoverID != g.CurrentPlayerID() {
		return ErrWrongMover
	}

	switch m.Type {
	case MoveRoll:
		if g.RollsLeft == 0 {
			return ErrRollExhausted
		}
	case MoveHold:
		if g.RollsLeft == MaxRolls {
			return ErrHoldBeforeRoll
		}
		if g.RollsLeft == 0 {
			return ErrHoldAfterFinalRoll
		}
		if m.DiceIndex < 0 || m.DiceIndex >= NumDice {
			return ErrInvalidDieIndex
		}
	case MoveScore:
		if !m.Category.Valid() {
			return ErrInvalidCategory
		}
		if g.Players[g.CurrentPlayer].Scorecard.IsSet(m.Category) {
			return ErrCategoryFilled
		}
		if !system && g.RollsLeft == MaxRolls {
			return ErrScoreBeforeRoll
		}
	default:
		return ErrUnknownMoveType
	}
	return nil
}

// LegalMoves lists every move the current player may make. Hold moves are
// listed once per die index.
func (g *GameState) LegalMoves() []Move {
	mover := g.CurrentPlayerID()
	if mover == "" {
		return nil
	}
	var moves []Move
	candidates := []Move{RollMove(mover)}
	for i := 0; i < NumDice; i++ {
		candidates = append(candidates, HoldMove(mover, i))
	}
	for c := Category(0); c < NumCategories; c++ {
		candidates = append(candidates, ScoreMove(mover, c))
	}
	for _, m := range candidates {
		if g.ValidateMove(m) == nil {
			moves = append(moves, m)
		}
	}
	return moves
}
