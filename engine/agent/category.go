package agent

import engine "github.com/jason-s-yu/dicehall/engine"

// SelectCategory picks the category the bot scores. The result is always one
// of the open categories on card; a complete card returns Chance and the
// engine rejects the move.
//
// Priority:
//  1. An exact yahtzee, large straight, small straight or full house goes to
//     its category. A small straight yields to an upper category whose face
//     count closes the bonus gap while the bonus is still reachable.
//  2. With few categories left, take the best positive score, preferring the
//     upper section on ties.
//  3. Otherwise the highest scoring open category.
//  4. If nothing scores, the waste order.
func SelectCategory(d engine.Dice, card engine.Scorecard) engine.Category {
	if engine.IsComplete(card) {
		return engine.Chance
	}

	if c, ok := madeCategory(d, card); ok {
		return c
	}

	if card.OpenCount() <= EndgameOpen {
		if c, ok := bestPositive(d, card); ok {
			return c
		}
		return engine.WasteCategory(card)
	}

	return engine.BestAvailableCategory(d, card)
}

// madeCategory returns the fixed-value category the dice complete, if open.
func madeCategory(d engine.Dice, card engine.Scorecard) (engine.Category, bool) {
	open := func(c engine.Category) bool { return !card.IsSet(c) }

	switch {
	case engine.IsYahtzee(d) && open(engine.Yahtzee):
		return engine.Yahtzee, true
	case engine.IsLargeStraight(d) && open(engine.LargeStraight):
		return engine.LargeStraight, true
	case engine.IsSmallStraight(d) && open(engine.SmallStraight):
		if c, ok := bonusCloser(d, card); ok {
			return c, true
		}
		return engine.SmallStraight, true
	case engine.IsFullHouse(d) && open(engine.FullHouse):
		return engine.FullHouse, true
	}
	return 0, false
}

// bonusCloser returns an open upper category that, scored with these dice,
// brings the upper sum to the bonus threshold. Higher faces are tried first.
func bonusCloser(d engine.Dice, card engine.Scorecard) (engine.Category, bool) {
	need := BonusGap(card)
	if need <= 0 || need > UpperPotential(card) {
		return 0, false
	}
	for i := len(engine.UpperCategories) - 1; i >= 0; i-- {
		c := engine.UpperCategories[i]
		if card.IsSet(c) {
			continue
		}
		if engine.Score(d, c) >= need {
			return c, true
		}
	}
	return 0, false
}

// BonusGap returns how many upper points are still needed for the bonus,
// or 0 once it is secured.
func BonusGap(card engine.Scorecard) int {
	gap := engine.UpperBonusThreshold - engine.UpperSum(card)
	if gap < 0 {
		return 0
	}
	return gap
}

// UpperPotential is the most the open upper categories could still add.
func UpperPotential(card engine.Scorecard) int {
	total := 0
	for _, c := range engine.UpperCategories {
		if !card.IsSet(c) {
			total += int(c.Face()) * engine.NumDice
		}
	}
	return total
}

// bestPositive returns the open category with the highest non-zero score.
// Open lists upper categories first, so ties keep the upper one.
func bestPositive(d engine.Dice, card engine.Scorecard) (engine.Category, bool) {
	best, bestScore := engine.Category(0), 0
	for _, c := range card.Open() {
		if pts := engine.Score(d, c); pts > bestScore {
			best, bestScore = c, pts
		}
	}
	return best, bestScore > 0
}

// ShouldStop reports whether the bot keeps the dice as they are instead of
// rolling again.
func ShouldStop(d engine.Dice) bool {
	switch {
	case engine.IsYahtzee(d), engine.IsLargeStraight(d), engine.IsExactFullHouse(d):
		return true
	}
	counts := d.Counts()
	if _, n := modeFace(counts); n == 4 && d.Sum() >= StopFourKindSum {
		return true
	}
	return false
}
