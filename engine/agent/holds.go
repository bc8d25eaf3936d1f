package agent

import (
	"math"

	engine "github.com/jason-s-yu/dicehall/engine"
)

// candidate is one hold the bot is weighing.
type candidate struct {
	mask  engine.HeldMask
	value float64
	face  uint8 // tie-break: higher wins
}

// DecideHolds returns the dice to keep before the next roll. With no rolls
// left it returns an empty mask since nothing will be rerolled.
//
// Made hands are kept: five of a kind holds everything, four of a kind holds
// the four, and a 3+2 split holds all five while full house is open or just
// the triple otherwise. Anything else holds the dice that maximize the
// expected value of the best open upper-face or straight pattern.
func DecideHolds(d engine.Dice, held engine.HeldMask, rollsLeft uint8, card engine.Scorecard) engine.HeldMask {
	if rollsLeft == 0 {
		return engine.HeldMask{}
	}

	counts := d.Counts()
	face, n := modeFace(counts)
	switch {
	case n == engine.NumDice:
		return engine.HeldMask{true, true, true, true, true}
	case n == 4:
		return holdFace(d, face)
	case engine.IsExactFullHouse(d):
		if !card.IsSet(engine.FullHouse) {
			return engine.HeldMask{true, true, true, true, true}
		}
		return holdFace(d, face)
	}

	best := candidate{value: -1}
	consider := func(c candidate) {
		switch {
		case c.value > best.value:
			best = c
		case c.value == best.value && c.face > best.face:
			best = c
		case c.value == best.value && c.face == best.face && distance(c.mask, held) < distance(best.mask, held):
			best = c
		}
	}

	for f := uint8(engine.MinFace); f <= engine.MaxFace; f++ {
		if counts[f] == 0 {
			continue
		}
		consider(candidate{
			mask:  holdFace(d, f),
			value: kindValue(f, counts[f], rollsLeft, card),
			face:  f,
		})
	}
	for _, t := range straightTargets {
		if card.IsSet(t.category) {
			continue
		}
		mask, missing := holdRun(d, t.faces)
		consider(candidate{
			mask:  mask,
			value: t.points * completeChance(missing, engine.NumDice-len(t.faces)+missing, rollsLeft),
			face:  t.top(),
		})
	}

	if best.value <= 0 {
		return holdHigh(d)
	}
	return best.mask
}

// kindValue estimates what keeping every die showing face f is worth.
// Free dice are assumed to be rerolled until they match.
func kindValue(f, have uint8, rollsLeft uint8, card engine.Scorecard) float64 {
	free := float64(engine.NumDice - int(have))
	hit := 1 - math.Pow(faceMiss, float64(rollsLeft))
	expected := float64(have) + free*hit

	var v float64
	if !card.IsSet(engine.UpperCategoryFor(f)) {
		v += float64(f) * expected
	}
	if !card.IsSet(engine.Yahtzee) {
		v += engine.YahtzeePoints * math.Pow(hit, free)
	}
	if expected >= 3 && !card.IsSet(engine.ThreeOfKind) {
		// Sum of the matched dice; the rest average 3.5.
		v += (float64(f)*3 + 3.5*2) * 0.5
	}
	return v
}

// completeChance approximates the probability of filling missing faces using
// free dice over the remaining rolls.
func completeChance(missing, free int, rollsLeft uint8) float64 {
	if missing == 0 {
		return 1
	}
	if free < missing {
		return 0
	}
	// Chance a specific face shows on at least one of the spare dice.
	perFace := 1 - math.Pow(faceMiss, float64(free-missing+1))
	perRoll := math.Pow(perFace, float64(missing))
	return 1 - math.Pow(1-perRoll, float64(rollsLeft))
}

// modeFace returns the most common face and its count. Ties favor the higher face.
func modeFace(counts [engine.MaxFace + 1]uint8) (uint8, uint8) {
	var face, n uint8
	for f := uint8(engine.MinFace); f <= engine.MaxFace; f++ {
		if counts[f] >= n {
			face, n = f, counts[f]
		}
	}
	return face, n
}

func holdFace(d engine.Dice, f uint8) engine.HeldMask {
	var m engine.HeldMask
	for i, v := range d {
		m[i] = v == f
	}
	return m
}

// holdRun keeps one die for each face of the run that is present and reports
// how many faces are still missing.
func holdRun(d engine.Dice, faces []uint8) (engine.HeldMask, int) {
	var m engine.HeldMask
	missing := 0
	for _, f := range faces {
		found := false
		for i, v := range d {
			if v == f && !m[i] {
				m[i] = true
				found = true
				break
			}
		}
		if !found {
			missing++
		}
	}
	return m, missing
}

// holdHigh keeps fours and above. Used when no pattern has any value left.
func holdHigh(d engine.Dice) engine.HeldMask {
	var m engine.HeldMask
	for i, v := range d {
		m[i] = v >= 4
	}
	return m
}

func distance(a, b engine.HeldMask) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// Changed returns the indices whose held flag differs between from and to,
// in ascending order. Each one is a single Hold toggle.
func Changed(from, to engine.HeldMask) []int {
	var out []int
	for i := range from {
		if from[i] != to[i] {
			out = append(out, i)
		}
	}
	return out
}
