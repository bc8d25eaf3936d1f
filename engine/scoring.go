package engine

const (
	UpperBonusThreshold = 63
	UpperBonusPoints    = 35

	FullHousePoints     = 25
	SmallStraightPoints = 30
	LargeStraightPoints = 40
	YahtzeePoints       = 50
)

// WasteOrder is the category preference used when every open category would
// score 0: cheap upper slots first, then the least valuable combinations.
var WasteOrder = [NumCategories]Category{
	Ones, Twos, Threes, Fours, Fives, Sixes,
	FourOfKind, ThreeOfKind, FullHouse, SmallStraight, LargeStraight, Yahtzee, Chance,
}

// smallStraightMasks are the face bitmasks (bit f = face f) of the three
// four-long runs.
var smallStraightMasks = [3]uint8{
	1<<1 | 1<<2 | 1<<3 | 1<<4,
	1<<2 | 1<<3 | 1<<4 | 1<<5,
	1<<3 | 1<<4 | 1<<5 | 1<<6,
}

// faceMask returns a bitmask with bit f set for every face present.
func faceMask(d Dice) uint8 {
	var m uint8
	for _, f := range d {
		if f >= MinFace && f <= MaxFace {
			m |= 1 << f
		}
	}
	return m
}

// maxCount returns the highest number of dice sharing one face.
func maxCount(counts [MaxFace + 1]uint8) uint8 {
	var best uint8
	for f := MinFace; f <= MaxFace; f++ {
		if counts[f] > best {
			best = counts[f]
		}
	}
	return best
}

// IsFullHouse reports a 3+2 split or five of a kind.
func IsFullHouse(d Dice) bool {
	counts := d.Counts()
	var three, two bool
	for f := MinFace; f <= MaxFace; f++ {
		switch counts[f] {
		case 5:
			return true
		case 3:
			three = true
		case 2:
			two = true
		}
	}
	return three && two
}

// IsExactFullHouse reports a strict 3+2 split (five of a kind excluded).
func IsExactFullHouse(d Dice) bool {
	return IsFullHouse(d) && maxCount(d.Counts()) == 3
}

// IsSmallStraight reports whether the unique faces contain any four-long run.
func IsSmallStraight(d Dice) bool {
	m := faceMask(d)
	for _, run := range smallStraightMasks {
		if m&run == run {
			return true
		}
	}
	return false
}

// IsLargeStraight reports five distinct faces forming one contiguous run.
func IsLargeStraight(d Dice) bool {
	m := faceMask(d)
	return m == 1<<1|1<<2|1<<3|1<<4|1<<5 || m == 1<<2|1<<3|1<<4|1<<5|1<<6
}

// IsYahtzee reports five of a kind.
func IsYahtzee(d Dice) bool { return maxCount(d.Counts()) == NumDice }

// Score returns the points dice would earn in category c. It is pure and
// total: unrolled dice (zero faces) and unknown categories score 0.
func Score(d Dice, c Category) int {
	counts := d.Counts()
	switch c {
	case Ones, Twos, Threes, Fours, Fives, Sixes:
		f := c.Face()
		return int(f) * int(counts[f])
	case ThreeOfKind:
		if maxCount(counts) >= 3 {
			return d.Sum()
		}
	case FourOfKind:
		if maxCount(counts) >= 4 {
			return d.Sum()
		}
	case FullHouse:
		if IsFullHouse(d) {
			return FullHousePoints
		}
	case SmallStraight:
		if IsSmallStraight(d) {
			return SmallStraightPoints
		}
	case LargeStraight:
		if IsLargeStraight(d) {
			return LargeStraightPoints
		}
	case Yahtzee:
		if IsYahtzee(d) {
			return YahtzeePoints
		}
	case Chance:
		return d.Sum()
	}
	return 0
}

// UpperSum totals the face-value categories.
func UpperSum(s Scorecard) int {
	total := 0
	for _, c := range UpperCategories {
		total += s.Value(c)
	}
	return total
}

// LowerSum totals the combination categories.
func LowerSum(s Scorecard) int {
	total := 0
	for _, c := range LowerCategories {
		total += s.Value(c)
	}
	return total
}

// UpperBonus returns 35 once the upper section reaches 63, else 0.
func UpperBonus(s Scorecard) int {
	if UpperSum(s) >= UpperBonusThreshold {
		return UpperBonusPoints
	}
	return 0
}

// TotalScore = upper + bonus + lower, with unset categories counted as 0.
func TotalScore(s Scorecard) int {
	return UpperSum(s) + UpperBonus(s) + LowerSum(s)
}

// IsComplete reports whether all 13 categories have been written.
func IsComplete(s Scorecard) bool {
	return s.Filled == 1<<NumCategories-1
}

// WasteCategory returns the first open category in WasteOrder.
// Callers must ensure the scorecard is not complete.
func WasteCategory(s Scorecard) Category {
	for _, c := range WasteOrder {
		if !s.IsSet(c) {
			return c
		}
	}
	return Chance
}

// BestAvailableCategory picks the open category with the highest score for
// dice, falling back to WasteCategory when every option scores 0. Used by the
// turn-timeout auto-score.
func BestAvailableCategory(d Dice, s Scorecard) Category {
	best, bestScore := Category(0), -1
	for c := Category(0); c < NumCategories; c++ {
		if s.IsSet(c) {
			continue
		}
		if pts := Score(d, c); pts > bestScore {
			best, bestScore = c, pts
		}
	}
	if bestScore <= 0 {
		return WasteCategory(s)
	}
	return best
}
