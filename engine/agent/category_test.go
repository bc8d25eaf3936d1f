package agent

import (
	"encoding/json"
	"fmt"
	"testing"

	engine "github.com/jason-s-yu/dicehall/engine"
)

// fillCategory writes c with 0 through the public JSON codec; engine keeps
// Scorecard writes unexported.
func fillCategory(card engine.Scorecard, c engine.Category) engine.Scorecard {
	return withScore(card, c, 0)
}

func withScore(card engine.Scorecard, c engine.Category, v int) engine.Scorecard {
	raw := map[string]int{}
	for cat := engine.Category(0); cat < engine.NumCategories; cat++ {
		if got, ok := card.Get(cat); ok {
			raw[cat.String()] = got
		}
	}
	raw[c.String()] = v
	b, _ := json.Marshal(raw)
	var out engine.Scorecard
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("building scorecard: %v", err))
	}
	return out
}

func fullCardExcept(open ...engine.Category) engine.Scorecard {
	skip := map[engine.Category]bool{}
	for _, c := range open {
		skip[c] = true
	}
	var card engine.Scorecard
	for c := engine.Category(0); c < engine.NumCategories; c++ {
		if !skip[c] {
			card = fillCategory(card, c)
		}
	}
	return card
}

// TestSelectCategoryYahtzee covers dice=[5,5,5,5,5] on an empty card.
func TestSelectCategoryYahtzee(t *testing.T) {
	d := engine.Dice{5, 5, 5, 5, 5}
	if got := SelectCategory(d, engine.Scorecard{}); got != engine.Yahtzee {
		t.Errorf("got %s, want yahtzee", got)
	}
	if engine.Score(d, engine.Yahtzee) != 50 {
		t.Error("yahtzee should score 50")
	}
}

// TestSelectCategoryMadeHands prefers the fixed-value category.
func TestSelectCategoryMadeHands(t *testing.T) {
	cases := []struct {
		dice engine.Dice
		want engine.Category
	}{
		{engine.Dice{1, 2, 3, 4, 5}, engine.LargeStraight},
		{engine.Dice{1, 2, 3, 4, 4}, engine.SmallStraight},
		{engine.Dice{6, 6, 6, 5, 5}, engine.FullHouse},
	}
	for _, tc := range cases {
		if got := SelectCategory(tc.dice, engine.Scorecard{}); got != tc.want {
			t.Errorf("%v: got %s, want %s", tc.dice, got, tc.want)
		}
	}
}

// TestSelectCategoryLargeStraightFallsToSmall uses the small slot once the
// large one is taken.
func TestSelectCategoryLargeStraightFallsToSmall(t *testing.T) {
	card := fillCategory(engine.Scorecard{}, engine.LargeStraight)
	if got := SelectCategory(engine.Dice{2, 3, 4, 5, 6}, card); got != engine.SmallStraight {
		t.Errorf("got %s, want smallStraight", got)
	}
}

// TestSelectCategoryBonusCloser lets the upper bonus beat a small straight.
func TestSelectCategoryBonusCloser(t *testing.T) {
	var card engine.Scorecard
	card = withScore(card, engine.Sixes, 24)
	card = withScore(card, engine.Fives, 20)
	card = withScore(card, engine.Threes, 9)
	// upper = 53, gap = 10; the single four leaves it at 57.
	d := engine.Dice{3, 4, 5, 6, 6}
	if got := SelectCategory(d, card); got != engine.SmallStraight {
		t.Errorf("gap not closed: got %s, want smallStraight", got)
	}

	card = withScore(card, engine.Twos, 4)
	// upper = 57, gap = 6; two fours score 8 and close it.
	d = engine.Dice{1, 2, 3, 4, 4}
	if got := SelectCategory(d, card); got != engine.Fours {
		t.Errorf("gap closable: got %s, want fours", got)
	}
}

// TestSelectCategoryNeverSacrificesFullHouse keeps the 25 even when an upper
// slot would close the bonus gap.
func TestSelectCategoryNeverSacrificesFullHouse(t *testing.T) {
	var card engine.Scorecard
	card = withScore(card, engine.Sixes, 30)
	card = withScore(card, engine.Fives, 25)
	// gap = 8, four open upper categories; 3×4 closes it.
	d := engine.Dice{4, 4, 4, 2, 2}
	if got := SelectCategory(d, card); got != engine.FullHouse {
		t.Errorf("got %s, want fullHouse", got)
	}
}

// TestSelectCategoryEndgame prefers a positive score over a zero combination.
func TestSelectCategoryEndgame(t *testing.T) {
	card := fullCardExcept(engine.Yahtzee, engine.Twos, engine.LargeStraight)
	d := engine.Dice{2, 6, 6, 3, 1}
	if got := SelectCategory(d, card); got != engine.Twos {
		t.Errorf("got %s, want twos", got)
	}

	// Nothing scores: waste order.
	card = fullCardExcept(engine.Yahtzee, engine.LargeStraight)
	if got := SelectCategory(engine.Dice{1, 1, 2, 3, 6}, card); got != engine.LargeStraight {
		t.Errorf("got %s, want largeStraight", got)
	}
}

// TestSelectCategoryNeverSet sweeps every single-open card and several dice.
func TestSelectCategoryNeverSet(t *testing.T) {
	dice := []engine.Dice{
		{5, 5, 5, 5, 5}, {1, 2, 3, 4, 5}, {2, 3, 4, 5, 6}, {1, 2, 3, 4, 4},
		{3, 3, 3, 2, 2}, {6, 6, 6, 6, 1}, {1, 1, 2, 3, 6}, {4, 4, 5, 6, 1},
	}
	for open := engine.Category(0); open < engine.NumCategories; open++ {
		card := fullCardExcept(open)
		for _, d := range dice {
			if got := SelectCategory(d, card); got != open {
				t.Errorf("only %s open, dice %v: got %s", open, d, got)
			}
		}
	}
	for _, d := range dice {
		got := SelectCategory(d, engine.Scorecard{})
		if !got.Valid() {
			t.Errorf("empty card, dice %v: invalid %d", d, got)
		}
	}
}

// TestShouldStop checks each stop condition and a few that keep rolling.
func TestShouldStop(t *testing.T) {
	cases := []struct {
		dice engine.Dice
		want bool
	}{
		{engine.Dice{2, 2, 2, 2, 2}, true},
		{engine.Dice{6, 5, 4, 3, 2}, true},
		{engine.Dice{1, 1, 4, 4, 4}, true},
		{engine.Dice{6, 6, 6, 6, 1}, true},
		{engine.Dice{5, 5, 5, 5, 4}, true},
		{engine.Dice{5, 5, 5, 5, 3}, false},
		{engine.Dice{1, 2, 3, 4, 4}, false},
		{engine.Dice{3, 3, 3, 1, 2}, false},
	}
	for _, tc := range cases {
		if got := ShouldStop(tc.dice); got != tc.want {
			t.Errorf("ShouldStop(%v) = %v, want %v", tc.dice, got, tc.want)
		}
	}
}

func TestBonusHelpers(t *testing.T) {
	card := withScore(engine.Scorecard{}, engine.Sixes, 30)
	if got := BonusGap(card); got != 33 {
		t.Errorf("BonusGap = %d, want 33", got)
	}
	// 5 × (1+2+3+4+5)
	if got := UpperPotential(card); got != 75 {
		t.Errorf("UpperPotential = %d, want 75", got)
	}
	card = withScore(card, engine.Fives, 25)
	card = withScore(card, engine.Fours, 16)
	if got := BonusGap(card); got != 0 {
		t.Errorf("BonusGap after 71 = %d, want 0", got)
	}
}
