package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	NumDice       = 5
	NumCategories = 13
	MaxRolls      = 3
	MinFace       = 1
	MaxFace       = 6
)

// Category is one of the 13 fixed scoring slots on a scorecard.
type Category uint8

const (
	Ones Category = iota
	Twos
	Threes
	Fours
	Fives
	Sixes
	ThreeOfKind
	FourOfKind
	FullHouse
	SmallStraight
	LargeStraight
	Yahtzee
	Chance
)

var categoryNames = [NumCategories]string{
	"ones", "twos", "threes", "fours", "fives", "sixes",
	"threeOfKind", "fourOfKind", "fullHouse",
	"smallStraight", "largeStraight", "yahtzee", "chance",
}

// UpperCategories are the six face-value categories.
var UpperCategories = [6]Category{Ones, Twos, Threes, Fours, Fives, Sixes}

// LowerCategories are the seven combination categories.
var LowerCategories = [7]Category{ThreeOfKind, FourOfKind, FullHouse, SmallStraight, LargeStraight, Yahtzee, Chance}

func (c Category) String() string {
	if c < NumCategories {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// Valid reports whether c names one of the 13 categories.
func (c Category) Valid() bool { return c < NumCategories }

// IsUpper reports whether c is a face-value category.
func (c Category) IsUpper() bool { return c <= Sixes }

// Face returns the die face an upper category counts, or 0 for lower categories.
func (c Category) Face() uint8 {
	if !c.IsUpper() {
		return 0
	}
	return uint8(c) + 1
}

// UpperCategoryFor returns the upper category counting the given face.
func UpperCategoryFor(face uint8) Category { return Category(face - 1) }

// ParseCategory resolves a wire name such as "fullHouse" to a Category.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ---------------------------------------------------------------------------
// Dice
// ---------------------------------------------------------------------------

// Dice holds the five face values. A zero face means the die has not been rolled.
type Dice [NumDice]uint8

// HeldMask marks dice kept out of the next roll.
type HeldMask [NumDice]bool

// Counts returns how many dice show each face, indexed by face (index 0 unused).
func (d Dice) Counts() [MaxFace + 1]uint8 {
	var counts [MaxFace + 1]uint8
	for _, f := range d {
		if f >= MinFace && f <= MaxFace {
			counts[f]++
		}
	}
	return counts
}

// Sum returns the total of all five faces.
func (d Dice) Sum() int {
	total := 0
	for _, f := range d {
		total += int(f)
	}
	return total
}

// Indices returns the held positions in ascending order.
func (h HeldMask) Indices() []int {
	var out []int
	for i, held := range h {
		if held {
			out = append(out, i)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Scorecard
// ---------------------------------------------------------------------------

// Scorecard stores one player's 13 optional category scores.
// Filled has bit c set once category c is written; written scores never change.
type Scorecard struct {
	Scores [NumCategories]int16
	Filled uint16
}

// IsSet reports whether the category has been written, including an explicit 0.
func (s Scorecard) IsSet(c Category) bool { return s.Filled&(1<<c) != 0 }

// Get returns the written score and whether it exists.
func (s Scorecard) Get(c Category) (int, bool) {
	if !s.IsSet(c) {
		return 0, false
	}
	return int(s.Scores[c]), true
}

// Value returns the written score, treating unset categories as 0.
func (s Scorecard) Value(c Category) int { return int(s.Scores[c]) }

// Open returns the categories not yet written, in category order.
func (s Scorecard) Open() []Category {
	out := make([]Category, 0, NumCategories)
	for c := Category(0); c < NumCategories; c++ {
		if !s.IsSet(c) {
			out = append(out, c)
		}
	}
	return out
}

// OpenCount returns how many categories remain unwritten.
func (s Scorecard) OpenCount() int {
	n := 0
	for c := Category(0); c < NumCategories; c++ {
		if !s.IsSet(c) {
			n++
		}
	}
	return n
}

// set writes a score. It is a no-op on an already written category.
func (s *Scorecard) set(c Category, points int) bool {
	if s.IsSet(c) {
		return false
	}
	s.Scores[c] = int16(points)
	s.Filled |= 1 << c
	return true
}

// MarshalJSON encodes only the written categories, keyed by wire name.
func (s Scorecard) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, NumCategories)
	for c := Category(0); c < NumCategories; c++ {
		if v, ok := s.Get(c); ok {
			out[c.String()] = v
		}
	}
	return json.Marshal(out)
}

func (s *Scorecard) UnmarshalJSON(b []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var card Scorecard
	for name, v := range raw {
		c, err := ParseCategory(name)
		if err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("negative score %d for %s", v, name)
		}
		card.set(c, v)
	}
	*s = card
	return nil
}

// ---------------------------------------------------------------------------
// Session and player status
// ---------------------------------------------------------------------------

// Status is the session lifecycle state. It only ever moves forward.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusPlaying
	StatusFinished
	StatusAbandoned
)

var statusNames = [...]string{"waiting", "playing", "finished", "abandoned"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no further moves are accepted.
func (s Status) Terminal() bool { return s == StatusFinished || s == StatusAbandoned }

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", b)
}

// ConnStatus is a player's connection state as seen by the game.
type ConnStatus uint8

const (
	ConnActive ConnStatus = iota
	ConnDisconnectedPending
	ConnInactive
)

var connStatusNames = [...]string{"active", "disconnected-pending", "inactive"}

func (c ConnStatus) String() string {
	if int(c) < len(connStatusNames) {
		return connStatusNames[c]
	}
	return fmt.Sprintf("conn(%d)", uint8(c))
}

func (c ConnStatus) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ConnStatus) UnmarshalText(b []byte) error {
	for i, name := range connStatusNames {
		if name == string(b) {
			*c = ConnStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown connection status %q", b)
}

// ---------------------------------------------------------------------------
// Moves
// ---------------------------------------------------------------------------

// MoveType tags the Move variant.
type MoveType uint8

const (
	MoveRoll MoveType = iota + 1
	MoveHold
	MoveScore
)

func (t MoveType) String() string {
	switch t {
	case MoveRoll:
		return "roll"
	case MoveHold:
		return "hold"
	case MoveScore:
		return "score"
	default:
		return fmt.Sprintf("move(%d)", uint8(t))
	}
}

// ParseMoveType resolves a wire name to a MoveType.
func ParseMoveType(s string) (MoveType, error) {
	switch s {
	case "roll":
		return MoveRoll, nil
	case "hold":
		return MoveHold, nil
	case "score":
		return MoveScore, nil
	}
	return 0, fmt.Errorf("unknown move type %q", s)
}

// SystemMoverID is the pseudo-mover used by the turn-timeout auto-score.
// It may only submit Score moves and always scores for the current player.
const SystemMoverID = "system:timeout"

// Move is a single player intent. Only the field matching Type is meaningful.
type Move struct {
	Type      MoveType
	MoverID   string
	DiceIndex int      // MoveHold
	Category  Category // MoveScore
	Timestamp time.Time
}

// RollMove builds a Roll move.
func RollMove(mover string) Move { return Move{Type: MoveRoll, MoverID: mover} }

// HoldMove builds a Hold move toggling the die at idx.
func HoldMove(mover string, idx int) Move { return Move{Type: MoveHold, MoverID: mover, DiceIndex: idx} }

// ScoreMove builds a Score move writing category c.
func ScoreMove(mover string, c Category) Move { return Move{Type: MoveScore, MoverID: mover, Category: c} }

func (m Move) String() string {
	switch m.Type {
	case MoveHold:
		return fmt.Sprintf("hold(%d)", m.DiceIndex)
	case MoveScore:
		return fmt.Sprintf("score(%s)", m.Category)
	default:
		return m.Type.String()
	}
}
