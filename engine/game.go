// Package engine implements the rules and turn state machine of a five-dice,
// thirteen-category scoring game.
//
// The package is pure: no I/O, no clocks, and randomness comes from a seeded
// xorshift generator stored in the state itself, so a GameState replays
// identically from the same seed and move list.
package engine

import (
	"errors"
	"time"
)

// Player is one seat in a session. Players are never removed once added;
// leaving a session sets Conn to ConnInactive.
type Player struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	IsBot     bool       `json:"isBot"`
	Conn      ConnStatus `json:"connection"`
	Scorecard Scorecard  `json:"scorecard"`
}

// InRotation reports whether the player still takes turns.
// Players inside the disconnect grace period keep their turn.
func (p Player) InRotation() bool { return p.Conn != ConnInactive }

// GameState is the authoritative state of one session.
type GameState struct {
	ID            string     `json:"id"`
	LobbyCode     string     `json:"lobbyCode"`
	Status        Status     `json:"status"`
	Players       []Player   `json:"players"`
	CurrentPlayer int        `json:"currentPlayerIndex"`
	Round         int        `json:"round"`
	Turn          int        `json:"turn"`
	Dice          Dice       `json:"dice"`
	Held          HeldMask   `json:"held"`
	RollsLeft     uint8      `json:"rollsLeft"`
	TurnDeadline  time.Time  `json:"turnDeadline,omitzero"`
	LastSkipped   []string   `json:"lastSkipped,omitempty"`
	Rules         HouseRules `json:"rules"`
	RNG           uint64     `json:"rng"`
}

var (
	ErrNotWaiting      = errors.New("session has already started")
	ErrTooManyPlayers  = errors.New("session is full")
	ErrTooFewPlayers   = errors.New("not enough players to start")
	ErrDuplicatePlayer = errors.New("player already seated")
	ErrUnknownPlayer   = errors.New("player is not seated in this session")
	ErrSessionTerminal = errors.New("session is finished or abandoned")
)

// ---------------------------------------------------------------------------
// xorshift64 RNG
// ---------------------------------------------------------------------------

func (g *GameState) nextRand() uint64 {
	x := g.RNG
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	g.RNG = x
	return x
}

// randN returns a random number in [0, n).
func (g *GameState) randN(n uint64) uint64 {
	return g.nextRand() % n
}

func (g *GameState) rollDie() uint8 {
	return uint8(g.randN(MaxFace)) + MinFace
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// NewGame returns a waiting session. seed drives every dice roll.
func NewGame(id, lobbyCode string, seed uint64, rules HouseRules) *GameState {
	if seed == 0 {
		seed = 1 // xorshift can't start at 0
	}
	return &GameState{
		ID:        id,
		LobbyCode: lobbyCode,
		Status:    StatusWaiting,
		RollsLeft: MaxRolls,
		Rules:     rules,
		RNG:       seed,
	}
}

// AddPlayer seats a new player. Only allowed while waiting.
func (g *GameState) AddPlayer(p Player) error {
	if g.Status != StatusWaiting {
		return ErrNotWaiting
	}
	if g.PlayerIndex(p.ID) >= 0 {
		return ErrDuplicatePlayer
	}
	if len(g.Players) >= g.Rules.maxPlayers() {
		return ErrTooManyPlayers
	}
	p.Conn = ConnActive
	p.Scorecard = Scorecard{}
	g.Players = append(g.Players, p)
	return nil
}

// Start moves a waiting session to playing with the first seat on turn.
func (g *GameState) Start() error {
	if g.Status != StatusWaiting {
		return ErrNotWaiting
	}
	if len(g.Players) < g.Rules.minPlayers() {
		return ErrTooFewPlayers
	}
	g.Status = StatusPlaying
	g.CurrentPlayer = 0
	g.Round = 1
	g.Turn = 1
	g.resetTurn()
	return nil
}

// Abandon force-ends the session. It is the only transition that bypasses
// normal move validation, and it is a no-op on already terminal sessions.
func (g *GameState) Abandon() bool {
	if g.Status.Terminal() {
		return false
	}
	g.Status = StatusAbandoned
	g.TurnDeadline = time.Time{}
	return true
}

// Clone returns a deep copy safe to mutate independently.
func (g *GameState) Clone() *GameState {
	c := *g
	c.Players = append([]Player(nil), g.Players...)
	c.LastSkipped = append([]string(nil), g.LastSkipped...)
	return &c
}

// PlayerIndex returns the seat of id, or -1.
func (g *GameState) PlayerIndex(id string) int {
	for i := range g.Players {
		if g.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// Player returns a pointer to the seated player with id, or nil.
func (g *GameState) Player(id string) *Player {
	if i := g.PlayerIndex(id); i >= 0 {
		return &g.Players[i]
	}
	return nil
}

// CurrentPlayerID returns the id of the mover, or "" when nobody is on turn.
func (g *GameState) CurrentPlayerID() string {
	if g.Status != StatusPlaying || g.CurrentPlayer < 0 || g.CurrentPlayer >= len(g.Players) {
		return ""
	}
	return g.Players[g.CurrentPlayer].ID
}

// SetConnStatus updates a player's connection status. It reports whether the
// value changed. Connection status is not a move and is allowed in any state.
func (g *GameState) SetConnStatus(id string, status ConnStatus) (bool, error) {
	p := g.Player(id)
	if p == nil {
		return false, ErrUnknownPlayer
	}
	if p.Conn == status {
		return false, nil
	}
	p.Conn = status
	return true, nil
}

// resetTurn prepares dice for a fresh turn.
func (g *GameState) resetTurn() {
	g.Dice = Dice{}
	g.Held = HeldMask{}
	g.RollsLeft = MaxRolls
}

// eligible reports whether seat i can take the next turn.
func (g *GameState) eligible(i int) bool {
	p := g.Players[i]
	return p.InRotation() && !IsComplete(p.Scorecard)
}

// advanceTurn moves CurrentPlayer to the next eligible seat after the current
// one, recording the ids of in-between seats that were skipped because they
// are out of rotation. Round increments when the search wraps past the last
// seat. If nobody is eligible the session finishes or, when no player is left
// in rotation at all, is abandoned.
func (g *GameState) advanceTurn() {
	n := len(g.Players)
	g.LastSkipped = nil
	g.resetTurn()

	var skipped []string
	for step := 1; step <= n; step++ {
		idx := (g.CurrentPlayer + step) % n
		if g.eligible(idx) {
			if g.CurrentPlayer+step >= n {
				g.Round++
			}
			g.CurrentPlayer = idx
			g.Turn++
			g.LastSkipped = skipped
			return
		}
		if !g.Players[idx].InRotation() && idx != g.CurrentPlayer {
			skipped = append(skipped, g.Players[idx].ID)
		}
	}

	g.LastSkipped = skipped
	g.TurnDeadline = time.Time{}
	if g.anyInRotation() {
		g.Status = StatusFinished
	} else {
		g.Status = StatusAbandoned
	}
}

func (g *GameState) anyInRotation() bool {
	for _, p := range g.Players {
		if p.InRotation() {
			return true
		}
	}
	return false
}

// allComplete reports whether every player in rotation has a full scorecard.
func (g *GameState) allComplete() bool {
	seen := false
	for _, p := range g.Players {
		if !p.InRotation() {
			continue
		}
		seen = true
		if !IsComplete(p.Scorecard) {
			return false
		}
	}
	return seen
}

// AdvancePastInactive moves the turn off a current mover who has become
// inactive. It returns the skipped player ids (the inactive mover first) and
// whether the turn moved. Calling it again once the mover is connected is a
// no-op.
func (g *GameState) AdvancePastInactive() ([]string, bool) {
	if g.Status != StatusPlaying || len(g.Players) == 0 {
		return nil, false
	}
	cur := g.Players[g.CurrentPlayer]
	if cur.InRotation() {
		return nil, false
	}
	g.advanceTurn()
	skipped := append([]string{cur.ID}, g.LastSkipped...)
	g.LastSkipped = skipped
	return skipped, true
}
