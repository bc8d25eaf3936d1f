package engine

import (
	"errors"
	"testing"
)

// newPlaying returns a started session with the given player ids.
func newPlaying(t *testing.T, seed uint64, ids ...string) *GameState {
	t.Helper()
	g := NewGame("s1", "ABC123", seed, DefaultHouseRules())
	for _, id := range ids {
		if err := g.AddPlayer(Player{ID: id, Name: "name-" + id}); err != nil {
			t.Fatalf("AddPlayer(%s): %v", id, err)
		}
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return g
}

// playTurn rolls once and scores c for the current player.
func playTurn(t *testing.T, g *GameState, c Category) {
	t.Helper()
	mover := g.CurrentPlayerID()
	if err := g.ApplyMove(RollMove(mover)); err != nil {
		t.Fatalf("roll for %s: %v", mover, err)
	}
	if err := g.ApplyMove(ScoreMove(mover, c)); err != nil {
		t.Fatalf("score %s for %s: %v", c, mover, err)
	}
}

// TestNewGameSeedZero verifies that seed 0 is corrected to 1.
func TestNewGameSeedZero(t *testing.T) {
	g := NewGame("s", "L", 0, DefaultHouseRules())
	if g.RNG != 1 {
		t.Errorf("RNG = %d, want 1 for seed=0", g.RNG)
	}
	if g.Status != StatusWaiting {
		t.Errorf("Status = %s, want waiting", g.Status)
	}
	if g.RollsLeft != MaxRolls {
		t.Errorf("RollsLeft = %d, want %d", g.RollsLeft, MaxRolls)
	}
}

// TestAddPlayer covers duplicates, capacity, and post-start joins.
func TestAddPlayer(t *testing.T) {
	g := NewGame("s", "L", 7, HouseRules{MinPlayers: 1, MaxPlayers: 2})
	if err := g.AddPlayer(Player{ID: "a", Conn: ConnInactive}); err != nil {
		t.Fatalf("AddPlayer a: %v", err)
	}
	if g.Players[0].Conn != ConnActive {
		t.Errorf("new player conn = %s, want active", g.Players[0].Conn)
	}
	if err := g.AddPlayer(Player{ID: "a"}); !errors.Is(err, ErrDuplicatePlayer) {
		t.Errorf("duplicate: got %v", err)
	}
	if err := g.AddPlayer(Player{ID: "b"}); err != nil {
		t.Fatalf("AddPlayer b: %v", err)
	}
	if err := g.AddPlayer(Player{ID: "c"}); !errors.Is(err, ErrTooManyPlayers) {
		t.Errorf("over capacity: got %v", err)
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := g.AddPlayer(Player{ID: "d"}); !errors.Is(err, ErrNotWaiting) {
		t.Errorf("join after start: got %v", err)
	}
}

// TestStart verifies the initial turn state.
func TestStart(t *testing.T) {
	g := NewGame("s", "L", 7, HouseRules{MinPlayers: 2})
	_ = g.AddPlayer(Player{ID: "a"})
	if err := g.Start(); !errors.Is(err, ErrTooFewPlayers) {
		t.Fatalf("Start with one seat: got %v", err)
	}
	_ = g.AddPlayer(Player{ID: "b"})
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if g.Status != StatusPlaying || g.Round != 1 || g.Turn != 1 || g.CurrentPlayerID() != "a" {
		t.Errorf("after start: status=%s round=%d turn=%d mover=%q", g.Status, g.Round, g.Turn, g.CurrentPlayerID())
	}
	if err := g.Start(); !errors.Is(err, ErrNotWaiting) {
		t.Errorf("second Start: got %v", err)
	}
}

// TestTurnRotation verifies turn order, turn counter, and round wrap.
func TestTurnRotation(t *testing.T) {
	g := newPlaying(t, 11, "a", "b", "c")

	playTurn(t, g, Chance)
	if g.CurrentPlayerID() != "b" || g.Turn != 2 || g.Round != 1 {
		t.Fatalf("after a: mover=%q turn=%d round=%d", g.CurrentPlayerID(), g.Turn, g.Round)
	}
	if g.RollsLeft != MaxRolls || g.Dice != (Dice{}) || g.Held != (HeldMask{}) {
		t.Errorf("turn not reset: rolls=%d dice=%v held=%v", g.RollsLeft, g.Dice, g.Held)
	}

	playTurn(t, g, Chance)
	playTurn(t, g, Chance)
	if g.CurrentPlayerID() != "a" || g.Round != 2 || g.Turn != 4 {
		t.Errorf("after wrap: mover=%q turn=%d round=%d", g.CurrentPlayerID(), g.Turn, g.Round)
	}
}

// TestAdvanceSkipsInactive verifies inactive seats are skipped and recorded.
func TestAdvanceSkipsInactive(t *testing.T) {
	g := newPlaying(t, 11, "a", "b", "c")
	if _, err := g.SetConnStatus("b", ConnInactive); err != nil {
		t.Fatalf("SetConnStatus: %v", err)
	}

	playTurn(t, g, Ones)
	if g.CurrentPlayerID() != "c" {
		t.Fatalf("mover = %q, want c", g.CurrentPlayerID())
	}
	if len(g.LastSkipped) != 1 || g.LastSkipped[0] != "b" {
		t.Errorf("LastSkipped = %v, want [b]", g.LastSkipped)
	}

	playTurn(t, g, Ones)
	if len(g.LastSkipped) != 0 {
		t.Errorf("LastSkipped = %v after clean advance, want empty", g.LastSkipped)
	}
}

// TestPendingPlayerKeepsTurn verifies disconnected-pending stays in rotation.
func TestPendingPlayerKeepsTurn(t *testing.T) {
	g := newPlaying(t, 11, "a", "b")
	_, _ = g.SetConnStatus("b", ConnDisconnectedPending)
	playTurn(t, g, Ones)
	if g.CurrentPlayerID() != "b" {
		t.Errorf("mover = %q, want b", g.CurrentPlayerID())
	}
}

// TestAdvancePastInactive verifies the inactive mover is passed and the call
// is idempotent.
func TestAdvancePastInactive(t *testing.T) {
	g := newPlaying(t, 11, "a", "b", "c")

	if _, moved := g.AdvancePastInactive(); moved {
		t.Fatal("advanced past an active mover")
	}

	_, _ = g.SetConnStatus("a", ConnInactive)
	skipped, moved := g.AdvancePastInactive()
	if !moved {
		t.Fatal("expected the turn to move")
	}
	if len(skipped) != 1 || skipped[0] != "a" {
		t.Errorf("skipped = %v, want [a]", skipped)
	}
	if g.CurrentPlayerID() != "b" || g.Turn != 2 {
		t.Errorf("mover=%q turn=%d, want b/2", g.CurrentPlayerID(), g.Turn)
	}

	turn := g.Turn
	if _, moved := g.AdvancePastInactive(); moved || g.Turn != turn {
		t.Errorf("second call moved the turn: turn %d → %d", turn, g.Turn)
	}
}

// TestAdvancePastInactiveChain verifies consecutive inactive seats are all
// reported, the mover first.
func TestAdvancePastInactiveChain(t *testing.T) {
	g := newPlaying(t, 11, "a", "b", "c")
	_, _ = g.SetConnStatus("a", ConnInactive)
	_, _ = g.SetConnStatus("b", ConnInactive)

	skipped, _ := g.AdvancePastInactive()
	if len(skipped) != 2 || skipped[0] != "a" || skipped[1] != "b" {
		t.Errorf("skipped = %v, want [a b]", skipped)
	}
	if g.CurrentPlayerID() != "c" {
		t.Errorf("mover = %q, want c", g.CurrentPlayerID())
	}
}

// TestEveryoneInactiveAbandons verifies a session with nobody in rotation ends.
func TestEveryoneInactiveAbandons(t *testing.T) {
	g := newPlaying(t, 11, "a", "b")
	_, _ = g.SetConnStatus("a", ConnInactive)
	_, _ = g.SetConnStatus("b", ConnInactive)

	g.AdvancePastInactive()
	if g.Status != StatusAbandoned {
		t.Errorf("Status = %s, want abandoned", g.Status)
	}
	if g.CurrentPlayerID() != "" {
		t.Errorf("terminal session still has a mover %q", g.CurrentPlayerID())
	}
}

// TestFinishSinglePlayer plays 13 turns and checks the session finishes.
func TestFinishSinglePlayer(t *testing.T) {
	g := newPlaying(t, 99, "solo")
	for c := Category(0); c < NumCategories; c++ {
		if g.Status != StatusPlaying {
			t.Fatalf("session ended early at %s", c)
		}
		playTurn(t, g, c)
	}
	if g.Status != StatusFinished {
		t.Fatalf("Status = %s, want finished", g.Status)
	}
	if !IsComplete(g.Players[0].Scorecard) {
		t.Error("scorecard not complete")
	}
	if g.Round != NumCategories {
		t.Errorf("Round = %d, want %d", g.Round, NumCategories)
	}
}

// TestFinishIgnoresInactiveCards verifies an inactive player's open card does
// not hold the session open.
func TestFinishIgnoresInactiveCards(t *testing.T) {
	g := newPlaying(t, 5, "a", "b")
	_, _ = g.SetConnStatus("b", ConnInactive)
	g.Players[0].Scorecard = fullCard(0)
	g.Players[0].Scorecard.Filled &^= 1 << Chance

	playTurn(t, g, Chance)
	if g.Status != StatusFinished {
		t.Errorf("Status = %s, want finished", g.Status)
	}
}

// TestAdvanceSkipsCompleteCards verifies a finished card drops out of the
// rotation without being reported as skipped.
func TestAdvanceSkipsCompleteCards(t *testing.T) {
	g := newPlaying(t, 5, "a", "b", "c")
	g.Players[1].Scorecard = fullCard(1)

	playTurn(t, g, Chance)
	if g.CurrentPlayerID() != "c" {
		t.Errorf("mover = %q, want c", g.CurrentPlayerID())
	}
	if len(g.LastSkipped) != 0 {
		t.Errorf("LastSkipped = %v, want empty", g.LastSkipped)
	}
}

// TestAbandon verifies Abandon is a no-op on terminal sessions.
func TestAbandon(t *testing.T) {
	g := newPlaying(t, 5, "a")
	if !g.Abandon() {
		t.Fatal("Abandon on a playing session returned false")
	}
	if g.Status != StatusAbandoned {
		t.Errorf("Status = %s", g.Status)
	}
	if g.Abandon() {
		t.Error("second Abandon returned true")
	}
}

// TestSetConnStatus reports change and rejects unknown players.
func TestSetConnStatus(t *testing.T) {
	g := newPlaying(t, 5, "a")
	changed, err := g.SetConnStatus("a", ConnActive)
	if err != nil || changed {
		t.Errorf("no-op update: changed=%v err=%v", changed, err)
	}
	changed, err = g.SetConnStatus("a", ConnDisconnectedPending)
	if err != nil || !changed {
		t.Errorf("real update: changed=%v err=%v", changed, err)
	}
	if _, err := g.SetConnStatus("zz", ConnActive); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("unknown player: got %v", err)
	}
}

// TestCloneIndependent verifies Clone does not share slices.
func TestCloneIndependent(t *testing.T) {
	g := newPlaying(t, 5, "a", "b")
	c := g.Clone()
	c.Players[0].Name = "changed"
	c.Players[0].Scorecard.set(Ones, 3)
	if g.Players[0].Name == "changed" || g.Players[0].Scorecard.IsSet(Ones) {
		t.Error("Clone shares player storage with the original")
	}
}

// TestDeterministicReplay verifies equal seeds and moves give equal dice.
func TestDeterministicReplay(t *testing.T) {
	run := func() Dice {
		g := newPlaying(t, 12345, "a", "b")
		_ = g.ApplyMove(RollMove("a"))
		_ = g.ApplyMove(HoldMove("a", 2))
		_ = g.ApplyMove(RollMove("a"))
		return g.Dice
	}
	first, second := run(), run()
	if first != second {
		t.Errorf("replay diverged: %v vs %v", first, second)
	}
}
