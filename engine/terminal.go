package engine

import "sort"

// IsTerminal reports whether the session accepts no further moves.
func (g *GameState) IsTerminal() bool { return g.Status.Terminal() }

// Standing is one player's final (or running) total.
type Standing struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Upper    int    `json:"upper"`
	Bonus    int    `json:"bonus"`
	Lower    int    `json:"lower"`
	Total    int    `json:"total"`
	Rank     int    `json:"rank"`
}

// Standings ranks every seated player by total score, highest first. Tied
// totals share a rank. Inactive players are listed too; their cards simply
// stop growing.
func (g *GameState) Standings() []Standing {
	out := make([]Standing, len(g.Players))
	for i, p := range g.Players {
		out[i] = Standing{
			PlayerID: p.ID,
			Name:     p.Name,
			Upper:    UpperSum(p.Scorecard),
			Bonus:    UpperBonus(p.Scorecard),
			Lower:    LowerSum(p.Scorecard),
			Total:    TotalScore(p.Scorecard),
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Total > out[b].Total })
	for i := range out {
		if i > 0 && out[i].Total == out[i-1].Total {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out
}

// Winners returns the ids of the top-ranked players once the session has
// finished. Abandoned or unfinished sessions have no winners.
func (g *GameState) Winners() []string {
	if g.Status != StatusFinished {
		return nil
	}
	var ids []string
	for _, s := range g.Standings() {
		if s.Rank == 1 {
			ids = append(ids, s.PlayerID)
		}
	}
	return ids
}
