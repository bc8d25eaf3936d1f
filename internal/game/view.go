// internal/game/view.go
package game

import (
	engine "github.com/jason-s-yu/dicehall/engine"
)

// PlayerView is one seat as clients see it.
type PlayerView struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	IsBot      bool              `json:"isBot"`
	Connection engine.ConnStatus `json:"connection"`
	Scorecard  engine.Scorecard  `json:"scorecard"`
	Upper      int               `json:"upper"`
	Bonus      int               `json:"bonus"`
	Lower      int               `json:"lower"`
	Total      int               `json:"total"`
	IsCurrent  bool              `json:"isCurrentTurn"`
}

// SessionView is the public snapshot sent in session-update events and HTTP
// responses. Every field is public knowledge; nothing is hidden per viewer.
type SessionView struct {
	SessionID          string            `json:"sessionId"`
	LobbyCode          string            `json:"lobbyCode"`
	Status             engine.Status     `json:"status"`
	Players            []PlayerView      `json:"players"`
	CurrentPlayerID    string            `json:"currentPlayerId,omitempty"`
	CurrentPlayerIndex int               `json:"currentPlayerIndex"`
	Round              int               `json:"round"`
	Turn               int               `json:"turn"`
	Dice               []int             `json:"dice"`
	Held               []bool            `json:"held"`
	RollsLeft          int               `json:"rollsLeft"`
	TurnDeadline       int64             `json:"turnDeadline,omitempty"` // Unix milliseconds.
	LastSkipped        []string          `json:"lastSkipped,omitempty"`
	Standings          []engine.Standing `json:"standings,omitempty"`
	Winners            []string          `json:"winners,omitempty"`
}

// NewView builds the snapshot for s. Standings are included once the session
// is over.
func NewView(s *engine.GameState) SessionView {
	v := SessionView{
		SessionID:          s.ID,
		LobbyCode:          s.LobbyCode,
		Status:             s.Status,
		CurrentPlayerID:    s.CurrentPlayerID(),
		CurrentPlayerIndex: s.CurrentPlayer,
		Round:              s.Round,
		Turn:               s.Turn,
		Dice:               make([]int, engine.NumDice),
		Held:               make([]bool, engine.NumDice),
		RollsLeft:          int(s.RollsLeft),
		LastSkipped:        s.LastSkipped,
	}
	for i := range s.Dice {
		v.Dice[i] = int(s.Dice[i])
		v.Held[i] = s.Held[i]
	}
	if !s.TurnDeadline.IsZero() {
		v.TurnDeadline = s.TurnDeadline.UnixMilli()
	}
	current := v.CurrentPlayerID
	for _, p := range s.Players {
		v.Players = append(v.Players, PlayerView{
			ID:         p.ID,
			Name:       p.Name,
			IsBot:      p.IsBot,
			Connection: p.Conn,
			Scorecard:  p.Scorecard,
			Upper:      engine.UpperSum(p.Scorecard),
			Bonus:      engine.UpperBonus(p.Scorecard),
			Lower:      engine.LowerSum(p.Scorecard),
			Total:      engine.TotalScore(p.Scorecard),
			IsCurrent:  current != "" && p.ID == current,
		})
	}
	if s.IsTerminal() {
		v.Standings = s.Standings()
		v.Winners = s.Winners()
	}
	return v
}
