// internal/models/house_rules.go
package models

import (
	"fmt"

	engine "github.com/jason-s-yu/dicehall/engine"
)

// Limits accepted for lobby settings.
const (
	MaxSeats          = 16
	MaxTurnTimeoutSec = 3600
)

// HouseRules captures the table configuration chosen when the lobby is
// created.
type HouseRules struct {
	// MaxPlayers caps the number of seats, bots included (0 => engine default).
	MaxPlayers int `json:"maxPlayers"`

	// TurnTimeoutSec is how many seconds each turn lasts before the server
	// scores on the player's behalf (0 => server default, negative => no limit).
	TurnTimeoutSec int `json:"turnTimeoutSec"`

	// AllowBots indicates if the host may seat bot players.
	AllowBots bool `json:"allowBots"`
}

// DefaultHouseRules returns the rules used when the host sends none.
func DefaultHouseRules() HouseRules {
	return HouseRules{MaxPlayers: 6, AllowBots: true}
}

// Validate rejects settings outside the accepted limits.
func (h HouseRules) Validate() error {
	if h.MaxPlayers < 0 || h.MaxPlayers > MaxSeats {
		return fmt.Errorf("maxPlayers must be between 0 and %d", MaxSeats)
	}
	if h.TurnTimeoutSec > MaxTurnTimeoutSec {
		return fmt.Errorf("turnTimeoutSec must be at most %d", MaxTurnTimeoutSec)
	}
	return nil
}

// Engine converts the table settings into engine rules. Values past the
// limits are clamped.
func (h HouseRules) Engine() engine.HouseRules {
	r := engine.DefaultHouseRules()
	if h.MaxPlayers > 0 {
		r.MaxPlayers = uint8(min(h.MaxPlayers, MaxSeats))
	}
	switch {
	case h.TurnTimeoutSec < 0:
		r.TurnTimeoutSec = -1
	case h.TurnTimeoutSec > 0:
		r.TurnTimeoutSec = int32(min(h.TurnTimeoutSec, MaxTurnTimeoutSec))
	}
	return r
}
