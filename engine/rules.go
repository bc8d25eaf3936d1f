package engine

// HouseRules holds configurable session settings.
type HouseRules struct {
	MinPlayers uint8 `json:"minPlayers"`
	MaxPlayers uint8 `json:"maxPlayers"`

	// TurnTimeoutSec travels with the session for the server's turn timer.
	// The engine itself never reads the clock: 0 means the server default and
	// a negative value disables the limit.
	TurnTimeoutSec int32 `json:"turnTimeoutSec,omitempty"`
}

// DefaultHouseRules returns the standard table settings.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		MinPlayers: 1,
		MaxPlayers: 6,
	}
}

func (r HouseRules) maxPlayers() int {
	if r.MaxPlayers == 0 {
		return 6
	}
	return int(r.MaxPlayers)
}

func (r HouseRules) minPlayers() int {
	if r.MinPlayers == 0 {
		return 1
	}
	return int(r.MinPlayers)
}
