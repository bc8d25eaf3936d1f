package models

import (
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// LobbyCodeAlphabet omits characters that are easy to confuse when read aloud.
const LobbyCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// LobbyCodeLength is the number of characters in a lobby code.
const LobbyCodeLength = 6

// ErrLobbyCodeTaken is returned by stores when a new lobby's code collides
// with an existing one.
var ErrLobbyCodeTaken = errors.New("lobby code already in use")

// Lobby is the pre-game container players join by code. Each lobby owns
// exactly one session.
type Lobby struct {
	ID         uuid.UUID  `json:"id"`
	Code       string     `json:"code"`
	HostUserID string     `json:"host_user_id"`
	Type       string     `json:"type"` // 'public', 'private'
	SessionID  string     `json:"session_id"`
	HouseRules HouseRules `json:"house_rules"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewLobbyCode returns a random code drawn from LobbyCodeAlphabet.
func NewLobbyCode() (string, error) {
	code := make([]byte, LobbyCodeLength)
	limit := big.NewInt(int64(len(LobbyCodeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		code[i] = LobbyCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// ValidLobbyCode reports whether code is well formed. It says nothing about
// whether the lobby exists.
func ValidLobbyCode(code string) bool {
	if len(code) != LobbyCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !inAlphabet(code[i]) {
			return false
		}
	}
	return true
}

func inAlphabet(b byte) bool {
	for i := 0; i < len(LobbyCodeAlphabet); i++ {
		if LobbyCodeAlphabet[i] == b {
			return true
		}
	}
	return false
}
