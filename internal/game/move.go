// internal/game/move.go
package game

import (
	"encoding/json"
	"time"

	engine "github.com/jason-s-yu/dicehall/engine"
	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
)

// MoveRequest is the wire form of a move, shared by the HTTP and websocket
// surfaces: {moverId, type, data, timestamp}.
type MoveRequest struct {
	MoverID   string          `json:"moverId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"` // Unix milliseconds.
}

type holdData struct {
	DiceIndex *int `json:"diceIndex"`
}

type scoreData struct {
	Category string `json:"category"`
}

// DecodeMove validates a wire move and converts it to an engine.Move.
// The system mover cannot be claimed from outside the server.
func DecodeMove(req MoveRequest, now time.Time) (engine.Move, error) {
	if req.MoverID == "" {
		return engine.Move{}, apperrors.New(apperrors.CodeValidation, "moverId is required")
	}
	if req.MoverID == engine.SystemMoverID {
		return engine.Move{}, apperrors.New(apperrors.CodeAuthorization, "reserved mover id")
	}
	typ, err := engine.ParseMoveType(req.Type)
	if err != nil {
		return engine.Move{}, apperrors.Wrap(apperrors.CodeValidation, "invalid move type", err)
	}

	m := engine.Move{Type: typ, MoverID: req.MoverID, Timestamp: now}
	if req.Timestamp > 0 {
		m.Timestamp = time.UnixMilli(req.Timestamp)
	}

	switch typ {
	case engine.MoveHold:
		var d holdData
		if err := json.Unmarshal(req.Data, &d); err != nil || d.DiceIndex == nil {
			return engine.Move{}, apperrors.New(apperrors.CodeValidation, "hold requires data.diceIndex")
		}
		if *d.DiceIndex < 0 || *d.DiceIndex >= engine.NumDice {
			return engine.Move{}, apperrors.Newf(apperrors.CodeValidation, "diceIndex %d out of range", *d.DiceIndex)
		}
		m.DiceIndex = *d.DiceIndex
	case engine.MoveScore:
		var d scoreData
		if err := json.Unmarshal(req.Data, &d); err != nil {
			return engine.Move{}, apperrors.New(apperrors.CodeValidation, "score requires data.category")
		}
		c, err := engine.ParseCategory(d.Category)
		if err != nil {
			return engine.Move{}, apperrors.Wrap(apperrors.CodeValidation, "invalid category", err)
		}
		m.Category = c
	}
	return m, nil
}
