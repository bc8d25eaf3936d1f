// internal/gateway/inbound.go
package gateway

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
	"github.com/jason-s-yu/dicehall/internal/game"
)

// maxChatLen caps a chat message in runes.
const maxChatLen = 500

// Inbound is one decoded client frame: JoinFrame, LeaveFrame, MoveFrame,
// ChatFrame or TypingFrame.
type Inbound interface {
	inbound()
}

// JoinFrame subscribes the connection to a lobby room.
type JoinFrame struct {
	LobbyCode string
}

// LeaveFrame unsubscribes from the current room.
type LeaveFrame struct{}

// MoveFrame submits a move in the joined lobby's session.
type MoveFrame struct {
	Move game.MoveRequest
}

// ChatFrame posts a message to the room.
type ChatFrame struct {
	Message string
}

// TypingFrame toggles the typing indicator.
type TypingFrame struct {
	IsTyping bool
}

func (JoinFrame) inbound()   {}
func (LeaveFrame) inbound()  {}
func (MoveFrame) inbound()   {}
func (ChatFrame) inbound()   {}
func (TypingFrame) inbound() {}

type rawFrame struct {
	Type      string            `json:"type"`
	LobbyCode string            `json:"lobbyCode"`
	Move      *game.MoveRequest `json:"move"`
	Message   *string           `json:"message"`
	IsTyping  *bool             `json:"isTyping"`
}

// DecodeInbound parses and validates a client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var f rawFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, "malformed frame", err)
	}

	switch f.Type {
	case "join":
		code := strings.ToUpper(strings.TrimSpace(f.LobbyCode))
		if code == "" {
			return nil, apperrors.New(apperrors.CodeValidation, "join requires lobbyCode")
		}
		return JoinFrame{LobbyCode: code}, nil
	case "leave":
		return LeaveFrame{}, nil
	case "move":
		if f.Move == nil {
			return nil, apperrors.New(apperrors.CodeValidation, "move frame requires move")
		}
		return MoveFrame{Move: *f.Move}, nil
	case "chat":
		if f.Message == nil {
			return nil, apperrors.New(apperrors.CodeValidation, "chat requires message")
		}
		msg := strings.TrimSpace(*f.Message)
		if msg == "" {
			return nil, apperrors.New(apperrors.CodeValidation, "chat message is empty")
		}
		if utf8.RuneCountInString(msg) > maxChatLen {
			return nil, apperrors.Newf(apperrors.CodeValidation, "chat message exceeds %d characters", maxChatLen)
		}
		return ChatFrame{Message: msg}, nil
	case "typing":
		if f.IsTyping == nil {
			return nil, apperrors.New(apperrors.CodeValidation, "typing requires isTyping")
		}
		return TypingFrame{IsTyping: *f.IsTyping}, nil
	case "":
		return nil, apperrors.New(apperrors.CodeValidation, "frame type is required")
	}
	return nil, apperrors.Newf(apperrors.CodeValidation, "unknown frame type %q", f.Type)
}
