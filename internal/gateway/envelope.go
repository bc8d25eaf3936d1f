// internal/gateway/envelope.go
package gateway

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/jason-s-yu/dicehall/internal/game"
)

// ProtocolVersion is sent on every outbound frame.
const ProtocolVersion = "1"

// Gateway-only event kinds.
const (
	EventChatMessage     game.EventKind = "chat-message"
	EventTypingIndicator game.EventKind = "typing-indicator"
	EventServerError     game.EventKind = "server-error"
	EventJoinAck         game.EventKind = "join-ack"
)

// Sequencer hands out process-wide, strictly increasing sequence ids. Ids
// restart at 1 when the process does.
type Sequencer struct {
	n atomic.Uint64
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// Envelope is the metadata stamped on every outbound frame. It is merged with
// the event payload into one flat JSON object.
type Envelope struct {
	Type       game.EventKind `json:"type"`
	SequenceID uint64         `json:"sequenceId"`
	Timestamp  int64          `json:"timestamp"` // Unix milliseconds.
	Version    string         `json:"version"`
}

// encoder stamps and serializes outbound events.
type encoder struct {
	seq   *Sequencer
	clock clock.Clock
}

// encode flattens ev into {type, ...payload, sequenceId, timestamp, version}.
// The payload must encode to a JSON object or null.
func (e encoder) encode(ev game.Event) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", ev.Kind, err)
		}
		if string(raw) != "null" {
			if err := json.Unmarshal(raw, &fields); err != nil {
				return nil, fmt.Errorf("%s payload is not an object: %w", ev.Kind, err)
			}
		}
	}

	env := e.stamp(ev.Kind)
	fields["type"], _ = json.Marshal(env.Type)
	fields["sequenceId"], _ = json.Marshal(env.SequenceID)
	fields["timestamp"], _ = json.Marshal(env.Timestamp)
	fields["version"], _ = json.Marshal(env.Version)
	return json.Marshal(fields)
}

func (e encoder) stamp(kind game.EventKind) Envelope {
	return Envelope{
		Type:       kind,
		SequenceID: e.seq.Next(),
		Timestamp:  e.clock.Now().UnixMilli(),
		Version:    ProtocolVersion,
	}
}

// ChatPayload is the body of a chat-message event.
type ChatPayload struct {
	LobbyCode string `json:"lobbyCode"`
	UserID    string `json:"userId"`
	Name      string `json:"name,omitempty"`
	Message   string `json:"message"`
}

// TypingPayload is the body of a typing-indicator event.
type TypingPayload struct {
	LobbyCode string `json:"lobbyCode"`
	UserID    string `json:"userId"`
	IsTyping  bool   `json:"isTyping"`
}

// ErrorPayload is the body of a server-error event.
type ErrorPayload struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	UserFacingKey string `json:"userFacingKey,omitempty"`
}

// JoinAckPayload confirms a join.
type JoinAckPayload struct {
	Code    string `json:"code"`
	Success bool   `json:"success"`
}
