// internal/game/events.go
package game

import (
	engine "github.com/jason-s-yu/dicehall/engine"
)

// EventKind is the wire `type` of an outbound event.
type EventKind string

// Event kinds produced by the pipeline. The gateway adds chat, typing and
// server-error events of its own.
const (
	EventSessionUpdate   EventKind = "session-update"
	EventPlayerJoined    EventKind = "player-joined"
	EventSessionStarted  EventKind = "session-started"
	EventLobbyListUpdate EventKind = "lobby-list-update"
)

// Event is one outbound notification. Payload is encoded as the event body.
type Event struct {
	Kind      EventKind
	LobbyCode string
	Payload   any
}

// PlayerJoinedPayload announces a new seat.
type PlayerJoinedPayload struct {
	LobbyCode string `json:"lobbyCode"`
	SessionID string `json:"sessionId"`
	PlayerID  string `json:"playerId"`
	Name      string `json:"name"`
	IsBot     bool   `json:"isBot"`
}

// LobbyListPayload is the global notice that a lobby changed status.
type LobbyListPayload struct {
	LobbyCode   string        `json:"lobbyCode"`
	SessionID   string        `json:"sessionId"`
	Status      engine.Status `json:"status"`
	PlayerCount int           `json:"playerCount"`
}

// sessionEvents derives the events for a committed transition from prev to next.
func sessionEvents(prev, next *engine.GameState) (room []Event, global []Event) {
	room = append(room, Event{Kind: EventSessionUpdate, LobbyCode: next.LobbyCode, Payload: NewView(next)})

	for _, p := range next.Players {
		if prev.PlayerIndex(p.ID) < 0 {
			room = append(room, Event{
				Kind:      EventPlayerJoined,
				LobbyCode: next.LobbyCode,
				Payload: PlayerJoinedPayload{
					LobbyCode: next.LobbyCode,
					SessionID: next.ID,
					PlayerID:  p.ID,
					Name:      p.Name,
					IsBot:     p.IsBot,
				},
			})
		}
	}

	if prev.Status != next.Status {
		if next.Status == engine.StatusPlaying {
			room = append(room, Event{Kind: EventSessionStarted, LobbyCode: next.LobbyCode, Payload: NewView(next)})
		}
		global = append(global, Event{
			Kind:      EventLobbyListUpdate,
			LobbyCode: next.LobbyCode,
			Payload: LobbyListPayload{
				LobbyCode:   next.LobbyCode,
				SessionID:   next.ID,
				Status:      next.Status,
				PlayerCount: len(next.Players),
			},
		})
	}
	return room, global
}
