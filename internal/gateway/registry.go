// internal/gateway/registry.go
package gateway

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/dicehall/internal/game"
)

// sendBuffer is how many frames may queue for one connection before it is
// considered too slow and dropped.
const sendBuffer = 64

// RoomName is the broadcast room for a lobby.
func RoomName(lobbyCode string) string { return "lobby:" + lobbyCode }

// Room is the set of connections subscribed to one lobby. Membership in a
// room grants nothing by itself; joins are authorized against the store.
type Room struct {
	Name      string
	LobbyCode string
	members   map[*client]struct{}
}

func newRoom(lobbyCode string) *Room {
	return &Room{Name: RoomName(lobbyCode), LobbyCode: lobbyCode, members: make(map[*client]struct{})}
}

// client is one websocket connection.
type client struct {
	id        string
	user      Identity
	send      chan []byte
	limiter   *rateLimiter
	closeSlow func()

	lobby string // guarded by Registry.mu
}

// Registry tracks live connections and their rooms. It implements
// game.Broadcaster and presence.Connections.
type Registry struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	rooms   map[string]*Room
	enc     encoder
	log     logrus.FieldLogger
}

// NewRegistry returns an empty registry stamping frames from seq.
func NewRegistry(seq *Sequencer, clk clock.Clock, log logrus.FieldLogger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		clients: make(map[*client]struct{}),
		rooms:   make(map[string]*Room),
		enc:     encoder{seq: seq, clock: clk},
		log:     log,
	}
}

func (r *Registry) add(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

// remove drops c and returns the lobby it was in.
func (r *Registry) remove(c *client) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return r.leaveLocked(c)
}

// join moves c into lobbyCode's room and returns the lobby it left, if any.
func (r *Registry) join(c *client, lobbyCode string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.lobby == lobbyCode {
		return ""
	}
	prev := r.leaveLocked(c)
	room := r.rooms[lobbyCode]
	if room == nil {
		room = newRoom(lobbyCode)
		r.rooms[lobbyCode] = room
	}
	room.members[c] = struct{}{}
	c.lobby = lobbyCode
	return prev
}

// leave takes c out of its room and returns the lobby it left.
func (r *Registry) leave(c *client) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(c)
}

func (r *Registry) leaveLocked(c *client) string {
	prev := c.lobby
	if prev == "" {
		return ""
	}
	if room := r.rooms[prev]; room != nil {
		delete(room.members, c)
		if len(room.members) == 0 {
			delete(r.rooms, prev)
		}
	}
	c.lobby = ""
	return prev
}

// lobbyOf returns the lobby c has joined.
func (r *Registry) lobbyOf(c *client) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return c.lobby
}

// HasActiveConnection reports whether userID has a live connection in the
// lobby's room.
func (r *Registry) HasActiveConnection(lobbyCode, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[lobbyCode]
	if room == nil {
		return false
	}
	for c := range room.members {
		if c.user.UserID == userID {
			return true
		}
	}
	return false
}

// Broadcast sends ev to everyone in the lobby's room without blocking.
func (r *Registry) Broadcast(lobbyCode string, ev game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[lobbyCode]
	if room == nil || len(room.members) == 0 {
		return
	}
	msg, err := r.enc.encode(ev)
	if err != nil {
		r.log.WithError(err).WithField("lobby", lobbyCode).Error("Failed to encode event")
		return
	}
	for c := range room.members {
		r.deliver(c, msg)
	}
}

// BroadcastAll sends ev to every connection.
func (r *Registry) BroadcastAll(ev game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) == 0 {
		return
	}
	msg, err := r.enc.encode(ev)
	if err != nil {
		r.log.WithError(err).Error("Failed to encode event")
		return
	}
	for c := range r.clients {
		r.deliver(c, msg)
	}
}

// sendTo sends ev to a single connection.
func (r *Registry) sendTo(c *client, ev game.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, err := r.enc.encode(ev)
	if err != nil {
		r.log.WithError(err).WithField("conn", c.id).Error("Failed to encode event")
		return
	}
	r.deliver(c, msg)
}

// deliver queues msg for c. A full queue closes the connection instead of
// blocking. Assumes r.mu is held.
func (r *Registry) deliver(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		r.log.WithFields(logrus.Fields{"conn": c.id, "user": c.user.UserID}).Warn("Connection too slow, closing")
		if c.closeSlow != nil {
			go c.closeSlow()
		}
	}
}

// Rooms returns the names of rooms with at least one connection.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for _, room := range r.rooms {
		names = append(names, room.Name)
	}
	sort.Strings(names)
	return names
}

// size reports the number of live connections.
func (r *Registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
