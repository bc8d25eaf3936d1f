// internal/gateway/registry_test.go
package gateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/dicehall/internal/game"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewRegistry(&Sequencer{}, clock.NewMock(), log)
}

func newTestClient(id, user string) *client {
	return &client{id: id, user: Identity{UserID: user}, send: make(chan []byte, sendBuffer)}
}

func drain(c *client) []map[string]any {
	var out []map[string]any
	for {
		select {
		case msg := <-c.send:
			var m map[string]any
			if err := json.Unmarshal(msg, &m); err == nil {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func TestRegistryRooms(t *testing.T) {
	r := newTestRegistry(t)
	a, b, c := newTestClient("1", "ua"), newTestClient("2", "ub"), newTestClient("3", "uc")
	for _, cl := range []*client{a, b, c} {
		r.add(cl)
	}
	assert.Equal(t, 3, r.size())

	assert.Empty(t, r.join(a, "HJK234"))
	assert.Empty(t, r.join(b, "HJK234"))
	assert.Empty(t, r.join(c, "MNP567"))
	assert.Empty(t, r.join(a, "HJK234"), "joining the same room again is a no-op")
	assert.Equal(t, []string{"lobby:HJK234", "lobby:MNP567"}, r.Rooms())

	r.Broadcast("HJK234", game.Event{Kind: EventChatMessage, Payload: ChatPayload{Message: "hi"}})
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(c))

	r.BroadcastAll(game.Event{Kind: game.EventLobbyListUpdate})
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(c), 1)

	assert.Equal(t, "HJK234", r.join(b, "MNP567"), "switching rooms reports the old one")
	assert.False(t, r.HasActiveConnection("HJK234", "ub"))
	assert.True(t, r.HasActiveConnection("MNP567", "ub"))

	assert.Equal(t, "HJK234", r.remove(a))
	assert.False(t, r.HasActiveConnection("HJK234", "ua"))
	assert.Equal(t, 2, r.size())
	assert.Equal(t, "MNP567", r.leave(c))
	assert.Empty(t, r.leave(c))
	assert.Equal(t, []string{"lobby:MNP567"}, r.Rooms(), "b is still in MNP567")
}

func TestRegistryHasActiveConnectionAcrossTabs(t *testing.T) {
	r := newTestRegistry(t)
	tab1, tab2 := newTestClient("1", "ua"), newTestClient("2", "ua")
	r.add(tab1)
	r.add(tab2)
	r.join(tab1, "HJK234")
	r.join(tab2, "HJK234")

	r.remove(tab1)
	assert.True(t, r.HasActiveConnection("HJK234", "ua"))
	r.remove(tab2)
	assert.False(t, r.HasActiveConnection("HJK234", "ua"))
}

func TestRegistryClosesSlowClient(t *testing.T) {
	r := newTestRegistry(t)
	closed := make(chan struct{})
	var once sync.Once
	slow := &client{id: "slow", user: Identity{UserID: "u"}, send: make(chan []byte, 1), closeSlow: func() { once.Do(func() { close(closed) }) }}
	r.add(slow)
	r.join(slow, "HJK234")

	r.Broadcast("HJK234", game.Event{Kind: EventTypingIndicator})
	r.Broadcast("HJK234", game.Event{Kind: EventTypingIndicator})

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("slow client was not closed")
	}
	assert.Len(t, slow.send, 1, "the broadcaster never blocks on a full queue")
}

func TestRegistrySequenceIDsIncreasePerClient(t *testing.T) {
	r := newTestRegistry(t)
	c := newTestClient("1", "ua")
	r.add(c)
	r.join(c, "HJK234")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 15; i++ {
				r.Broadcast("HJK234", game.Event{Kind: EventTypingIndicator})
			}
		}()
	}
	wg.Wait()

	frames := drain(c)
	require.Len(t, frames, 60)
	last := 0.0
	for _, f := range frames {
		id := f["sequenceId"].(float64)
		assert.Greater(t, id, last)
		last = id
	}
}
