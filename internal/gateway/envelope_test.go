// internal/gateway/envelope_test.go
package gateway

import (
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/dicehall/internal/game"
)

func TestEncodeFlattensPayload(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_770_000_000_000))
	enc := encoder{seq: &Sequencer{}, clock: mock}

	b, err := enc.encode(game.Event{
		Kind:      EventChatMessage,
		LobbyCode: "HJK234",
		Payload:   ChatPayload{LobbyCode: "HJK234", UserID: "u1", Message: "hi"},
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "chat-message", got["type"])
	assert.Equal(t, "HJK234", got["lobbyCode"])
	assert.Equal(t, "u1", got["userId"])
	assert.Equal(t, "hi", got["message"])
	assert.Equal(t, float64(1), got["sequenceId"])
	assert.Equal(t, float64(1_770_000_000_000), got["timestamp"])
	assert.Equal(t, ProtocolVersion, got["version"])
	assert.NotContains(t, got, "payload")
}

func TestEncodeNilPayload(t *testing.T) {
	enc := encoder{seq: &Sequencer{}, clock: clock.NewMock()}
	b, err := enc.encode(game.Event{Kind: EventJoinAck})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Len(t, got, 4)
}

func TestEncodeRejectsNonObjectPayload(t *testing.T) {
	enc := encoder{seq: &Sequencer{}, clock: clock.NewMock()}
	_, err := enc.encode(game.Event{Kind: EventChatMessage, Payload: []int{1, 2}})
	assert.Error(t, err)
}

func TestEnvelopeFieldsWinOverPayload(t *testing.T) {
	enc := encoder{seq: &Sequencer{}, clock: clock.NewMock()}
	b, err := enc.encode(game.Event{Kind: EventServerError, Payload: map[string]string{"type": "spoofed"}})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "server-error", got["type"])
}

func TestSequencerConcurrent(t *testing.T) {
	seq := &Sequencer{}
	const workers, each = 8, 200

	var (
		mu  sync.Mutex
		ids []uint64
		wg  sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, each)
			for i := 0; i < each; i++ {
				local = append(local, seq.Next())
			}
			mu.Lock()
			ids = append(ids, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	require.Len(t, ids, workers*each)
	for i, id := range ids {
		assert.Equal(t, uint64(i+1), id)
	}
}
