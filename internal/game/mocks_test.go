// internal/game/mocks_test.go
package game

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	engine "github.com/jason-s-yu/dicehall/engine"
	"github.com/jason-s-yu/dicehall/internal/cache"
	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
	"github.com/jason-s-yu/dicehall/internal/models"
)

// memStore keeps sessions as JSON so every load returns a fresh copy, the
// way a real store does. It also serves as the lobby directory.
type memStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
	lobbies  map[string]models.Lobby
	members  map[string]map[string]bool // code -> user -> removed
	saves    int
	failSave error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string][]byte),
		lobbies:  make(map[string]models.Lobby),
		members:  make(map[string]map[string]bool),
	}
}

func (m *memStore) LoadSession(_ context.Context, id string) (*engine.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "session %s not found", id)
	}
	var s engine.GameState
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStateCorruption, "decode session", err)
	}
	return &s, nil
}

func (m *memStore) SaveSession(_ context.Context, s *engine.GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = b
	m.saves++
	return nil
}

func (m *memStore) IsActivePlayer(ctx context.Context, code, userID string) (bool, error) {
	m.mu.Lock()
	removed, ok := m.members[code][userID]
	lobby, found := m.lobbies[code]
	m.mu.Unlock()
	if !ok || removed || !found {
		return false, nil
	}
	s, err := m.LoadSession(ctx, lobby.SessionID)
	if err != nil {
		return false, err
	}
	return !s.IsTerminal(), nil
}

func (m *memStore) CreateLobby(_ context.Context, l models.Lobby) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lobbies[l.Code]; ok {
		return apperrors.Conflict("lobby code taken", models.ErrLobbyCodeTaken)
	}
	m.lobbies[l.Code] = l
	return nil
}

func (m *memStore) Lobby(_ context.Context, code string) (models.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[code]
	if !ok {
		return models.Lobby{}, apperrors.Newf(apperrors.CodeLobbyNotFound, "lobby %s not found", code)
	}
	return l, nil
}

func (m *memStore) SessionForLobby(ctx context.Context, code string) (string, error) {
	l, err := m.Lobby(ctx, code)
	if err != nil {
		return "", err
	}
	return l.SessionID, nil
}

func (m *memStore) AddMember(_ context.Context, code, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[code] == nil {
		m.members[code] = make(map[string]bool)
	}
	if removed, ok := m.members[code][userID]; ok && removed {
		return apperrors.Newf(apperrors.CodeLobbyAccessDenied, "%s was removed from lobby %s", userID, code)
	}
	m.members[code][userID] = false
	return nil
}

func (m *memStore) RemoveMember(_ context.Context, code, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[code][userID]; !ok {
		return apperrors.Newf(apperrors.CodeNotFound, "%s is not in lobby %s", userID, code)
	}
	m.members[code][userID] = true
	return nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memStore) setFailSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSave = err
}

// mockBroadcaster captures events for assertions.
type mockBroadcaster struct {
	mu     sync.Mutex
	room   []Event
	global []Event
}

func (mb *mockBroadcaster) Broadcast(_ string, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.room = append(mb.room, ev)
}

func (mb *mockBroadcaster) BroadcastAll(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.global = append(mb.global, ev)
}

func (mb *mockBroadcaster) count() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.room) + len(mb.global)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.room, mb.global = nil, nil
}

func (mb *mockBroadcaster) findEvent(kind EventKind) *Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for _, list := range [][]Event{mb.room, mb.global} {
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].Kind == kind {
				ev := list[i]
				return &ev
			}
		}
	}
	return nil
}

// mockHistorian collects published records.
type mockHistorian struct {
	mu      sync.Mutex
	records []cache.GameActionRecord
}

func (h *mockHistorian) PublishGameAction(_ context.Context, rec cache.GameActionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *mockHistorian) snapshot() []cache.GameActionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]cache.GameActionRecord(nil), h.records...)
}

// testPipeline bundles a pipeline and its collaborators.
type testPipeline struct {
	*Pipeline
	store *memStore
	bc    *mockBroadcaster
	hist  *mockHistorian
	clock *clock.Mock
}

func newTestPipeline(t *testing.T, opts ...Option) *testPipeline {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	tp := &testPipeline{
		store: newMemStore(),
		bc:    &mockBroadcaster{},
		hist:  &mockHistorian{},
		clock: mock,
	}
	base := []Option{WithClock(mock), WithLogger(log), WithHistorian(tp.hist)}
	tp.Pipeline = NewPipeline(tp.store, tp.bc, append(base, opts...)...)
	t.Cleanup(tp.Pipeline.Close)
	return tp
}

// seed creates a session with the given players, started unless ids is empty.
func (tp *testPipeline) seed(t *testing.T, id string, start bool, ids ...string) *engine.GameState {
	t.Helper()
	g := engine.NewGame(id, "HJK234", 42, engine.DefaultHouseRules())
	for _, pid := range ids {
		require.NoError(t, g.AddPlayer(engine.Player{ID: pid, Name: "name-" + pid}))
	}
	require.NoError(t, tp.Create(context.Background(), g))
	if start {
		var err error
		g, err = tp.Start(context.Background(), id)
		require.NoError(t, err)
	}
	return g
}
