// internal/presence/manager.go
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// cleanupTimeout bounds the state change made when a grace period runs out.
const cleanupTimeout = 10 * time.Second

// Sessions applies connection changes to a lobby's session.
type Sessions interface {
	MarkInactive(ctx context.Context, lobbyCode, userID string) ([]string, error)
	Rejoin(ctx context.Context, lobbyCode, userID string) error
}

// Connections reports live sockets.
type Connections interface {
	HasActiveConnection(lobbyCode, userID string) bool
}

type key struct {
	lobby string
	user  string
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

type pendingCleanup struct {
	gen   uint64
	timer *clock.Timer
}

// Manager gives disconnected players a grace period before they leave the
// rotation. A disconnect alone never touches session state; only the expiry
// of an uncancelled timer does.
type Manager struct {
	clock    clock.Clock
	grace    time.Duration
	sessions Sessions
	conns    Connections
	log      logrus.FieldLogger

	mu      sync.Mutex
	pending map[key]*pendingCleanup
	keys    map[key]*keyLock
	gen     uint64
	closed  bool
}

// NewManager returns a manager with the given grace period.
func NewManager(sessions Sessions, conns Connections, grace time.Duration, clk clock.Clock, log logrus.FieldLogger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		clock:    clk,
		grace:    grace,
		sessions: sessions,
		conns:    conns,
		log:      log,
		pending:  make(map[key]*pendingCleanup),
		keys:     make(map[key]*keyLock),
	}
}

// OnDisconnect starts the grace period for userID in lobbyCode, replacing any
// period already running for the same pair.
func (m *Manager) OnDisconnect(lobbyCode, userID string) {
	k := key{lobbyCode, userID}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if old := m.pending[k]; old != nil {
		old.timer.Stop()
	}
	m.gen++
	gen := m.gen
	m.pending[k] = &pendingCleanup{
		gen:   gen,
		timer: m.clock.AfterFunc(m.grace, func() { m.expire(k, gen) }),
	}
	m.log.WithFields(logrus.Fields{"lobby": lobbyCode, "user": userID, "grace": m.grace}).Debug("Disconnect grace period started")
}

// OnJoin cancels any pending cleanup and marks the player connected again.
// It waits for a cleanup already in progress for the pair, so the rejoin
// always lands after it.
func (m *Manager) OnJoin(ctx context.Context, lobbyCode, userID string) error {
	unlock := m.lockKey(key{lobbyCode, userID})
	defer unlock()
	m.Cancel(lobbyCode, userID)
	return m.sessions.Rejoin(ctx, lobbyCode, userID)
}

// Cancel stops a pending cleanup. It reports whether one was pending and is
// safe to call any number of times.
func (m *Manager) Cancel(lobbyCode, userID string) bool {
	k := key{lobbyCode, userID}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[k]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(m.pending, k)
	return true
}

// Pending reports whether a cleanup is scheduled for the pair.
func (m *Manager) Pending(lobbyCode, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[key{lobbyCode, userID}]
	return ok
}

// Close stops every pending cleanup. Later disconnects are ignored.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for k, p := range m.pending {
		p.timer.Stop()
		delete(m.pending, k)
	}
}

// expire runs when a grace period ends. Timers that were replaced or
// cancelled after firing find a different generation and do nothing.
func (m *Manager) expire(k key, gen uint64) {
	unlock := m.lockKey(k)
	defer unlock()

	m.mu.Lock()
	p := m.pending[k]
	if p == nil || p.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.pending, k)
	m.mu.Unlock()

	logger := m.log.WithFields(logrus.Fields{"lobby": k.lobby, "user": k.user})
	if m.conns != nil && m.conns.HasActiveConnection(k.lobby, k.user) {
		logger.Debug("Grace period ended with a live connection, skipping cleanup")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	skipped, err := m.sessions.MarkInactive(ctx, k.lobby, k.user)
	if err != nil {
		logger.WithError(err).Error("Failed to mark disconnected player inactive")
		return
	}
	logger.WithField("skipped", skipped).Info("Disconnected player marked inactive")
}

// lockKey serializes expiry and rejoin for one pair. The connection check and
// the inactive commit happen under it.
func (m *Manager) lockKey(k key) func() {
	m.mu.Lock()
	l := m.keys[k]
	if l == nil {
		l = &keyLock{}
		m.keys[k] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(m.keys, k)
		}
		m.mu.Unlock()
	}
}
