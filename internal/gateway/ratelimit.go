// internal/gateway/ratelimit.go
package gateway

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// rateWindow is the fixed window inbound frames are counted over.
const rateWindow = time.Second

// rateLimiter allows up to limit events per fixed one-second window.
type rateLimiter struct {
	mu    sync.Mutex
	clock clock.Clock
	limit int
	start time.Time
	count int
}

func newRateLimiter(c clock.Clock, limit int) *rateLimiter {
	return &rateLimiter{clock: c, limit: limit}
}

// Allow counts one event and reports whether it fits in the current window.
// A non-positive limit disables limiting.
func (l *rateLimiter) Allow() bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if now.Sub(l.start) >= rateWindow {
		l.start = now
		l.count = 0
	}
	if l.count >= l.limit {
		return false
	}
	l.count++
	return true
}
