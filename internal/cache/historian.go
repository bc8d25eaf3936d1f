// internal/cache/historian.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GameActionRecord is one applied transition as recorded by the historian.
type GameActionRecord struct {
	GameID      string                 `json:"gameId"`
	LobbyCode   string                 `json:"lobbyCode"`
	ActionIndex int                    `json:"actionIndex"`
	ActorUserID string                 `json:"actorUserId,omitempty"` // Empty for server-driven transitions.
	ActionType  string                 `json:"actionType"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Timestamp   int64                  `json:"timestamp"` // Unix milliseconds.
}

// QueueKey is the list an external historian worker drains.
const QueueKey = "dicehall:actions:queue"

// sessionKeyTTL bounds how long a session's action list is kept for replay.
const sessionKeyTTL = 24 * time.Hour

// SessionKey returns the per-session action list key.
func SessionKey(gameID string) string {
	return fmt.Sprintf("dicehall:session:%s:actions", gameID)
}

// Historian appends action records to Redis lists.
type Historian struct {
	rdb redis.Cmdable
}

// NewHistorian wraps an existing client.
func NewHistorian(rdb redis.Cmdable) *Historian {
	return &Historian{rdb: rdb}
}

// Connect dials addr and verifies the connection with a PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// PublishGameAction pushes rec onto the shared queue and the session's own
// list in one pipeline.
func (h *Historian) PublishGameAction(ctx context.Context, rec GameActionRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action %d: %w", rec.ActionIndex, err)
	}
	key := SessionKey(rec.GameID)
	_, err = h.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, QueueKey, b)
		pipe.RPush(ctx, key, b)
		pipe.Expire(ctx, key, sessionKeyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish action %d for %s: %w", rec.ActionIndex, rec.GameID, err)
	}
	return nil
}

// SessionActions returns the recorded actions of one session in order.
func (h *Historian) SessionActions(ctx context.Context, gameID string) ([]GameActionRecord, error) {
	raw, err := h.rdb.LRange(ctx, SessionKey(gameID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read actions for %s: %w", gameID, err)
	}
	out := make([]GameActionRecord, 0, len(raw))
	for i, s := range raw {
		var rec GameActionRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decode action %d for %s: %w", i, gameID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
