// Package session implements the TTL-bounded conversational message log,
// partitioned by (namespace, session id), on top of redis lists.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"ragchatgo/internal/models"
	"ragchatgo/internal/namespace"
	"ragchatgo/internal/redis"
)

// ErrStoreUnavailable reports that the backing redis could not be reached.
// Callers must not assume a failed append was applied.
var ErrStoreUnavailable = errors.New("session store unavailable")

// DefaultTTL is the sliding expiry applied on every write.
const DefaultTTL = 24 * time.Hour

// Store is the append-only-per-session message log. Appends reset the log's
// TTL; reads never touch it. Safe for concurrent use; redis RPUSH atomicity is
// the only per-session ordering guarantee.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func sessionKey(ns, sessionID string) string {
	return fmt.Sprintf("chat:%s:%s", namespace.Encode(ns), sessionID)
}

// Append adds one message to the session's log, creating the log if absent,
// and resets the TTL. TTL-on-write keeps active conversations alive while
// abandoned ones self-clean without a background sweep.
func (s *Store) Append(ctx context.Context, ns, sessionID string, role models.Role, content string) error {
	msg := models.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := sessionKey(ns, sessionID)
	if err := s.client.RPush(ctx, key, payload); err != nil {
		return fmt.Errorf("%w: append %s: %v", ErrStoreUnavailable, key, err)
	}
	if err := s.client.Expire(ctx, key, s.ttl); err != nil {
		return fmt.Errorf("%w: reset ttl %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Read returns messages in insertion order, oldest first. A positive limit
// restricts the result to the most recent limit messages, still oldest first.
// A missing log yields an empty slice. Entries that fail to parse are skipped
// and logged; they never abort the read.
func (s *Store) Read(ctx context.Context, ns, sessionID string, limit int) ([]models.Message, error) {
	key := sessionKey(ns, sessionID)
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, key, start, -1)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, key, err)
	}

	messages := make([]models.Message, 0, len(raw))
	for _, entry := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("skipping corrupted session record")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear deletes the entire log immediately, independent of TTL. Clearing a
// non-existent log is not an error.
func (s *Store) Clear(ctx context.Context, ns, sessionID string) error {
	key := sessionKey(ns, sessionID)
	if err := s.client.Del(ctx, key); err != nil && err != redis.ErrCacheMiss {
		return fmt.Errorf("%w: clear %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Health probes reachability. Readiness only; never called on the turn path.
func (s *Store) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("session store health check failed")
		return false
	}
	return true
}
