// Package chatcache stores bounded per-(user, student) conversation history
// in redis, backing the multi-turn chat capability.
package chatcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/max-hertz-coder/RiverAI/internal/models"
	"github.com/max-hertz-coder/RiverAI/internal/redis"
)

// Store persists conversations keyed by (user, student). A zero ttl keeps
// entries until explicitly cleared.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// New creates a conversation store.
func New(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Store {
	return &Store{rdb: rdb, ttl: ttl, log: log}
}

func key(userID, studentID int64) string {
	return fmt.Sprintf("chat:%d:%d", userID, studentID)
}

// Get returns the stored conversation and whether one exists. A corrupt
// entry is treated as absent so a chat can restart instead of wedging.
func (s *Store) Get(ctx context.Context, userID, studentID int64) (models.Conversation, bool, error) {
	raw, err := s.rdb.Get(ctx, key(userID, studentID))
	if err == redis.ErrCacheMiss {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get conversation: %w", err)
	}
	var conv models.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		s.log.Warn().Int64("user_id", userID).Int64("student_id", studentID).
			Err(err).Msg("conversation entry corrupt, starting fresh")
		return nil, false, nil
	}
	return conv, true, nil
}

// Save stores the conversation, replacing any previous entry.
func (s *Store) Save(ctx context.Context, userID, studentID int64, conv models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.rdb.Set(ctx, key(userID, studentID), data, s.ttl); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Clear deletes the conversation for a (user, student) pair.
func (s *Store) Clear(ctx context.Context, userID, studentID int64) error {
	if err := s.rdb.Del(ctx, key(userID, studentID)); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}
