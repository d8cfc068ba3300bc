package redis

import (
	"context"
	"fmt"
	"time"
)

// Processed markers and attempt counters expire on their own so a stalled
// deployment does not leak keys forever; both windows comfortably exceed any
// realistic redelivery interval.
const (
	processedTTL = 72 * time.Hour
	attemptTTL   = 24 * time.Hour
)

// MarkProcessed records that the task's result has been published.
func (c *Client) MarkProcessed(ctx context.Context, taskID string) error {
	return c.Set(ctx, "task:done:"+taskID, "1", processedTTL)
}

// IsProcessed reports whether the task already produced a published result.
func (c *Client) IsProcessed(ctx context.Context, taskID string) (bool, error) {
	_, err := c.Get(ctx, "task:done:"+taskID)
	if err == ErrCacheMiss {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NextAttempt returns the delivery attempt number for a task, starting at 1.
func (c *Client) NextAttempt(ctx context.Context, taskID string) (int64, error) {
	return c.IncrWithTTL(ctx, "task:attempt:"+taskID, attemptTTL)
}

// AcquireChatLock takes the per-conversation lock that serializes chat turns
// for one (user, student) pair across workers. Returns false when another
// worker holds it.
func (c *Client) AcquireChatLock(ctx context.Context, userID, studentID int64, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, chatLockKey(userID, studentID), "1", ttl)
}

// ReleaseChatLock drops the per-conversation lock.
func (c *Client) ReleaseChatLock(ctx context.Context, userID, studentID int64) error {
	return c.Del(ctx, chatLockKey(userID, studentID))
}

func chatLockKey(userID, studentID int64) string {
	return fmt.Sprintf("chat:lock:%d:%d", userID, studentID)
}
