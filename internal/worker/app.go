// Package worker consumes task envelopes, dispatches them to handlers and
// publishes exactly one result envelope per completed or failed task.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/max-hertz-coder/RiverAI/internal/config"
	"github.com/max-hertz-coder/RiverAI/internal/crypto"
	"github.com/max-hertz-coder/RiverAI/internal/llm"
	"github.com/max-hertz-coder/RiverAI/internal/metrics"
	"github.com/max-hertz-coder/RiverAI/internal/models"
	"github.com/max-hertz-coder/RiverAI/internal/storage"
)

// ProfileStore is the relational-store surface the pipeline needs: profile
// lookup and usage accounting.
type ProfileStore interface {
	GetUser(ctx context.Context, userID int64) (*storage.User, error)
	GetStudent(ctx context.Context, studentID int64) (*storage.Student, error)
	ReserveUsage(ctx context.Context, userID int64, limit int) (bool, error)
	ReleaseUsage(ctx context.Context, userID int64) error
}

// ConversationCache is the bounded per-(user, student) history store.
type ConversationCache interface {
	Get(ctx context.Context, userID, studentID int64) (models.Conversation, bool, error)
	Save(ctx context.Context, userID, studentID int64, conv models.Conversation) error
	Clear(ctx context.Context, userID, studentID int64) error
}

// Renderer produces local PDF artifacts from completion text.
type Renderer interface {
	Plan(ctx context.Context, text string) (string, error)
	Tasks(ctx context.Context, parts []string) (string, error)
	Report(ctx context.Context, text string) (string, error)
}

// Uploader stores a local artifact in the user's remote storage.
type Uploader interface {
	Upload(ctx context.Context, token, localPath, remotePath string) error
}

// Coordinator provides the cross-worker coordination keys: processed
// markers for idempotent redelivery, attempt counters for the retry cap and
// per-conversation locks for chat ordering.
type Coordinator interface {
	MarkProcessed(ctx context.Context, taskID string) error
	IsProcessed(ctx context.Context, taskID string) (bool, error)
	NextAttempt(ctx context.Context, taskID string) (int64, error)
	AcquireChatLock(ctx context.Context, userID, studentID int64, ttl time.Duration) (bool, error)
	ReleaseChatLock(ctx context.Context, userID, studentID int64) error
}

// ResultPublisher publishes a result envelope to the result queue.
type ResultPublisher interface {
	PublishResult(ctx context.Context, body []byte) error
}

// App bundles the shared services handlers depend on. It is constructed
// once at startup and passed by reference, so there is no package-level
// mutable state.
type App struct {
	Cfg       *config.Config
	Log       zerolog.Logger
	Store     ProfileStore
	Cache     ConversationCache
	Codec     *crypto.Codec
	Completer llm.Completer
	Renderer  Renderer
	Uploader  Uploader
	Coord     Coordinator
	Metrics   *metrics.Metrics
}
