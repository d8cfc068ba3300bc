package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("RIVERAI_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "task_queue", cfg.TaskQueue)
	assert.Equal(t, "result_queue", cfg.ResultQueue)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, int64(5), cfg.MaxAttempts)
	assert.Equal(t, 10, cfg.MaxHistoryTurns)
	assert.Equal(t, 90*time.Second, cfg.CompletionTimeout)
	assert.Equal(t, 50, cfg.QuotaFree)
	assert.Equal(t, 500, cfg.QuotaPremium)
}

func TestNewRequiresEncryptionKey(t *testing.T) {
	// Setenv registers the restore; the variable must be absent, not empty.
	t.Setenv("RIVERAI_ENCRYPTION_KEY", "x")
	os.Unsetenv("RIVERAI_ENCRYPTION_KEY")

	_, err := New()
	assert.Error(t, err)
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("RIVERAI_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("RIVERAI_TASK_QUEUE", "tasks.dev")
	t.Setenv("RIVERAI_WORKER_COUNT", "8")
	t.Setenv("RIVERAI_OPENAI_API_KEYS", "k1,k2,k3")
	t.Setenv("RIVERAI_CHAT_LOCK_TTL", "30s")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "tasks.dev", cfg.TaskQueue)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, []string{"k1", "k2", "k3"}, cfg.OpenAIKeys)
	assert.Equal(t, 30*time.Second, cfg.ChatLockTTL)
}

func TestNewNormalizesCounts(t *testing.T) {
	t.Setenv("RIVERAI_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("RIVERAI_WORKER_COUNT", "-2")
	t.Setenv("RIVERAI_MAX_ATTEMPTS", "0")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, int64(1), cfg.MaxAttempts)
}

func TestNewRejectsNonPositiveHistory(t *testing.T) {
	t.Setenv("RIVERAI_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("RIVERAI_MAX_HISTORY_TURNS", "0")

	_, err := New()
	assert.Error(t, err)
}

func TestQuotaFor(t *testing.T) {
	cfg := &Config{QuotaFree: 50, QuotaPremium: 500}
	assert.Equal(t, 50, cfg.QuotaFor("free"))
	assert.Equal(t, 50, cfg.QuotaFor(""))
	assert.Equal(t, 500, cfg.QuotaFor("premium"))
}

func TestModelFor(t *testing.T) {
	cfg := &Config{ModelStandard: "gpt-4o-mini", ModelElevated: "gpt-4o"}
	assert.Equal(t, "gpt-4o-mini", cfg.ModelFor("free"))
	assert.Equal(t, "gpt-4o", cfg.ModelFor("premium"))
	assert.Equal(t, "gpt-4o-mini", cfg.ModelFor("unknown"))
}
