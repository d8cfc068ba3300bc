// Package llm exposes the text-completion capability behind a narrow
// interface: an ordered list of role-tagged turns plus a model tier in,
// completion text out. The vendor protocol stays behind this boundary.
package llm

import (
	"context"

	"github.com/max-hertz-coder/RiverAI/internal/models"
)

// Completer is the only contract the task handlers require.
type Completer interface {
	Complete(ctx context.Context, turns []models.Turn, model string) (string, error)
}
