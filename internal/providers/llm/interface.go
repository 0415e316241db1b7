package llm

import (
	"context"

	"github.com/example/command-translator/internal/models"
)

// Client sends one prompt to a model backend. Implementations make exactly
// one outbound request per call, never retry, and always sample with
// temperature 0. Failures are classified into the apperr taxonomy; a cancelled
// caller context is returned as ctx.Err() unchanged.
type Client interface {
	Invoke(ctx context.Context, p models.Prompt) (models.RawOutput, error)
	Name() string
}
