package providers

import (
	"context"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

// SQLGenerator turns a natural-language question into SQL.
type SQLGenerator interface {
	Generate(ctx context.Context, question string, schema *entities.Schema, databaseKind, hints string) (string, error)
}

// ModelCorrector asks a model to repair a failing statement. Its output is untrusted.
type ModelCorrector interface {
	ProposeFix(ctx context.Context, failingSQL, errorText string, schema *entities.Schema, hints string) (string, error)
}

// LLMClient is a black-box text generation call.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
