package service

import (
	"context"

	"FinScout/internal/domain/models"
)

// SourceGateway queries one intelligence source through the agent runtime.
// A transport failure is returned as an error; a source that answered but
// could not produce data comes back with Success=false.
type SourceGateway interface {
	Query(ctx context.Context, source models.SourceName, mc models.MarketContext) (models.SourceResponse, error)
}

// ModelBackend sends a prompt to a concrete language model.
type ModelBackend interface {
	Invoke(ctx context.Context, prompt string, model models.ModelDescriptor, opts models.InvocationOptions) (models.InvocationResponse, error)
}
