package port

import (
	"context"

	"github.com/brickparty/brick-party/internal/core/domain"
)

type OutboxRepository interface {
	// Save keeps a change that could not be forwarded
	Save(ctx context.Context, change domain.OwnedChange) error

	// Pending returns up to limit unsent changes, oldest first
	Pending(ctx context.Context, limit int) ([]domain.OwnedChange, error)

	// MarkDone removes a change once it has been persisted
	MarkDone(ctx context.Context, id string) error
}
