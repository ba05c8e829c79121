package port

import (
	"context"

	"github.com/brickparty/brick-party/internal/core/domain"
)

type EventPublisher interface {
	// PublishOwnedChanged announces a persisted change to other devices
	PublishOwnedChanged(ctx context.Context, change domain.OwnedChange) error
}
