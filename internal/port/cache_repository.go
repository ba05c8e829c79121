package port

import (
	"context"

	"github.com/brickparty/brick-party/internal/core/domain"
)

type CacheRepository interface {
	// CachedInventory returns cached rows of a set, false on miss
	CachedInventory(ctx context.Context, setNumber string) ([]domain.InventoryRow, bool, error)

	// CacheInventory stores rows of a set until the cache TTL expires
	CacheInventory(ctx context.Context, setNumber string, rows []domain.InventoryRow) error

	// MirrorOwned writes one change into the owned hash, returns false if the
	// value was already stored or a newer change got there first
	MirrorOwned(ctx context.Context, change domain.OwnedChange) (bool, error)

	// MirroredOwned returns the owned hash of a user's set, false if absent
	MirroredOwned(ctx context.Context, userID, setNumber string) (map[string]int, bool, error)

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops the key so a failed change can be replayed
	ReleaseIdempotency(ctx context.Context, key string) error
}
