package port

import (
	"context"

	"github.com/brickparty/brick-party/internal/core/domain"
)

type OwnedRepository interface {
	// UpsertOwned stores the owned quantity of one key, last write wins
	UpsertOwned(ctx context.Context, change domain.OwnedChange) error

	// LoadOwned returns every stored key of a user's set
	LoadOwned(ctx context.Context, userID, setNumber string) (map[string]int, error)
}

type CatalogRepository interface {
	// LoadInventory returns the rows of a set with relations populated, nil if unknown
	LoadInventory(ctx context.Context, setNumber string) ([]domain.InventoryRow, error)
}
