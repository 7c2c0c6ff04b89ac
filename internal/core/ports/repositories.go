package ports

import (
	"context"

	"github.com/samirrijal/shoptrip/internal/core/domain"
)

// LocationSource loads the full location pool. Implementations must honour
// ctx cancellation.
type LocationSource interface {
	LoadLocations(ctx context.Context) ([]domain.Location, error)
}

// LocationRepository persists the location catalog.
type LocationRepository interface {
	LocationSource
	GetByID(ctx context.Context, id string) (*domain.Location, error)
	UpsertBatch(ctx context.Context, locs []domain.Location) error
}
