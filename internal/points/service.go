// Package points serves point-of-interest lists with in-memory caching.
package points

import (
	"context"

	"gitlab.com/yelinaung/navigator-bot/internal/models"
)

// Lister returns the points of a location. It is implemented by
// repository.PointRepository and by CachedLister.
type Lister interface {
	GetPointsList(ctx context.Context, location string) ([]models.Point, error)
}
