// Package store persists favorites. The (user, property) pair is unique.
package store

import (
	"context"

	"realhub/internal/favorite/models"
	id "realhub/pkg/domain"
)

type Store interface {
	// Create fails with sentinel.ErrConflict when the user already favorited
	// the property.
	Create(ctx context.Context, favorite *models.Favorite) error
	FindByID(ctx context.Context, favoriteID id.FavoriteID) (*models.Favorite, error)
	Delete(ctx context.Context, favoriteID id.FavoriteID) error
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Favorite, error)
	// DeleteByProperty removes all favorites of a deleted property.
	DeleteByProperty(ctx context.Context, propertyID id.PropertyID) error
}
