// Package models holds the favorite aggregate: a user's bookmark on a
// publicly visible property.
package models

import (
	"time"

	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

// Favorite is immutable once created; removing one deletes the row.
type Favorite struct {
	ID         id.FavoriteID `json:"id"`
	UserID     id.UserID     `json:"user_id"`
	PropertyID id.PropertyID `json:"property_id"`
	CreatedAt  time.Time     `json:"created_at"`
}

func NewFavorite(favoriteID id.FavoriteID, userID id.UserID, propertyID id.PropertyID, now time.Time) (*Favorite, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user is required")
	}
	if propertyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "property is required")
	}
	return &Favorite{
		ID:         favoriteID,
		UserID:     userID,
		PropertyID: propertyID,
		CreatedAt:  now,
	}, nil
}
