// Package store persists property listings. The memory and Postgres
// implementations share optimistic-write semantics: Update fails with
// sentinel.ErrStaleState when the row version moved under the caller.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"realhub/internal/authz"
	"realhub/internal/property/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
)

// Filter narrows a property listing query. Zero values mean "no constraint".
type Filter struct {
	OwnerID      id.UserID
	Status       statemachine.Status
	PropertyType models.PropertyType
	ListingType  models.ListingType
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Location     string
	MinBedrooms  int
	MinBathrooms int
}

type Store interface {
	Create(ctx context.Context, property *models.Property) error
	FindByID(ctx context.Context, propertyID id.PropertyID) (*models.Property, error)
	Update(ctx context.Context, property *models.Property) error
	Delete(ctx context.Context, propertyID id.PropertyID) error
	List(ctx context.Context, scope authz.Scope, filter Filter) ([]*models.Property, error)
}

// matchesScope is shared by both implementations so visibility rules stay in
// one place: unrestricted, owner rows, and/or the public subset.
func matchesScope(p *models.Property, scope authz.Scope) bool {
	if scope.All {
		return true
	}
	if !scope.UserID.IsNil() && p.OwnerID == scope.UserID {
		return true
	}
	if scope.PublicOnly && p.IsPubliclyVisible() {
		return true
	}
	return false
}

func matchesFilter(p *models.Property, f Filter) bool {
	if !f.OwnerID.IsNil() && p.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.PropertyType != "" && p.PropertyType != f.PropertyType {
		return false
	}
	if f.ListingType != "" && p.ListingType != f.ListingType {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Location != "" && !matchesLocation(p, f.Location) {
		return false
	}
	if f.MinBedrooms > 0 && p.Bedrooms < f.MinBedrooms {
		return false
	}
	if f.MinBathrooms > 0 && p.Bathrooms < f.MinBathrooms {
		return false
	}
	return true
}
