// Package models holds the property listing aggregate.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

// PropertyType classifies the listing.
type PropertyType string

const (
	TypeApartment  PropertyType = "apartment"
	TypeHouse      PropertyType = "house"
	TypeLand       PropertyType = "land"
	TypeCommercial PropertyType = "commercial"
	TypeOffice     PropertyType = "office"
)

var validPropertyTypes = map[PropertyType]bool{
	TypeApartment:  true,
	TypeHouse:      true,
	TypeLand:       true,
	TypeCommercial: true,
	TypeOffice:     true,
}

func (t PropertyType) IsValid() bool { return validPropertyTypes[t] }

// ListingType distinguishes sale from rental listings.
type ListingType string

const (
	ListingForSale ListingType = "for_sale"
	ListingForRent ListingType = "for_rent"
)

func (t ListingType) IsValid() bool {
	return t == ListingForSale || t == ListingForRent
}

// Property is the aggregate root for a listing.
//
// Invariants:
//   - OwnerID is set at creation and immutable
//   - REJECTED implies a non-empty RejectionReason
//   - VERIFIED implies VerifiedBy set, VerifiedAt set, and RejectionReason empty
//   - Price is a positive fixed-point amount with 2 fractional digits
type Property struct {
	ID              id.PropertyID       `json:"id"`
	OwnerID         id.UserID           `json:"owner_id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Price           decimal.Decimal     `json:"price"`
	PropertyType    PropertyType        `json:"property_type"`
	ListingType     ListingType         `json:"listing_type"`
	Address         string              `json:"address"`
	City            string              `json:"city"`
	State           string              `json:"state"`
	Bedrooms        int                 `json:"bedrooms,omitempty"`
	Bathrooms       int                 `json:"bathrooms,omitempty"`
	SizeSqm         decimal.Decimal     `json:"size_sqm,omitempty"`
	Amenities       []string            `json:"amenities,omitempty"`
	Status          statemachine.Status `json:"verification_status"`
	RejectionReason string              `json:"rejection_reason,omitempty"`
	VerifiedBy      id.UserID           `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time          `json:"verified_at,omitempty"`
	Featured        bool                `json:"is_featured"`
	Active          bool                `json:"is_active"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Version         int                 `json:"-"`
}

// NewProperty constructs a listing in PENDING state, validating invariants.
func NewProperty(propertyID id.PropertyID, ownerID id.UserID, title string, price decimal.Decimal, propertyType PropertyType, listingType ListingType, now time.Time) (*Property, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title cannot be empty")
	}
	if len(title) > 255 {
		return nil, dErrors.New(dErrors.CodeValidation, "title must be 255 characters or less")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "owner is required")
	}
	if !price.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "price must be positive")
	}
	if !propertyType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid property type")
	}
	if !listingType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid listing type")
	}
	return &Property{
		ID:           propertyID,
		OwnerID:      ownerID,
		Title:        title,
		Price:        price.Round(2),
		PropertyType: propertyType,
		ListingType:  listingType,
		Status:       statemachine.PropertyPending,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}, nil
}

// IsPubliclyVisible reports whether unauthenticated and buyer traffic may see
// the listing.
func (p *Property) IsPubliclyVisible() bool {
	return p.Active && p.Status == statemachine.PropertyVerified
}

// ApplyVerification stamps the verifier and clears any prior rejection.
func (p *Property) ApplyVerification(verifier id.UserID, now time.Time) {
	p.Status = statemachine.PropertyVerified
	p.RejectionReason = ""
	p.VerifiedBy = verifier
	t := now
	p.VerifiedAt = &t
	p.UpdatedAt = now
}

// ApplyRejection records the reason and clears the verifier stamp.
func (p *Property) ApplyRejection(reason string, now time.Time) {
	p.Status = statemachine.PropertyRejected
	p.RejectionReason = reason
	p.VerifiedBy = id.UserID{}
	p.VerifiedAt = nil
	p.UpdatedAt = now
}

// ApplyReopen returns the listing to the review queue.
func (p *Property) ApplyReopen(now time.Time) {
	p.Status = statemachine.PropertyPending
	p.RejectionReason = ""
	p.VerifiedBy = id.UserID{}
	p.VerifiedAt = nil
	p.UpdatedAt = now
}
