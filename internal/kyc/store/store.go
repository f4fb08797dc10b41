// Package store persists KYC verification records.
package store

import (
	"context"

	"realhub/internal/authz"
	"realhub/internal/kyc/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
)

type Filter struct {
	Status statemachine.Status
}

type Store interface {
	// Create fails with sentinel.ErrConflict when the user already has a record.
	Create(ctx context.Context, verification *models.Verification) error
	FindByID(ctx context.Context, kycID id.KYCID) (*models.Verification, error)
	FindByUser(ctx context.Context, userID id.UserID) (*models.Verification, error)
	// Update fails with sentinel.ErrStaleState when the record version moved.
	Update(ctx context.Context, verification *models.Verification) error
	List(ctx context.Context, scope authz.Scope, filter Filter) ([]*models.Verification, error)
}

func matchesScope(v *models.Verification, scope authz.Scope) bool {
	if scope.All {
		return true
	}
	return !scope.UserID.IsNil() && v.UserID == scope.UserID
}
