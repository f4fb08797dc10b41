// Package store persists leads and their message threads.
package store

import (
	"context"

	"realhub/internal/authz"
	"realhub/internal/lead/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
)

type Filter struct {
	PropertyID id.PropertyID
	Status     statemachine.Status
}

type Store interface {
	Create(ctx context.Context, lead *models.Lead) error
	FindByID(ctx context.Context, leadID id.LeadID) (*models.Lead, error)
	// Update fails with sentinel.ErrStaleState when the row version moved.
	Update(ctx context.Context, lead *models.Lead) error
	List(ctx context.Context, scope authz.Scope, filter Filter) ([]*models.Lead, error)
	// DeleteByProperty removes all leads (and their messages) for a property.
	DeleteByProperty(ctx context.Context, propertyID id.PropertyID) error

	CreateMessage(ctx context.Context, message *models.Message) error
	FindMessage(ctx context.Context, messageID id.MessageID) (*models.Message, error)
	UpdateMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, leadID id.LeadID) ([]*models.Message, error)
}

// Lead visibility covers both participants: the inquirer and the property
// owner. Leads have no public subset.
func matchesScope(l *models.Lead, scope authz.Scope) bool {
	if scope.All {
		return true
	}
	return !scope.UserID.IsNil() && l.IsParticipant(scope.UserID)
}
