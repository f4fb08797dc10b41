// Package store persists the billing aggregates. All stores share the
// optimistic-write contract: Update fails with sentinel.ErrStaleState when the
// row version moved under the caller.
package store

import (
	"context"

	"realhub/internal/authz"
	"realhub/internal/billing/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
)

type PaymentFilter struct {
	PropertyID id.PropertyID
	Status     statemachine.Status
}

// Payments persists payment rows. Visibility covers payer and receiver.
type Payments interface {
	// Create fails with sentinel.ErrConflict on a duplicate reference.
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	List(ctx context.Context, scope authz.Scope, filter PaymentFilter) ([]*models.Payment, error)
}

type InvoiceFilter struct {
	PropertyID id.PropertyID
	Status     statemachine.Status
}

// Invoices persists invoice rows. Visibility covers the billed user.
type Invoices interface {
	// Create fails with sentinel.ErrConflict on a duplicate invoice number.
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByID(ctx context.Context, invoiceID id.InvoiceID) (*models.Invoice, error)
	// FindByPayment returns the invoice linked to a payment, for the
	// settlement cascade.
	FindByPayment(ctx context.Context, paymentID id.PaymentID) (*models.Invoice, error)
	Update(ctx context.Context, invoice *models.Invoice) error
	List(ctx context.Context, scope authz.Scope, filter InvoiceFilter) ([]*models.Invoice, error)
}

type PlanFilter struct {
	PropertyID id.PropertyID
	ActiveOnly bool
}

// Plans persists payment plans. Plans are readable by any caller; the service
// restricts inactive plans to their owner.
type Plans interface {
	Create(ctx context.Context, plan *models.Plan) error
	FindByID(ctx context.Context, planID id.PlanID) (*models.Plan, error)
	Update(ctx context.Context, plan *models.Plan) error
	List(ctx context.Context, filter PlanFilter) ([]*models.Plan, error)
}

type SubscriptionFilter struct {
	PlanID id.PlanID
	Status statemachine.Status
}

// Subscriptions persists plan enrollments. Visibility covers the subscriber.
type Subscriptions interface {
	Create(ctx context.Context, subscription *models.Subscription) error
	FindByID(ctx context.Context, subscriptionID id.SubscriptionID) (*models.Subscription, error)
	Update(ctx context.Context, subscription *models.Subscription) error
	List(ctx context.Context, scope authz.Scope, filter SubscriptionFilter) ([]*models.Subscription, error)
}

func paymentInScope(p *models.Payment, scope authz.Scope) bool {
	if scope.All {
		return true
	}
	return !scope.UserID.IsNil() && (p.PayerID == scope.UserID || p.ReceiverID == scope.UserID)
}

func invoiceInScope(i *models.Invoice, scope authz.Scope) bool {
	if scope.All {
		return true
	}
	return !scope.UserID.IsNil() && i.UserID == scope.UserID
}

func subscriptionInScope(s *models.Subscription, scope authz.Scope) bool {
	if scope.All {
		return true
	}
	return !scope.UserID.IsNil() && s.UserID == scope.UserID
}
