// Package service implements billing: payments with their settlement flow,
// invoices with lazy overdue derivation, payment plans, and subscriptions with
// lazy expiry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"realhub/internal/authz"
	"realhub/internal/billing/models"
	"realhub/internal/billing/store"
	"realhub/internal/events"
	"realhub/internal/identity"
	"realhub/internal/platform/metrics"
	propertymodels "realhub/internal/property/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/platform/tx"
	"realhub/pkg/requestcontext"
)

// PropertyLookup is the slice of the property store billing needs: deriving
// the payment receiver and checking plan/invoice ownership.
type PropertyLookup interface {
	FindByID(ctx context.Context, propertyID id.PropertyID) (*propertymodels.Property, error)
}

type Service struct {
	payments      store.Payments
	invoices      store.Invoices
	plans         store.Plans
	subscriptions store.Subscriptions
	properties    PropertyLookup
	authz         *authz.Engine
	transitions   *statemachine.Engine
	publisher     events.Publisher
	txRunner      *tx.Runner
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(payments store.Payments, invoices store.Invoices, plans store.Plans, subscriptions store.Subscriptions, properties PropertyLookup, authzEngine *authz.Engine, transitions *statemachine.Engine, publisher events.Publisher, txRunner *tx.Runner, opts ...Option) *Service {
	s := &Service{
		payments:      payments,
		invoices:      invoices,
		plans:         plans,
		subscriptions: subscriptions,
		properties:    properties,
		authz:         authzEngine,
		transitions:   transitions,
		publisher:     publisher,
		txRunner:      txRunner,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreatePaymentInput struct {
	PropertyID id.PropertyID
	InvoiceID  id.InvoiceID
	Amount     decimal.Decimal
	Type       models.PaymentType
	Method     models.PaymentMethod
	Reference  string
}

// CreatePayment opens a PENDING payment. The receiver is the property owner,
// fixed at creation. Linking an invoice binds it for the settlement cascade.
func (s *Service) CreatePayment(ctx context.Context, actor identity.Actor, in CreatePaymentInput) (*models.Payment, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	if !actor.Verified && !actor.Role.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "account must be verified to make payments")
	}

	property, err := s.properties.FindByID(ctx, in.PropertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading property")
	}

	now := requestcontext.Now(ctx)
	payment, err := models.NewPayment(id.PaymentID(uuid.New()), in.PropertyID, actor.ID, property.OwnerID, in.Amount, in.Type, in.Method, in.Reference, now)
	if err != nil {
		return nil, err
	}

	var invoice *models.Invoice
	if !in.InvoiceID.IsNil() {
		invoice, err = s.invoices.FindByID(ctx, in.InvoiceID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeNotFound, "invoice not found")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading invoice")
		}
		if invoice.UserID != actor.ID && !actor.Role.IsAdmin() {
			return nil, dErrors.New(dErrors.CodeNotFound, "invoice not found")
		}
		invoice.Derive(now)
		if invoice.Status != statemachine.InvoicePending && invoice.Status != statemachine.InvoiceOverdue {
			return nil, dErrors.New(dErrors.CodeValidation, "invoice is not payable")
		}
		// The link is fixed at creation and drives the settlement cascade.
		// Re-linking is allowed only after the earlier payment FAILED.
		if !invoice.PaymentID.IsNil() {
			linked, err := s.payments.FindByID(ctx, invoice.PaymentID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading linked payment")
			}
			if err == nil && linked.Status != statemachine.PaymentFailed {
				return nil, dErrors.New(dErrors.CodeConflict, "invoice is already linked to a payment")
			}
		}
	}

	err = s.txRunner.InTx(ctx, func(ctx context.Context) error {
		if err := s.payments.Create(ctx, payment); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "payment reference already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "creating payment")
		}
		if invoice != nil {
			invoice.PaymentID = payment.ID
			invoice.UpdatedAt = now
			if err := s.invoices.Update(ctx, invoice); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "linking invoice")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, actor, id.KindPayment, "payment.created", payment.ID.String(), map[string]string{
		"reference": payment.Reference,
	})
	return payment, nil
}

// GetPayment returns a payment visible to the actor.
func (s *Service) GetPayment(ctx context.Context, actor identity.Actor, paymentID id.PaymentID) (*models.Payment, error) {
	return s.visiblePayment(ctx, actor, paymentID)
}

// ListPayments returns payments the actor is party to.
func (s *Service) ListPayments(ctx context.Context, actor identity.Actor, filter store.PaymentFilter) ([]*models.Payment, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	payments, err := s.payments.List(ctx, authz.ScopeFor(actor, id.KindPayment), filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing payments")
	}
	return payments, nil
}

// CompletePayment settles a payment. The completed_at stamp is written exactly
// once, and a linked unpaid invoice cascades to PAID in the same commit.
func (s *Service) CompletePayment(ctx context.Context, actor identity.Actor, paymentID id.PaymentID, transactionID string) (*models.Payment, error) {
	payment, err := s.visiblePayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	from := payment.Status
	tr := statemachine.Transition{
		Kind:      id.KindPayment,
		EntityID:  paymentID.String(),
		Action:    authz.ActionSettlePayment,
		Current:   from,
		Requested: statemachine.PaymentCompleted,
		Apply: func(ctx context.Context, now time.Time) error {
			return s.txRunner.InTx(ctx, func(ctx context.Context) error {
				payment.ApplyCompletion(transactionID, now)
				if err := s.payments.Update(ctx, payment); err != nil {
					return err
				}
				return s.cascadeInvoicePaid(ctx, payment, now)
			})
		},
	}
	if err := s.transitions.Run(ctx, actor, tr); err != nil {
		return nil, err
	}
	s.emit(ctx, actor, id.KindPayment, "payment.completed", paymentID.String(), map[string]string{
		"reference": payment.Reference,
	})
	return payment, nil
}

// cascadeInvoicePaid closes the linked invoice once. An invoice already PAID
// (or CANCELLED) is left untouched so re-settlement paths cannot double-apply.
func (s *Service) cascadeInvoicePaid(ctx context.Context, payment *models.Payment, now time.Time) error {
	invoice, err := s.invoices.FindByPayment(ctx, payment.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "loading linked invoice")
	}
	invoice.Derive(now)
	if invoice.Status != statemachine.InvoicePending && invoice.Status != statemachine.InvoiceOverdue {
		return nil
	}
	invoice.ApplyPaid(payment.ID, now)
	return s.invoices.Update(ctx, invoice)
}

// FailPayment marks a pending payment FAILED.
func (s *Service) FailPayment(ctx context.Context, actor identity.Actor, paymentID id.PaymentID) (*models.Payment, error) {
	return s.settle(ctx, actor, paymentID, statemachine.PaymentFailed, "payment.failed",
		func(p *models.Payment, now time.Time) { p.ApplyFailure(now) })
}

// RefundPayment reverses a completed payment. The original completed_at stamp
// is preserved.
func (s *Service) RefundPayment(ctx context.Context, actor identity.Actor, paymentID id.PaymentID) (*models.Payment, error) {
	return s.settle(ctx, actor, paymentID, statemachine.PaymentRefunded, "payment.refunded",
		func(p *models.Payment, now time.Time) { p.ApplyRefund(now) })
}

func (s *Service) settle(ctx context.Context, actor identity.Actor, paymentID id.PaymentID, to statemachine.Status, event string, mutate func(*models.Payment, time.Time)) (*models.Payment, error) {
	payment, err := s.visiblePayment(ctx, actor, paymentID)
	if err != nil {
		return nil, err
	}
	from := payment.Status
	tr := statemachine.Transition{
		Kind:      id.KindPayment,
		EntityID:  paymentID.String(),
		Action:    authz.ActionSettlePayment,
		Current:   from,
		Requested: to,
		Apply: func(ctx context.Context, now time.Time) error {
			mutate(payment, now)
			return s.payments.Update(ctx, payment)
		},
	}
	if err := s.transitions.Run(ctx, actor, tr); err != nil {
		return nil, err
	}
	s.emit(ctx, actor, id.KindPayment, event, paymentID.String(), map[string]string{
		"from": string(from),
		"to":   string(to),
	})
	return payment, nil
}

type CreateInvoiceInput struct {
	PropertyID    id.PropertyID
	UserID        id.UserID
	InvoiceNumber string
	Amount        decimal.Decimal
	Description   string
	DueDate       time.Time
}

// CreateInvoice bills a user for a property transaction. Only the property
// owner or an admin may issue invoices; the number is generated when omitted.
func (s *Service) CreateInvoice(ctx context.Context, actor identity.Actor, in CreateInvoiceInput) (*models.Invoice, error) {
	property, err := s.properties.FindByID(ctx, in.PropertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading property")
	}
	target := &authz.Target{Kind: id.KindInvoice, OwnerID: property.OwnerID}
	if err := s.authz.Require(actor, authz.ActionCancelInvoice, target); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	number := in.InvoiceNumber
	if number == "" {
		number = generateInvoiceNumber()
	}
	invoice, err := models.NewInvoice(id.InvoiceID(uuid.New()), in.PropertyID, in.UserID, number, in.Amount, in.Description, in.DueDate, now)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "invoice number already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating invoice")
	}
	s.emit(ctx, actor, id.KindInvoice, "invoice.created", invoice.ID.String(), map[string]string{
		"invoice_number": invoice.InvoiceNumber,
	})
	return invoice, nil
}

// GetInvoice returns an invoice visible to the actor, deriving OVERDUE from
// the due date first.
func (s *Service) GetInvoice(ctx context.Context, actor identity.Actor, invoiceID id.InvoiceID) (*models.Invoice, error) {
	return s.visibleInvoice(ctx, actor, invoiceID)
}

// ListInvoices returns the actor's invoices with lazy overdue derivation.
func (s *Service) ListInvoices(ctx context.Context, actor identity.Actor, filter store.InvoiceFilter) ([]*models.Invoice, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	invoices, err := s.invoices.List(ctx, authz.ScopeFor(actor, id.KindInvoice), filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing invoices")
	}
	now := requestcontext.Now(ctx)
	for _, invoice := range invoices {
		s.deriveInvoice(ctx, invoice, now)
	}
	return invoices, nil
}

// CancelInvoice voids an open invoice. Only the issuing property owner or an
// admin may cancel.
func (s *Service) CancelInvoice(ctx context.Context, actor identity.Actor, invoiceID id.InvoiceID) (*models.Invoice, error) {
	invoice, err := s.visibleInvoice(ctx, actor, invoiceID)
	if err != nil {
		return nil, err
	}
	property, err := s.properties.FindByID(ctx, invoice.PropertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading property")
	}
	from := invoice.Status
	tr := statemachine.Transition{
		Kind:      id.KindInvoice,
		EntityID:  invoiceID.String(),
		Action:    authz.ActionCancelInvoice,
		Owner:     property.OwnerID,
		Current:   from,
		Requested: statemachine.InvoiceCancelled,
		Apply: func(ctx context.Context, now time.Time) error {
			invoice.ApplyCancelled(now)
			return s.invoices.Update(ctx, invoice)
		},
	}
	if err := s.transitions.Run(ctx, actor, tr); err != nil {
		return nil, err
	}
	s.emit(ctx, actor, id.KindInvoice, "invoice.cancelled", invoiceID.String(), nil)
	return invoice, nil
}

type CreatePlanInput struct {
	PropertyID               id.PropertyID
	Name                     string
	Description              string
	Frequency                models.Frequency
	DurationMonths           int
	InitialPaymentPercentage decimal.Decimal
}

// CreatePlan offers a payment schedule on a listing. Property owner or admin
// only.
func (s *Service) CreatePlan(ctx context.Context, actor identity.Actor, in CreatePlanInput) (*models.Plan, error) {
	property, err := s.properties.FindByID(ctx, in.PropertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading property")
	}
	target := &authz.Target{Kind: id.KindSubscription, OwnerID: property.OwnerID}
	if err := s.authz.Require(actor, authz.ActionManagePlan, target); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	plan, err := models.NewPlan(id.PlanID(uuid.New()), in.PropertyID, property.OwnerID, in.Name, in.Frequency, in.DurationMonths, in.InitialPaymentPercentage, now)
	if err != nil {
		return nil, err
	}
	plan.Description = in.Description
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating payment plan")
	}
	s.emit(ctx, actor, id.KindSubscription, "plan.created", plan.ID.String(), map[string]string{
		"property_id": in.PropertyID.String(),
	})
	return plan, nil
}

type UpdatePlanInput struct {
	Name        *string
	Description *string
	Active      *bool
}

// UpdatePlan edits or retires a plan. Property owner or admin only.
func (s *Service) UpdatePlan(ctx context.Context, actor identity.Actor, planID id.PlanID, in UpdatePlanInput) (*models.Plan, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment plan not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading payment plan")
	}
	target := &authz.Target{Kind: id.KindSubscription, OwnerID: plan.OwnerID}
	if err := s.authz.Require(actor, authz.ActionManagePlan, target); err != nil {
		return nil, err
	}

	if in.Name != nil {
		if *in.Name == "" || len(*in.Name) > 100 {
			return nil, dErrors.New(dErrors.CodeValidation, "name must be 1-100 characters")
		}
		plan.Name = *in.Name
	}
	if in.Description != nil {
		plan.Description = *in.Description
	}
	if in.Active != nil {
		plan.Active = *in.Active
	}
	plan.UpdatedAt = requestcontext.Now(ctx)
	if err := s.plans.Update(ctx, plan); err != nil {
		if errors.Is(err, sentinel.ErrStaleState) {
			return nil, dErrors.Wrap(err, dErrors.CodeStaleState, "plan changed since it was read")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "saving payment plan")
	}
	return plan, nil
}

// ListPlans returns plans for a property. Inactive plans are visible only to
// the owner and admins.
func (s *Service) ListPlans(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) ([]*models.Plan, error) {
	plans, err := s.plans.List(ctx, store.PlanFilter{PropertyID: propertyID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing payment plans")
	}
	var out []*models.Plan
	for _, plan := range plans {
		if plan.Active || actor.Role.IsAdmin() || plan.OwnerID == actor.ID {
			out = append(out, plan)
		}
	}
	return out, nil
}

// Subscribe enrolls the actor in an active plan. The end date derives from the
// plan's duration.
func (s *Service) Subscribe(ctx context.Context, actor identity.Actor, planID id.PlanID, startDate time.Time) (*models.Subscription, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	if !actor.Verified && !actor.Role.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "account must be verified to subscribe")
	}
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment plan not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading payment plan")
	}
	if !plan.Active {
		return nil, dErrors.New(dErrors.CodeValidation, "payment plan is not active")
	}

	now := requestcontext.Now(ctx)
	if startDate.IsZero() {
		startDate = now
	}
	endDate := startDate.AddDate(0, plan.DurationMonths, 0)
	subscription, err := models.NewSubscription(id.SubscriptionID(uuid.New()), actor.ID, planID, startDate, endDate, now)
	if err != nil {
		return nil, err
	}
	if err := s.subscriptions.Create(ctx, subscription); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating subscription")
	}
	s.emit(ctx, actor, id.KindSubscription, "subscription.created", subscription.ID.String(), map[string]string{
		"plan_id": planID.String(),
	})
	return subscription, nil
}

// GetSubscription returns a subscription visible to the actor, deriving
// EXPIRED from the end date first.
func (s *Service) GetSubscription(ctx context.Context, actor identity.Actor, subscriptionID id.SubscriptionID) (*models.Subscription, error) {
	return s.visibleSubscription(ctx, actor, subscriptionID)
}

// ListSubscriptions returns the actor's subscriptions with lazy expiry.
func (s *Service) ListSubscriptions(ctx context.Context, actor identity.Actor, filter store.SubscriptionFilter) ([]*models.Subscription, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	subscriptions, err := s.subscriptions.List(ctx, authz.ScopeFor(actor, id.KindSubscription), filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing subscriptions")
	}
	now := requestcontext.Now(ctx)
	for _, subscription := range subscriptions {
		s.deriveSubscription(ctx, subscription, now)
	}
	return subscriptions, nil
}

// CancelSubscription ends an active subscription. An already-expired one
// cannot be cancelled; expiry is derived before the transition is attempted.
func (s *Service) CancelSubscription(ctx context.Context, actor identity.Actor, subscriptionID id.SubscriptionID) (*models.Subscription, error) {
	subscription, err := s.visibleSubscription(ctx, actor, subscriptionID)
	if err != nil {
		return nil, err
	}
	from := subscription.Status
	tr := statemachine.Transition{
		Kind:      id.KindSubscription,
		EntityID:  subscriptionID.String(),
		Action:    authz.ActionCancelSubscription,
		Owner:     subscription.UserID,
		Current:   from,
		Requested: statemachine.SubscriptionCancelled,
		Apply: func(ctx context.Context, now time.Time) error {
			subscription.ApplyCancelled(now)
			return s.subscriptions.Update(ctx, subscription)
		},
	}
	if err := s.transitions.Run(ctx, actor, tr); err != nil {
		return nil, err
	}
	s.emit(ctx, actor, id.KindSubscription, "subscription.cancelled", subscriptionID.String(), nil)
	return subscription, nil
}

func (s *Service) visiblePayment(ctx context.Context, actor identity.Actor, paymentID id.PaymentID) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading payment")
	}
	scope := authz.ScopeFor(actor, id.KindPayment)
	if !scope.All && payment.PayerID != scope.UserID && payment.ReceiverID != scope.UserID {
		return nil, dErrors.New(dErrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *Service) visibleInvoice(ctx context.Context, actor identity.Actor, invoiceID id.InvoiceID) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "invoice not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading invoice")
	}
	scope := authz.ScopeFor(actor, id.KindInvoice)
	if !scope.All && invoice.UserID != scope.UserID {
		// The issuing owner may also see invoices on their property.
		property, perr := s.properties.FindByID(ctx, invoice.PropertyID)
		if perr != nil || property.OwnerID != actor.ID {
			return nil, dErrors.New(dErrors.CodeNotFound, "invoice not found")
		}
	}
	s.deriveInvoice(ctx, invoice, requestcontext.Now(ctx))
	return invoice, nil
}

func (s *Service) visibleSubscription(ctx context.Context, actor identity.Actor, subscriptionID id.SubscriptionID) (*models.Subscription, error) {
	subscription, err := s.subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "subscription not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading subscription")
	}
	scope := authz.ScopeFor(actor, id.KindSubscription)
	if !scope.All && subscription.UserID != scope.UserID {
		return nil, dErrors.New(dErrors.CodeNotFound, "subscription not found")
	}
	s.deriveSubscription(ctx, subscription, requestcontext.Now(ctx))
	return subscription, nil
}

// deriveInvoice persists a lazily derived OVERDUE status. A lost optimistic
// write means another reader already derived it; the in-memory copy is correct
// either way.
func (s *Service) deriveInvoice(ctx context.Context, invoice *models.Invoice, now time.Time) {
	if !invoice.Derive(now) {
		return
	}
	if err := s.invoices.Update(ctx, invoice); err != nil && !errors.Is(err, sentinel.ErrStaleState) {
		s.logger.WarnContext(ctx, "persisting derived invoice status failed", "invoice_id", invoice.ID, "error", err)
	}
}

func (s *Service) deriveSubscription(ctx context.Context, subscription *models.Subscription, now time.Time) {
	if !subscription.Derive(now) {
		return
	}
	if err := s.subscriptions.Update(ctx, subscription); err != nil && !errors.Is(err, sentinel.ErrStaleState) {
		s.logger.WarnContext(ctx, "persisting derived subscription status failed", "subscription_id", subscription.ID, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, actor identity.Actor, kind id.EntityKind, name, entityID string, fields map[string]string) {
	event := events.Event{
		Name:       name,
		Kind:       kind,
		EntityID:   entityID,
		ActorID:    actor.ID,
		OccurredAt: requestcontext.Now(ctx),
		Fields:     fields,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "event", name, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncEventPublished(name)
	}
}

func generateInvoiceNumber() string {
	return fmt.Sprintf("INV-%s", strings.ToUpper(uuid.NewString()[:8]))
}
