package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realhub/internal/authz"
	"realhub/internal/billing/models"
	"realhub/internal/billing/store"
	"realhub/internal/events"
	"realhub/internal/identity"
	propertymodels "realhub/internal/property/models"
	propertystore "realhub/internal/property/store"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/requestcontext"
)

type fixture struct {
	svc        *Service
	properties *propertystore.InMemory
	sink       *events.MemorySink

	owner identity.Actor
	buyer identity.Actor
	admin identity.Actor

	property *propertymodels.Property
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		properties: propertystore.NewInMemory(),
		sink:       events.NewMemorySink(),
		owner:      identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RolePropertyOwner, Verified: true},
		buyer:      identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true},
		admin:      identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleAdmin, Verified: true},
	}
	authzEngine := authz.NewEngine()
	f.svc = New(
		store.NewPaymentsMemory(),
		store.NewInvoicesMemory(),
		store.NewPlansMemory(),
		store.NewSubscriptionsMemory(),
		f.properties,
		authzEngine,
		statemachine.NewEngine(authzEngine, statemachine.NewInProcessLocker()),
		f.sink,
		nil,
	)

	property, err := propertymodels.NewProperty(
		id.PropertyID(uuid.New()), f.owner.ID, "Two-bedroom flat",
		decimal.NewFromInt(250000), propertymodels.TypeApartment, propertymodels.ListingForSale,
		time.Now().UTC(),
	)
	require.NoError(t, err)
	require.NoError(t, f.properties.Create(context.Background(), property))
	f.property = property
	return f
}

func (f *fixture) createPayment(t *testing.T, ctx context.Context, in CreatePaymentInput) *models.Payment {
	t.Helper()
	if in.PropertyID.IsNil() {
		in.PropertyID = f.property.ID
	}
	if in.Amount.IsZero() {
		in.Amount = decimal.NewFromInt(1200)
	}
	if in.Type == "" {
		in.Type = models.PaymentRent
	}
	if in.Method == "" {
		in.Method = models.MethodBankTransfer
	}
	if in.Reference == "" {
		in.Reference = "ref-" + uuid.NewString()
	}
	payment, err := f.svc.CreatePayment(ctx, f.buyer, in)
	require.NoError(t, err)
	return payment
}

func (f *fixture) createInvoice(t *testing.T, ctx context.Context, dueDate time.Time) *models.Invoice {
	t.Helper()
	invoice, err := f.svc.CreateInvoice(ctx, f.owner, CreateInvoiceInput{
		PropertyID: f.property.ID,
		UserID:     f.buyer.ID,
		Amount:     decimal.NewFromInt(1200),
		DueDate:    dueDate,
	})
	require.NoError(t, err)
	return invoice
}

func TestCreatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("receiver is the property owner", func(t *testing.T) {
		f := newFixture(t)
		payment := f.createPayment(t, ctx, CreatePaymentInput{})
		assert.Equal(t, f.buyer.ID, payment.PayerID)
		assert.Equal(t, f.owner.ID, payment.ReceiverID)
		assert.Equal(t, statemachine.PaymentPending, payment.Status)
		assert.Len(t, f.sink.Named("payment.created"), 1)
	})

	t.Run("unverified payer is rejected", func(t *testing.T) {
		f := newFixture(t)
		unverified := identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter}
		_, err := f.svc.CreatePayment(ctx, unverified, CreatePaymentInput{
			PropertyID: f.property.ID,
			Amount:     decimal.NewFromInt(100),
			Type:       models.PaymentRent,
			Method:     models.MethodPaystack,
			Reference:  "ref-x",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("duplicate reference conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.createPayment(t, ctx, CreatePaymentInput{Reference: "ref-dup"})
		_, err := f.svc.CreatePayment(ctx, f.buyer, CreatePaymentInput{
			PropertyID: f.property.ID,
			Amount:     decimal.NewFromInt(100),
			Type:       models.PaymentRent,
			Method:     models.MethodPaystack,
			Reference:  "ref-dup",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("unknown property maps to not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreatePayment(ctx, f.buyer, CreatePaymentInput{
			PropertyID: id.PropertyID(uuid.New()),
			Amount:     decimal.NewFromInt(100),
			Type:       models.PaymentRent,
			Method:     models.MethodPaystack,
			Reference:  "ref-x",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestSettlement(t *testing.T) {
	ctx := context.Background()

	t.Run("admin completes a pending payment", func(t *testing.T) {
		f := newFixture(t)
		payment := f.createPayment(t, ctx, CreatePaymentInput{})

		settled, err := f.svc.CompletePayment(ctx, f.admin, payment.ID, "txn-123")
		require.NoError(t, err)
		assert.Equal(t, statemachine.PaymentCompleted, settled.Status)
		assert.Equal(t, "txn-123", settled.TransactionID)
		require.NotNil(t, settled.CompletedAt)
		assert.Len(t, f.sink.Named("payment.completed"), 1)
	})

	t.Run("payer cannot settle their own payment", func(t *testing.T) {
		f := newFixture(t)
		payment := f.createPayment(t, ctx, CreatePaymentInput{})

		_, err := f.svc.CompletePayment(ctx, f.buyer, payment.ID, "txn-123")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		assert.Contains(t, err.Error(), authz.ReasonInsufficientRole)
	})

	t.Run("double completion is an invalid transition", func(t *testing.T) {
		f := newFixture(t)
		payment := f.createPayment(t, ctx, CreatePaymentInput{})
		_, err := f.svc.CompletePayment(ctx, f.admin, payment.ID, "txn-1")
		require.NoError(t, err)

		_, err = f.svc.CompletePayment(ctx, f.admin, payment.ID, "txn-2")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("refund preserves the completion stamp", func(t *testing.T) {
		f := newFixture(t)
		payment := f.createPayment(t, ctx, CreatePaymentInput{})

		completedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		_, err := f.svc.CompletePayment(requestcontext.WithTime(ctx, completedAt), f.admin, payment.ID, "txn-1")
		require.NoError(t, err)

		refundedAt := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
		refunded, err := f.svc.RefundPayment(requestcontext.WithTime(ctx, refundedAt), f.admin, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.PaymentRefunded, refunded.Status)
		require.NotNil(t, refunded.CompletedAt)
		assert.Equal(t, completedAt, *refunded.CompletedAt)
	})

	t.Run("failed payment is terminal", func(t *testing.T) {
		f := newFixture(t)
		payment := f.createPayment(t, ctx, CreatePaymentInput{})
		_, err := f.svc.FailPayment(ctx, f.admin, payment.ID)
		require.NoError(t, err)

		_, err = f.svc.CompletePayment(ctx, f.admin, payment.ID, "txn-late")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestInvoiceCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("settling a linked payment pays the invoice exactly once", func(t *testing.T) {
		f := newFixture(t)
		invoice := f.createInvoice(t, ctx, time.Now().UTC().Add(30*24*time.Hour))
		payment := f.createPayment(t, ctx, CreatePaymentInput{InvoiceID: invoice.ID})

		_, err := f.svc.CompletePayment(ctx, f.admin, payment.ID, "txn-1")
		require.NoError(t, err)

		paid, err := f.svc.GetInvoice(ctx, f.buyer, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.InvoicePaid, paid.Status)
		assert.Equal(t, payment.ID, paid.PaymentID)

		// A later refund must not reopen or re-close the invoice.
		_, err = f.svc.RefundPayment(ctx, f.admin, payment.ID)
		require.NoError(t, err)
		still, err := f.svc.GetInvoice(ctx, f.buyer, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.InvoicePaid, still.Status)
	})

	t.Run("another user's invoice cannot be linked", func(t *testing.T) {
		f := newFixture(t)
		other, err := f.svc.CreateInvoice(ctx, f.owner, CreateInvoiceInput{
			PropertyID: f.property.ID,
			UserID:     id.UserID(uuid.New()),
			Amount:     decimal.NewFromInt(500),
			DueDate:    time.Now().UTC().Add(time.Hour),
		})
		require.NoError(t, err)

		_, err = f.svc.CreatePayment(ctx, f.buyer, CreatePaymentInput{
			PropertyID: f.property.ID,
			InvoiceID:  other.ID,
			Amount:     decimal.NewFromInt(500),
			Type:       models.PaymentRent,
			Method:     models.MethodPaystack,
			Reference:  "ref-z",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("a second payment cannot steal the link", func(t *testing.T) {
		f := newFixture(t)
		invoice := f.createInvoice(t, ctx, time.Now().UTC().Add(30*24*time.Hour))
		first := f.createPayment(t, ctx, CreatePaymentInput{InvoiceID: invoice.ID})

		_, err := f.svc.CreatePayment(ctx, f.buyer, CreatePaymentInput{
			PropertyID: f.property.ID,
			InvoiceID:  invoice.ID,
			Amount:     decimal.NewFromInt(1200),
			Type:       models.PaymentRent,
			Method:     models.MethodBankTransfer,
			Reference:  "ref-second",
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		// Settling the original payment still closes the invoice.
		_, err = f.svc.CompletePayment(ctx, f.admin, first.ID, "txn-first")
		require.NoError(t, err)
		paid, err := f.svc.GetInvoice(ctx, f.buyer, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.InvoicePaid, paid.Status)
		assert.Equal(t, first.ID, paid.PaymentID)
	})

	t.Run("relinking is allowed once the earlier payment failed", func(t *testing.T) {
		f := newFixture(t)
		invoice := f.createInvoice(t, ctx, time.Now().UTC().Add(30*24*time.Hour))
		first := f.createPayment(t, ctx, CreatePaymentInput{InvoiceID: invoice.ID})

		_, err := f.svc.FailPayment(ctx, f.admin, first.ID)
		require.NoError(t, err)

		second := f.createPayment(t, ctx, CreatePaymentInput{InvoiceID: invoice.ID})
		_, err = f.svc.CompletePayment(ctx, f.admin, second.ID, "txn-retry")
		require.NoError(t, err)

		paid, err := f.svc.GetInvoice(ctx, f.buyer, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.InvoicePaid, paid.Status)
		assert.Equal(t, second.ID, paid.PaymentID)
	})
}

func TestConcurrentSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	invoice := f.createInvoice(t, ctx, time.Now().UTC().Add(30*24*time.Hour))
	payment := f.createPayment(t, ctx, CreatePaymentInput{InvoiceID: invoice.ID})

	start := make(chan struct{})
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			_, err := f.svc.CompletePayment(ctx, f.admin, payment.ID, "txn-"+strconv.Itoa(n))
			results <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		losses++
		// The loser is rejected at the version check or, if it observed the
		// committed state before running, at the lattice.
		assert.True(t,
			dErrors.HasCode(err, dErrors.CodeStaleState) || dErrors.HasCode(err, dErrors.CodeInvalidTransition),
			"unexpected loser error: %v", err)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	settled, err := f.svc.GetPayment(ctx, f.admin, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, statemachine.PaymentCompleted, settled.Status)
	require.NotNil(t, settled.CompletedAt)

	paid, err := f.svc.GetInvoice(ctx, f.buyer, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, statemachine.InvoicePaid, paid.Status)
	assert.Equal(t, payment.ID, paid.PaymentID)
	assert.Len(t, f.sink.Named("payment.completed"), 1)
}

func TestInvoiceLazyOverdue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	invoice := f.createInvoice(t, requestcontext.WithTime(ctx, due.AddDate(0, -1, 0)), due)

	t.Run("before the due date it stays pending", func(t *testing.T) {
		got, err := f.svc.GetInvoice(requestcontext.WithTime(ctx, due.Add(-time.Hour)), f.buyer, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.InvoicePending, got.Status)
	})

	t.Run("reading past the due date derives and persists overdue", func(t *testing.T) {
		got, err := f.svc.GetInvoice(requestcontext.WithTime(ctx, due.Add(time.Hour)), f.buyer, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.InvoiceOverdue, got.Status)

		// Persisted: a subsequent read before the due date still sees overdue.
		again, err := f.svc.GetInvoice(requestcontext.WithTime(ctx, due.Add(-time.Hour)), f.buyer, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.InvoiceOverdue, again.Status)
	})

	t.Run("an overdue invoice is still payable", func(t *testing.T) {
		late := requestcontext.WithTime(ctx, due.Add(2*time.Hour))
		payment := f.createPayment(t, late, CreatePaymentInput{InvoiceID: invoice.ID})
		_, err := f.svc.CompletePayment(late, f.admin, payment.ID, "txn-late")
		require.NoError(t, err)

		paid, err := f.svc.GetInvoice(late, f.buyer, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.InvoicePaid, paid.Status)
	})
}

func TestCancelInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("issuing owner cancels an open invoice", func(t *testing.T) {
		f := newFixture(t)
		invoice := f.createInvoice(t, ctx, time.Now().UTC().Add(time.Hour))

		cancelled, err := f.svc.CancelInvoice(ctx, f.owner, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.InvoiceCancelled, cancelled.Status)
	})

	t.Run("billed user cannot cancel", func(t *testing.T) {
		f := newFixture(t)
		invoice := f.createInvoice(t, ctx, time.Now().UTC().Add(time.Hour))

		_, err := f.svc.CancelInvoice(ctx, f.buyer, invoice.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("stranger sees not found, not forbidden", func(t *testing.T) {
		f := newFixture(t)
		invoice := f.createInvoice(t, ctx, time.Now().UTC().Add(time.Hour))
		stranger := identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true}

		_, err := f.svc.CancelInvoice(ctx, stranger, invoice.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestPlansAndSubscriptions(t *testing.T) {
	ctx := context.Background()

	newPlan := func(t *testing.T, f *fixture) *models.Plan {
		plan, err := f.svc.CreatePlan(ctx, f.owner, CreatePlanInput{
			PropertyID:               f.property.ID,
			Name:                     "12-month installments",
			Frequency:                models.FrequencyMonthly,
			DurationMonths:           12,
			InitialPaymentPercentage: decimal.NewFromInt(20),
		})
		require.NoError(t, err)
		return plan
	}

	t.Run("only the property owner manages plans", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreatePlan(ctx, f.buyer, CreatePlanInput{
			PropertyID:               f.property.ID,
			Name:                     "x",
			Frequency:                models.FrequencyMonthly,
			DurationMonths:           6,
			InitialPaymentPercentage: decimal.NewFromInt(10),
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("inactive plans are hidden from non-owners", func(t *testing.T) {
		f := newFixture(t)
		plan := newPlan(t, f)
		inactive := false
		_, err := f.svc.UpdatePlan(ctx, f.owner, plan.ID, UpdatePlanInput{Active: &inactive})
		require.NoError(t, err)

		visible, err := f.svc.ListPlans(ctx, f.buyer, f.property.ID)
		require.NoError(t, err)
		assert.Empty(t, visible)

		mine, err := f.svc.ListPlans(ctx, f.owner, f.property.ID)
		require.NoError(t, err)
		assert.Len(t, mine, 1)
	})

	t.Run("subscription end date derives from plan duration", func(t *testing.T) {
		f := newFixture(t)
		plan := newPlan(t, f)
		start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

		sub, err := f.svc.Subscribe(ctx, f.buyer, plan.ID, start)
		require.NoError(t, err)
		assert.Equal(t, start.AddDate(0, 12, 0), sub.EndDate)
		assert.Equal(t, statemachine.SubscriptionActive, sub.Status)
	})

	t.Run("inactive plan rejects subscription", func(t *testing.T) {
		f := newFixture(t)
		plan := newPlan(t, f)
		inactive := false
		_, err := f.svc.UpdatePlan(ctx, f.owner, plan.ID, UpdatePlanInput{Active: &inactive})
		require.NoError(t, err)

		_, err = f.svc.Subscribe(ctx, f.buyer, plan.ID, time.Time{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("expiry derives lazily and blocks cancellation", func(t *testing.T) {
		f := newFixture(t)
		plan := newPlan(t, f)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		sub, err := f.svc.Subscribe(requestcontext.WithTime(ctx, start), f.buyer, plan.ID, start)
		require.NoError(t, err)

		afterEnd := requestcontext.WithTime(ctx, start.AddDate(0, 13, 0))
		got, err := f.svc.GetSubscription(afterEnd, f.buyer, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.SubscriptionExpired, got.Status)

		_, err = f.svc.CancelSubscription(afterEnd, f.buyer, sub.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})

	t.Run("subscriber cancels an active subscription", func(t *testing.T) {
		f := newFixture(t)
		plan := newPlan(t, f)
		sub, err := f.svc.Subscribe(ctx, f.buyer, plan.ID, time.Time{})
		require.NoError(t, err)

		cancelled, err := f.svc.CancelSubscription(ctx, f.buyer, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, statemachine.SubscriptionCancelled, cancelled.Status)

		// Another subscriber's view is indistinguishable from nonexistence.
		stranger := identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true}
		_, err = f.svc.GetSubscription(ctx, stranger, sub.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestPaymentVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	payment := f.createPayment(t, ctx, CreatePaymentInput{})

	t.Run("payer and receiver see the payment", func(t *testing.T) {
		_, err := f.svc.GetPayment(ctx, f.buyer, payment.ID)
		assert.NoError(t, err)
		_, err = f.svc.GetPayment(ctx, f.owner, payment.ID)
		assert.NoError(t, err)
	})

	t.Run("stranger sees not found", func(t *testing.T) {
		stranger := identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true}
		_, err := f.svc.GetPayment(ctx, stranger, payment.ID)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("listing is scoped to the actor", func(t *testing.T) {
		mine, err := f.svc.ListPayments(ctx, f.buyer, store.PaymentFilter{})
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		stranger := identity.Actor{ID: id.UserID(uuid.New()), Role: identity.RoleBuyerRenter, Verified: true}
		theirs, err := f.svc.ListPayments(ctx, stranger, store.PaymentFilter{})
		require.NoError(t, err)
		assert.Empty(t, theirs)
	})
}
