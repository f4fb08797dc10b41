package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"realhub/internal/authz"
	"realhub/internal/billing/models"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

type PaymentsMemory struct {
	mu       sync.RWMutex
	payments map[id.PaymentID]*models.Payment
}

func NewPaymentsMemory() *PaymentsMemory {
	return &PaymentsMemory{payments: make(map[id.PaymentID]*models.Payment)}
}

func clonePayment(p *models.Payment) *models.Payment {
	c := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (s *PaymentsMemory) Create(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if strings.EqualFold(existing.Reference, payment.Reference) {
			return sentinel.ErrConflict
		}
	}
	if _, exists := s.payments[payment.ID]; exists {
		return sentinel.ErrConflict
	}
	s.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (s *PaymentsMemory) FindByID(_ context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clonePayment(payment), nil
}

func (s *PaymentsMemory) Update(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.payments[payment.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != payment.Version {
		return sentinel.ErrStaleState
	}
	next := clonePayment(payment)
	next.Version++
	s.payments[payment.ID] = next
	payment.Version = next.Version
	return nil
}

func (s *PaymentsMemory) List(_ context.Context, scope authz.Scope, filter PaymentFilter) ([]*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Payment
	for _, p := range s.payments {
		if !paymentInScope(p, scope) {
			continue
		}
		if !filter.PropertyID.IsNil() && p.PropertyID != filter.PropertyID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type InvoicesMemory struct {
	mu       sync.RWMutex
	invoices map[id.InvoiceID]*models.Invoice
}

func NewInvoicesMemory() *InvoicesMemory {
	return &InvoicesMemory{invoices: make(map[id.InvoiceID]*models.Invoice)}
}

func (s *InvoicesMemory) Create(_ context.Context, invoice *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invoices {
		if strings.EqualFold(existing.InvoiceNumber, invoice.InvoiceNumber) {
			return sentinel.ErrConflict
		}
	}
	if _, exists := s.invoices[invoice.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *invoice
	s.invoices[invoice.ID] = &clone
	return nil
}

func (s *InvoicesMemory) FindByID(_ context.Context, invoiceID id.InvoiceID) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invoice, ok := s.invoices[invoiceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *invoice
	return &clone, nil
}

func (s *InvoicesMemory) FindByPayment(_ context.Context, paymentID id.PaymentID) (*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, invoice := range s.invoices {
		if invoice.PaymentID == paymentID {
			clone := *invoice
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InvoicesMemory) Update(_ context.Context, invoice *models.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.invoices[invoice.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != invoice.Version {
		return sentinel.ErrStaleState
	}
	clone := *invoice
	clone.Version++
	s.invoices[invoice.ID] = &clone
	invoice.Version = clone.Version
	return nil
}

func (s *InvoicesMemory) List(_ context.Context, scope authz.Scope, filter InvoiceFilter) ([]*models.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Invoice
	for _, i := range s.invoices {
		if !invoiceInScope(i, scope) {
			continue
		}
		if !filter.PropertyID.IsNil() && i.PropertyID != filter.PropertyID {
			continue
		}
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		clone := *i
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type PlansMemory struct {
	mu    sync.RWMutex
	plans map[id.PlanID]*models.Plan
}

func NewPlansMemory() *PlansMemory {
	return &PlansMemory{plans: make(map[id.PlanID]*models.Plan)}
}

func (s *PlansMemory) Create(_ context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[plan.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *plan
	s.plans[plan.ID] = &clone
	return nil
}

func (s *PlansMemory) FindByID(_ context.Context, planID id.PlanID) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[planID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *plan
	return &clone, nil
}

func (s *PlansMemory) Update(_ context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.plans[plan.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != plan.Version {
		return sentinel.ErrStaleState
	}
	clone := *plan
	clone.Version++
	s.plans[plan.ID] = &clone
	plan.Version = clone.Version
	return nil
}

func (s *PlansMemory) List(_ context.Context, filter PlanFilter) ([]*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Plan
	for _, p := range s.plans {
		if !filter.PropertyID.IsNil() && p.PropertyID != filter.PropertyID {
			continue
		}
		if filter.ActiveOnly && !p.Active {
			continue
		}
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type SubscriptionsMemory struct {
	mu            sync.RWMutex
	subscriptions map[id.SubscriptionID]*models.Subscription
}

func NewSubscriptionsMemory() *SubscriptionsMemory {
	return &SubscriptionsMemory{subscriptions: make(map[id.SubscriptionID]*models.Subscription)}
}

func (s *SubscriptionsMemory) Create(_ context.Context, subscription *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subscriptions[subscription.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *subscription
	s.subscriptions[subscription.ID] = &clone
	return nil
}

func (s *SubscriptionsMemory) FindByID(_ context.Context, subscriptionID id.SubscriptionID) (*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subscription, ok := s.subscriptions[subscriptionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *subscription
	return &clone, nil
}

func (s *SubscriptionsMemory) Update(_ context.Context, subscription *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.subscriptions[subscription.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != subscription.Version {
		return sentinel.ErrStaleState
	}
	clone := *subscription
	clone.Version++
	s.subscriptions[subscription.ID] = &clone
	subscription.Version = clone.Version
	return nil
}

func (s *SubscriptionsMemory) List(_ context.Context, scope authz.Scope, filter SubscriptionFilter) ([]*models.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Subscription
	for _, sub := range s.subscriptions {
		if !subscriptionInScope(sub, scope) {
			continue
		}
		if !filter.PlanID.IsNil() && sub.PlanID != filter.PlanID {
			continue
		}
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		clone := *sub
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
