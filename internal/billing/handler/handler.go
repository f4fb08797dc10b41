// Package handler exposes the billing endpoints: payments, invoices, payment
// plans and subscriptions.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"realhub/internal/billing/models"
	"realhub/internal/billing/service"
	"realhub/internal/billing/store"
	"realhub/internal/identity"
	"realhub/internal/platform/middleware"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/httputil"
)

type Service interface {
	CreatePayment(ctx context.Context, actor identity.Actor, in service.CreatePaymentInput) (*models.Payment, error)
	GetPayment(ctx context.Context, actor identity.Actor, paymentID id.PaymentID) (*models.Payment, error)
	ListPayments(ctx context.Context, actor identity.Actor, filter store.PaymentFilter) ([]*models.Payment, error)
	CompletePayment(ctx context.Context, actor identity.Actor, paymentID id.PaymentID, transactionID string) (*models.Payment, error)
	FailPayment(ctx context.Context, actor identity.Actor, paymentID id.PaymentID) (*models.Payment, error)
	RefundPayment(ctx context.Context, actor identity.Actor, paymentID id.PaymentID) (*models.Payment, error)

	CreateInvoice(ctx context.Context, actor identity.Actor, in service.CreateInvoiceInput) (*models.Invoice, error)
	GetInvoice(ctx context.Context, actor identity.Actor, invoiceID id.InvoiceID) (*models.Invoice, error)
	ListInvoices(ctx context.Context, actor identity.Actor, filter store.InvoiceFilter) ([]*models.Invoice, error)
	CancelInvoice(ctx context.Context, actor identity.Actor, invoiceID id.InvoiceID) (*models.Invoice, error)

	CreatePlan(ctx context.Context, actor identity.Actor, in service.CreatePlanInput) (*models.Plan, error)
	UpdatePlan(ctx context.Context, actor identity.Actor, planID id.PlanID, in service.UpdatePlanInput) (*models.Plan, error)
	ListPlans(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) ([]*models.Plan, error)

	Subscribe(ctx context.Context, actor identity.Actor, planID id.PlanID, startDate time.Time) (*models.Subscription, error)
	GetSubscription(ctx context.Context, actor identity.Actor, subscriptionID id.SubscriptionID) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, actor identity.Actor, filter store.SubscriptionFilter) ([]*models.Subscription, error)
	CancelSubscription(ctx context.Context, actor identity.Actor, subscriptionID id.SubscriptionID) (*models.Subscription, error)
}

type ActorResolver interface {
	Resolve(ctx context.Context) (identity.Actor, error)
}

type Handler struct {
	billing  Service
	resolver ActorResolver
	logger   *slog.Logger
	validate *validator.Validate
}

func New(billing Service, resolver ActorResolver, logger *slog.Logger) *Handler {
	return &Handler{
		billing:  billing,
		resolver: resolver,
		logger:   logger,
		validate: validator.New(),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/payments", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleCreatePayment)
		r.Get("/", h.handleListPayments)
		r.Get("/{paymentID}", h.handleGetPayment)
		r.Post("/{paymentID}/complete", h.handleCompletePayment)
		r.Post("/{paymentID}/fail", h.handleFailPayment)
		r.Post("/{paymentID}/refund", h.handleRefundPayment)
	})
	r.Route("/invoices", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleCreateInvoice)
		r.Get("/", h.handleListInvoices)
		r.Get("/{invoiceID}", h.handleGetInvoice)
		r.Post("/{invoiceID}/cancel", h.handleCancelInvoice)
	})
	r.Route("/plans", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleCreatePlan)
		r.Get("/", h.handleListPlans)
		r.Patch("/{planID}", h.handleUpdatePlan)
	})
	r.Route("/subscriptions", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleSubscribe)
		r.Get("/", h.handleListSubscriptions)
		r.Get("/{subscriptionID}", h.handleGetSubscription)
		r.Post("/{subscriptionID}/cancel", h.handleCancelSubscription)
	})
}

type createPaymentRequest struct {
	PropertyID string `json:"property_id" validate:"required,uuid"`
	InvoiceID  string `json:"invoice_id" validate:"omitempty,uuid"`
	Amount     string `json:"amount" validate:"required"`
	Type       string `json:"payment_type" validate:"required"`
	Method     string `json:"payment_method" validate:"required"`
	Reference  string `json:"reference" validate:"required,max=100"`
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createPaymentRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid payment payload"))
		return
	}
	propertyID, err := id.ParsePropertyID(req.PropertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "amount must be a decimal string"))
		return
	}
	in := service.CreatePaymentInput{
		PropertyID: propertyID,
		Amount:     amount,
		Type:       models.PaymentType(req.Type),
		Method:     models.PaymentMethod(req.Method),
		Reference:  req.Reference,
	}
	if req.InvoiceID != "" {
		in.InvoiceID, err = id.ParseInvoiceID(req.InvoiceID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	payment, err := h.billing.CreatePayment(r.Context(), actor, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, payment)
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter, err := paymentFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payments, err := h.billing.ListPayments(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"payments": payments,
		"count":    len(payments),
	})
}

func (h *Handler) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payment, err := h.billing.GetPayment(r.Context(), actor, paymentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, payment)
}

type completePaymentRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,max=100"`
}

func (h *Handler) handleCompletePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req completePaymentRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "transaction_id is required"))
		return
	}
	payment, err := h.billing.CompletePayment(r.Context(), actor, paymentID, req.TransactionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, payment)
}

func (h *Handler) handleFailPayment(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.billing.FailPayment)
}

func (h *Handler) handleRefundPayment(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.billing.RefundPayment)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, op func(context.Context, identity.Actor, id.PaymentID) (*models.Payment, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payment, err := op(r.Context(), actor, paymentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, payment)
}

type createInvoiceRequest struct {
	PropertyID    string    `json:"property_id" validate:"required,uuid"`
	UserID        string    `json:"user_id" validate:"required,uuid"`
	InvoiceNumber string    `json:"invoice_number" validate:"max=50"`
	Amount        string    `json:"amount" validate:"required"`
	Description   string    `json:"description" validate:"max=500"`
	DueDate       time.Time `json:"due_date" validate:"required"`
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createInvoiceRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid invoice payload"))
		return
	}
	propertyID, err := id.ParsePropertyID(req.PropertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "amount must be a decimal string"))
		return
	}
	invoice, err := h.billing.CreateInvoice(r.Context(), actor, service.CreateInvoiceInput{
		PropertyID:    propertyID,
		UserID:        userID,
		InvoiceNumber: req.InvoiceNumber,
		Amount:        amount,
		Description:   req.Description,
		DueDate:       req.DueDate,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, invoice)
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := store.InvoiceFilter{Status: statemachine.Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("property_id"); raw != "" {
		propertyID, err := id.ParsePropertyID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.PropertyID = propertyID
	}
	invoices, err := h.billing.ListInvoices(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"invoices": invoices,
		"count":    len(invoices),
	})
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	invoiceID, err := id.ParseInvoiceID(chi.URLParam(r, "invoiceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	invoice, err := h.billing.GetInvoice(r.Context(), actor, invoiceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, invoice)
}

func (h *Handler) handleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	invoiceID, err := id.ParseInvoiceID(chi.URLParam(r, "invoiceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	invoice, err := h.billing.CancelInvoice(r.Context(), actor, invoiceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, invoice)
}

type createPlanRequest struct {
	PropertyID               string `json:"property_id" validate:"required,uuid"`
	Name                     string `json:"name" validate:"required,max=100"`
	Description              string `json:"description" validate:"max=500"`
	Frequency                string `json:"payment_frequency" validate:"required"`
	DurationMonths           int    `json:"duration_months" validate:"required,min=1"`
	InitialPaymentPercentage string `json:"initial_payment_percentage" validate:"required"`
}

func (h *Handler) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createPlanRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid plan payload"))
		return
	}
	propertyID, err := id.ParsePropertyID(req.PropertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pct, err := decimal.NewFromString(req.InitialPaymentPercentage)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "initial_payment_percentage must be a decimal string"))
		return
	}
	plan, err := h.billing.CreatePlan(r.Context(), actor, service.CreatePlanInput{
		PropertyID:               propertyID,
		Name:                     req.Name,
		Description:              req.Description,
		Frequency:                models.Frequency(req.Frequency),
		DurationMonths:           req.DurationMonths,
		InitialPaymentPercentage: pct,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, plan)
}

func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("property_id")
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "property_id is required"))
		return
	}
	propertyID, err := id.ParsePropertyID(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	plans, err := h.billing.ListPlans(r.Context(), actor, propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"plans": plans,
		"count": len(plans),
	})
}

type updatePlanRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Active      *bool   `json:"is_active"`
}

func (h *Handler) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	planID, err := id.ParsePlanID(chi.URLParam(r, "planID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updatePlanRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid plan payload"))
		return
	}
	plan, err := h.billing.UpdatePlan(r.Context(), actor, planID, service.UpdatePlanInput{
		Name:        req.Name,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, plan)
}

type subscribeRequest struct {
	PlanID    string    `json:"plan_id" validate:"required,uuid"`
	StartDate time.Time `json:"start_date"`
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid subscription payload"))
		return
	}
	planID, err := id.ParsePlanID(req.PlanID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subscription, err := h.billing.Subscribe(r.Context(), actor, planID, req.StartDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, subscription)
}

func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := store.SubscriptionFilter{Status: statemachine.Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("plan_id"); raw != "" {
		planID, err := id.ParsePlanID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.PlanID = planID
	}
	subscriptions, err := h.billing.ListSubscriptions(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subscriptions,
		"count":         len(subscriptions),
	})
}

func (h *Handler) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	subscriptionID, err := id.ParseSubscriptionID(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subscription, err := h.billing.GetSubscription(r.Context(), actor, subscriptionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, subscription)
}

func (h *Handler) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	subscriptionID, err := id.ParseSubscriptionID(chi.URLParam(r, "subscriptionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	subscription, err := h.billing.CancelSubscription(r.Context(), actor, subscriptionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, subscription)
}

func paymentFilterFromQuery(r *http.Request) (store.PaymentFilter, error) {
	filter := store.PaymentFilter{Status: statemachine.Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("property_id"); raw != "" {
		propertyID, err := id.ParsePropertyID(raw)
		if err != nil {
			return store.PaymentFilter{}, err
		}
		filter.PropertyID = propertyID
	}
	return filter, nil
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (identity.Actor, bool) {
	actor, err := h.resolver.Resolve(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "principal resolution failed", "error", err)
		httputil.WriteError(w, err)
		return identity.Actor{}, false
	}
	return actor, true
}
