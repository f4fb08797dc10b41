// Package handler exposes the lead and messaging endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"realhub/internal/identity"
	"realhub/internal/lead/models"
	"realhub/internal/lead/store"
	"realhub/internal/platform/middleware"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/httputil"
)

type Service interface {
	Create(ctx context.Context, actor identity.Actor, propertyID id.PropertyID, message string) (*models.Lead, error)
	Get(ctx context.Context, actor identity.Actor, leadID id.LeadID) (*models.Lead, error)
	List(ctx context.Context, actor identity.Actor, filter store.Filter) ([]*models.Lead, error)
	UpdateStatus(ctx context.Context, actor identity.Actor, leadID id.LeadID, to statemachine.Status) (*models.Lead, error)
	SendMessage(ctx context.Context, actor identity.Actor, leadID id.LeadID, content string) (*models.Message, error)
	Messages(ctx context.Context, actor identity.Actor, leadID id.LeadID) ([]*models.Message, error)
	MarkRead(ctx context.Context, actor identity.Actor, messageID id.MessageID) (*models.Message, error)
}

type ActorResolver interface {
	Resolve(ctx context.Context) (identity.Actor, error)
}

type Handler struct {
	leads    Service
	resolver ActorResolver
	logger   *slog.Logger
	validate *validator.Validate
}

func New(leads Service, resolver ActorResolver, logger *slog.Logger) *Handler {
	return &Handler{
		leads:    leads,
		resolver: resolver,
		logger:   logger,
		validate: validator.New(),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/leads", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{leadID}", h.handleGet)
		r.Patch("/{leadID}/status", h.handleUpdateStatus)
		r.Post("/{leadID}/messages", h.handleSendMessage)
		r.Get("/{leadID}/messages", h.handleMessages)
	})
	r.With(middleware.RequireAuth).Post("/messages/{messageID}/read", h.handleMarkRead)
}

type createRequest struct {
	PropertyID string `json:"property_id" validate:"required"`
	Message    string `json:"message" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid lead payload"))
		return
	}
	propertyID, err := id.ParsePropertyID(req.PropertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lead, err := h.leads.Create(r.Context(), actor, propertyID, req.Message)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, lead)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var filter store.Filter
	if v := r.URL.Query().Get("property_id"); v != "" {
		propertyID, err := id.ParsePropertyID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.PropertyID = propertyID
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = statemachine.Status(v)
	}
	leads, err := h.leads.List(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	leadID, err := id.ParseLeadID(chi.URLParam(r, "leadID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	lead, err := h.leads.Get(r.Context(), actor, leadID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lead)
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	leadID, err := id.ParseLeadID(chi.URLParam(r, "leadID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req statusRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "status is required"))
		return
	}
	lead, err := h.leads.UpdateStatus(r.Context(), actor, leadID, statemachine.Status(req.Status))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lead)
}

type messageRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	leadID, err := id.ParseLeadID(chi.URLParam(r, "leadID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req messageRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "content is required"))
		return
	}
	message, err := h.leads.SendMessage(r.Context(), actor, leadID, req.Content)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, message)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	leadID, err := id.ParseLeadID(chi.URLParam(r, "leadID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	messages, err := h.leads.Messages(r.Context(), actor, leadID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"messages": messages, "count": len(messages)})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	messageID, err := id.ParseMessageID(chi.URLParam(r, "messageID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	message, err := h.leads.MarkRead(r.Context(), actor, messageID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, message)
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
