// Package handler exposes the KYC submission and review endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"realhub/internal/identity"
	"realhub/internal/kyc/models"
	"realhub/internal/kyc/service"
	"realhub/internal/platform/middleware"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/httputil"
)

type Service interface {
	Submit(ctx context.Context, actor identity.Actor, in service.SubmitInput) (*models.Verification, error)
	Mine(ctx context.Context, actor identity.Actor) (*models.Verification, error)
	Get(ctx context.Context, actor identity.Actor, kycID id.KYCID) (*models.Verification, error)
	Pending(ctx context.Context, actor identity.Actor) ([]*models.Verification, error)
	Approve(ctx context.Context, actor identity.Actor, kycID id.KYCID) (*models.Verification, error)
	Reject(ctx context.Context, actor identity.Actor, kycID id.KYCID, reason string) (*models.Verification, error)
}

type ActorResolver interface {
	Resolve(ctx context.Context) (identity.Actor, error)
}

type Handler struct {
	kyc      Service
	resolver ActorResolver
	logger   *slog.Logger
	validate *validator.Validate
}

func New(kyc Service, resolver ActorResolver, logger *slog.Logger) *Handler {
	return &Handler{
		kyc:      kyc,
		resolver: resolver,
		logger:   logger,
		validate: validator.New(),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/kyc", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleSubmit)
		r.Get("/me", h.handleMine)
		r.Get("/pending", h.handlePending)
		r.Get("/{kycID}", h.handleGet)
		r.Post("/{kycID}/approve", h.handleApprove)
		r.Post("/{kycID}/reject", h.handleReject)
	})
}

type submitRequest struct {
	IDType                     string `json:"id_type" validate:"required,max=50"`
	IDNumber                   string `json:"id_number" validate:"required,max=50"`
	BusinessName               string `json:"business_name" validate:"max=255"`
	BusinessRegistrationNumber string `json:"business_registration_number" validate:"max=50"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid kyc payload"))
		return
	}
	verification, err := h.kyc.Submit(r.Context(), actor, service.SubmitInput{
		IDType:                     req.IDType,
		IDNumber:                   req.IDNumber,
		BusinessName:               req.BusinessName,
		BusinessRegistrationNumber: req.BusinessRegistrationNumber,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, verification)
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	verification, err := h.kyc.Mine(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verification)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	kycID, err := id.ParseKYCID(chi.URLParam(r, "kycID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verification, err := h.kyc.Get(r.Context(), actor, kycID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verification)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	records, err := h.kyc.Pending(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"verifications": records,
		"count":         len(records),
	})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	kycID, err := id.ParseKYCID(chi.URLParam(r, "kycID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verification, err := h.kyc.Approve(r.Context(), actor, kycID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verification)
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	kycID, err := id.ParseKYCID(chi.URLParam(r, "kycID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req rejectRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	verification, err := h.kyc.Reject(r.Context(), actor, kycID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verification)
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
