// Package handler exposes the compliance endpoints: requirements, per-property
// records, requirement checks, and reports.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"realhub/internal/compliance/models"
	"realhub/internal/compliance/service"
	"realhub/internal/compliance/store"
	"realhub/internal/identity"
	"realhub/internal/platform/middleware"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/httputil"
)

type Service interface {
	CreateRequirement(ctx context.Context, actor identity.Actor, title, description string) (*models.Requirement, error)
	UpdateRequirement(ctx context.Context, actor identity.Actor, requirementID id.RequirementID, in service.UpdateRequirementInput) (*models.Requirement, error)
	ListRequirements(ctx context.Context, actor identity.Actor) ([]*models.Requirement, error)

	EnsureRecord(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Record, error)
	GetRecord(ctx context.Context, actor identity.Actor, complianceID id.ComplianceID) (*models.Record, error)
	ListRecords(ctx context.Context, actor identity.Actor, filter store.RecordFilter) ([]*models.Record, error)
	MyProperties(ctx context.Context, actor identity.Actor) ([]*models.Record, error)
	NonCompliant(ctx context.Context, actor identity.Actor) ([]*models.Record, error)
	Review(ctx context.Context, actor identity.Actor, complianceID id.ComplianceID, in service.ReviewInput) (*models.Record, error)

	AddCheck(ctx context.Context, actor identity.Actor, complianceID id.ComplianceID, requirementID id.RequirementID) (*models.Check, error)
	RecordCheckResult(ctx context.Context, actor identity.Actor, checkID id.CheckID, to statemachine.Status, notes string) (*models.Check, error)
	ListChecks(ctx context.Context, actor identity.Actor, filter store.CheckFilter) ([]*models.Check, error)

	GenerateReport(ctx context.Context, actor identity.Actor, title, description string) (*models.Report, error)
	FinalizeReport(ctx context.Context, actor identity.Actor, reportID id.ReportID) (*models.Report, error)
	GetReport(ctx context.Context, actor identity.Actor, reportID id.ReportID) (*models.Report, error)
	ListReports(ctx context.Context, actor identity.Actor, filter store.ReportFilter) ([]*models.Report, error)
}

type ActorResolver interface {
	Resolve(ctx context.Context) (identity.Actor, error)
}

type Handler struct {
	compliance Service
	resolver   ActorResolver
	logger     *slog.Logger
	validate   *validator.Validate
}

func New(compliance Service, resolver ActorResolver, logger *slog.Logger) *Handler {
	return &Handler{
		compliance: compliance,
		resolver:   resolver,
		logger:     logger,
		validate:   validator.New(),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/compliance", func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Route("/requirements", func(r chi.Router) {
			r.Post("/", h.handleCreateRequirement)
			r.Get("/", h.handleListRequirements)
			r.Patch("/{requirementID}", h.handleUpdateRequirement)
		})

		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.handleListRecords)
			r.Get("/mine", h.handleMyProperties)
			r.Get("/non-compliant", h.handleNonCompliant)
			r.Get("/{complianceID}", h.handleGetRecord)
			r.Patch("/{complianceID}", h.handleReview)
			r.Post("/{complianceID}/checks", h.handleAddCheck)
		})

		r.Get("/properties/{propertyID}", h.handleEnsureRecord)

		r.Route("/checks", func(r chi.Router) {
			r.Get("/", h.handleListChecks)
			r.Post("/{checkID}/result", h.handleRecordCheckResult)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", h.handleGenerateReport)
			r.Get("/", h.handleListReports)
			r.Get("/{reportID}", h.handleGetReport)
			r.Post("/{reportID}/finalize", h.handleFinalizeReport)
		})
	})
}

type requirementRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1000"`
}

func (h *Handler) handleCreateRequirement(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req requirementRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid requirement payload"))
		return
	}
	requirement, err := h.compliance.CreateRequirement(r.Context(), actor, req.Title, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, requirement)
}

type updateRequirementRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
	Active      *bool   `json:"is_active"`
}

func (h *Handler) handleUpdateRequirement(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	requirementID, err := id.ParseRequirementID(chi.URLParam(r, "requirementID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updateRequirementRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid requirement payload"))
		return
	}
	requirement, err := h.compliance.UpdateRequirement(r.Context(), actor, requirementID, service.UpdateRequirementInput{
		Title:       req.Title,
		Description: req.Description,
		Active:      req.Active,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, requirement)
}

func (h *Handler) handleListRequirements(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	requirements, err := h.compliance.ListRequirements(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"requirements": requirements,
		"count":        len(requirements),
	})
}

func (h *Handler) handleEnsureRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.compliance.EnsureRecord(r.Context(), actor, propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	complianceID, err := id.ParseComplianceID(chi.URLParam(r, "complianceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.compliance.GetRecord(r.Context(), actor, complianceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := store.RecordFilter{Status: models.ComplianceStatus(r.URL.Query().Get("status"))}
	records, err := h.compliance.ListRecords(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeRecords(w, records)
}

func (h *Handler) handleMyProperties(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	records, err := h.compliance.MyProperties(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeRecords(w, records)
}

func (h *Handler) handleNonCompliant(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	records, err := h.compliance.NonCompliant(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeRecords(w, records)
}

type reviewRequest struct {
	Notes              *string    `json:"notes" validate:"omitempty,max=2000"`
	LastInspectionDate *time.Time `json:"last_inspection_date"`
	NextInspectionDate *time.Time `json:"next_inspection_date"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	complianceID, err := id.ParseComplianceID(chi.URLParam(r, "complianceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req reviewRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid review payload"))
		return
	}
	record, err := h.compliance.Review(r.Context(), actor, complianceID, service.ReviewInput{
		Notes:              req.Notes,
		LastInspectionDate: req.LastInspectionDate,
		NextInspectionDate: req.NextInspectionDate,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

type addCheckRequest struct {
	RequirementID string `json:"requirement_id" validate:"required,uuid"`
}

func (h *Handler) handleAddCheck(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	complianceID, err := id.ParseComplianceID(chi.URLParam(r, "complianceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req addCheckRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "requirement_id is required"))
		return
	}
	requirementID, err := id.ParseRequirementID(req.RequirementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	check, err := h.compliance.AddCheck(r.Context(), actor, complianceID, requirementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, check)
}

type checkResultRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=2000"`
}

func (h *Handler) handleRecordCheckResult(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	checkID, err := id.ParseCheckID(chi.URLParam(r, "checkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req checkResultRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "status is required"))
		return
	}
	check, err := h.compliance.RecordCheckResult(r.Context(), actor, checkID, statemachine.Status(req.Status), req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, check)
}

func (h *Handler) handleListChecks(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := store.CheckFilter{Status: statemachine.Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("compliance_id"); raw != "" {
		complianceID, err := id.ParseComplianceID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.ComplianceID = complianceID
	}
	if raw := r.URL.Query().Get("requirement_id"); raw != "" {
		requirementID, err := id.ParseRequirementID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.RequirementID = requirementID
	}
	checks, err := h.compliance.ListChecks(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"checks": checks,
		"count":  len(checks),
	})
}

type reportRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

func (h *Handler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req reportRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid report payload"))
		return
	}
	report, err := h.compliance.GenerateReport(r.Context(), actor, req.Title, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, report)
}

func (h *Handler) handleFinalizeReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	reportID, err := id.ParseReportID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.compliance.FinalizeReport(r.Context(), actor, reportID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	reportID, err := id.ParseReportID(chi.URLParam(r, "reportID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.compliance.GetReport(r.Context(), actor, reportID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := store.ReportFilter{Status: models.ReportStatus(r.URL.Query().Get("status"))}
	reports, err := h.compliance.ListReports(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

func writeRecords(w http.ResponseWriter, records []*models.Record) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
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
