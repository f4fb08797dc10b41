// Package service implements the compliance workflows: requirement
// management, per-property compliance review, requirement checks, and report
// generation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"realhub/internal/authz"
	"realhub/internal/compliance/models"
	"realhub/internal/compliance/store"
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

// PropertyLookup is the slice of the property store compliance needs:
// resolving owners and public visibility.
type PropertyLookup interface {
	FindByID(ctx context.Context, propertyID id.PropertyID) (*propertymodels.Property, error)
}

type Service struct {
	requirements store.Requirements
	records      store.Records
	reports      store.Reports
	properties   PropertyLookup
	authz        *authz.Engine
	transitions  *statemachine.Engine
	publisher    events.Publisher
	txRunner     *tx.Runner
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(requirements store.Requirements, records store.Records, reports store.Reports, properties PropertyLookup, authzEngine *authz.Engine, transitions *statemachine.Engine, publisher events.Publisher, txRunner *tx.Runner, opts ...Option) *Service {
	s := &Service{
		requirements: requirements,
		records:      records,
		reports:      reports,
		properties:   properties,
		authz:        authzEngine,
		transitions:  transitions,
		publisher:    publisher,
		txRunner:     txRunner,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequirement defines a new compliance rule. Government or admin only.
func (s *Service) CreateRequirement(ctx context.Context, actor identity.Actor, title, description string) (*models.Requirement, error) {
	if err := s.authz.Require(actor, authz.ActionManageRequirements, nil); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	requirement, err := models.NewRequirement(id.RequirementID(uuid.New()), title, description, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.requirements.Create(ctx, requirement); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating requirement")
	}
	s.emit(ctx, actor, id.KindCompliance, "compliance.requirement_created", requirement.ID.String(), nil)
	return requirement, nil
}

type UpdateRequirementInput struct {
	Title       *string
	Description *string
	Active      *bool
}

// UpdateRequirement edits or retires a rule. Government or admin only.
func (s *Service) UpdateRequirement(ctx context.Context, actor identity.Actor, requirementID id.RequirementID, in UpdateRequirementInput) (*models.Requirement, error) {
	if err := s.authz.Require(actor, authz.ActionManageRequirements, nil); err != nil {
		return nil, err
	}
	requirement, err := s.requirements.FindByID(ctx, requirementID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "requirement not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading requirement")
	}
	if in.Title != nil {
		if *in.Title == "" || len(*in.Title) > 255 {
			return nil, dErrors.New(dErrors.CodeValidation, "title must be 1-255 characters")
		}
		requirement.Title = *in.Title
	}
	if in.Description != nil {
		requirement.Description = *in.Description
	}
	if in.Active != nil {
		requirement.Active = *in.Active
	}
	requirement.UpdatedAt = requestcontext.Now(ctx)
	if err := s.requirements.Update(ctx, requirement); err != nil {
		if errors.Is(err, sentinel.ErrStaleState) {
			return nil, dErrors.Wrap(err, dErrors.CodeStaleState, "requirement changed since it was read")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "saving requirement")
	}
	return requirement, nil
}

// ListRequirements returns compliance rules. Any authenticated actor may read
// them; non-elevated actors see active rules only.
func (s *Service) ListRequirements(ctx context.Context, actor identity.Actor) ([]*models.Requirement, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	filter := store.RequirementFilter{ActiveOnly: true}
	if s.authz.Require(actor, authz.ActionManageRequirements, nil) == nil {
		filter.ActiveOnly = false
	}
	requirements, err := s.requirements.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing requirements")
	}
	return requirements, nil
}

// EnsureRecord returns the compliance record for a property, creating it on
// first access. The property owner and compliance managers may create one.
func (s *Service) EnsureRecord(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Record, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	property, err := s.properties.FindByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading property")
	}
	record, err := s.records.FindByProperty(ctx, propertyID)
	if err == nil {
		return s.checkRecordVisible(ctx, actor, record)
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading compliance record")
	}

	canManage := s.authz.Require(actor, authz.ActionManageCompliance, nil) == nil
	if property.OwnerID != actor.ID && !canManage {
		return nil, dErrors.New(dErrors.CodeNotFound, "compliance record not found")
	}
	now := requestcontext.Now(ctx)
	record, err = models.NewRecord(id.ComplianceID(uuid.New()), propertyID, property.OwnerID, now)
	if err != nil {
		return nil, err
	}
	if err := s.records.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a create race; the winner's record is the one to return.
			record, err = s.records.FindByProperty(ctx, propertyID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading compliance record")
			}
			return record, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating compliance record")
	}
	return record, nil
}

// GetRecord returns a compliance record visible to the actor.
func (s *Service) GetRecord(ctx context.Context, actor identity.Actor, complianceID id.ComplianceID) (*models.Record, error) {
	record, err := s.records.FindByID(ctx, complianceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "compliance record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading compliance record")
	}
	return s.checkRecordVisible(ctx, actor, record)
}

// ListRecords returns compliance records visible to the actor.
func (s *Service) ListRecords(ctx context.Context, actor identity.Actor, filter store.RecordFilter) ([]*models.Record, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	records, err := s.records.List(ctx, authz.ScopeFor(actor, id.KindCompliance), filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing compliance records")
	}
	return records, nil
}

// MyProperties returns compliance records for properties the actor owns.
func (s *Service) MyProperties(ctx context.Context, actor identity.Actor) ([]*models.Record, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	records, err := s.records.List(ctx, authz.Scope{UserID: actor.ID}, store.RecordFilter{OwnerID: actor.ID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing compliance records")
	}
	return records, nil
}

// NonCompliant returns all non-compliant records. Government or admin only.
func (s *Service) NonCompliant(ctx context.Context, actor identity.Actor) ([]*models.Record, error) {
	if err := s.authz.Require(actor, authz.ActionManageCompliance, nil); err != nil {
		return nil, err
	}
	records, err := s.records.List(ctx, authz.Scope{All: true}, store.RecordFilter{Status: models.StatusNonCompliant})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing compliance records")
	}
	return records, nil
}

type ReviewInput struct {
	Notes              *string
	LastInspectionDate *time.Time
	NextInspectionDate *time.Time
}

// Review records an inspection pass over a compliance record. Government or
// admin only.
func (s *Service) Review(ctx context.Context, actor identity.Actor, complianceID id.ComplianceID, in ReviewInput) (*models.Record, error) {
	if err := s.authz.Require(actor, authz.ActionManageCompliance, nil); err != nil {
		return nil, err
	}
	record, err := s.records.FindByID(ctx, complianceID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "compliance record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading compliance record")
	}
	if in.Notes != nil {
		record.Notes = *in.Notes
	}
	if in.LastInspectionDate != nil {
		record.LastInspectionDate = in.LastInspectionDate
	}
	if in.NextInspectionDate != nil {
		record.NextInspectionDate = in.NextInspectionDate
	}
	record.ApplyReview(actor.ID, requestcontext.Now(ctx))
	if err := s.records.Update(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrStaleState) {
			return nil, dErrors.Wrap(err, dErrors.CodeStaleState, "compliance record changed since it was read")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "saving compliance record")
	}
	s.emit(ctx, actor, id.KindCompliance, "compliance.reviewed", complianceID.String(), nil)
	return record, nil
}

// AddCheck attaches an active requirement to a compliance record for
// verification. Government or admin only.
func (s *Service) AddCheck(ctx context.Context, actor identity.Actor, complianceID id.ComplianceID, requirementID id.RequirementID) (*models.Check, error) {
	if err := s.authz.Require(actor, authz.ActionManageCompliance, nil); err != nil {
		return nil, err
	}
	if _, err := s.records.FindByID(ctx, complianceID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "compliance record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading compliance record")
	}
	requirement, err := s.requirements.FindByID(ctx, requirementID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "requirement not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading requirement")
	}
	if !requirement.Active {
		return nil, dErrors.New(dErrors.CodeValidation, "requirement is not active")
	}

	now := requestcontext.Now(ctx)
	check, err := models.NewCheck(id.CheckID(uuid.New()), complianceID, requirementID, now)
	if err != nil {
		return nil, err
	}
	if err := s.records.CreateCheck(ctx, check); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "requirement already checked for this record")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating requirement check")
	}
	return check, nil
}

// RecordCheckResult moves a check to PASSED or FAILED (or back to PENDING for
// a re-check) and recomputes the record's derived compliance status in the
// same commit. Government or admin only.
func (s *Service) RecordCheckResult(ctx context.Context, actor identity.Actor, checkID id.CheckID, to statemachine.Status, notes string) (*models.Check, error) {
	check, err := s.records.FindCheck(ctx, checkID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "requirement check not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading requirement check")
	}
	from := check.Status
	tr := statemachine.Transition{
		Kind:      id.KindCheck,
		EntityID:  checkID.String(),
		Action:    authz.ActionManageCompliance,
		Current:   from,
		Requested: to,
		Apply: func(ctx context.Context, now time.Time) error {
			return s.txRunner.InTx(ctx, func(ctx context.Context) error {
				check.ApplyResult(to, actor.ID, notes, now)
				if err := s.records.UpdateCheck(ctx, check); err != nil {
					return err
				}
				return s.rederiveRecord(ctx, check.ComplianceID, now)
			})
		},
	}
	if err := s.transitions.Run(ctx, actor, tr); err != nil {
		return nil, err
	}
	s.emit(ctx, actor, id.KindCheck, "compliance.check_recorded", checkID.String(), map[string]string{
		"from": string(from),
		"to":   string(to),
	})
	return check, nil
}

// rederiveRecord recomputes a record's compliance status from its checks and
// persists the result when it moved.
func (s *Service) rederiveRecord(ctx context.Context, complianceID id.ComplianceID, now time.Time) error {
	record, err := s.records.FindByID(ctx, complianceID)
	if err != nil {
		return err
	}
	checks, err := s.records.ListChecks(ctx, authz.Scope{All: true}, store.CheckFilter{ComplianceID: complianceID})
	if err != nil {
		return err
	}
	derived := models.DeriveStatus(checks)
	if derived == record.Status {
		return nil
	}
	record.Status = derived
	record.UpdatedAt = now
	return s.records.Update(ctx, record)
}

// ListChecks returns requirement checks visible to the actor.
func (s *Service) ListChecks(ctx context.Context, actor identity.Actor, filter store.CheckFilter) ([]*models.Check, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	checks, err := s.records.ListChecks(ctx, authz.ScopeFor(actor, id.KindCheck), filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing requirement checks")
	}
	return checks, nil
}

// GenerateReport opens a draft compliance report. Government or admin only.
func (s *Service) GenerateReport(ctx context.Context, actor identity.Actor, title, description string) (*models.Report, error) {
	if err := s.authz.Require(actor, authz.ActionGenerateReports, nil); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	report, err := models.NewReport(id.ReportID(uuid.New()), title, description, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating compliance report")
	}
	s.emit(ctx, actor, id.KindReport, "compliance.report_generated", report.ID.String(), nil)
	return report, nil
}

// FinalizeReport closes a draft for edits. Government or admin only.
func (s *Service) FinalizeReport(ctx context.Context, actor identity.Actor, reportID id.ReportID) (*models.Report, error) {
	if err := s.authz.Require(actor, authz.ActionGenerateReports, nil); err != nil {
		return nil, err
	}
	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading report")
	}
	if report.Status == models.ReportFinal {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "report is already final")
	}
	report.ApplyFinalized(requestcontext.Now(ctx))
	if err := s.reports.Update(ctx, report); err != nil {
		if errors.Is(err, sentinel.ErrStaleState) {
			return nil, dErrors.Wrap(err, dErrors.CodeStaleState, "report changed since it was read")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "saving report")
	}
	s.emit(ctx, actor, id.KindReport, "compliance.report_finalized", reportID.String(), nil)
	return report, nil
}

// GetReport returns a report. Non-elevated actors see finalized reports only.
func (s *Service) GetReport(ctx context.Context, actor identity.Actor, reportID id.ReportID) (*models.Report, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading report")
	}
	if report.Status != models.ReportFinal && s.authz.Require(actor, authz.ActionGenerateReports, nil) != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
	}
	return report, nil
}

// ListReports returns reports. Non-elevated actors see finalized reports only.
func (s *Service) ListReports(ctx context.Context, actor identity.Actor, filter store.ReportFilter) ([]*models.Report, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	if s.authz.Require(actor, authz.ActionGenerateReports, nil) != nil {
		filter.Status = models.ReportFinal
	}
	reports, err := s.reports.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing reports")
	}
	return reports, nil
}

// PropertyDeleted removes the compliance record and checks for a deleted
// property.
func (s *Service) PropertyDeleted(ctx context.Context, propertyID id.PropertyID) error {
	return s.records.DeleteByProperty(ctx, propertyID)
}

func (s *Service) checkRecordVisible(ctx context.Context, actor identity.Actor, record *models.Record) (*models.Record, error) {
	scope := authz.ScopeFor(actor, id.KindCompliance)
	if scope.All {
		return record, nil
	}
	if !scope.UserID.IsNil() && record.OwnerID == scope.UserID {
		return record, nil
	}
	if scope.PublicOnly {
		property, err := s.properties.FindByID(ctx, record.PropertyID)
		if err == nil && property.IsPubliclyVisible() {
			return record, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "compliance record not found")
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
