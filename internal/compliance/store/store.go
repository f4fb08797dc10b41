// Package store persists the compliance aggregates. Requirement and report
// rows are globally readable by authenticated actors; compliance records and
// their checks are scoped through the owning property.
package store

import (
	"context"

	"realhub/internal/authz"
	"realhub/internal/compliance/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
)

type RequirementFilter struct {
	ActiveOnly bool
}

// Requirements persists government-defined compliance requirements.
type Requirements interface {
	Create(ctx context.Context, requirement *models.Requirement) error
	FindByID(ctx context.Context, requirementID id.RequirementID) (*models.Requirement, error)
	Update(ctx context.Context, requirement *models.Requirement) error
	List(ctx context.Context, filter RequirementFilter) ([]*models.Requirement, error)
}

type RecordFilter struct {
	Status  models.ComplianceStatus
	OwnerID id.UserID
}

type CheckFilter struct {
	ComplianceID  id.ComplianceID
	RequirementID id.RequirementID
	Status        statemachine.Status
}

// Records persists per-property compliance records and their requirement
// checks together: check visibility resolves through the parent record.
type Records interface {
	// Create fails with sentinel.ErrConflict when the property already has a
	// compliance record.
	Create(ctx context.Context, record *models.Record) error
	FindByID(ctx context.Context, complianceID id.ComplianceID) (*models.Record, error)
	FindByProperty(ctx context.Context, propertyID id.PropertyID) (*models.Record, error)
	Update(ctx context.Context, record *models.Record) error
	List(ctx context.Context, scope authz.Scope, filter RecordFilter) ([]*models.Record, error)
	// DeleteByProperty removes the record and its checks when the property is
	// deleted.
	DeleteByProperty(ctx context.Context, propertyID id.PropertyID) error

	// CreateCheck fails with sentinel.ErrConflict when the record already has
	// a check for the requirement.
	CreateCheck(ctx context.Context, check *models.Check) error
	FindCheck(ctx context.Context, checkID id.CheckID) (*models.Check, error)
	UpdateCheck(ctx context.Context, check *models.Check) error
	ListChecks(ctx context.Context, scope authz.Scope, filter CheckFilter) ([]*models.Check, error)
}

type ReportFilter struct {
	Status models.ReportStatus
}

// Reports persists compliance reports.
type Reports interface {
	Create(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, reportID id.ReportID) (*models.Report, error)
	Update(ctx context.Context, report *models.Report) error
	List(ctx context.Context, filter ReportFilter) ([]*models.Report, error)
}
