// Package models holds the compliance aggregates: government-defined
// requirements, per-property compliance records, requirement checks, and
// compliance reports.
package models

import (
	"time"

	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

// ComplianceStatus is derived from a record's requirement checks, never set
// directly by an actor.
type ComplianceStatus string

const (
	StatusPendingReview ComplianceStatus = "pending_review"
	StatusCompliant     ComplianceStatus = "compliant"
	StatusNonCompliant  ComplianceStatus = "non_compliant"
)

// Requirement is a rule properties are checked against. Only government and
// admin actors manage requirements; any authenticated actor may read them.
type Requirement struct {
	ID          id.RequirementID `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Active      bool             `json:"is_active"`
	CreatedBy   id.UserID        `json:"created_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Version     int              `json:"-"`
}

func NewRequirement(requirementID id.RequirementID, title, description string, createdBy id.UserID, now time.Time) (*Requirement, error) {
	if title == "" || len(title) > 255 {
		return nil, dErrors.New(dErrors.CodeValidation, "title must be 1-255 characters")
	}
	return &Requirement{
		ID:          requirementID,
		Title:       title,
		Description: description,
		Active:      true,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}, nil
}

// Record is the per-property compliance state. OwnerID denormalizes the
// property owner so stores can scope without a join back to properties.
type Record struct {
	ID                 id.ComplianceID  `json:"id"`
	PropertyID         id.PropertyID    `json:"property_id"`
	OwnerID            id.UserID        `json:"owner_id"`
	Status             ComplianceStatus `json:"compliance_status"`
	ReviewedBy         id.UserID        `json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time       `json:"reviewed_at,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	LastInspectionDate *time.Time       `json:"last_inspection_date,omitempty"`
	NextInspectionDate *time.Time       `json:"next_inspection_date,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	Version            int              `json:"-"`
}

func NewRecord(complianceID id.ComplianceID, propertyID id.PropertyID, ownerID id.UserID, now time.Time) (*Record, error) {
	if propertyID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "property is required")
	}
	return &Record{
		ID:         complianceID,
		PropertyID: propertyID,
		OwnerID:    ownerID,
		Status:     StatusPendingReview,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}, nil
}

// ApplyReview records a reviewer pass over the record.
func (r *Record) ApplyReview(reviewer id.UserID, now time.Time) {
	r.ReviewedBy = reviewer
	r.ReviewedAt = &now
	r.UpdatedAt = now
}

// DeriveStatus recomputes the compliance status from the record's checks:
// any failed check makes the record non-compliant; all checks passed (and at
// least one present) makes it compliant; anything else is pending review.
func DeriveStatus(checks []*Check) ComplianceStatus {
	if len(checks) == 0 {
		return StatusPendingReview
	}
	allPassed := true
	for _, c := range checks {
		switch c.Status {
		case statemachine.CheckFailed:
			return StatusNonCompliant
		case statemachine.CheckPassed:
		default:
			allPassed = false
		}
	}
	if allPassed {
		return StatusCompliant
	}
	return StatusPendingReview
}

// Check is one requirement verified against one compliance record.
type Check struct {
	ID            id.CheckID          `json:"id"`
	ComplianceID  id.ComplianceID     `json:"property_compliance_id"`
	RequirementID id.RequirementID    `json:"requirement_id"`
	Status        statemachine.Status `json:"status"`
	CheckedBy     id.UserID           `json:"checked_by,omitempty"`
	CheckedAt     *time.Time          `json:"checked_at,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"-"`
}

func NewCheck(checkID id.CheckID, complianceID id.ComplianceID, requirementID id.RequirementID, now time.Time) (*Check, error) {
	if complianceID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "compliance record is required")
	}
	if requirementID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "requirement is required")
	}
	return &Check{
		ID:            checkID,
		ComplianceID:  complianceID,
		RequirementID: requirementID,
		Status:        statemachine.CheckPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}, nil
}

// ApplyResult records a checker's verdict.
func (c *Check) ApplyResult(to statemachine.Status, checker id.UserID, notes string, now time.Time) {
	c.Status = to
	c.CheckedBy = checker
	c.CheckedAt = &now
	if notes != "" {
		c.Notes = notes
	}
	c.UpdatedAt = now
}

// ReportStatus is the report lifecycle: a draft may be edited until finalized.
type ReportStatus string

const (
	ReportDraft ReportStatus = "draft"
	ReportFinal ReportStatus = "final"
)

// Report is a compliance summary document produced by government or admin
// actors. Non-elevated actors see only finalized reports.
type Report struct {
	ID          id.ReportID  `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      ReportStatus `json:"status"`
	GeneratedBy id.UserID    `json:"generated_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Version     int          `json:"-"`
}

func NewReport(reportID id.ReportID, title, description string, generatedBy id.UserID, now time.Time) (*Report, error) {
	if title == "" || len(title) > 255 {
		return nil, dErrors.New(dErrors.CodeValidation, "title must be 1-255 characters")
	}
	return &Report{
		ID:          reportID,
		Title:       title,
		Description: description,
		Status:      ReportDraft,
		GeneratedBy: generatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}, nil
}

// ApplyFinalized closes the report for edits.
func (r *Report) ApplyFinalized(now time.Time) {
	r.Status = ReportFinal
	r.UpdatedAt = now
}
