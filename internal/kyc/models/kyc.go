// Package models holds the KYC verification aggregate. A user has at most one
// verification record; resubmission resets it rather than creating another.
package models

import (
	"time"

	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

// Verification tracks one user's KYC review state.
//
// Invariants:
//   - UserID is set at creation and immutable; unique across records
//   - REJECTED implies a non-empty RejectionReason
//   - APPROVED implies ReviewedBy and ReviewedAt set
type Verification struct {
	ID              id.KYCID            `json:"id"`
	UserID          id.UserID           `json:"user_id"`
	Status          statemachine.Status `json:"status"`
	SubmittedAt     time.Time           `json:"submitted_at"`
	ReviewedBy      id.UserID           `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty"`
	RejectionReason string              `json:"rejection_reason,omitempty"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Version         int                 `json:"-"`
}

// NewVerification opens a PENDING verification for user.
func NewVerification(kycID id.KYCID, userID id.UserID, now time.Time) (*Verification, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user is required")
	}
	return &Verification{
		ID:          kycID,
		UserID:      userID,
		Status:      statemachine.KYCPending,
		SubmittedAt: now,
		UpdatedAt:   now,
		Version:     1,
	}, nil
}

// ApplyApproval stamps the reviewer and clears any prior rejection.
func (v *Verification) ApplyApproval(reviewer id.UserID, now time.Time) {
	v.Status = statemachine.KYCApproved
	v.RejectionReason = ""
	v.ReviewedBy = reviewer
	t := now
	v.ReviewedAt = &t
	v.UpdatedAt = now
}

// ApplyRejection records the reason with the reviewer stamp.
func (v *Verification) ApplyRejection(reviewer id.UserID, reason string, now time.Time) {
	v.Status = statemachine.KYCRejected
	v.RejectionReason = reason
	v.ReviewedBy = reviewer
	t := now
	v.ReviewedAt = &t
	v.UpdatedAt = now
}

// ApplyResubmission returns the record to the review queue.
func (v *Verification) ApplyResubmission(now time.Time) {
	v.Status = statemachine.KYCPending
	v.RejectionReason = ""
	v.ReviewedBy = id.UserID{}
	v.ReviewedAt = nil
	v.SubmittedAt = now
	v.UpdatedAt = now
}
