package models

import (
	"time"

	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

// Subscription enrolls a user in a payment plan. EXPIRED is derived lazily
// from the end date, never requested by an actor.
type Subscription struct {
	ID        id.SubscriptionID   `json:"id"`
	UserID    id.UserID           `json:"user_id"`
	PlanID    id.PlanID           `json:"plan_id"`
	StartDate time.Time           `json:"start_date"`
	EndDate   time.Time           `json:"end_date"`
	Status    statemachine.Status `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
	Version   int                 `json:"-"`
}

func NewSubscription(subscriptionID id.SubscriptionID, userID id.UserID, planID id.PlanID, startDate, endDate, now time.Time) (*Subscription, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user is required")
	}
	if planID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "plan is required")
	}
	if !endDate.After(startDate) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "end date must be after start date")
	}
	return &Subscription{
		ID:        subscriptionID,
		UserID:    userID,
		PlanID:    planID,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    statemachine.SubscriptionActive,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}, nil
}

// Derive applies the lazy end-date transition, reporting whether the status
// changed.
func (s *Subscription) Derive(now time.Time) bool {
	if s.Status == statemachine.SubscriptionActive && s.EndDate.Before(now) {
		s.Status = statemachine.SubscriptionExpired
		s.UpdatedAt = now
		return true
	}
	return false
}

func (s *Subscription) ApplyCancelled(now time.Time) {
	s.Status = statemachine.SubscriptionCancelled
	s.UpdatedAt = now
}
