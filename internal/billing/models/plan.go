package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

type Frequency string

const (
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencyBiannually Frequency = "biannually"
	FrequencyAnnually   Frequency = "annually"
	FrequencyOneTime    Frequency = "one_time"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyBiannually, FrequencyAnnually, FrequencyOneTime:
		return true
	}
	return false
}

// Plan is a payment schedule a property owner offers on a listing. OwnerID
// denormalizes the property owner for ownership checks.
type Plan struct {
	ID                       id.PlanID       `json:"id"`
	PropertyID               id.PropertyID   `json:"property_id"`
	OwnerID                  id.UserID       `json:"owner_id"`
	Name                     string          `json:"name"`
	Description              string          `json:"description"`
	Frequency                Frequency       `json:"frequency"`
	DurationMonths           int             `json:"duration_months"`
	InitialPaymentPercentage decimal.Decimal `json:"initial_payment_percentage"`
	Active                   bool            `json:"is_active"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
	Version                  int             `json:"-"`
}

func NewPlan(planID id.PlanID, propertyID id.PropertyID, ownerID id.UserID, name string, frequency Frequency, durationMonths int, initialPct decimal.Decimal, now time.Time) (*Plan, error) {
	if name == "" || len(name) > 100 {
		return nil, dErrors.New(dErrors.CodeValidation, "name must be 1-100 characters")
	}
	if !frequency.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid frequency")
	}
	if durationMonths <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "duration must be positive")
	}
	if initialPct.IsNegative() || initialPct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, dErrors.New(dErrors.CodeValidation, "initial payment percentage must be between 0 and 100")
	}
	return &Plan{
		ID:                       planID,
		PropertyID:               propertyID,
		OwnerID:                  ownerID,
		Name:                     name,
		Frequency:                frequency,
		DurationMonths:           durationMonths,
		InitialPaymentPercentage: initialPct.Round(2),
		Active:                   true,
		CreatedAt:                now,
		UpdatedAt:                now,
		Version:                  1,
	}, nil
}
