// Package domain holds shared value types used across feature packages: typed
// entity IDs and the entity kind enumeration consumed by query scoping and the
// status lattices.
package domain

import (
	"github.com/google/uuid"

	dErrors "realhub/pkg/domain-errors"
)

// Typed IDs prevent cross-entity assignment at compile time. Construct from
// external input via the Parse helpers, which enforce non-nil, well-formed UUIDs
// at trust boundaries; direct casting bypasses validation.
type (
	UserID         uuid.UUID
	PropertyID     uuid.UUID
	KYCID          uuid.UUID
	LeadID         uuid.UUID
	MessageID      uuid.UUID
	PaymentID      uuid.UUID
	InvoiceID      uuid.UUID
	PlanID         uuid.UUID
	SubscriptionID uuid.UUID
	FavoriteID     uuid.UUID
	ComplianceID   uuid.UUID
	RequirementID  uuid.UUID
	CheckID        uuid.UUID
	ReportID       uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id PropertyID) String() string     { return uuid.UUID(id).String() }
func (id KYCID) String() string          { return uuid.UUID(id).String() }
func (id LeadID) String() string         { return uuid.UUID(id).String() }
func (id MessageID) String() string      { return uuid.UUID(id).String() }
func (id PaymentID) String() string      { return uuid.UUID(id).String() }
func (id InvoiceID) String() string      { return uuid.UUID(id).String() }
func (id PlanID) String() string         { return uuid.UUID(id).String() }
func (id SubscriptionID) String() string { return uuid.UUID(id).String() }
func (id FavoriteID) String() string     { return uuid.UUID(id).String() }
func (id ComplianceID) String() string   { return uuid.UUID(id).String() }
func (id RequirementID) String() string  { return uuid.UUID(id).String() }
func (id CheckID) String() string        { return uuid.UUID(id).String() }
func (id ReportID) String() string       { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id PropertyID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id KYCID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id LeadID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id InvoiceID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id PlanID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id SubscriptionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ComplianceID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RequirementID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

func ParsePropertyID(s string) (PropertyID, error) {
	u, err := parseUUID(s)
	return PropertyID(u), err
}

func ParseKYCID(s string) (KYCID, error) {
	u, err := parseUUID(s)
	return KYCID(u), err
}

func ParseLeadID(s string) (LeadID, error) {
	u, err := parseUUID(s)
	return LeadID(u), err
}

func ParseMessageID(s string) (MessageID, error) {
	u, err := parseUUID(s)
	return MessageID(u), err
}

func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID(s)
	return PaymentID(u), err
}

func ParseInvoiceID(s string) (InvoiceID, error) {
	u, err := parseUUID(s)
	return InvoiceID(u), err
}

func ParsePlanID(s string) (PlanID, error) {
	u, err := parseUUID(s)
	return PlanID(u), err
}

func ParseSubscriptionID(s string) (SubscriptionID, error) {
	u, err := parseUUID(s)
	return SubscriptionID(u), err
}

func ParseFavoriteID(s string) (FavoriteID, error) {
	u, err := parseUUID(s)
	return FavoriteID(u), err
}

func ParseComplianceID(s string) (ComplianceID, error) {
	u, err := parseUUID(s)
	return ComplianceID(u), err
}

func ParseRequirementID(s string) (RequirementID, error) {
	u, err := parseUUID(s)
	return RequirementID(u), err
}

func ParseCheckID(s string) (CheckID, error) {
	u, err := parseUUID(s)
	return CheckID(u), err
}

func ParseReportID(s string) (ReportID, error) {
	u, err := parseUUID(s)
	return ReportID(u), err
}
