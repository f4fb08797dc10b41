package domain

// EntityKind names the aggregates governed by the status lattices and query
// scoping. Keeping the enumeration here avoids import cycles between the
// statemachine, authz, and feature packages.
type EntityKind string

const (
	KindUser         EntityKind = "user"
	KindProperty     EntityKind = "property"
	KindKYC          EntityKind = "kyc_verification"
	KindLead         EntityKind = "lead"
	KindPayment      EntityKind = "payment"
	KindInvoice      EntityKind = "invoice"
	KindSubscription EntityKind = "subscription"
	KindCompliance   EntityKind = "property_compliance"
	KindCheck        EntityKind = "requirement_check"
	KindFavorite     EntityKind = "favorite"
	KindReport       EntityKind = "compliance_report"
)
