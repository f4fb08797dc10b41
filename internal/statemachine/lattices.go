package statemachine

import id "realhub/pkg/domain"

// Status values per entity kind. The string values are the wire and storage
// representation.
const (
	// Property verification.
	PropertyPending  Status = "pending"
	PropertyVerified Status = "verified"
	PropertyRejected Status = "rejected"

	// KYC review.
	KYCPending  Status = "pending"
	KYCApproved Status = "approved"
	KYCRejected Status = "rejected"

	// Lead pipeline.
	LeadNew       Status = "new"
	LeadContacted Status = "contacted"
	LeadQualified Status = "qualified"
	LeadLost      Status = "lost"
	LeadConverted Status = "converted"

	// Payment.
	PaymentPending   Status = "pending"
	PaymentCompleted Status = "completed"
	PaymentFailed    Status = "failed"
	PaymentRefunded  Status = "refunded"

	// Invoice.
	InvoicePending   Status = "pending"
	InvoicePaid      Status = "paid"
	InvoiceOverdue   Status = "overdue"
	InvoiceCancelled Status = "cancelled"

	// Subscription.
	SubscriptionActive    Status = "active"
	SubscriptionExpired   Status = "expired"
	SubscriptionCancelled Status = "cancelled"

	// Requirement check.
	CheckPending Status = "pending"
	CheckPassed  Status = "passed"
	CheckFailed  Status = "failed"
)

// Property verification is fully re-reviewable: a verifier may move a listing
// between any two review states, subject to the transition's payload rules.
var propertyLattice = NewLattice(id.KindProperty, map[Status][]Status{
	PropertyPending:  {PropertyVerified, PropertyRejected},
	PropertyVerified: {PropertyPending, PropertyRejected},
	PropertyRejected: {PropertyPending, PropertyVerified},
})

// KYC review mirrors property verification.
var kycLattice = NewLattice(id.KindKYC, map[Status][]Status{
	KYCPending:  {KYCApproved, KYCRejected},
	KYCApproved: {KYCPending, KYCRejected},
	KYCRejected: {KYCPending, KYCApproved},
})

// The lead pipeline deliberately accepts any enumerated value from any other;
// the source system never enforced an ordering and intent around edges such as
// converted back to new is ambiguous, so the graph stays fully connected.
var leadLattice = NewLattice(id.KindLead, map[Status][]Status{
	LeadNew:       {LeadContacted, LeadQualified, LeadLost, LeadConverted},
	LeadContacted: {LeadNew, LeadQualified, LeadLost, LeadConverted},
	LeadQualified: {LeadNew, LeadContacted, LeadLost, LeadConverted},
	LeadLost:      {LeadNew, LeadContacted, LeadQualified, LeadConverted},
	LeadConverted: {LeadNew, LeadContacted, LeadQualified, LeadLost},
})

// FAILED and REFUNDED are terminal.
var paymentLattice = NewLattice(id.KindPayment, map[Status][]Status{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {PaymentRefunded},
})

// OVERDUE is entered lazily off the due date, never by an actor; an overdue
// invoice may still be paid or cancelled. PAID and CANCELLED are terminal.
var invoiceLattice = NewLattice(id.KindInvoice, map[Status][]Status{
	InvoicePending: {InvoicePaid, InvoiceOverdue, InvoiceCancelled},
	InvoiceOverdue: {InvoicePaid, InvoiceCancelled},
})

// EXPIRED is entered lazily off the end date. EXPIRED and CANCELLED are terminal.
var subscriptionLattice = NewLattice(id.KindSubscription, map[Status][]Status{
	SubscriptionActive: {SubscriptionExpired, SubscriptionCancelled},
})

// Requirement checks are re-reviewable like property verification.
var checkLattice = NewLattice(id.KindCheck, map[Status][]Status{
	CheckPending: {CheckPassed, CheckFailed},
	CheckPassed:  {CheckPending, CheckFailed},
	CheckFailed:  {CheckPending, CheckPassed},
})

var lattices = map[id.EntityKind]Lattice{
	id.KindProperty:     propertyLattice,
	id.KindKYC:          kycLattice,
	id.KindLead:         leadLattice,
	id.KindPayment:      paymentLattice,
	id.KindInvoice:      invoiceLattice,
	id.KindSubscription: subscriptionLattice,
	id.KindCheck:        checkLattice,
}

// LatticeFor returns the lattice for kind. It panics on unknown kinds: the set
// of governed kinds is fixed at compile time and a miss is a programming error.
func LatticeFor(kind id.EntityKind) Lattice {
	l, ok := lattices[kind]
	if !ok {
		panic("statemachine: no lattice registered for kind " + string(kind))
	}
	return l
}
