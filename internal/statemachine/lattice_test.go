package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

func TestLattices(t *testing.T) {
	tests := []struct {
		name    string
		kind    id.EntityKind
		from    Status
		to      Status
		allowed bool
	}{
		{"property pending to verified", id.KindProperty, PropertyPending, PropertyVerified, true},
		{"property verified back to pending", id.KindProperty, PropertyVerified, PropertyPending, true},
		{"property rejected to verified", id.KindProperty, PropertyRejected, PropertyVerified, true},
		{"property self loop denied", id.KindProperty, PropertyPending, PropertyPending, false},

		{"kyc pending to approved", id.KindKYC, KYCPending, KYCApproved, true},
		{"kyc approved re-reviewable", id.KindKYC, KYCApproved, KYCRejected, true},

		{"lead any to any", id.KindLead, LeadConverted, LeadNew, true},
		{"lead new to lost", id.KindLead, LeadNew, LeadLost, true},
		{"lead self loop denied", id.KindLead, LeadNew, LeadNew, false},

		{"payment pending to completed", id.KindPayment, PaymentPending, PaymentCompleted, true},
		{"payment pending to failed", id.KindPayment, PaymentPending, PaymentFailed, true},
		{"payment completed to refunded", id.KindPayment, PaymentCompleted, PaymentRefunded, true},
		{"payment pending to refunded denied", id.KindPayment, PaymentPending, PaymentRefunded, false},
		{"payment failed is terminal", id.KindPayment, PaymentFailed, PaymentCompleted, false},
		{"payment refunded is terminal", id.KindPayment, PaymentRefunded, PaymentPending, false},

		{"invoice pending to paid", id.KindInvoice, InvoicePending, InvoicePaid, true},
		{"invoice pending to overdue", id.KindInvoice, InvoicePending, InvoiceOverdue, true},
		{"invoice overdue still payable", id.KindInvoice, InvoiceOverdue, InvoicePaid, true},
		{"invoice overdue cancellable", id.KindInvoice, InvoiceOverdue, InvoiceCancelled, true},
		{"invoice paid is terminal", id.KindInvoice, InvoicePaid, InvoiceCancelled, false},
		{"invoice cancelled is terminal", id.KindInvoice, InvoiceCancelled, InvoicePaid, false},

		{"subscription active to expired", id.KindSubscription, SubscriptionActive, SubscriptionExpired, true},
		{"subscription active to cancelled", id.KindSubscription, SubscriptionActive, SubscriptionCancelled, true},
		{"subscription expired is terminal", id.KindSubscription, SubscriptionExpired, SubscriptionActive, false},
		{"subscription cancelled is terminal", id.KindSubscription, SubscriptionCancelled, SubscriptionActive, false},

		{"check pending to passed", id.KindCheck, CheckPending, CheckPassed, true},
		{"check passed re-reviewable", id.KindCheck, CheckPassed, CheckFailed, true},
		{"check failed back to pending", id.KindCheck, CheckFailed, CheckPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lattice := LatticeFor(tt.kind)
			assert.Equal(t, tt.allowed, lattice.CanTransition(tt.from, tt.to))

			err := lattice.Validate(tt.from, tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
			}
		})
	}
}

func TestLattice_UnknownStatusHasNoTargets(t *testing.T) {
	lattice := LatticeFor(id.KindPayment)
	assert.False(t, lattice.CanTransition(Status("bogus"), PaymentCompleted))
	assert.Empty(t, lattice.Targets(Status("bogus")))
}

func TestLatticeFor_PanicsOnUngovernedKind(t *testing.T) {
	assert.Panics(t, func() { LatticeFor(id.KindFavorite) })
	assert.Panics(t, func() { LatticeFor(id.KindReport) })
	assert.Panics(t, func() { LatticeFor(id.EntityKind("unknown")) })
}
