package models

import (
	"time"

	"github.com/shopspring/decimal"

	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

// Invoice bills a user for a property transaction. OVERDUE is never requested
// by an actor: it is derived lazily from the due date whenever the invoice is
// read or saved.
type Invoice struct {
	ID            id.InvoiceID        `json:"id"`
	PropertyID    id.PropertyID       `json:"property_id"`
	UserID        id.UserID           `json:"user_id"`
	PaymentID     id.PaymentID        `json:"payment_id,omitempty"`
	InvoiceNumber string              `json:"invoice_number"`
	Amount        decimal.Decimal     `json:"amount"`
	Description   string              `json:"description"`
	Status        statemachine.Status `json:"status"`
	DueDate       time.Time           `json:"due_date"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"-"`
}

func NewInvoice(invoiceID id.InvoiceID, propertyID id.PropertyID, userID id.UserID, invoiceNumber string, amount decimal.Decimal, description string, dueDate, now time.Time) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "invoice number cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user is required")
	}
	return &Invoice{
		ID:            invoiceID,
		PropertyID:    propertyID,
		UserID:        userID,
		InvoiceNumber: invoiceNumber,
		Amount:        amount.Round(2),
		Description:   description,
		Status:        statemachine.InvoicePending,
		DueDate:       dueDate,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}, nil
}

// Derive applies the lazy due-date transition. It reports whether the status
// changed so callers can persist the derived state.
func (i *Invoice) Derive(now time.Time) bool {
	if i.Status == statemachine.InvoicePending && i.DueDate.Before(now) {
		i.Status = statemachine.InvoiceOverdue
		i.UpdatedAt = now
		return true
	}
	return false
}

// ApplyPaid links the settling payment and closes the invoice.
func (i *Invoice) ApplyPaid(paymentID id.PaymentID, now time.Time) {
	i.Status = statemachine.InvoicePaid
	i.PaymentID = paymentID
	i.UpdatedAt = now
}

func (i *Invoice) ApplyCancelled(now time.Time) {
	i.Status = statemachine.InvoiceCancelled
	i.UpdatedAt = now
}
