// Package models holds the billing aggregates: payments, invoices, payment
// plans, and subscriptions.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

type PaymentType string

const (
	PaymentRent       PaymentType = "rent"
	PaymentPurchase   PaymentType = "purchase"
	PaymentDeposit    PaymentType = "deposit"
	PaymentCommission PaymentType = "commission"
)

func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentRent, PaymentPurchase, PaymentDeposit, PaymentCommission:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodPaystack     PaymentMethod = "paystack"
	MethodFlutterwave  PaymentMethod = "flutterwave"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodPaystack, MethodFlutterwave, MethodBankTransfer:
		return true
	}
	return false
}

// Payment tracks one property payment from payer to receiver. The receiver is
// fixed to the property owner at creation.
//
// Invariants:
//   - Reference is non-empty and unique
//   - Amount is positive with 2 fractional digits
//   - COMPLETED implies CompletedAt set; the stamp is written once and never
//     overwritten by later transitions
type Payment struct {
	ID            id.PaymentID        `json:"id"`
	PropertyID    id.PropertyID       `json:"property_id"`
	PayerID       id.UserID           `json:"payer_id"`
	ReceiverID    id.UserID           `json:"receiver_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Type          PaymentType         `json:"payment_type"`
	Method        PaymentMethod       `json:"payment_method"`
	TransactionID string              `json:"transaction_id,omitempty"`
	Reference     string              `json:"reference"`
	Status        statemachine.Status `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	Version       int                 `json:"-"`
}

func NewPayment(paymentID id.PaymentID, propertyID id.PropertyID, payerID, receiverID id.UserID, amount decimal.Decimal, paymentType PaymentType, method PaymentMethod, reference string, now time.Time) (*Payment, error) {
	if reference == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reference cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	if !paymentType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid payment type")
	}
	if !method.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid payment method")
	}
	if payerID.IsNil() || receiverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "payer and receiver are required")
	}
	return &Payment{
		ID:         paymentID,
		PropertyID: propertyID,
		PayerID:    payerID,
		ReceiverID: receiverID,
		Amount:     amount.Round(2),
		Type:       paymentType,
		Method:     method,
		Reference:  reference,
		Status:     statemachine.PaymentPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}, nil
}

// ApplyCompletion stamps completed_at once; a payment completed at time T
// keeps that timestamp through any later refund.
func (p *Payment) ApplyCompletion(transactionID string, now time.Time) {
	p.Status = statemachine.PaymentCompleted
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	if p.CompletedAt == nil {
		t := now
		p.CompletedAt = &t
	}
	p.UpdatedAt = now
}

func (p *Payment) ApplyFailure(now time.Time) {
	p.Status = statemachine.PaymentFailed
	p.UpdatedAt = now
}

func (p *Payment) ApplyRefund(now time.Time) {
	p.Status = statemachine.PaymentRefunded
	p.UpdatedAt = now
}
