// Package models holds the lead (property inquiry) aggregate and its message
// thread.
package models

import (
	"time"

	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

// Lead is an inquiry by a user about a property. OwnerID denormalizes the
// property owner at creation time so scoping and messaging work without a
// property lookup.
type Lead struct {
	ID         id.LeadID           `json:"id"`
	PropertyID id.PropertyID       `json:"property_id"`
	UserID     id.UserID           `json:"user_id"`
	OwnerID    id.UserID           `json:"owner_id"`
	Status     statemachine.Status `json:"status"`
	Message    string              `json:"message"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Version    int                 `json:"-"`
}

// NewLead opens an inquiry in NEW state.
func NewLead(leadID id.LeadID, propertyID id.PropertyID, userID, ownerID id.UserID, message string, now time.Time) (*Lead, error) {
	if message == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "message cannot be empty")
	}
	if userID.IsNil() || ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "inquirer and owner are required")
	}
	return &Lead{
		ID:         leadID,
		PropertyID: propertyID,
		UserID:     userID,
		OwnerID:    ownerID,
		Status:     statemachine.LeadNew,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}, nil
}

// IsParticipant reports whether userID is the inquirer or the property owner.
func (l *Lead) IsParticipant(userID id.UserID) bool {
	return userID == l.UserID || userID == l.OwnerID
}

// OtherParticipant returns the counterpart of userID on this lead.
func (l *Lead) OtherParticipant(userID id.UserID) id.UserID {
	if userID == l.UserID {
		return l.OwnerID
	}
	return l.UserID
}

// Message is one entry in a lead's conversation thread.
type Message struct {
	ID         id.MessageID `json:"id"`
	LeadID     id.LeadID    `json:"lead_id"`
	SenderID   id.UserID    `json:"sender_id"`
	ReceiverID id.UserID    `json:"receiver_id"`
	Content    string       `json:"content"`
	Read       bool         `json:"is_read"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewMessage validates and constructs a thread entry.
func NewMessage(messageID id.MessageID, leadID id.LeadID, senderID, receiverID id.UserID, content string, now time.Time) (*Message, error) {
	if content == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "content cannot be empty")
	}
	return &Message{
		ID:         messageID,
		LeadID:     leadID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  now,
	}, nil
}
