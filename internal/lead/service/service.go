// Package service implements property inquiries: lead creation against
// publicly visible listings, pipeline status updates by the property owner,
// and messaging between the two participants.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"realhub/internal/authz"
	"realhub/internal/events"
	"realhub/internal/identity"
	"realhub/internal/lead/models"
	"realhub/internal/lead/store"
	"realhub/internal/platform/metrics"
	propertymodels "realhub/internal/property/models"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/requestcontext"
)

// PropertyLookup is the slice of the property store the lead flow needs.
type PropertyLookup interface {
	FindByID(ctx context.Context, propertyID id.PropertyID) (*propertymodels.Property, error)
}

type Service struct {
	leads       store.Store
	properties  PropertyLookup
	authz       *authz.Engine
	transitions *statemachine.Engine
	publisher   events.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(leads store.Store, properties PropertyLookup, authzEngine *authz.Engine, transitions *statemachine.Engine, publisher events.Publisher, opts ...Option) *Service {
	s := &Service{
		leads:       leads,
		properties:  properties,
		authz:       authzEngine,
		transitions: transitions,
		publisher:   publisher,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens an inquiry on a publicly visible listing. The property must be
// verified and active; anything else reads as not found to keep hidden
// listings hidden.
func (s *Service) Create(ctx context.Context, actor identity.Actor, propertyID id.PropertyID, message string) (*models.Lead, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	if message == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "message is required")
	}

	property, err := s.properties.FindByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, propertyNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading property")
	}
	if !property.IsPubliclyVisible() && property.OwnerID != actor.ID && !actor.Role.IsAdmin() {
		return nil, propertyNotFound()
	}
	if !property.IsPubliclyVisible() {
		return nil, dErrors.New(dErrors.CodeValidation, "property is not open for inquiries")
	}

	now := requestcontext.Now(ctx)
	lead, err := models.NewLead(id.LeadID(uuid.New()), propertyID, actor.ID, property.OwnerID, message, now)
	if err != nil {
		return nil, err
	}
	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating lead")
	}
	s.emit(ctx, actor, "lead.created", lead.ID.String(), map[string]string{
		"property_id": propertyID.String(),
	})
	return lead, nil
}

// Get returns a lead visible to the actor.
func (s *Service) Get(ctx context.Context, actor identity.Actor, leadID id.LeadID) (*models.Lead, error) {
	return s.visible(ctx, actor, leadID)
}

// List returns leads the actor participates in, or all for admins.
func (s *Service) List(ctx context.Context, actor identity.Actor, filter store.Filter) ([]*models.Lead, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	scope := authz.ScopeFor(actor, id.KindLead)
	leads, err := s.leads.List(ctx, scope, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing leads")
	}
	return leads, nil
}

// UpdateStatus moves a lead through the pipeline. Only the property owner or
// an admin may do this; the inquirer cannot re-qualify their own lead.
func (s *Service) UpdateStatus(ctx context.Context, actor identity.Actor, leadID id.LeadID, to statemachine.Status) (*models.Lead, error) {
	lead, err := s.visible(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}
	from := lead.Status
	tr := statemachine.Transition{
		Kind:      id.KindLead,
		EntityID:  leadID.String(),
		Action:    authz.ActionUpdateLead,
		Owner:     lead.OwnerID,
		Current:   from,
		Requested: to,
		Apply: func(ctx context.Context, now time.Time) error {
			lead.Status = to
			lead.UpdatedAt = now
			return s.leads.Update(ctx, lead)
		},
	}
	if err := s.transitions.Run(ctx, actor, tr); err != nil {
		return nil, err
	}
	s.emit(ctx, actor, "lead.status_changed", leadID.String(), map[string]string{
		"from": string(from),
		"to":   string(to),
	})
	return lead, nil
}

// SendMessage appends to the lead's thread. Only the two participants may
// exchange messages; the receiver is always the counterpart.
func (s *Service) SendMessage(ctx context.Context, actor identity.Actor, leadID id.LeadID, content string) (*models.Message, error) {
	lead, err := s.visible(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}
	if !lead.IsParticipant(actor.ID) {
		// Admin can read the thread but has no counterpart to message.
		return nil, dErrors.New(dErrors.CodeForbidden, "only lead participants may send messages")
	}

	now := requestcontext.Now(ctx)
	message, err := models.NewMessage(id.MessageID(uuid.New()), leadID, actor.ID, lead.OtherParticipant(actor.ID), content, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid message")
	}
	if err := s.leads.CreateMessage(ctx, message); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating message")
	}
	s.emit(ctx, actor, "lead.message_sent", leadID.String(), map[string]string{
		"receiver_id": message.ReceiverID.String(),
	})
	return message, nil
}

// Messages returns the lead's thread for a participant or admin.
func (s *Service) Messages(ctx context.Context, actor identity.Actor, leadID id.LeadID) ([]*models.Message, error) {
	if _, err := s.visible(ctx, actor, leadID); err != nil {
		return nil, err
	}
	messages, err := s.leads.ListMessages(ctx, leadID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing messages")
	}
	return messages, nil
}

// MarkRead marks a message read. Only its receiver may do so; the write is
// idempotent.
func (s *Service) MarkRead(ctx context.Context, actor identity.Actor, messageID id.MessageID) (*models.Message, error) {
	message, err := s.leads.FindMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "message not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading message")
	}
	if message.ReceiverID != actor.ID && !actor.Role.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeNotFound, "message not found")
	}
	if message.Read {
		return message, nil
	}
	message.Read = true
	if err := s.leads.UpdateMessage(ctx, message); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "saving message")
	}
	return message, nil
}

// PropertyDeleted removes all leads for a deleted property. It satisfies the
// property service's cascade port.
func (s *Service) PropertyDeleted(ctx context.Context, propertyID id.PropertyID) error {
	return s.leads.DeleteByProperty(ctx, propertyID)
}

func (s *Service) visible(ctx context.Context, actor identity.Actor, leadID id.LeadID) (*models.Lead, error) {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading lead")
	}
	scope := authz.ScopeFor(actor, id.KindLead)
	if !scope.All && !(scope.UserID == lead.UserID || scope.UserID == lead.OwnerID) {
		return nil, notFound()
	}
	return lead, nil
}

func (s *Service) emit(ctx context.Context, actor identity.Actor, name, entityID string, fields map[string]string) {
	event := events.Event{
		Name:       name,
		Kind:       id.KindLead,
		EntityID:   entityID,
		ActorID:    actor.ID,
		OccurredAt: requestcontext.Now(ctx),
		Fields:     fields,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "event", name, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.IncEventPublished(name)
	}
}

func notFound() error {
	return dErrors.New(dErrors.CodeNotFound, "lead not found")
}

func propertyNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "property not found")
}
