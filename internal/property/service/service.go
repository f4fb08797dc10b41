// Package service implements the property listing operations: creation,
// scoped reads and search, owner edits, and the verification review flow.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"realhub/internal/authz"
	"realhub/internal/events"
	"realhub/internal/identity"
	"realhub/internal/platform/metrics"
	"realhub/internal/property/models"
	"realhub/internal/property/store"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/sentinel"
	strutil "realhub/pkg/platform/strings"
	"realhub/pkg/requestcontext"
)

// Cascade is notified when a property is deleted so dependent aggregates
// (leads, favorites) can remove their rows.
type Cascade interface {
	PropertyDeleted(ctx context.Context, propertyID id.PropertyID) error
}

type Service struct {
	store       store.Store
	authz       *authz.Engine
	transitions *statemachine.Engine
	publisher   events.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	cascades    []Cascade
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCascades(cascades ...Cascade) Option {
	return func(s *Service) { s.cascades = append(s.cascades, cascades...) }
}

func New(st store.Store, authzEngine *authz.Engine, transitions *statemachine.Engine, publisher events.Publisher, opts ...Option) *Service {
	s := &Service{
		store:       st,
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

type CreateInput struct {
	Title        string
	Description  string
	Price        decimal.Decimal
	PropertyType models.PropertyType
	ListingType  models.ListingType
	Address      string
	City         string
	State        string
	Bedrooms     int
	Bathrooms    int
	SizeSqm      decimal.Decimal
	Amenities    []string
}

// Create registers a new listing in PENDING state. Only verified property
// owners, firms, or admins may list.
func (s *Service) Create(ctx context.Context, actor identity.Actor, in CreateInput) (*models.Property, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	if !actor.Role.CanListProperties() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonInsufficientRole)
	}
	if !actor.Verified && !actor.Role.IsAdmin() {
		return nil, dErrors.New(dErrors.CodeForbidden, "account must be verified to list properties")
	}

	now := requestcontext.Now(ctx)
	property, err := models.NewProperty(id.PropertyID(uuid.New()), actor.ID, in.Title, in.Price, in.PropertyType, in.ListingType, now)
	if err != nil {
		return nil, err
	}
	property.Description = in.Description
	property.Address = in.Address
	property.City = in.City
	property.State = in.State
	property.Bedrooms = in.Bedrooms
	property.Bathrooms = in.Bathrooms
	property.SizeSqm = in.SizeSqm.Round(2)
	property.Amenities = strutil.DedupeAndTrimLower(in.Amenities)

	if err := s.store.Create(ctx, property); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating property")
	}
	if s.metrics != nil {
		s.metrics.IncPropertiesCreated()
	}
	s.emit(ctx, actor, "property.created", property.ID.String(), map[string]string{
		"listing_type": string(property.ListingType),
	})
	return property, nil
}

// Get returns one listing if it is visible to the actor. Out-of-scope and
// nonexistent listings are indistinguishable.
func (s *Service) Get(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Property, error) {
	return s.visible(ctx, actor, propertyID)
}

// List returns listings visible to the actor, narrowed by filter.
func (s *Service) List(ctx context.Context, actor identity.Actor, filter store.Filter) ([]*models.Property, error) {
	scope := authz.ScopeFor(actor, id.KindProperty)
	properties, err := s.store.List(ctx, scope, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing properties")
	}
	return properties, nil
}

// Search is List with caller-supplied criteria; public callers only ever see
// the active, verified subset because scoping is applied in the store.
func (s *Service) Search(ctx context.Context, actor identity.Actor, filter store.Filter) ([]*models.Property, error) {
	return s.List(ctx, actor, filter)
}

// MyProperties returns the actor's own listings regardless of status.
func (s *Service) MyProperties(ctx context.Context, actor identity.Actor) ([]*models.Property, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	properties, err := s.store.List(ctx, authz.Scope{UserID: actor.ID}, store.Filter{})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing properties")
	}
	return properties, nil
}

// PendingVerification returns the review queue for government and admin actors.
func (s *Service) PendingVerification(ctx context.Context, actor identity.Actor) ([]*models.Property, error) {
	if err := s.authz.Require(actor, authz.ActionVerifyProperty, nil); err != nil {
		return nil, err
	}
	properties, err := s.store.List(ctx, authz.Scope{All: true}, store.Filter{Status: statemachine.PropertyPending})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing properties")
	}
	return properties, nil
}

type UpdateInput struct {
	Title       *string
	Description *string
	Price       *decimal.Decimal
	Address     *string
	City        *string
	State       *string
	Bedrooms    *int
	Bathrooms   *int
	SizeSqm     *decimal.Decimal
	Amenities   []string
	Active      *bool
}

// Update applies an owner edit. Fields left nil are untouched; the listing's
// verification status is not affected by edits.
func (s *Service) Update(ctx context.Context, actor identity.Actor, propertyID id.PropertyID, in UpdateInput) (*models.Property, error) {
	property, err := s.visible(ctx, actor, propertyID)
	if err != nil {
		return nil, err
	}
	target := &authz.Target{Kind: id.KindProperty, OwnerID: property.OwnerID}
	if err := s.authz.Require(actor, authz.ActionUpdateProperty, target); err != nil {
		return nil, err
	}

	if in.Title != nil {
		if *in.Title == "" || len(*in.Title) > 255 {
			return nil, dErrors.New(dErrors.CodeValidation, "title must be 1-255 characters")
		}
		property.Title = *in.Title
	}
	if in.Description != nil {
		property.Description = *in.Description
	}
	if in.Price != nil {
		if !in.Price.IsPositive() {
			return nil, dErrors.New(dErrors.CodeValidation, "price must be positive")
		}
		property.Price = in.Price.Round(2)
	}
	if in.Address != nil {
		property.Address = *in.Address
	}
	if in.City != nil {
		property.City = *in.City
	}
	if in.State != nil {
		property.State = *in.State
	}
	if in.Bedrooms != nil {
		property.Bedrooms = *in.Bedrooms
	}
	if in.Bathrooms != nil {
		property.Bathrooms = *in.Bathrooms
	}
	if in.SizeSqm != nil {
		property.SizeSqm = in.SizeSqm.Round(2)
	}
	if in.Amenities != nil {
		property.Amenities = strutil.DedupeAndTrimLower(in.Amenities)
	}
	if in.Active != nil {
		property.Active = *in.Active
	}
	property.UpdatedAt = requestcontext.Now(ctx)

	if err := s.save(ctx, property); err != nil {
		return nil, err
	}
	return property, nil
}

// Delete removes a listing and cascades to dependent aggregates.
func (s *Service) Delete(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) error {
	property, err := s.visible(ctx, actor, propertyID)
	if err != nil {
		return err
	}
	target := &authz.Target{Kind: id.KindProperty, OwnerID: property.OwnerID}
	if err := s.authz.Require(actor, authz.ActionDeleteProperty, target); err != nil {
		return err
	}
	for _, cascade := range s.cascades {
		if err := cascade.PropertyDeleted(ctx, propertyID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "cascading property delete")
		}
	}
	if err := s.store.Delete(ctx, propertyID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return notFound()
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "deleting property")
	}
	s.emit(ctx, actor, "property.deleted", propertyID.String(), nil)
	return nil
}

// Verify moves a listing to VERIFIED, stamping the reviewing actor.
func (s *Service) Verify(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Property, error) {
	return s.review(ctx, actor, propertyID, statemachine.PropertyVerified, "property.verified", nil,
		func(p *models.Property, now time.Time) { p.ApplyVerification(actor.ID, now) })
}

// Reject moves a listing to REJECTED with a mandatory reason.
func (s *Service) Reject(ctx context.Context, actor identity.Actor, propertyID id.PropertyID, reason string) (*models.Property, error) {
	validate := func() error {
		if reason == "" {
			return dErrors.New(dErrors.CodeValidation, "rejection reason is required")
		}
		return nil
	}
	property, err := s.review(ctx, actor, propertyID, statemachine.PropertyRejected, "property.rejected", validate,
		func(p *models.Property, now time.Time) { p.ApplyRejection(reason, now) })
	return property, err
}

// Reopen returns a reviewed listing to the PENDING queue.
func (s *Service) Reopen(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Property, error) {
	return s.review(ctx, actor, propertyID, statemachine.PropertyPending, "property.reopened", nil,
		func(p *models.Property, now time.Time) { p.ApplyReopen(now) })
}

func (s *Service) review(ctx context.Context, actor identity.Actor, propertyID id.PropertyID, to statemachine.Status, event string, validate func() error, mutate func(*models.Property, time.Time)) (*models.Property, error) {
	property, err := s.visible(ctx, actor, propertyID)
	if err != nil {
		return nil, err
	}
	from := property.Status
	tr := statemachine.Transition{
		Kind:      id.KindProperty,
		EntityID:  propertyID.String(),
		Action:    authz.ActionVerifyProperty,
		Current:   from,
		Requested: to,
		Validate:  validate,
		Apply: func(ctx context.Context, now time.Time) error {
			mutate(property, now)
			return s.store.Update(ctx, property)
		},
	}
	if err := s.transitions.Run(ctx, actor, tr); err != nil {
		return nil, err
	}
	s.emit(ctx, actor, event, propertyID.String(), map[string]string{
		"from": string(from),
		"to":   string(to),
	})
	return property, nil
}

// visible loads a property and applies the actor's read scope; rows outside
// the scope surface as not found.
func (s *Service) visible(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Property, error) {
	property, err := s.store.FindByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading property")
	}
	scope := authz.ScopeFor(actor, id.KindProperty)
	switch {
	case scope.All:
	case !scope.UserID.IsNil() && property.OwnerID == scope.UserID:
	case scope.PublicOnly && property.IsPubliclyVisible():
	default:
		return nil, notFound()
	}
	return property, nil
}

func (s *Service) save(ctx context.Context, property *models.Property) error {
	if err := s.store.Update(ctx, property); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrStaleState):
			return dErrors.Wrap(err, dErrors.CodeStaleState, "property changed since it was read")
		case errors.Is(err, sentinel.ErrNotFound):
			return notFound()
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "saving property")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, actor identity.Actor, name, entityID string, fields map[string]string) {
	event := events.Event{
		Name:       name,
		Kind:       id.KindProperty,
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
	return dErrors.New(dErrors.CodeNotFound, "property not found")
}
