// Package service implements favorites: bookmarks on publicly visible
// properties, unique per (user, property).
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"realhub/internal/authz"
	"realhub/internal/events"
	"realhub/internal/favorite/models"
	"realhub/internal/favorite/store"
	"realhub/internal/identity"
	"realhub/internal/platform/metrics"
	propertymodels "realhub/internal/property/models"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/sentinel"
	"realhub/pkg/requestcontext"
)

// PropertyLookup resolves properties for the visibility gate on Add.
type PropertyLookup interface {
	FindByID(ctx context.Context, propertyID id.PropertyID) (*propertymodels.Property, error)
}

type Service struct {
	favorites  store.Store
	properties PropertyLookup
	authz      *authz.Engine
	publisher  events.Publisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(favorites store.Store, properties PropertyLookup, authzEngine *authz.Engine, publisher events.Publisher, opts ...Option) *Service {
	s := &Service{
		favorites:  favorites,
		properties: properties,
		authz:      authzEngine,
		publisher:  publisher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add bookmarks a property for the actor. Only verified, active listings can
// be favorited.
func (s *Service) Add(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Favorite, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	property, err := s.properties.FindByID(ctx, propertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "loading property")
	}
	if !property.IsPubliclyVisible() {
		// Hidden listings are indistinguishable from missing ones unless the
		// actor owns them.
		if property.OwnerID != actor.ID && !actor.Role.IsAdmin() {
			return nil, dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return nil, dErrors.New(dErrors.CodeValidation, "property cannot be favorited")
	}

	now := requestcontext.Now(ctx)
	favorite, err := models.NewFavorite(id.FavoriteID(uuid.New()), actor.ID, propertyID, now)
	if err != nil {
		return nil, err
	}
	if err := s.favorites.Create(ctx, favorite); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "property already favorited")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "creating favorite")
	}
	s.emit(ctx, actor, "favorite.created", favorite.ID.String(), map[string]string{
		"property_id": propertyID.String(),
	})
	return favorite, nil
}

// Remove deletes a bookmark. Only its owner or an admin may remove it; anyone
// else sees not-found.
func (s *Service) Remove(ctx context.Context, actor identity.Actor, favoriteID id.FavoriteID) error {
	favorite, err := s.favorites.FindByID(ctx, favoriteID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "favorite not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "loading favorite")
	}
	if favorite.UserID != actor.ID && !actor.Role.IsAdmin() {
		return dErrors.New(dErrors.CodeNotFound, "favorite not found")
	}
	if err := s.favorites.Delete(ctx, favoriteID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "favorite not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "deleting favorite")
	}
	s.emit(ctx, actor, "favorite.removed", favoriteID.String(), nil)
	return nil
}

// List returns the actor's bookmarks.
func (s *Service) List(ctx context.Context, actor identity.Actor) ([]*models.Favorite, error) {
	if actor.IsZero() {
		return nil, dErrors.New(dErrors.CodeForbidden, authz.ReasonForbidden)
	}
	favorites, err := s.favorites.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "listing favorites")
	}
	return favorites, nil
}

// PropertyDeleted removes all bookmarks on a deleted property.
func (s *Service) PropertyDeleted(ctx context.Context, propertyID id.PropertyID) error {
	return s.favorites.DeleteByProperty(ctx, propertyID)
}

func (s *Service) emit(ctx context.Context, actor identity.Actor, name, entityID string, fields map[string]string) {
	event := events.Event{
		Name:       name,
		Kind:       id.KindFavorite,
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
