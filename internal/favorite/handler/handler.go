// Package handler exposes the favorites endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"realhub/internal/favorite/models"
	"realhub/internal/identity"
	"realhub/internal/platform/middleware"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/httputil"
)

//go:generate mockgen -source=handler.go -destination=mocks/favorite-mocks.go -package=mocks Service

type Service interface {
	Add(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Favorite, error)
	Remove(ctx context.Context, actor identity.Actor, favoriteID id.FavoriteID) error
	List(ctx context.Context, actor identity.Actor) ([]*models.Favorite, error)
}

type ActorResolver interface {
	Resolve(ctx context.Context) (identity.Actor, error)
}

type Handler struct {
	favorites Service
	resolver  ActorResolver
	logger    *slog.Logger
	validate  *validator.Validate
}

func New(favorites Service, resolver ActorResolver, logger *slog.Logger) *Handler {
	return &Handler{
		favorites: favorites,
		resolver:  resolver,
		logger:    logger,
		validate:  validator.New(),
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/favorites", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/", h.handleAdd)
		r.Get("/", h.handleList)
		r.Delete("/{favoriteID}", h.handleRemove)
	})
}

type addRequest struct {
	PropertyID string `json:"property_id" validate:"required,uuid"`
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req addRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "property_id is required"))
		return
	}
	propertyID, err := id.ParsePropertyID(req.PropertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	favorite, err := h.favorites.Add(r.Context(), actor, propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, favorite)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	favorites, err := h.favorites.List(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"favorites": favorites,
		"count":     len(favorites),
	})
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	favoriteID, err := id.ParseFavoriteID(chi.URLParam(r, "favoriteID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.favorites.Remove(r.Context(), actor, favoriteID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (identity.Actor, bool) {
	actor, err := h.resolver.Resolve(r.Context())
	if err != nil {
		h.logger.WarnContext(r.Context(), "principal resolution failed", "error", err)
		httputil.WriteError(w, err)
		return identity.Actor{}, false
	}
	return actor, true
}
