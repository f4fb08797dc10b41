// Package handler exposes the property listing endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"realhub/internal/identity"
	"realhub/internal/platform/middleware"
	"realhub/internal/property/models"
	"realhub/internal/property/service"
	"realhub/internal/property/store"
	"realhub/internal/statemachine"
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
	"realhub/pkg/platform/httputil"
)

// Service is the property operations seam consumed by the handler.
type Service interface {
	Create(ctx context.Context, actor identity.Actor, in service.CreateInput) (*models.Property, error)
	Get(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Property, error)
	List(ctx context.Context, actor identity.Actor, filter store.Filter) ([]*models.Property, error)
	Search(ctx context.Context, actor identity.Actor, filter store.Filter) ([]*models.Property, error)
	MyProperties(ctx context.Context, actor identity.Actor) ([]*models.Property, error)
	PendingVerification(ctx context.Context, actor identity.Actor) ([]*models.Property, error)
	Update(ctx context.Context, actor identity.Actor, propertyID id.PropertyID, in service.UpdateInput) (*models.Property, error)
	Delete(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) error
	Verify(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Property, error)
	Reject(ctx context.Context, actor identity.Actor, propertyID id.PropertyID, reason string) (*models.Property, error)
	Reopen(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Property, error)
}

// ActorResolver turns the request principal into an Actor.
type ActorResolver interface {
	Resolve(ctx context.Context) (identity.Actor, error)
}

type Handler struct {
	properties Service
	resolver   ActorResolver
	logger     *slog.Logger
	validate   *validator.Validate
}

func New(properties Service, resolver ActorResolver, logger *slog.Logger) *Handler {
	return &Handler{
		properties: properties,
		resolver:   resolver,
		logger:     logger,
		validate:   validator.New(),
	}
}

// Register mounts the property routes. Reads are public (scoping hides what
// the caller may not see); writes require an authenticated principal.
func (h *Handler) Register(r chi.Router) {
	r.Route("/properties", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/search", h.handleSearch)
		r.Get("/{propertyID}", h.handleGet)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Post("/", h.handleCreate)
			r.Get("/mine", h.handleMine)
			r.Get("/pending", h.handlePending)
			r.Patch("/{propertyID}", h.handleUpdate)
			r.Delete("/{propertyID}", h.handleDelete)
			r.Post("/{propertyID}/verify", h.handleVerify)
			r.Post("/{propertyID}/reject", h.handleReject)
			r.Post("/{propertyID}/reopen", h.handleReopen)
		})
	})
}

type createRequest struct {
	Title        string   `json:"title" validate:"required,max=255"`
	Description  string   `json:"description"`
	Price        string   `json:"price" validate:"required"`
	PropertyType string   `json:"property_type" validate:"required"`
	ListingType  string   `json:"listing_type" validate:"required"`
	Address      string   `json:"address"`
	City         string   `json:"city"`
	State        string   `json:"state"`
	Bedrooms     int      `json:"bedrooms" validate:"gte=0"`
	Bathrooms    int      `json:"bathrooms" validate:"gte=0"`
	SizeSqm      string   `json:"size_sqm"`
	Amenities    []string `json:"amenities"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid property payload"))
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "price must be a decimal number"))
		return
	}
	sizeSqm := decimal.Zero
	if req.SizeSqm != "" {
		if sizeSqm, err = decimal.NewFromString(req.SizeSqm); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "size_sqm must be a decimal number"))
			return
		}
	}

	property, err := h.properties.Create(ctx, actor, service.CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Price:        price,
		PropertyType: models.PropertyType(req.PropertyType),
		ListingType:  models.ListingType(req.ListingType),
		Address:      req.Address,
		City:         req.City,
		State:        req.State,
		Bedrooms:     req.Bedrooms,
		Bathrooms:    req.Bathrooms,
		SizeSqm:      sizeSqm,
		Amenities:    req.Amenities,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, property)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	property, err := h.properties.Get(r.Context(), actor, propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, property)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	properties, err := h.properties.List(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Properties: properties, Count: len(properties)})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	properties, err := h.properties.Search(r.Context(), actor, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Properties: properties, Count: len(properties)})
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	properties, err := h.properties.MyProperties(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Properties: properties, Count: len(properties)})
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	properties, err := h.properties.PendingVerification(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Properties: properties, Count: len(properties)})
}

type updateRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description"`
	Price       *string  `json:"price"`
	Address     *string  `json:"address"`
	City        *string  `json:"city"`
	State       *string  `json:"state"`
	Bedrooms    *int     `json:"bedrooms" validate:"omitempty,gte=0"`
	Bathrooms   *int     `json:"bathrooms" validate:"omitempty,gte=0"`
	SizeSqm     *string  `json:"size_sqm"`
	Amenities   []string `json:"amenities"`
	Active      *bool    `json:"is_active"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req updateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid property payload"))
		return
	}
	in := service.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Address:     req.Address,
		City:        req.City,
		State:       req.State,
		Bedrooms:    req.Bedrooms,
		Bathrooms:   req.Bathrooms,
		Amenities:   req.Amenities,
		Active:      req.Active,
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "price must be a decimal number"))
			return
		}
		in.Price = &price
	}
	if req.SizeSqm != nil {
		sizeSqm, err := decimal.NewFromString(*req.SizeSqm)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "size_sqm must be a decimal number"))
			return
		}
		in.SizeSqm = &sizeSqm
	}

	property, err := h.properties.Update(r.Context(), actor, propertyID, in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, property)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.properties.Delete(r.Context(), actor, propertyID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	h.reviewEndpoint(w, r, func(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Property, error) {
		return h.properties.Verify(ctx, actor, propertyID)
	})
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req rejectRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	property, err := h.properties.Reject(r.Context(), actor, propertyID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, property)
}

func (h *Handler) handleReopen(w http.ResponseWriter, r *http.Request) {
	h.reviewEndpoint(w, r, func(ctx context.Context, actor identity.Actor, propertyID id.PropertyID) (*models.Property, error) {
		return h.properties.Reopen(ctx, actor, propertyID)
	})
}

func (h *Handler) reviewEndpoint(w http.ResponseWriter, r *http.Request, op func(context.Context, identity.Actor, id.PropertyID) (*models.Property, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	propertyID, err := id.ParsePropertyID(chi.URLParam(r, "propertyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	property, err := op(r.Context(), actor, propertyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, property)
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

type listResponse struct {
	Properties []*models.Property `json:"properties"`
	Count      int                `json:"count"`
}

func filterFromQuery(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	filter := store.Filter{
		Location: q.Get("location"),
	}
	if v := q.Get("property_type"); v != "" {
		propertyType := models.PropertyType(v)
		if !propertyType.IsValid() {
			return store.Filter{}, dErrors.New(dErrors.CodeValidation, "invalid property_type")
		}
		filter.PropertyType = propertyType
	}
	if v := q.Get("listing_type"); v != "" {
		listingType := models.ListingType(v)
		if !listingType.IsValid() {
			return store.Filter{}, dErrors.New(dErrors.CodeValidation, "invalid listing_type")
		}
		filter.ListingType = listingType
	}
	if v := q.Get("status"); v != "" {
		filter.Status = statemachine.Status(v)
	}
	if v := q.Get("min_price"); v != "" {
		minPrice, err := decimal.NewFromString(v)
		if err != nil {
			return store.Filter{}, dErrors.New(dErrors.CodeValidation, "min_price must be a decimal number")
		}
		filter.MinPrice = &minPrice
	}
	if v := q.Get("max_price"); v != "" {
		maxPrice, err := decimal.NewFromString(v)
		if err != nil {
			return store.Filter{}, dErrors.New(dErrors.CodeValidation, "max_price must be a decimal number")
		}
		filter.MaxPrice = &maxPrice
	}
	if v := q.Get("min_bedrooms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return store.Filter{}, dErrors.New(dErrors.CodeValidation, "min_bedrooms must be a non-negative integer")
		}
		filter.MinBedrooms = n
	}
	if v := q.Get("min_bathrooms"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return store.Filter{}, dErrors.New(dErrors.CodeValidation, "min_bathrooms must be a non-negative integer")
		}
		filter.MinBathrooms = n
	}
	return filter, nil
}
