package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"realhub/internal/authz"
	"realhub/internal/property/models"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu         sync.RWMutex
	properties map[id.PropertyID]*models.Property
}

func NewInMemory() *InMemory {
	return &InMemory{properties: make(map[id.PropertyID]*models.Property)}
}

func clone(p *models.Property) *models.Property {
	c := *p
	if p.VerifiedAt != nil {
		t := *p.VerifiedAt
		c.VerifiedAt = &t
	}
	c.Amenities = append([]string(nil), p.Amenities...)
	return &c
}

func (s *InMemory) Create(_ context.Context, property *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.properties[property.ID]; exists {
		return sentinel.ErrConflict
	}
	s.properties[property.ID] = clone(property)
	return nil
}

func (s *InMemory) FindByID(_ context.Context, propertyID id.PropertyID) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	property, ok := s.properties[propertyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(property), nil
}

func (s *InMemory) Update(_ context.Context, property *models.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.properties[property.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != property.Version {
		return sentinel.ErrStaleState
	}
	next := clone(property)
	next.Version++
	s.properties[property.ID] = next
	property.Version = next.Version
	return nil
}

func (s *InMemory) Delete(_ context.Context, propertyID id.PropertyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.properties[propertyID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.properties, propertyID)
	return nil
}

func (s *InMemory) List(_ context.Context, scope authz.Scope, filter Filter) ([]*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Property
	for _, p := range s.properties {
		if matchesScope(p, scope) && matchesFilter(p, filter) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func matchesLocation(p *models.Property, location string) bool {
	needle := strings.ToLower(location)
	return strings.Contains(strings.ToLower(p.Address), needle) ||
		strings.Contains(strings.ToLower(p.City), needle) ||
		strings.Contains(strings.ToLower(p.State), needle)
}
