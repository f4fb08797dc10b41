package store

import (
	"context"
	"sort"
	"sync"

	"realhub/internal/authz"
	"realhub/internal/kyc/models"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	records map[id.KYCID]*models.Verification
	byUser  map[id.UserID]id.KYCID
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[id.KYCID]*models.Verification),
		byUser:  make(map[id.UserID]id.KYCID),
	}
}

func clone(v *models.Verification) *models.Verification {
	c := *v
	if v.ReviewedAt != nil {
		t := *v.ReviewedAt
		c.ReviewedAt = &t
	}
	return &c
}

func (s *InMemory) Create(_ context.Context, verification *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[verification.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byUser[verification.UserID]; exists {
		return sentinel.ErrConflict
	}
	s.records[verification.ID] = clone(verification)
	s.byUser[verification.UserID] = verification.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, kycID id.KYCID) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	verification, ok := s.records[kycID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(verification), nil
}

func (s *InMemory) FindByUser(_ context.Context, userID id.UserID) (*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kycID, ok := s.byUser[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.records[kycID]), nil
}

func (s *InMemory) Update(_ context.Context, verification *models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[verification.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != verification.Version {
		return sentinel.ErrStaleState
	}
	next := clone(verification)
	next.Version++
	s.records[verification.ID] = next
	verification.Version = next.Version
	return nil
}

func (s *InMemory) List(_ context.Context, scope authz.Scope, filter Filter) ([]*models.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Verification
	for _, v := range s.records {
		if !matchesScope(v, scope) {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		out = append(out, clone(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}
