package store

import (
	"context"
	"sort"
	"sync"

	"realhub/internal/authz"
	"realhub/internal/lead/models"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	leads    map[id.LeadID]*models.Lead
	messages map[id.MessageID]*models.Message
}

func NewInMemory() *InMemory {
	return &InMemory{
		leads:    make(map[id.LeadID]*models.Lead),
		messages: make(map[id.MessageID]*models.Message),
	}
}

func (s *InMemory) Create(_ context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[lead.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *lead
	s.leads[lead.ID] = &clone
	return nil
}

func (s *InMemory) FindByID(_ context.Context, leadID id.LeadID) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[leadID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *lead
	return &clone, nil
}

func (s *InMemory) Update(_ context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.leads[lead.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Version != lead.Version {
		return sentinel.ErrStaleState
	}
	clone := *lead
	clone.Version++
	s.leads[lead.ID] = &clone
	lead.Version = clone.Version
	return nil
}

func (s *InMemory) List(_ context.Context, scope authz.Scope, filter Filter) ([]*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Lead
	for _, l := range s.leads {
		if !matchesScope(l, scope) {
			continue
		}
		if !filter.PropertyID.IsNil() && l.PropertyID != filter.PropertyID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		clone := *l
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) DeleteByProperty(_ context.Context, propertyID id.PropertyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for leadID, l := range s.leads {
		if l.PropertyID != propertyID {
			continue
		}
		delete(s.leads, leadID)
		for messageID, m := range s.messages {
			if m.LeadID == leadID {
				delete(s.messages, messageID)
			}
		}
	}
	return nil
}

func (s *InMemory) CreateMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[message.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *message
	s.messages[message.ID] = &clone
	return nil
}

func (s *InMemory) FindMessage(_ context.Context, messageID id.MessageID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	message, ok := s.messages[messageID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *message
	return &clone, nil
}

func (s *InMemory) UpdateMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[message.ID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *message
	s.messages[message.ID] = &clone
	return nil
}

func (s *InMemory) ListMessages(_ context.Context, leadID id.LeadID) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, m := range s.messages {
		if m.LeadID == leadID {
			clone := *m
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
