package store

import (
	"context"
	"sort"
	"sync"

	"realhub/internal/favorite/models"
	id "realhub/pkg/domain"
	"realhub/pkg/platform/sentinel"
)

type pairKey struct {
	userID     id.UserID
	propertyID id.PropertyID
}

type InMemory struct {
	mu        sync.RWMutex
	favorites map[id.FavoriteID]*models.Favorite
	byPair    map[pairKey]id.FavoriteID
}

func NewInMemory() *InMemory {
	return &InMemory{
		favorites: make(map[id.FavoriteID]*models.Favorite),
		byPair:    make(map[pairKey]id.FavoriteID),
	}
}

func (s *InMemory) Create(_ context.Context, favorite *models.Favorite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{favorite.UserID, favorite.PropertyID}
	if _, exists := s.byPair[key]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.favorites[favorite.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *favorite
	s.favorites[favorite.ID] = &clone
	s.byPair[key] = favorite.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, favoriteID id.FavoriteID) (*models.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	favorite, ok := s.favorites[favoriteID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *favorite
	return &clone, nil
}

func (s *InMemory) Delete(_ context.Context, favoriteID id.FavoriteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	favorite, ok := s.favorites[favoriteID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byPair, pairKey{favorite.UserID, favorite.PropertyID})
	delete(s.favorites, favoriteID)
	return nil
}

func (s *InMemory) ListByUser(_ context.Context, userID id.UserID) ([]*models.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Favorite
	for _, f := range s.favorites {
		if f.UserID != userID {
			continue
		}
		clone := *f
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) DeleteByProperty(_ context.Context, propertyID id.PropertyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for favoriteID, f := range s.favorites {
		if f.PropertyID == propertyID {
			delete(s.byPair, pairKey{f.UserID, f.PropertyID})
			delete(s.favorites, favoriteID)
		}
	}
	return nil
}
