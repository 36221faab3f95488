package store

import (
	"context"
	"sort"
	"sync"

	"lastmile/internal/route/models"
	id "lastmile/pkg/domain"
	"lastmile/pkg/platform/sentinel"
	"lastmile/pkg/requestcontext"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	routes map[id.RouteID]*models.Route
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{routes: make(map[id.RouteID]*models.Route)}
}

func (s *InMemoryStore) Create(_ context.Context, route *models.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.routes[route.ID]; exists {
		return sentinel.ErrConflict
	}
	s.routes[route.ID] = route.Clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, routeID id.RouteID) (*models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	route, ok := s.routes[routeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return route.Clone(), nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Route
	for _, route := range s.routes {
		if filter.Status != "" && route.Status != filter.Status {
			continue
		}
		if !filter.DriverID.IsNil() && route.DriverID != filter.DriverID {
			continue
		}
		out = append(out, route.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) UpdateStatus(ctx context.Context, routeID id.RouteID, from, to models.RouteStatus, version int) (*models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	route, ok := s.routes[routeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if route.Status != from || route.Version != version {
		return nil, sentinel.ErrVersionConflict
	}
	route.Status = to
	route.Version++
	route.UpdatedAt = requestcontext.Now(ctx)
	return route.Clone(), nil
}
