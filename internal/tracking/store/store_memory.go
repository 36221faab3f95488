package store

import (
	"context"
	"sync"

	"lastmile/internal/tracking/models"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []*models.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *event
	s.events = append(s.events, &cp)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if !filter.DriverID.IsNil() && e.DriverID != filter.DriverID {
			continue
		}
		if !filter.RouteID.IsNil() && e.RouteID != filter.RouteID {
			continue
		}
		if !filter.DeliveryID.IsNil() && e.DeliveryID != filter.DeliveryID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}
