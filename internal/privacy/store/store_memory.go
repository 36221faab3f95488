package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lastmile/internal/privacy/models"
	id "lastmile/pkg/domain"
	"lastmile/pkg/platform/sentinel"
)

type InMemoryDataRequestStore struct {
	mu       sync.RWMutex
	requests map[id.DataRequestID]*models.DataRequest
}

func NewInMemoryDataRequestStore() *InMemoryDataRequestStore {
	return &InMemoryDataRequestStore{requests: make(map[id.DataRequestID]*models.DataRequest)}
}

func (s *InMemoryDataRequestStore) Create(_ context.Context, request *models.DataRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[request.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[request.ID] = request.Clone()
	return nil
}

func (s *InMemoryDataRequestStore) Get(_ context.Context, requestID id.DataRequestID) (*models.DataRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return request.Clone(), nil
}

func (s *InMemoryDataRequestStore) List(_ context.Context, filter RequestFilter) ([]*models.DataRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.DataRequest
	for _, request := range s.requests {
		if !filter.UserID.IsNil() && request.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		if filter.Type != "" && request.Type != filter.Type {
			continue
		}
		out = append(out, request.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryDataRequestStore) Update(_ context.Context, request *models.DataRequest, expectedVersion int) (*models.DataRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[request.ID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return nil, sentinel.ErrVersionConflict
	}
	cp := request.Clone()
	cp.Version = expectedVersion + 1
	s.requests[request.ID] = cp
	return cp.Clone(), nil
}

func (s *InMemoryDataRequestStore) ListPendingPastDue(_ context.Context, now time.Time, limit int) ([]*models.DataRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.DataRequest
	for _, request := range s.requests {
		if request.Status == models.StatusPending && now.After(request.DueDate) {
			out = append(out, request.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type InMemoryConsentStore struct {
	mu       sync.RWMutex
	consents map[id.ConsentID]*models.Consent
}

func NewInMemoryConsentStore() *InMemoryConsentStore {
	return &InMemoryConsentStore{consents: make(map[id.ConsentID]*models.Consent)}
}

func (s *InMemoryConsentStore) Create(_ context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.consents[consent.ID]; exists {
		return sentinel.ErrConflict
	}
	s.consents[consent.ID] = consent.Clone()
	return nil
}

func (s *InMemoryConsentStore) Get(_ context.Context, consentID id.ConsentID) (*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	consent, ok := s.consents[consentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return consent.Clone(), nil
}

func (s *InMemoryConsentStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Consent
	for _, consent := range s.consents {
		if consent.UserID == userID {
			out = append(out, consent.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryConsentStore) Update(_ context.Context, consent *models.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.consents[consent.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.consents[consent.ID] = consent.Clone()
	return nil
}
