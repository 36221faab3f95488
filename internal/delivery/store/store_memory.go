package store

import (
	"context"
	"sort"
	"sync"

	"lastmile/internal/delivery/models"
	id "lastmile/pkg/domain"
	"lastmile/pkg/platform/sentinel"
	"lastmile/pkg/requestcontext"
)

type InMemoryStore struct {
	mu         sync.RWMutex
	deliveries map[id.DeliveryID]*models.Delivery
	attempts   map[id.DeliveryID][]*models.DeliveryAttempt
	byTracking map[string]id.DeliveryID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		deliveries: make(map[id.DeliveryID]*models.Delivery),
		attempts:   make(map[id.DeliveryID][]*models.DeliveryAttempt),
		byTracking: make(map[string]id.DeliveryID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, delivery *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliveries[delivery.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, taken := s.byTracking[delivery.TrackingNumber]; taken {
		return sentinel.ErrConflict
	}
	s.deliveries[delivery.ID] = delivery.Clone()
	s.byTracking[delivery.TrackingNumber] = delivery.ID
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, deliveryID id.DeliveryID) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(deliveryID)
}

func (s *InMemoryStore) get(deliveryID id.DeliveryID) (*models.Delivery, error) {
	delivery, ok := s.deliveries[deliveryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return delivery.Clone(), nil
}

func (s *InMemoryStore) GetByTrackingNumber(_ context.Context, trackingNumber string) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	deliveryID, ok := s.byTracking[trackingNumber]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.get(deliveryID)
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Delivery
	for _, delivery := range s.deliveries {
		if filter.Status != "" && delivery.Status != filter.Status {
			continue
		}
		if !filter.RouteID.IsNil() && delivery.RouteID != filter.RouteID {
			continue
		}
		out = append(out, delivery.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) UpdateStatus(ctx context.Context, deliveryID id.DeliveryID, from, to models.DeliveryStatus, version int, reason string) (*models.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivery, ok := s.deliveries[deliveryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if delivery.Status != from || delivery.Version != version {
		return nil, sentinel.ErrVersionConflict
	}
	delivery.Status = to
	delivery.Version++
	if to == models.DeliveryStatusFailed && reason != "" {
		delivery.FailureReason = reason
	}
	delivery.UpdatedAt = requestcontext.Now(ctx)
	return delivery.Clone(), nil
}

func (s *InMemoryStore) RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt, commit AttemptCommit) (*models.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delivery, ok := s.deliveries[commit.DeliveryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if delivery.Status != commit.FromStatus || delivery.Version != commit.Version {
		return nil, sentinel.ErrVersionConflict
	}
	// attempt_number is sequential per delivery; the CAS above makes this
	// check authoritative, not advisory.
	if attempt.AttemptNumber != len(s.attempts[commit.DeliveryID])+1 {
		return nil, sentinel.ErrVersionConflict
	}

	cp := *attempt
	s.attempts[commit.DeliveryID] = append(s.attempts[commit.DeliveryID], &cp)

	delivery.Attempts = commit.Attempts
	delivery.Status = commit.NewStatus
	delivery.Version++
	if commit.FailureReason != "" {
		delivery.FailureReason = commit.FailureReason
	}
	if commit.Proof != nil {
		delivery.Proof = commit.Proof
	}
	delivery.UpdatedAt = requestcontext.Now(ctx)
	return delivery.Clone(), nil
}

func (s *InMemoryStore) ListAttempts(_ context.Context, deliveryID id.DeliveryID) ([]*models.DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempts := s.attempts[deliveryID]
	out := make([]*models.DeliveryAttempt, 0, len(attempts))
	for _, a := range attempts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}
