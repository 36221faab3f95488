package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write rejected by a uniqueness or state constraint
// - ErrVersionConflict: optimistic-lock version mismatch at commit time
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrExpired: deadline already passed for the requested operation
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalidState    = errors.New("invalid state")
	ErrExpired         = errors.New("expired")
	ErrUnavailable     = errors.New("unavailable")
)
