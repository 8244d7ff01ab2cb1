package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss indicates no cached entry was found.
	ErrCacheMiss = errors.New("cache miss")

	// ErrIndexUnavailable indicates the search index could not answer a query.
	ErrIndexUnavailable = errors.New("search index unavailable")

	// ErrFeatureIndex indicates a nearest-neighbor query failed.
	ErrFeatureIndex = errors.New("feature index error")

	// ErrComputation indicates an unexpected failure inside a clustering computation.
	ErrComputation = errors.New("clustering computation failed")

	// ErrInvalidRequest indicates malformed clustering request parameters.
	ErrInvalidRequest = errors.New("invalid clustering request")

	// ErrClusterNotFound indicates a cluster index outside the computed result.
	ErrClusterNotFound = errors.New("cluster not found")
)

// FeatureIndexError reports the item whose neighbor query failed.
type FeatureIndexError struct {
	ID  string
	Err error
}

func (e *FeatureIndexError) Error() string {
	return fmt.Sprintf("nearest neighbors for %s: %v", e.ID, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause.
func (e *FeatureIndexError) Unwrap() []error {
	return []error{ErrFeatureIndex, e.Err}
}
