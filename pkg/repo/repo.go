// Package repo defines a generic keyed repository and its Neo4j implementation.
package repo

import "context"

// Repository is a generic upsert-and-list interface keyed by ID.
type Repository[T any, ID comparable] interface {
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Merge(ctx context.Context, entity T) error
}

// ListOpts controls pagination and filtering for List operations.
type ListOpts struct {
	Offset int
	Limit  int
	// Filter holds exact-match property constraints.
	Filter map[string]any
}
