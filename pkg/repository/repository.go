package repository

import (
	"context"

	"github.com/campforge/campforge/pkg/db/option"
)

// Repository is a generic gorm-backed store over a single model type. Only
// the operations the engine's services actually issue are exposed; direct
// gorm calls cover the bespoke queries.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	Create(ctx context.Context, resource *T) error
}
