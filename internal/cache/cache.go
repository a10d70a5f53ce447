package cache

import (
	"context"
	"time"

	"jualin/pos/internal/domain"
)

// CatalogCache holds the combined catalog view between catalog writes. The
// service invalidates it after every product/variant/bundle mutation.
type CatalogCache interface {
	Get(ctx context.Context, key string) (*domain.CatalogView, bool, error)
	Set(ctx context.Context, key string, value *domain.CatalogView, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context, _ string) (*domain.CatalogView, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ string, _ *domain.CatalogView, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
