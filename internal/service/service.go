// Package service implements the engine's operations over the document
// store: catalog mutations with their cascades, stock reconciliation, order
// mutation and settlement. All writes go through here so the change feed
// sees every mutation.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"jualin/pos/internal/cache"
	"jualin/pos/internal/domain"
	"jualin/pos/internal/events"
	"jualin/pos/internal/store"
)

const catalogCacheKey = "catalog:view"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	bus        *events.Bus
	catalog    cache.CatalogCache
	catalogTTL time.Duration
}

func New(repo store.Repository, bus *events.Bus, catalog cache.CatalogCache) *Service {
	if bus == nil {
		bus = events.NewBus()
	}
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}

	return &Service{
		repo:       repo,
		bus:        bus,
		catalog:    catalog,
		catalogTTL: 30 * time.Second,
	}
}

// SetCatalogTTL overrides the default catalog cache lifetime. Call before
// serving traffic.
func (s *Service) SetCatalogTTL(ttl time.Duration) {
	if ttl > 0 {
		s.catalogTTL = ttl
	}
}

// Events exposes the change feed for subscribers.
func (s *Service) Events() *events.Bus {
	return s.bus
}

// Catalog returns the combined product/variant/bundle listing, served from
// the cache between catalog writes.
func (s *Service) Catalog(ctx context.Context) (domain.CatalogView, error) {
	if view, hit, err := s.catalog.Get(ctx, catalogCacheKey); err != nil {
		log.Printf("[service] WARN: catalog cache get failed: %v", err)
	} else if hit {
		return *view, nil
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.CatalogView{}, err
	}
	variants, err := s.repo.ListVariants(ctx)
	if err != nil {
		return domain.CatalogView{}, err
	}
	bundles, err := s.repo.ListBundles(ctx)
	if err != nil {
		return domain.CatalogView{}, err
	}

	view := domain.CatalogView{Products: products, Variants: variants, Bundles: bundles}
	if err := s.catalog.Set(ctx, catalogCacheKey, &view, s.catalogTTL); err != nil {
		log.Printf("[service] WARN: catalog cache set failed: %v", err)
	}
	return view, nil
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func (s *Service) publish(collection string, action string, id string) {
	s.bus.Publish(events.Event{Collection: collection, Action: action, ID: id})
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx, catalogCacheKey); err != nil {
		log.Printf("[service] WARN: catalog cache invalidate failed: %v", err)
	}
}
