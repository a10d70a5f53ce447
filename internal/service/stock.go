package service

import (
	"context"
	"fmt"

	"jualin/pos/internal/domain"
	"jualin/pos/internal/events"
	"jualin/pos/internal/store"
)

// leaf is the current sellable state of a product or variant.
type leaf struct {
	name   string
	price  string
	stock  int
	active bool
}

func (s *Service) leafState(ctx context.Context, ref domain.ItemRef) (leaf, error) {
	switch ref.Kind {
	case domain.KindProduct:
		product, err := s.repo.GetProduct(ctx, ref.ID)
		if err != nil {
			return leaf{}, err
		}
		if product.HasVariants() {
			return leaf{}, fmt.Errorf("%w: product %s sells through variants", store.ErrInvalidInput, ref.ID)
		}
		return leaf{name: product.Name, price: product.Price, stock: product.Stock, active: product.Active}, nil
	case domain.KindVariant:
		variant, err := s.repo.GetVariant(ctx, ref.ID)
		if err != nil {
			return leaf{}, err
		}
		return leaf{name: variant.Name, price: variant.Price, stock: variant.Stock, active: variant.Active}, nil
	default:
		return leaf{}, fmt.Errorf("%w: item kind %q is not a stock-bearing item", store.ErrInvalidInput, ref.Kind)
	}
}

// UpdateStock decrements a leaf item's stock by amount. The item deactivates
// when it hits zero; the new state cascades into variant parents and bundle
// entries. Stock never goes negative: insufficiency fails before any write.
func (s *Service) UpdateStock(ctx context.Context, ref domain.ItemRef, amount int) error {
	if amount < 0 {
		return store.ErrInvalidInput
	}
	return s.adjustStock(ctx, ref, -amount)
}

// Restock is the inverse of UpdateStock: the item reactivates as soon as its
// stock is positive again, with the same cascades.
func (s *Service) Restock(ctx context.Context, ref domain.ItemRef, amount int) error {
	if amount < 0 {
		return store.ErrInvalidInput
	}
	return s.adjustStock(ctx, ref, amount)
}

func (s *Service) adjustStock(ctx context.Context, ref domain.ItemRef, delta int) error {
	switch ref.Kind {
	case domain.KindProduct:
		product, err := s.repo.GetProduct(ctx, ref.ID)
		if err != nil {
			return err
		}
		if product.HasVariants() {
			return fmt.Errorf("%w: product %s sells through variants", store.ErrInvalidInput, ref.ID)
		}
		next := product.Stock + delta
		if next < 0 {
			return fmt.Errorf("%w: product %s has %d, need %d", store.ErrInsufficientStock, ref.ID, product.Stock, -delta)
		}
		product.Active = derivedActive(product.Stock, next, product.Active)
		product.Stock = next
		if _, err := s.repo.UpdateProduct(ctx, *product); err != nil {
			return err
		}
		s.publish(domain.CollectionProducts, events.ActionUpdated, product.ID)
	case domain.KindVariant:
		variant, err := s.repo.GetVariant(ctx, ref.ID)
		if err != nil {
			return err
		}
		next := variant.Stock + delta
		if next < 0 {
			return fmt.Errorf("%w: variant %s has %d, need %d", store.ErrInsufficientStock, ref.ID, variant.Stock, -delta)
		}
		variant.Active = derivedActive(variant.Stock, next, variant.Active)
		variant.Stock = next
		if _, err := s.repo.UpdateVariant(ctx, *variant); err != nil {
			return err
		}
		if err := s.deriveParentActive(ctx, variant.ProductID); err != nil {
			return err
		}
		s.publish(domain.CollectionVariants, events.ActionUpdated, variant.ID)
	default:
		return fmt.Errorf("%w: item kind %q is not a stock-bearing item", store.ErrInvalidInput, ref.Kind)
	}

	if err := s.cascadeIntoBundles(ctx, ref); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	return nil
}

// derivedActive re-derives an item's active flag across a stock change.
// Hitting zero deactivates and leaving zero reactivates; a flag an admin
// switched off while stock remained stays off.
func derivedActive(prev, next int, active bool) bool {
	if next == 0 {
		return false
	}
	if prev == 0 {
		return true
	}
	return active
}

// deriveParentActive recomputes a variant-owning product's active flag as
// the OR of its variants' flags.
func (s *Service) deriveParentActive(ctx context.Context, productID string) error {
	parent, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	variants, err := s.repo.ListVariantsByProduct(ctx, productID)
	if err != nil {
		return err
	}
	active := false
	for _, v := range variants {
		if v.Active {
			active = true
			break
		}
	}
	if parent.Active == active {
		return nil
	}

	parent.Active = active
	if _, err := s.repo.UpdateProduct(ctx, *parent); err != nil {
		return err
	}
	s.publish(domain.CollectionProducts, events.ActionUpdated, parent.ID)
	return nil
}

// cascadeIntoBundles refreshes the cached name/price/active of every bundle
// entry referencing the item, then re-derives each touched bundle's active
// flag and auto price.
func (s *Service) cascadeIntoBundles(ctx context.Context, ref domain.ItemRef) error {
	current, err := s.leafState(ctx, ref)
	if err != nil {
		return err
	}

	bundles, err := s.repo.ListBundles(ctx)
	if err != nil {
		return err
	}
	for _, bundle := range bundles {
		touched := false
		for i, entry := range bundle.Entries {
			if entry.Item != ref {
				continue
			}
			if entry.Name != current.name || entry.Price != current.price || entry.Active != current.active {
				bundle.Entries[i].Name = current.name
				bundle.Entries[i].Price = current.price
				bundle.Entries[i].Active = current.active
				touched = true
			}
		}
		if !touched {
			continue
		}
		if err := recomputeBundle(&bundle); err != nil {
			return err
		}
		if _, err := s.repo.UpdateBundle(ctx, bundle); err != nil {
			return err
		}
		s.publish(domain.CollectionBundles, events.ActionUpdated, bundle.ID)
	}
	return nil
}

// removeFromBundles strips every entry referencing one of the removed items.
// A bundle left without entries goes inactive.
func (s *Service) removeFromBundles(ctx context.Context, removed []domain.ItemRef) error {
	gone := make(map[domain.ItemRef]struct{}, len(removed))
	for _, ref := range removed {
		gone[ref] = struct{}{}
	}

	bundles, err := s.repo.ListBundles(ctx)
	if err != nil {
		return err
	}
	for _, bundle := range bundles {
		kept := make([]domain.BundleEntry, 0, len(bundle.Entries))
		for _, entry := range bundle.Entries {
			if _, hit := gone[entry.Item]; !hit {
				kept = append(kept, entry)
			}
		}
		if len(kept) == len(bundle.Entries) {
			continue
		}
		bundle.Entries = kept
		if err := recomputeBundle(&bundle); err != nil {
			return err
		}
		if _, err := s.repo.UpdateBundle(ctx, bundle); err != nil {
			return err
		}
		s.publish(domain.CollectionBundles, events.ActionUpdated, bundle.ID)
	}
	return nil
}

// removeFromSales strips the removed items from the offered entries of every
// unfinished sale. Finished sales are settled history and stay untouched.
func (s *Service) removeFromSales(ctx context.Context, removed []domain.ItemRef) error {
	gone := make(map[domain.ItemRef]struct{}, len(removed))
	for _, ref := range removed {
		gone[ref] = struct{}{}
	}

	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return err
	}
	for _, sale := range sales {
		if sale.Finished {
			continue
		}
		kept := make([]domain.SaleEntry, 0, len(sale.Entries))
		for _, entry := range sale.Entries {
			if _, hit := gone[entry.Item]; !hit {
				kept = append(kept, entry)
			}
		}
		if len(kept) == len(sale.Entries) {
			continue
		}
		sale.Entries = kept
		if _, err := s.repo.UpdateSale(ctx, sale); err != nil {
			return err
		}
		s.publish(domain.CollectionSales, events.ActionUpdated, sale.ID)
	}
	return nil
}
