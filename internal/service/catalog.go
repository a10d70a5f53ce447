package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jualin/pos/internal/domain"
	"jualin/pos/internal/events"
	"jualin/pos/internal/money"
	"jualin/pos/internal/store"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Stock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	price, err := money.ParsePrice(req.Price)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:   req.Name,
		Price:  price.String(),
		Stock:  req.Stock,
		Active: req.Stock > 0,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.publish(domain.CollectionProducts, events.ActionCreated, created.ID)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Price != nil {
		if existing.HasVariants() {
			return domain.Product{}, fmt.Errorf("%w: product sells through variants", store.ErrInvalidInput)
		}
		price, err := money.ParsePrice(*req.Price)
		if err != nil {
			return domain.Product{}, err
		}
		updated.Price = price.String()
	}
	if req.Stock != nil {
		if existing.HasVariants() {
			return domain.Product{}, fmt.Errorf("%w: product sells through variants", store.ErrInvalidInput)
		}
		if *req.Stock < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
		updated.Active = *req.Stock > 0
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if !saved.HasVariants() {
		ref := domain.ItemRef{Kind: domain.KindProduct, ID: saved.ID}
		if err := s.cascadeIntoBundles(ctx, ref); err != nil {
			return domain.Product{}, err
		}
	}

	s.invalidateCatalog(ctx)
	s.publish(domain.CollectionProducts, events.ActionUpdated, saved.ID)
	return *saved, nil
}

// DeleteProduct removes a product together with its variants, then strips
// all of those item refs from bundles and from unfinished sales.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	removed := []domain.ItemRef{{Kind: domain.KindProduct, ID: product.ID}}
	variants, err := s.repo.ListVariantsByProduct(ctx, product.ID)
	if err != nil {
		return err
	}
	for _, v := range variants {
		removed = append(removed, domain.ItemRef{Kind: domain.KindVariant, ID: v.ID})
	}

	for _, v := range variants {
		if err := s.repo.DeleteVariant(ctx, v.ID); err != nil {
			return err
		}
		if err := s.repo.DeleteAttachments(ctx, domain.CollectionVariants, v.ID); err != nil {
			return err
		}
		s.publish(domain.CollectionVariants, events.ActionDeleted, v.ID)
	}
	if err := s.repo.DeleteProduct(ctx, product.ID); err != nil {
		return err
	}
	if err := s.repo.DeleteAttachments(ctx, domain.CollectionProducts, product.ID); err != nil {
		return err
	}

	if err := s.removeFromBundles(ctx, removed); err != nil {
		return err
	}
	if err := s.removeFromSales(ctx, removed); err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	s.publish(domain.CollectionProducts, events.ActionDeleted, product.ID)
	return nil
}

func (s *Service) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	if productID == "" {
		return s.repo.ListVariants(ctx)
	}
	return s.repo.ListVariantsByProduct(ctx, productID)
}

func (s *Service) CreateVariant(ctx context.Context, req domain.VariantCreateRequest) (domain.Variant, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.ProductID == "" || req.Stock < 0 {
		return domain.Variant{}, store.ErrInvalidInput
	}
	price, err := money.ParsePrice(req.Price)
	if err != nil {
		return domain.Variant{}, err
	}

	parent, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.Variant{}, err
	}

	variant := domain.Variant{
		ProductID: parent.ID,
		Name:      req.Name,
		Price:     price.String(),
		Stock:     req.Stock,
		Active:    req.Stock > 0,
	}
	created, err := s.repo.CreateVariant(ctx, variant)
	if err != nil {
		return domain.Variant{}, err
	}

	// A product that gains variants stops selling on its own: its variants
	// become the sellable units and its active flag is the OR of theirs.
	parent.VariantIDs = append(parent.VariantIDs, created.ID)
	parent.Price = money.Zero
	parent.Stock = 0
	if _, err := s.repo.UpdateProduct(ctx, *parent); err != nil {
		return domain.Variant{}, err
	}
	if err := s.deriveParentActive(ctx, parent.ID); err != nil {
		return domain.Variant{}, err
	}

	s.invalidateCatalog(ctx)
	s.publish(domain.CollectionVariants, events.ActionCreated, created.ID)
	s.publish(domain.CollectionProducts, events.ActionUpdated, parent.ID)
	return *created, nil
}

func (s *Service) UpdateVariant(ctx context.Context, id string, req domain.VariantUpdateRequest) (domain.Variant, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}

	existing, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return domain.Variant{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Price != nil {
		price, err := money.ParsePrice(*req.Price)
		if err != nil {
			return domain.Variant{}, err
		}
		updated.Price = price.String()
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.Stock = *req.Stock
		updated.Active = *req.Stock > 0
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateVariant(ctx, updated)
	if err != nil {
		return domain.Variant{}, err
	}

	if err := s.deriveParentActive(ctx, saved.ProductID); err != nil {
		return domain.Variant{}, err
	}
	ref := domain.ItemRef{Kind: domain.KindVariant, ID: saved.ID}
	if err := s.cascadeIntoBundles(ctx, ref); err != nil {
		return domain.Variant{}, err
	}

	s.invalidateCatalog(ctx)
	s.publish(domain.CollectionVariants, events.ActionUpdated, saved.ID)
	return *saved, nil
}

func (s *Service) DeleteVariant(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	variant, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteVariant(ctx, variant.ID); err != nil {
		return err
	}
	if err := s.repo.DeleteAttachments(ctx, domain.CollectionVariants, variant.ID); err != nil {
		return err
	}

	if parent, err := s.repo.GetProduct(ctx, variant.ProductID); err == nil {
		ids := make([]string, 0, len(parent.VariantIDs))
		for _, vid := range parent.VariantIDs {
			if vid != variant.ID {
				ids = append(ids, vid)
			}
		}
		parent.VariantIDs = ids
		if _, err := s.repo.UpdateProduct(ctx, *parent); err != nil {
			return err
		}
		if err := s.deriveParentActive(ctx, parent.ID); err != nil {
			return err
		}
		s.publish(domain.CollectionProducts, events.ActionUpdated, parent.ID)
	}

	removed := []domain.ItemRef{{Kind: domain.KindVariant, ID: variant.ID}}
	if err := s.removeFromBundles(ctx, removed); err != nil {
		return err
	}
	if err := s.removeFromSales(ctx, removed); err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	s.publish(domain.CollectionVariants, events.ActionDeleted, variant.ID)
	return nil
}

func (s *Service) ListBundles(ctx context.Context) ([]domain.Bundle, error) {
	return s.repo.ListBundles(ctx)
}

func (s *Service) GetBundle(ctx context.Context, id string) (domain.Bundle, error) {
	bundle, err := s.repo.GetBundle(ctx, id)
	if err != nil {
		return domain.Bundle{}, err
	}
	return *bundle, nil
}

func (s *Service) GetVariant(ctx context.Context, id string) (domain.Variant, error) {
	variant, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return domain.Variant{}, err
	}
	return *variant, nil
}

func (s *Service) CreateBundle(ctx context.Context, req domain.BundleCreateRequest) (domain.Bundle, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Bundle{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Bundle{}, store.ErrInvalidInput
	}

	entries, err := s.buildBundleEntries(ctx, req.Entries)
	if err != nil {
		return domain.Bundle{}, err
	}

	bundle := domain.Bundle{
		Name:      req.Name,
		AutoPrice: req.AutoPrice,
		Entries:   entries,
	}
	if err := recomputeBundle(&bundle); err != nil {
		return domain.Bundle{}, err
	}
	if !bundle.AutoPrice {
		price, err := money.ParsePrice(req.Price)
		if err != nil {
			return domain.Bundle{}, err
		}
		bundle.Price = price.String()
	}

	created, err := s.repo.CreateBundle(ctx, bundle)
	if err != nil {
		return domain.Bundle{}, err
	}

	s.invalidateCatalog(ctx)
	s.publish(domain.CollectionBundles, events.ActionCreated, created.ID)
	return *created, nil
}

func (s *Service) UpdateBundle(ctx context.Context, id string, req domain.BundleUpdateRequest) (domain.Bundle, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Bundle{}, err
	}

	existing, err := s.repo.GetBundle(ctx, id)
	if err != nil {
		return domain.Bundle{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Bundle{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.AutoPrice != nil {
		updated.AutoPrice = *req.AutoPrice
	}
	if req.Entries != nil {
		entries, err := s.buildBundleEntries(ctx, *req.Entries)
		if err != nil {
			return domain.Bundle{}, err
		}
		updated.Entries = entries
	}
	if err := recomputeBundle(&updated); err != nil {
		return domain.Bundle{}, err
	}
	if !updated.AutoPrice && req.Price != nil {
		price, err := money.ParsePrice(*req.Price)
		if err != nil {
			return domain.Bundle{}, err
		}
		updated.Price = price.String()
	}

	saved, err := s.repo.UpdateBundle(ctx, updated)
	if err != nil {
		return domain.Bundle{}, err
	}

	s.invalidateCatalog(ctx)
	s.publish(domain.CollectionBundles, events.ActionUpdated, saved.ID)
	return *saved, nil
}

func (s *Service) DeleteBundle(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	if err := s.repo.DeleteBundle(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteAttachments(ctx, domain.CollectionBundles, id); err != nil {
		return err
	}
	if err := s.removeFromSales(ctx, []domain.ItemRef{{Kind: domain.KindBundle, ID: id}}); err != nil {
		return err
	}

	s.invalidateCatalog(ctx)
	s.publish(domain.CollectionBundles, events.ActionDeleted, id)
	return nil
}

// PutProductImage stores a binary attachment on a catalog document.
func (s *Service) PutProductImage(ctx context.Context, productID string, name string, mimeType string, data []byte) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if name == "" || len(data) == 0 {
		return store.ErrInvalidInput
	}
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return err
	}

	err := s.repo.PutAttachment(ctx, domain.Attachment{
		Collection: domain.CollectionProducts,
		OwnerID:    productID,
		Name:       name,
		MIMEType:   mimeType,
		Data:       data,
		UpdatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	s.publish(domain.CollectionProducts, events.ActionUpdated, productID)
	return nil
}

func (s *Service) GetProductImage(ctx context.Context, productID string, name string) (domain.Attachment, error) {
	att, err := s.repo.GetAttachment(ctx, domain.CollectionProducts, productID, name)
	if err != nil {
		return domain.Attachment{}, err
	}
	return *att, nil
}

// buildBundleEntries resolves the requested entries against the catalog and
// caches each referenced document's name, price and active flag.
func (s *Service) buildBundleEntries(ctx context.Context, reqs []domain.BundleEntryRequest) ([]domain.BundleEntry, error) {
	entries := make([]domain.BundleEntry, 0, len(reqs))
	for _, req := range reqs {
		if req.Qty < 1 {
			return nil, fmt.Errorf("%w: entry qty must be positive", store.ErrInvalidInput)
		}
		if req.Item.Kind == domain.KindBundle {
			return nil, fmt.Errorf("%w: bundles cannot nest bundles", store.ErrInvalidInput)
		}
		leaf, err := s.leafState(ctx, req.Item)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.BundleEntry{
			Item:   req.Item,
			Qty:    req.Qty,
			Name:   leaf.name,
			Price:  leaf.price,
			Active: leaf.active,
		})
	}
	return entries, nil
}

// recomputeBundle re-derives the bundle's active flag (AND over entries, an
// empty bundle is inactive) and, for auto-priced bundles, its price.
func recomputeBundle(bundle *domain.Bundle) error {
	active := len(bundle.Entries) > 0
	for _, entry := range bundle.Entries {
		if !entry.Active {
			active = false
		}
	}
	bundle.Active = active

	if bundle.AutoPrice {
		total := money.Zero
		for _, entry := range bundle.Entries {
			lineTotal, err := money.MulQty(entry.Price, entry.Qty)
			if err != nil {
				return err
			}
			if total, err = money.Add(total, lineTotal); err != nil {
				return err
			}
		}
		bundle.Price = total
	}
	return nil
}
