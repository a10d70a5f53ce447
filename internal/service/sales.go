package service

import (
	"context"
	"fmt"
	"strings"

	"jualin/pos/internal/domain"
	"jualin/pos/internal/events"
	"jualin/pos/internal/money"
	"jualin/pos/internal/store"
)

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Sale{}, store.ErrInvalidInput
	}
	entries, err := s.validateSaleEntries(ctx, req.Entries)
	if err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		Name:    req.Name,
		Entries: entries,
		Revenue: money.Zero,
	}
	if strings.TrimSpace(req.InitialBalance) != "" {
		balance, err := money.ParsePrice(req.InitialBalance)
		if err != nil {
			return domain.Sale{}, err
		}
		sale.InitialBalance = balance.String()
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.publish(domain.CollectionSales, events.ActionCreated, created.ID)
	return *created, nil
}

func (s *Service) UpdateSale(ctx context.Context, id string, req domain.SaleUpdateRequest) (domain.Sale, error) {
	existing, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	if existing.Finished {
		return domain.Sale{}, fmt.Errorf("%w: sale %s is finished", store.ErrInvalidInput, id)
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Sale{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Entries != nil {
		entries, err := s.validateSaleEntries(ctx, *req.Entries)
		if err != nil {
			return domain.Sale{}, err
		}
		updated.Entries = entries
	}

	saved, err := s.repo.UpdateSale(ctx, updated)
	if err != nil {
		return domain.Sale{}, err
	}

	s.publish(domain.CollectionSales, events.ActionUpdated, saved.ID)
	return *saved, nil
}

// DeleteSale removes an unfinished sale and its orders. Settled sales are
// immutable history.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return err
	}
	if sale.Finished {
		return fmt.Errorf("%w: sale %s is finished", store.ErrInvalidInput, id)
	}

	orders, err := s.repo.ListOrdersBySale(ctx, sale.ID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteOrdersBySale(ctx, sale.ID); err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, sale.ID); err != nil {
		return err
	}

	for _, order := range orders {
		s.publish(domain.CollectionOrders, events.ActionDeleted, order.ID)
	}
	s.publish(domain.CollectionSales, events.ActionDeleted, sale.ID)
	return nil
}

// validateSaleEntries checks that every offered entry points at an existing
// sellable with a positive quantity.
func (s *Service) validateSaleEntries(ctx context.Context, entries []domain.SaleEntry) ([]domain.SaleEntry, error) {
	validated := make([]domain.SaleEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Qty < 1 {
			return nil, fmt.Errorf("%w: entry qty must be positive", store.ErrInvalidInput)
		}
		if entry.Item.Kind == domain.KindBundle {
			if _, err := s.repo.GetBundle(ctx, entry.Item.ID); err != nil {
				return nil, err
			}
		} else {
			if _, err := s.leafState(ctx, entry.Item); err != nil {
				return nil, err
			}
		}
		validated = append(validated, entry)
	}
	return validated, nil
}
