package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"jualin/pos/internal/domain"
	"jualin/pos/internal/events"
	"jualin/pos/internal/money"
	"jualin/pos/internal/store"
)

const orderNamePrefix = "Order #"

func (s *Service) ListOrders(ctx context.Context, saleID string) ([]domain.Order, error) {
	if saleID == "" {
		return s.repo.ListOrders(ctx)
	}
	return s.repo.ListOrdersBySale(ctx, saleID)
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// AddOrder books an order against a running sale. The whole request is
// validated first (items sellable, stock covers the merged leaf demand,
// tendered covers the total); only then is anything written, so a rejected
// order leaves no trace.
func (s *Service) AddOrder(ctx context.Context, saleID string, req domain.OrderAddRequest) (domain.Order, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Order{}, err
	}
	if sale.Finished {
		return domain.Order{}, fmt.Errorf("%w: sale %s is finished", store.ErrInvalidInput, saleID)
	}
	if len(req.Lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order has no lines", store.ErrInvalidInput)
	}
	tendered, err := money.ParsePrice(req.Tendered)
	if err != nil {
		return domain.Order{}, err
	}

	lines := make([]domain.OrderLine, 0, len(req.Lines))
	demand := make(map[domain.ItemRef]int)
	total := money.Zero
	for _, lineReq := range req.Lines {
		line, err := s.expandLine(ctx, lineReq, demand)
		if err != nil {
			return domain.Order{}, err
		}
		lines = append(lines, line)
		if total, err = money.Add(total, line.Total); err != nil {
			return domain.Order{}, err
		}
	}

	for ref, qty := range demand {
		current, err := s.leafState(ctx, ref)
		if err != nil {
			return domain.Order{}, err
		}
		if current.stock < qty {
			return domain.Order{}, fmt.Errorf("%w: %s %s has %d, need %d", store.ErrInsufficientStock, ref.Kind, ref.ID, current.stock, qty)
		}
	}

	cmp, err := money.Cmp(tendered.String(), total)
	if err != nil {
		return domain.Order{}, err
	}
	if cmp < 0 {
		return domain.Order{}, fmt.Errorf("%w: tendered %s does not cover total %s", store.ErrInvalidInput, tendered.String(), total)
	}
	change, err := money.Sub(tendered.String(), total)
	if err != nil {
		return domain.Order{}, err
	}

	existing, err := s.repo.ListOrdersBySale(ctx, saleID)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		SaleID:   saleID,
		Name:     nextOrderName(existing),
		Lines:    lines,
		Total:    total,
		Tendered: tendered.String(),
		Change:   change,
	}
	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	for _, ref := range sortedRefs(demand) {
		if err := s.UpdateStock(ctx, ref, demand[ref]); err != nil {
			return domain.Order{}, err
		}
	}

	if err := s.refreshSaleSummary(ctx, saleID); err != nil {
		return domain.Order{}, err
	}

	s.publish(domain.CollectionOrders, events.ActionCreated, created.ID)
	return *created, nil
}

// CancelOrder flips the order's canceled flag, returns its leaf demand to
// stock and rebuilds the sale's rolling summary. Canceling twice is a no-op.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Canceled {
		return *order, nil
	}
	sale, err := s.repo.GetSale(ctx, order.SaleID)
	if err != nil {
		return domain.Order{}, err
	}
	if sale.Finished {
		return domain.Order{}, fmt.Errorf("%w: sale %s is finished", store.ErrInvalidInput, sale.ID)
	}

	// Resolve every leaf before writing anything, so the cancel is never
	// half-applied. Items deleted since the order was placed have no stock
	// record left to return to and are skipped.
	demand := leafDemand(order.Lines)
	restock := make([]domain.ItemRef, 0, len(demand))
	for _, ref := range sortedRefs(demand) {
		if _, err := s.leafState(ctx, ref); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return domain.Order{}, err
		}
		restock = append(restock, ref)
	}

	order.Canceled = true
	updated, err := s.repo.UpdateOrder(ctx, *order)
	if err != nil {
		return domain.Order{}, err
	}

	for _, ref := range restock {
		if err := s.Restock(ctx, ref, demand[ref]); err != nil {
			return domain.Order{}, err
		}
	}

	if err := s.refreshSaleSummary(ctx, order.SaleID); err != nil {
		return domain.Order{}, err
	}

	s.publish(domain.CollectionOrders, events.ActionUpdated, updated.ID)
	return *updated, nil
}

// FinishSale settles a sale: products_sold and revenue are recomputed from
// the non-canceled orders, and when the sale tracks a drawer float the final
// balance is initial minus the change handed out. A float that cannot cover
// the change rejects with ErrInsufficientBalance and the sale keeps running.
func (s *Service) FinishSale(ctx context.Context, saleID string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}

	orders, err := s.repo.ListOrdersBySale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	sold, revenue, totalChange, err := foldOrders(orders)
	if err != nil {
		return domain.Sale{}, err
	}

	sale.ProductsSold = sold
	sale.Revenue = revenue
	if sale.HasBalance() {
		cmp, err := money.Cmp(totalChange, sale.InitialBalance)
		if err != nil {
			return domain.Sale{}, err
		}
		if cmp > 0 {
			return domain.Sale{}, fmt.Errorf("%w: change %s exceeds initial balance %s", store.ErrInsufficientBalance, totalChange, sale.InitialBalance)
		}
		final, err := money.Sub(sale.InitialBalance, totalChange)
		if err != nil {
			return domain.Sale{}, err
		}
		sale.FinalBalance = final
	}
	sale.Finished = true

	saved, err := s.repo.UpdateSale(ctx, *sale)
	if err != nil {
		return domain.Sale{}, err
	}

	s.publish(domain.CollectionSales, events.ActionUpdated, saved.ID)
	return *saved, nil
}

// refreshSaleSummary rebuilds an unfinished sale's rolling products_sold and
// revenue from its current non-canceled orders. Settlement runs the same
// fold, so finishing never changes an up-to-date summary.
func (s *Service) refreshSaleSummary(ctx context.Context, saleID string) error {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return err
	}

	orders, err := s.repo.ListOrdersBySale(ctx, saleID)
	if err != nil {
		return err
	}
	sold, revenue, _, err := foldOrders(orders)
	if err != nil {
		return err
	}

	sale.ProductsSold = sold
	sale.Revenue = revenue
	if _, err := s.repo.UpdateSale(ctx, *sale); err != nil {
		return err
	}
	s.publish(domain.CollectionSales, events.ActionUpdated, sale.ID)
	return nil
}

// expandLine resolves one requested line into an order line and accumulates
// the merged leaf demand. Bundle lines carry their component leaves as
// sub-lines sized by the bundle quantity.
func (s *Service) expandLine(ctx context.Context, req domain.OrderLineRequest, demand map[domain.ItemRef]int) (domain.OrderLine, error) {
	if req.Qty < 1 {
		return domain.OrderLine{}, fmt.Errorf("%w: line qty must be positive", store.ErrInvalidInput)
	}

	if req.Item.Kind == domain.KindBundle {
		bundle, err := s.repo.GetBundle(ctx, req.Item.ID)
		if err != nil {
			return domain.OrderLine{}, err
		}
		if len(bundle.Entries) == 0 {
			return domain.OrderLine{}, fmt.Errorf("%w: bundle %s has no entries", store.ErrInvalidInput, bundle.ID)
		}

		subLines := make([]domain.OrderLine, 0, len(bundle.Entries))
		for _, entry := range bundle.Entries {
			current, err := s.leafState(ctx, entry.Item)
			if err != nil {
				return domain.OrderLine{}, err
			}
			qty := entry.Qty * req.Qty
			if !current.active && current.stock >= qty {
				return domain.OrderLine{}, fmt.Errorf("%w: %s %s is inactive", store.ErrInvalidInput, entry.Item.Kind, entry.Item.ID)
			}
			subTotal, err := money.MulQty(current.price, qty)
			if err != nil {
				return domain.OrderLine{}, err
			}
			subLines = append(subLines, domain.OrderLine{
				Item:      entry.Item,
				Name:      current.name,
				Qty:       qty,
				UnitPrice: current.price,
				Total:     subTotal,
			})
			demand[entry.Item] += qty
		}

		total, err := money.MulQty(bundle.Price, req.Qty)
		if err != nil {
			return domain.OrderLine{}, err
		}
		return domain.OrderLine{
			Item:      req.Item,
			Name:      bundle.Name,
			Qty:       req.Qty,
			UnitPrice: bundle.Price,
			Total:     total,
			SubLines:  subLines,
		}, nil
	}

	current, err := s.leafState(ctx, req.Item)
	if err != nil {
		return domain.OrderLine{}, err
	}
	if !current.active && current.stock >= req.Qty {
		return domain.OrderLine{}, fmt.Errorf("%w: %s %s is inactive", store.ErrInvalidInput, req.Item.Kind, req.Item.ID)
	}
	total, err := money.MulQty(current.price, req.Qty)
	if err != nil {
		return domain.OrderLine{}, err
	}
	demand[req.Item] += req.Qty
	return domain.OrderLine{
		Item:      req.Item,
		Name:      current.name,
		Qty:       req.Qty,
		UnitPrice: current.price,
		Total:     total,
	}, nil
}

// foldOrders folds the non-canceled orders into a sold-items summary (order
// lines and their bundle sub-lines merged by item), total revenue, and the
// total change handed out.
func foldOrders(orders []domain.Order) ([]domain.SoldItem, string, string, error) {
	byItem := make(map[domain.ItemRef]*domain.SoldItem)
	keys := make([]domain.ItemRef, 0, 8)
	revenue := money.Zero
	totalChange := money.Zero

	add := func(line domain.OrderLine) error {
		item, ok := byItem[line.Item]
		if !ok {
			item = &domain.SoldItem{Item: line.Item, Name: line.Name, Total: money.Zero}
			byItem[line.Item] = item
			keys = append(keys, line.Item)
		}
		item.Qty += line.Qty
		item.Name = line.Name
		sum, err := money.Add(item.Total, line.Total)
		if err != nil {
			return err
		}
		item.Total = sum
		return nil
	}

	for _, order := range orders {
		if order.Canceled {
			continue
		}
		var err error
		if revenue, err = money.Add(revenue, order.Total); err != nil {
			return nil, "", "", err
		}
		if totalChange, err = money.Add(totalChange, order.Change); err != nil {
			return nil, "", "", err
		}
		for _, line := range order.Lines {
			if err := add(line); err != nil {
				return nil, "", "", err
			}
			for _, sub := range line.SubLines {
				if err := add(sub); err != nil {
					return nil, "", "", err
				}
			}
		}
	}

	sold := make([]domain.SoldItem, 0, len(keys))
	for _, key := range keys {
		sold = append(sold, *byItem[key])
	}
	return sold, revenue, totalChange, nil
}

// leafDemand collects the merged leaf quantities of an order's lines, using
// the expanded sub-lines for bundles.
func leafDemand(lines []domain.OrderLine) map[domain.ItemRef]int {
	demand := make(map[domain.ItemRef]int)
	for _, line := range lines {
		if line.Item.Kind == domain.KindBundle {
			for _, sub := range line.SubLines {
				demand[sub.Item] += sub.Qty
			}
			continue
		}
		demand[line.Item] += line.Qty
	}
	return demand
}

func sortedRefs(demand map[domain.ItemRef]int) []domain.ItemRef {
	refs := make([]domain.ItemRef, 0, len(demand))
	for ref := range demand {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind == refs[j].Kind {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].Kind < refs[j].Kind
	})
	return refs
}

// nextOrderName numbers orders per sale: one past the highest existing
// "Order #N" suffix, starting at 1. Canceled orders keep their number.
func nextOrderName(orders []domain.Order) string {
	max := 0
	for _, order := range orders {
		suffix, ok := strings.CutPrefix(order.Name, orderNamePrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return orderNamePrefix + strconv.Itoa(max+1)
}
