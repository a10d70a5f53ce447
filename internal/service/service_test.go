package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"jualin/pos/internal/domain"
	"jualin/pos/internal/store"
	"jualin/pos/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	svc := New(memory.New(), nil, nil)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	return svc, ctx
}

func createProduct(t *testing.T, svc *Service, ctx context.Context, name, price string, stock int) domain.Product {
	t.Helper()
	p, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: name, Price: price, Stock: stock})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return p
}

func createSale(t *testing.T, svc *Service, ctx context.Context, name, balance string) domain.Sale {
	t.Helper()
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{Name: name, InitialBalance: balance})
	if err != nil {
		t.Fatalf("create sale %s: %v", name, err)
	}
	return sale
}

func productRef(id string) domain.ItemRef { return domain.ItemRef{Kind: domain.KindProduct, ID: id} }
func variantRef(id string) domain.ItemRef { return domain.ItemRef{Kind: domain.KindVariant, ID: id} }
func bundleRef(id string) domain.ItemRef  { return domain.ItemRef{Kind: domain.KindBundle, ID: id} }

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	cashierCtx := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: domain.RoleCashier})

	if _, err := svc.CreateProduct(cashierCtx, domain.ProductCreateRequest{Name: "Kopi", Price: "15000", Stock: 5}); err == nil {
		t.Fatal("expected cashier product creation to fail")
	}
}

func TestProductActiveTracksStock(t *testing.T) {
	svc, ctx := newTestService(t)

	withStock := createProduct(t, svc, ctx, "Kopi", "15000", 5)
	if !withStock.Active {
		t.Fatal("product created with stock should be active")
	}
	empty := createProduct(t, svc, ctx, "Teh", "8000", 0)
	if empty.Active {
		t.Fatal("product created without stock should be inactive")
	}

	if err := svc.UpdateStock(ctx, productRef(withStock.ID), 5); err != nil {
		t.Fatalf("deplete stock: %v", err)
	}
	got, err := svc.GetProduct(ctx, withStock.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 0 || got.Active {
		t.Fatalf("depleted product: stock=%d active=%v, want 0/false", got.Stock, got.Active)
	}

	if err := svc.Restock(ctx, productRef(withStock.ID), 3); err != nil {
		t.Fatalf("restock: %v", err)
	}
	got, err = svc.GetProduct(ctx, withStock.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 3 || !got.Active {
		t.Fatalf("restocked product: stock=%d active=%v, want 3/true", got.Stock, got.Active)
	}
}

func TestStockDepletionScenario(t *testing.T) {
	svc, ctx := newTestService(t)
	p := createProduct(t, svc, ctx, "Kopi", "15000", 5)
	sale := createSale(t, svc, ctx, "Pagi", "")
	ref := productRef(p.ID)

	buy := func(qty int) error {
		_, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
			Lines:    []domain.OrderLineRequest{{Item: ref, Qty: qty}},
			Tendered: "100000",
		})
		return err
	}

	if err := buy(3); err != nil {
		t.Fatalf("order of 3 from stock 5: %v", err)
	}
	if err := buy(3); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("order of 3 from stock 2: got %v, want ErrInsufficientStock", err)
	}
	got, _ := svc.GetProduct(ctx, p.ID)
	if got.Stock != 2 {
		t.Fatalf("rejected order must not touch stock: got %d, want 2", got.Stock)
	}
	if err := buy(2); err != nil {
		t.Fatalf("order of 2 from stock 2: %v", err)
	}
	got, _ = svc.GetProduct(ctx, p.ID)
	if got.Stock != 0 || got.Active {
		t.Fatalf("after selling out: stock=%d active=%v, want 0/false", got.Stock, got.Active)
	}
	if err := buy(1); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("order from empty stock: got %v, want ErrInsufficientStock", err)
	}
}

func TestDeactivatedProductCannotBeOrdered(t *testing.T) {
	svc, ctx := newTestService(t)
	p := createProduct(t, svc, ctx, "Kopi", "15000", 5)
	sale := createSale(t, svc, ctx, "Pagi", "")

	off := false
	if _, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Active: &off}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: productRef(p.ID), Qty: 1}},
		Tendered: "15000",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("ordering a deactivated product: got %v, want ErrInvalidInput", err)
	}
}

func TestVariantActiveDrivesParent(t *testing.T) {
	svc, ctx := newTestService(t)
	p := createProduct(t, svc, ctx, "Nasi Goreng", "0", 0)

	biasa, err := svc.CreateVariant(ctx, domain.VariantCreateRequest{ProductID: p.ID, Name: "Biasa", Price: "18000", Stock: 2})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	spesial, err := svc.CreateVariant(ctx, domain.VariantCreateRequest{ProductID: p.ID, Name: "Spesial", Price: "25000", Stock: 0})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}

	parent, _ := svc.GetProduct(ctx, p.ID)
	if !parent.HasVariants() || !parent.Active {
		t.Fatalf("parent with one stocked variant: hasVariants=%v active=%v", parent.HasVariants(), parent.Active)
	}

	if err := svc.UpdateStock(ctx, variantRef(biasa.ID), 2); err != nil {
		t.Fatalf("deplete variant: %v", err)
	}
	parent, _ = svc.GetProduct(ctx, p.ID)
	if parent.Active {
		t.Fatal("parent should deactivate when every variant is out of stock")
	}

	if err := svc.Restock(ctx, variantRef(spesial.ID), 4); err != nil {
		t.Fatalf("restock variant: %v", err)
	}
	parent, _ = svc.GetProduct(ctx, p.ID)
	if !parent.Active {
		t.Fatal("parent should reactivate when a variant gains stock")
	}
}

func TestVariantOwningProductRejectsDirectStock(t *testing.T) {
	svc, ctx := newTestService(t)
	p := createProduct(t, svc, ctx, "Nasi Goreng", "0", 0)
	if _, err := svc.CreateVariant(ctx, domain.VariantCreateRequest{ProductID: p.ID, Name: "Biasa", Price: "18000", Stock: 2}); err != nil {
		t.Fatalf("create variant: %v", err)
	}

	if err := svc.Restock(ctx, productRef(p.ID), 5); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("restocking a variant-owning product: got %v, want ErrInvalidInput", err)
	}
	stock := 5
	if _, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Stock: &stock}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("setting stock on a variant-owning product: got %v, want ErrInvalidInput", err)
	}
}

func TestBundleAutoPriceAndActive(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 10)
	teh := createProduct(t, svc, ctx, "Teh", "8000", 10)

	bundle, err := svc.CreateBundle(ctx, domain.BundleCreateRequest{
		Name:      "Paket Hemat",
		AutoPrice: true,
		Entries: []domain.BundleEntryRequest{
			{Item: productRef(kopi.ID), Qty: 2},
			{Item: productRef(teh.ID), Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	if bundle.Price != "38000" {
		t.Fatalf("auto price: got %s, want 38000", bundle.Price)
	}
	if !bundle.Active {
		t.Fatal("bundle with all entries active should be active")
	}

	// Depleting one component deactivates the bundle.
	if err := svc.UpdateStock(ctx, productRef(teh.ID), 10); err != nil {
		t.Fatalf("deplete component: %v", err)
	}
	got, err := svc.GetBundle(ctx, bundle.ID)
	if err != nil {
		t.Fatalf("get bundle: %v", err)
	}
	if got.Active {
		t.Fatal("bundle should deactivate when a component goes inactive")
	}

	if err := svc.Restock(ctx, productRef(teh.ID), 5); err != nil {
		t.Fatalf("restock component: %v", err)
	}
	got, _ = svc.GetBundle(ctx, bundle.ID)
	if !got.Active {
		t.Fatal("bundle should reactivate when all components are back")
	}

	// A component price change flows into the cached entry and auto price.
	newPrice := "20000"
	if _, err := svc.UpdateProduct(ctx, kopi.ID, domain.ProductUpdateRequest{Price: &newPrice}); err != nil {
		t.Fatalf("reprice component: %v", err)
	}
	got, _ = svc.GetBundle(ctx, bundle.ID)
	if got.Price != "48000" {
		t.Fatalf("auto price after reprice: got %s, want 48000", got.Price)
	}
}

func TestBundlesCannotNest(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 10)
	inner, err := svc.CreateBundle(ctx, domain.BundleCreateRequest{
		Name:      "Inner",
		AutoPrice: true,
		Entries:   []domain.BundleEntryRequest{{Item: productRef(kopi.ID), Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create inner bundle: %v", err)
	}

	_, err = svc.CreateBundle(ctx, domain.BundleCreateRequest{
		Name:      "Outer",
		AutoPrice: true,
		Entries:   []domain.BundleEntryRequest{{Item: bundleRef(inner.ID), Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("nesting bundles: got %v, want ErrInvalidInput", err)
	}
}

func TestDeleteProductCascades(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 10)
	teh := createProduct(t, svc, ctx, "Teh", "8000", 10)
	bundle, err := svc.CreateBundle(ctx, domain.BundleCreateRequest{
		Name:      "Paket",
		AutoPrice: true,
		Entries: []domain.BundleEntryRequest{
			{Item: productRef(kopi.ID), Qty: 1},
			{Item: productRef(teh.ID), Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	sale, err := svc.CreateSale(ctx, domain.SaleCreateRequest{
		Name:    "Pagi",
		Entries: []domain.SaleEntry{{Item: productRef(teh.ID), Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if err := svc.DeleteProduct(ctx, teh.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	got, _ := svc.GetBundle(ctx, bundle.ID)
	if len(got.Entries) != 1 || got.Entries[0].Item.ID != kopi.ID {
		t.Fatalf("bundle entries after delete: %+v", got.Entries)
	}
	if got.Price != "15000" {
		t.Fatalf("auto price after entry removal: got %s, want 15000", got.Price)
	}
	gotSale, _ := svc.GetSale(ctx, sale.ID)
	if len(gotSale.Entries) != 0 {
		t.Fatalf("sale entries after delete: %+v", gotSale.Entries)
	}
}

func TestEmptyBundleGoesInactive(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 10)
	bundle, err := svc.CreateBundle(ctx, domain.BundleCreateRequest{
		Name:      "Solo",
		AutoPrice: true,
		Entries:   []domain.BundleEntryRequest{{Item: productRef(kopi.ID), Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}

	if err := svc.DeleteProduct(ctx, kopi.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	got, _ := svc.GetBundle(ctx, bundle.ID)
	if len(got.Entries) != 0 || got.Active {
		t.Fatalf("emptied bundle: entries=%d active=%v, want 0/false", len(got.Entries), got.Active)
	}
}

func TestAddOrderIsAtomic(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 10)
	teh := createProduct(t, svc, ctx, "Teh", "8000", 1)
	sale := createSale(t, svc, ctx, "Pagi", "")

	_, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines: []domain.OrderLineRequest{
			{Item: productRef(kopi.ID), Qty: 2},
			{Item: productRef(teh.ID), Qty: 3},
		},
		Tendered: "100000",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("mixed order with one short line: got %v, want ErrInsufficientStock", err)
	}

	gotKopi, _ := svc.GetProduct(ctx, kopi.ID)
	gotTeh, _ := svc.GetProduct(ctx, teh.ID)
	if gotKopi.Stock != 10 || gotTeh.Stock != 1 {
		t.Fatalf("rejected order must leave stock untouched: kopi=%d teh=%d", gotKopi.Stock, gotTeh.Stock)
	}
	orders, _ := svc.ListOrders(ctx, sale.ID)
	if len(orders) != 0 {
		t.Fatalf("rejected order must not be recorded: got %d orders", len(orders))
	}
}

func TestAddOrderMergesDuplicateLineDemand(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 3)
	sale := createSale(t, svc, ctx, "Pagi", "")

	_, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines: []domain.OrderLineRequest{
			{Item: productRef(kopi.ID), Qty: 2},
			{Item: productRef(kopi.ID), Qty: 2},
		},
		Tendered: "60000",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("duplicate lines over stock: got %v, want ErrInsufficientStock", err)
	}
}

func TestAddOrderBundleConsumesComponentStock(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 5)
	teh := createProduct(t, svc, ctx, "Teh", "8000", 5)
	bundle, err := svc.CreateBundle(ctx, domain.BundleCreateRequest{
		Name:      "Paket",
		AutoPrice: true,
		Entries: []domain.BundleEntryRequest{
			{Item: productRef(kopi.ID), Qty: 2},
			{Item: productRef(teh.ID), Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	sale := createSale(t, svc, ctx, "Pagi", "")

	order, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: bundleRef(bundle.ID), Qty: 2}},
		Tendered: "100000",
	})
	if err != nil {
		t.Fatalf("order bundle: %v", err)
	}
	if order.Total != "76000" {
		t.Fatalf("bundle order total: got %s, want 76000", order.Total)
	}
	if len(order.Lines) != 1 || len(order.Lines[0].SubLines) != 2 {
		t.Fatalf("bundle line shape: %+v", order.Lines)
	}

	gotKopi, _ := svc.GetProduct(ctx, kopi.ID)
	gotTeh, _ := svc.GetProduct(ctx, teh.ID)
	if gotKopi.Stock != 1 || gotTeh.Stock != 3 {
		t.Fatalf("component stock after bundle order: kopi=%d teh=%d, want 1/3", gotKopi.Stock, gotTeh.Stock)
	}

	// One more bundle would need 2 kopi but only 1 remains.
	_, err = svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: bundleRef(bundle.ID), Qty: 1}},
		Tendered: "100000",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("bundle over component stock: got %v, want ErrInsufficientStock", err)
	}
}

func TestOrderNumbering(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 100)
	sale := createSale(t, svc, ctx, "Pagi", "")

	buy := func() domain.Order {
		order, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
			Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 1}},
			Tendered: "15000",
		})
		if err != nil {
			t.Fatalf("add order: %v", err)
		}
		return order
	}

	first := buy()
	second := buy()
	if first.Name != "Order #1" || second.Name != "Order #2" {
		t.Fatalf("order names: %q, %q", first.Name, second.Name)
	}

	if _, err := svc.CancelOrder(ctx, second.ID); err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	third := buy()
	if third.Name != "Order #3" {
		t.Fatalf("canceled orders keep their number: got %q, want Order #3", third.Name)
	}
}

func TestOrderTenderedAndChange(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 10)
	sale := createSale(t, svc, ctx, "Pagi", "")

	_, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 2}},
		Tendered: "20000",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("tendered below total: got %v, want ErrInvalidInput", err)
	}

	order, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 2}},
		Tendered: "50000",
	})
	if err != nil {
		t.Fatalf("add order: %v", err)
	}
	if order.Total != "30000" || order.Change != "20000" {
		t.Fatalf("order money: total=%s change=%s, want 30000/20000", order.Total, order.Change)
	}
}

func TestCancelOrderRestocksAndRebuildsSummary(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 5)
	sale := createSale(t, svc, ctx, "Pagi", "")

	order, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 5}},
		Tendered: "75000",
	})
	if err != nil {
		t.Fatalf("add order: %v", err)
	}
	got, _ := svc.GetProduct(ctx, kopi.ID)
	if got.Stock != 0 || got.Active {
		t.Fatalf("after order: stock=%d active=%v", got.Stock, got.Active)
	}

	canceled, err := svc.CancelOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if !canceled.Canceled {
		t.Fatal("order should be flagged canceled")
	}
	got, _ = svc.GetProduct(ctx, kopi.ID)
	if got.Stock != 5 || !got.Active {
		t.Fatalf("after cancel: stock=%d active=%v, want 5/true", got.Stock, got.Active)
	}

	gotSale, _ := svc.GetSale(ctx, sale.ID)
	if len(gotSale.ProductsSold) != 0 || gotSale.Revenue != "0" {
		t.Fatalf("summary after cancel: sold=%+v revenue=%s", gotSale.ProductsSold, gotSale.Revenue)
	}

	// Canceling again is a no-op and must not restock twice.
	if _, err := svc.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("cancel twice: %v", err)
	}
	got, _ = svc.GetProduct(ctx, kopi.ID)
	if got.Stock != 5 {
		t.Fatalf("double cancel restocked twice: stock=%d", got.Stock)
	}
}

func TestCancelOrderAfterItemDeleted(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 5)
	teh := createProduct(t, svc, ctx, "Teh", "8000", 5)
	sale := createSale(t, svc, ctx, "Pagi", "")

	order, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines: []domain.OrderLineRequest{
			{Item: productRef(kopi.ID), Qty: 2},
			{Item: productRef(teh.ID), Qty: 1},
		},
		Tendered: "38000",
	})
	if err != nil {
		t.Fatalf("add order: %v", err)
	}
	if err := svc.DeleteProduct(ctx, kopi.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	canceled, err := svc.CancelOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("cancel after delete: %v", err)
	}
	if !canceled.Canceled {
		t.Fatal("order should be flagged canceled")
	}

	// The surviving item gets its stock back; the deleted one is skipped.
	gotTeh, _ := svc.GetProduct(ctx, teh.ID)
	if gotTeh.Stock != 5 {
		t.Fatalf("surviving item after cancel: stock=%d, want 5", gotTeh.Stock)
	}
	gotSale, _ := svc.GetSale(ctx, sale.ID)
	if gotSale.Revenue != "0" || len(gotSale.ProductsSold) != 0 {
		t.Fatalf("summary still counts the canceled order: revenue=%s sold=%+v", gotSale.Revenue, gotSale.ProductsSold)
	}
}

func TestSaleSummaryAccumulates(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 10)
	teh := createProduct(t, svc, ctx, "Teh", "8000", 10)
	sale := createSale(t, svc, ctx, "Pagi", "")

	if _, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines: []domain.OrderLineRequest{
			{Item: productRef(kopi.ID), Qty: 2},
			{Item: productRef(teh.ID), Qty: 1},
		},
		Tendered: "38000",
	}); err != nil {
		t.Fatalf("first order: %v", err)
	}
	if _, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 1}},
		Tendered: "15000",
	}); err != nil {
		t.Fatalf("second order: %v", err)
	}

	gotSale, _ := svc.GetSale(ctx, sale.ID)
	if gotSale.Revenue != "53000" {
		t.Fatalf("revenue: got %s, want 53000", gotSale.Revenue)
	}
	byID := map[string]domain.SoldItem{}
	for _, item := range gotSale.ProductsSold {
		byID[item.Item.ID] = item
	}
	if byID[kopi.ID].Qty != 3 || byID[kopi.ID].Total != "45000" {
		t.Fatalf("kopi summary: %+v", byID[kopi.ID])
	}
	if byID[teh.ID].Qty != 1 || byID[teh.ID].Total != "8000" {
		t.Fatalf("teh summary: %+v", byID[teh.ID])
	}
}

func TestFinishSaleFoldsBundleSubLines(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 10)
	teh := createProduct(t, svc, ctx, "Teh", "8000", 10)
	bundle, err := svc.CreateBundle(ctx, domain.BundleCreateRequest{
		Name:      "Paket",
		AutoPrice: true,
		Entries: []domain.BundleEntryRequest{
			{Item: productRef(kopi.ID), Qty: 2},
			{Item: productRef(teh.ID), Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	sale := createSale(t, svc, ctx, "Pagi", "")

	if _, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: bundleRef(bundle.ID), Qty: 2}},
		Tendered: "76000",
	}); err != nil {
		t.Fatalf("bundle order: %v", err)
	}
	if _, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 1}},
		Tendered: "15000",
	}); err != nil {
		t.Fatalf("plain order: %v", err)
	}

	finished, err := svc.FinishSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("finish sale: %v", err)
	}
	if finished.Revenue != "91000" {
		t.Fatalf("revenue: got %s, want 91000", finished.Revenue)
	}

	byID := map[string]domain.SoldItem{}
	for _, item := range finished.ProductsSold {
		byID[item.Item.ID] = item
	}
	// The bundle line itself and each component sub-line appear folded:
	// 2 bundles at 38000, plus kopi 2x2 from sub-lines and 1 plain.
	if got := byID[bundle.ID]; got.Qty != 2 || got.Total != "76000" {
		t.Fatalf("bundle summary: %+v", got)
	}
	if got := byID[kopi.ID]; got.Qty != 5 || got.Total != "75000" {
		t.Fatalf("kopi summary: %+v", got)
	}
	if got := byID[teh.ID]; got.Qty != 2 || got.Total != "16000" {
		t.Fatalf("teh summary: %+v", got)
	}
}

func TestFinishSaleBalance(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "10000", 100)
	sale := createSale(t, svc, ctx, "Pagi", "100000")

	// Two orders handing out 60000 and 50000 of change: 110000 total,
	// more than the 100000 float can cover.
	for _, tendered := range []string{"70000", "60000"} {
		if _, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
			Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 1}},
			Tendered: tendered,
		}); err != nil {
			t.Fatalf("add order: %v", err)
		}
	}

	_, err := svc.FinishSale(ctx, sale.ID)
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("finish with change over float: got %v, want ErrInsufficientBalance", err)
	}
	gotSale, _ := svc.GetSale(ctx, sale.ID)
	if gotSale.Finished {
		t.Fatal("failed settlement must leave the sale running")
	}

	// Top up the float and settle.
	balance := "110000"
	gotSale.InitialBalance = balance
	if _, err := svc.repo.UpdateSale(ctx, gotSale); err != nil {
		t.Fatalf("raise float: %v", err)
	}
	finished, err := svc.FinishSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("finish sale: %v", err)
	}
	if !finished.Finished {
		t.Fatal("sale should be finished")
	}
	if finished.FinalBalance != "0" {
		t.Fatalf("final balance: got %s, want 0", finished.FinalBalance)
	}
	if finished.Revenue != "20000" {
		t.Fatalf("revenue: got %s, want 20000", finished.Revenue)
	}

	// A finished sale rejects further mutation.
	if _, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 1}},
		Tendered: "10000",
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("order on finished sale: got %v, want ErrInvalidInput", err)
	}
	name := "Sore"
	if _, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdateRequest{Name: &name}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("update finished sale: got %v, want ErrInvalidInput", err)
	}
}

func TestFinishSaleWithoutBalanceSkipsFloat(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "10000", 10)
	sale := createSale(t, svc, ctx, "Pagi", "")

	if _, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
		Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 1}},
		Tendered: "50000",
	}); err != nil {
		t.Fatalf("add order: %v", err)
	}

	finished, err := svc.FinishSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("finish sale: %v", err)
	}
	if finished.HasBalance() || finished.FinalBalance != "" {
		t.Fatalf("balance-free sale grew a balance: %+v", finished)
	}
}

type countingCache struct {
	store       map[string]*domain.CatalogView
	gets, sets  int
	invalidates int
}

func newCountingCache() *countingCache {
	return &countingCache{store: map[string]*domain.CatalogView{}}
}

func (c *countingCache) Get(_ context.Context, key string) (*domain.CatalogView, bool, error) {
	c.gets++
	view, ok := c.store[key]
	return view, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, value *domain.CatalogView, _ time.Duration) error {
	c.sets++
	c.store[key] = value
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, key string) error {
	c.invalidates++
	delete(c.store, key)
	return nil
}

func TestCatalogServedThroughCache(t *testing.T) {
	cc := newCountingCache()
	svc := New(memory.New(), nil, cc)
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})

	p := createProduct(t, svc, ctx, "Kopi", "15000", 5)
	if cc.invalidates == 0 {
		t.Fatal("catalog write should invalidate the cache")
	}

	view, err := svc.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(view.Products) != 1 || view.Products[0].ID != p.ID {
		t.Fatalf("catalog view: %+v", view)
	}
	if cc.sets != 1 {
		t.Fatalf("first read should populate the cache: sets=%d", cc.sets)
	}

	if _, err := svc.Catalog(ctx); err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if cc.sets != 1 {
		t.Fatalf("second read should hit the cache: sets=%d", cc.sets)
	}

	if err := svc.UpdateStock(ctx, productRef(p.ID), 1); err != nil {
		t.Fatalf("update stock: %v", err)
	}
	view, err = svc.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if view.Products[0].Stock != 4 {
		t.Fatalf("catalog after stock write: stock=%d, want 4", view.Products[0].Stock)
	}
}

func TestRestockKeepsManualDeactivation(t *testing.T) {
	svc, ctx := newTestService(t)
	p := createProduct(t, svc, ctx, "Kopi", "15000", 5)

	off := false
	if _, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Active: &off}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if err := svc.Restock(ctx, productRef(p.ID), 3); err != nil {
		t.Fatalf("restock: %v", err)
	}
	got, _ := svc.GetProduct(ctx, p.ID)
	if got.Stock != 8 || got.Active {
		t.Fatalf("restock must not override a manual deactivation: stock=%d active=%v", got.Stock, got.Active)
	}

	// Only crossing zero re-derives the flag.
	if err := svc.UpdateStock(ctx, productRef(p.ID), 8); err != nil {
		t.Fatalf("deplete: %v", err)
	}
	if err := svc.Restock(ctx, productRef(p.ID), 2); err != nil {
		t.Fatalf("restock from zero: %v", err)
	}
	got, _ = svc.GetProduct(ctx, p.ID)
	if got.Stock != 2 || !got.Active {
		t.Fatalf("restock from zero should reactivate: stock=%d active=%v", got.Stock, got.Active)
	}
}

func TestDeleteSalePublishesPerOrderEvents(t *testing.T) {
	svc, ctx := newTestService(t)
	kopi := createProduct(t, svc, ctx, "Kopi", "15000", 10)
	sale := createSale(t, svc, ctx, "Pagi", "")

	orderIDs := map[string]bool{}
	for i := 0; i < 2; i++ {
		order, err := svc.AddOrder(ctx, sale.ID, domain.OrderAddRequest{
			Lines:    []domain.OrderLineRequest{{Item: productRef(kopi.ID), Qty: 1}},
			Tendered: "15000",
		})
		if err != nil {
			t.Fatalf("add order: %v", err)
		}
		orderIDs[order.ID] = true
	}

	sub := svc.Events().Subscribe(32)
	defer sub.Close()

	if err := svc.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	deletedOrders := map[string]bool{}
	saleDeleted := false
	for len(sub.C()) > 0 {
		ev := <-sub.C()
		if ev.Collection == domain.CollectionOrders && ev.Action == "deleted" {
			deletedOrders[ev.ID] = true
		}
		if ev.Collection == domain.CollectionSales && ev.Action == "deleted" && ev.ID == sale.ID {
			saleDeleted = true
		}
	}
	if len(deletedOrders) != 2 {
		t.Fatalf("deleted order events: got %d, want 2", len(deletedOrders))
	}
	for id := range orderIDs {
		if !deletedOrders[id] {
			t.Fatalf("missing deleted event for order %s", id)
		}
	}
	if !saleDeleted {
		t.Fatal("missing deleted event for the sale")
	}
}

func TestCatalogEventsPublished(t *testing.T) {
	svc, ctx := newTestService(t)
	sub := svc.Events().Subscribe(32)
	defer sub.Close()

	p := createProduct(t, svc, ctx, "Kopi", "15000", 5)
	if err := svc.UpdateStock(ctx, productRef(p.ID), 2); err != nil {
		t.Fatalf("update stock: %v", err)
	}

	seen := map[string]bool{}
	for len(sub.C()) > 0 {
		ev := <-sub.C()
		seen[ev.Collection+"/"+ev.Action] = true
	}
	if !seen[domain.CollectionProducts+"/created"] {
		t.Fatalf("missing product created event, saw %v", seen)
	}
	if !seen[domain.CollectionProducts+"/updated"] {
		t.Fatalf("missing product updated event, saw %v", seen)
	}
}
