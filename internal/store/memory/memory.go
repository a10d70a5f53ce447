// Package memory is the embedded document store the engine runs on when no
// DATABASE_URL is configured: one RWMutex, a map per collection, and
// clone-on-read so callers never share slices with the store.
package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"jualin/pos/internal/domain"
	"jualin/pos/internal/store"
	"jualin/pos/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	variants        map[string]domain.Variant
	bundles         map[string]domain.Bundle
	sales           map[string]domain.Sale
	orders          map[string]domain.Order
	ordersBySale    map[string][]string
	attachments     map[string]domain.Attachment
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		variants:        make(map[string]domain.Variant),
		bundles:         make(map[string]domain.Bundle),
		sales:           make(map[string]domain.Sale),
		orders:          make(map[string]domain.Order),
		ordersBySale:    make(map[string][]string),
		attachments:     make(map[string]domain.Attachment),
		usersByUsername: seedUsers(),
	}
}

// NewSeeded returns a store pre-loaded with a small dev catalog: two plain
// products, one product selling through variants, and an auto-priced bundle.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-kopi", Name: "Kopi Susu", Price: "15000", Stock: 80, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-teh", Name: "Es Teh Manis", Price: "8000", Stock: 120, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "prod-nasgor", Name: "Nasi Goreng", Price: "0", Stock: 0, Active: true, VariantIDs: []string{"var-nasgor-biasa", "var-nasgor-spesial"}, CreatedAt: now, UpdatedAt: now},
	}
	variants := []domain.Variant{
		{ID: "var-nasgor-biasa", ProductID: "prod-nasgor", Name: "Nasi Goreng Biasa", Price: "20000", Stock: 40, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "var-nasgor-spesial", ProductID: "prod-nasgor", Name: "Nasi Goreng Spesial", Price: "28000", Stock: 25, Active: true, CreatedAt: now, UpdatedAt: now},
	}
	bundles := []domain.Bundle{
		{
			ID:        "bundle-hemat",
			Name:      "Paket Hemat",
			Price:     "35000",
			AutoPrice: true,
			Active:    true,
			Entries: []domain.BundleEntry{
				{Item: domain.ItemRef{Kind: domain.KindVariant, ID: "var-nasgor-biasa"}, Qty: 1, Name: "Nasi Goreng Biasa", Price: "20000", Active: true},
				{Item: domain.ItemRef{Kind: domain.KindProduct, ID: "prod-kopi"}, Qty: 1, Name: "Kopi Susu", Price: "15000", Active: true},
			},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, v := range variants {
		s.variants[v.ID] = v
	}
	for _, b := range bundles {
		s.bundles[b.ID] = cloneBundle(b)
	}
	return s
}

// seedUsers builds the initial operator accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, dev defaults are used with a warning.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneProduct(p)
	return &dup, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.products[product.ID] = cloneProduct(product)
	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()

	s.products[product.ID] = cloneProduct(product)
	updated := cloneProduct(product)
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListVariants(_ context.Context) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := make([]domain.Variant, 0, len(s.variants))
	for _, v := range s.variants {
		variants = append(variants, v)
	}
	sortVariants(variants)
	return variants, nil
}

func (s *Store) ListVariantsByProduct(_ context.Context, productID string) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := make([]domain.Variant, 0, 4)
	for _, v := range s.variants {
		if v.ProductID == productID {
			variants = append(variants, v)
		}
	}
	sortVariants(variants)
	return variants, nil
}

func (s *Store) GetVariant(_ context.Context, id string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.variants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := v
	return &dup, nil
}

func (s *Store) CreateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.Name == "" || variant.ProductID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[variant.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if variant.ID == "" {
		variant.ID = xid.New("var")
	}
	if _, exists := s.variants[variant.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = now
	}
	variant.UpdatedAt = now

	s.variants[variant.ID] = variant
	created := variant
	return &created, nil
}

func (s *Store) UpdateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" || variant.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.variants[variant.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	variant.CreatedAt = existing.CreatedAt
	variant.UpdatedAt = time.Now().UTC()

	s.variants[variant.ID] = variant
	updated := variant
	return &updated, nil
}

func (s *Store) DeleteVariant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.variants[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.variants, id)
	return nil
}

func (s *Store) ListBundles(_ context.Context) ([]domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bundles := make([]domain.Bundle, 0, len(s.bundles))
	for _, b := range s.bundles {
		bundles = append(bundles, cloneBundle(b))
	}
	slices.SortFunc(bundles, func(a, b domain.Bundle) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return bundles, nil
}

func (s *Store) GetBundle(_ context.Context, id string) (*domain.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bundles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneBundle(b)
	return &dup, nil
}

func (s *Store) CreateBundle(_ context.Context, bundle domain.Bundle) (*domain.Bundle, error) {
	if bundle.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if bundle.ID == "" {
		bundle.ID = xid.New("bundle")
	}
	if _, exists := s.bundles[bundle.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = now
	}
	bundle.UpdatedAt = now

	s.bundles[bundle.ID] = cloneBundle(bundle)
	created := cloneBundle(bundle)
	return &created, nil
}

func (s *Store) UpdateBundle(_ context.Context, bundle domain.Bundle) (*domain.Bundle, error) {
	if bundle.ID == "" || bundle.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.bundles[bundle.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	bundle.CreatedAt = existing.CreatedAt
	bundle.UpdatedAt = time.Now().UTC()

	s.bundles[bundle.ID] = cloneBundle(bundle)
	updated := cloneBundle(bundle)
	return &updated, nil
}

func (s *Store) DeleteBundle(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bundles[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.bundles, id)
	return nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneSale(sale)
	return &dup, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = now

	s.sales[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sales[sale.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	sale.CreatedAt = existing.CreatedAt
	sale.UpdatedAt = time.Now().UTC()

	s.sales[sale.ID] = cloneSale(sale)
	updated := cloneSale(sale)
	return &updated, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.sales, id)
	return nil
}

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, cloneOrder(o))
	}
	sortOrders(orders)
	return orders, nil
}

func (s *Store) ListOrdersBySale(_ context.Context, saleID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.ordersBySale[saleID]
	orders := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			orders = append(orders, cloneOrder(o))
		}
	}
	sortOrders(orders)
	return orders, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneOrder(o)
	return &dup, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.SaleID == "" || len(order.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[order.SaleID]; !exists {
		return nil, store.ErrNotFound
	}
	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if _, exists := s.orders[order.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	s.orders[order.ID] = cloneOrder(order)
	s.ordersBySale[order.SaleID] = append(s.ordersBySale[order.SaleID], order.ID)
	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) UpdateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orders[order.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	order.SaleID = existing.SaleID
	order.CreatedAt = existing.CreatedAt

	s.orders[order.ID] = cloneOrder(order)
	updated := cloneOrder(order)
	return &updated, nil
}

func (s *Store) DeleteOrdersBySale(_ context.Context, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.ordersBySale[saleID] {
		delete(s.orders, id)
	}
	delete(s.ordersBySale, saleID)
	return nil
}

func (s *Store) PutAttachment(_ context.Context, att domain.Attachment) error {
	if att.Collection == "" || att.OwnerID == "" || att.Name == "" || len(att.Data) == 0 {
		return store.ErrInvalidInput
	}
	if att.UpdatedAt.IsZero() {
		att.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attachments[attachmentKey(att.Collection, att.OwnerID, att.Name)] = cloneAttachment(att)
	return nil
}

func (s *Store) GetAttachment(_ context.Context, collection string, ownerID string, name string) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	att, ok := s.attachments[attachmentKey(collection, ownerID, name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneAttachment(att)
	return &dup, nil
}

func (s *Store) ListAttachments(_ context.Context) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Attachment, 0, len(s.attachments))
	for _, att := range s.attachments {
		result = append(result, cloneAttachment(att))
	}
	slices.SortFunc(result, func(a, b domain.Attachment) int {
		ka := attachmentKey(a.Collection, a.OwnerID, a.Name)
		kb := attachmentKey(b.Collection, b.OwnerID, b.Name)
		return cmpString(ka, kb)
	})
	return result, nil
}

func (s *Store) DeleteAttachments(_ context.Context, collection string, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := collection + "/" + ownerID + "/"
	for key := range s.attachments {
		if strings.HasPrefix(key, prefix) {
			delete(s.attachments, key)
		}
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ReplaceAll(_ context.Context, snapshot domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make(map[string]domain.Product, len(snapshot.Products))
	for _, p := range snapshot.Products {
		if p.ID == "" {
			return store.ErrInvalidInput
		}
		products[p.ID] = cloneProduct(p)
	}
	variants := make(map[string]domain.Variant, len(snapshot.Variants))
	for _, v := range snapshot.Variants {
		if v.ID == "" {
			return store.ErrInvalidInput
		}
		variants[v.ID] = v
	}
	bundles := make(map[string]domain.Bundle, len(snapshot.Bundles))
	for _, b := range snapshot.Bundles {
		if b.ID == "" {
			return store.ErrInvalidInput
		}
		bundles[b.ID] = cloneBundle(b)
	}
	sales := make(map[string]domain.Sale, len(snapshot.Sales))
	for _, sale := range snapshot.Sales {
		if sale.ID == "" {
			return store.ErrInvalidInput
		}
		sales[sale.ID] = cloneSale(sale)
	}
	orders := make(map[string]domain.Order, len(snapshot.Orders))
	ordersBySale := make(map[string][]string)
	for _, o := range snapshot.Orders {
		if o.ID == "" || o.SaleID == "" {
			return store.ErrInvalidInput
		}
		orders[o.ID] = cloneOrder(o)
		ordersBySale[o.SaleID] = append(ordersBySale[o.SaleID], o.ID)
	}
	users := make(map[string]domain.UserAccount, len(snapshot.Users))
	for _, u := range snapshot.Users {
		if u.Username == "" {
			return store.ErrInvalidInput
		}
		users[u.Username] = u
	}

	s.products = products
	s.variants = variants
	s.bundles = bundles
	s.sales = sales
	s.orders = orders
	s.ordersBySale = ordersBySale
	s.usersByUsername = users
	s.attachments = make(map[string]domain.Attachment)
	return nil
}

func attachmentKey(collection string, ownerID string, name string) string {
	return collection + "/" + ownerID + "/" + name
}

func sortVariants(variants []domain.Variant) {
	slices.SortFunc(variants, func(a, b domain.Variant) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
}

func sortOrders(orders []domain.Order) {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	dup.VariantIDs = slices.Clone(src.VariantIDs)
	return dup
}

func cloneBundle(src domain.Bundle) domain.Bundle {
	dup := src
	dup.Entries = slices.Clone(src.Entries)
	return dup
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	dup.Entries = slices.Clone(src.Entries)
	dup.ProductsSold = slices.Clone(src.ProductsSold)
	return dup
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	dup.Lines = make([]domain.OrderLine, len(src.Lines))
	for i, line := range src.Lines {
		dup.Lines[i] = line
		dup.Lines[i].SubLines = slices.Clone(line.SubLines)
	}
	return dup
}

func cloneAttachment(src domain.Attachment) domain.Attachment {
	dup := src
	dup.Data = slices.Clone(src.Data)
	return dup
}
