// Package postgres persists the document collections in PostgreSQL. Nested
// documents (bundle entries, order lines, sold-item summaries) are stored as
// jsonb; monetary amounts are stored as their decimal-string form.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"jualin/pos/internal/domain"
	"jualin/pos/internal/store"
	"jualin/pos/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema creates the collection tables when they do not exist yet. The
// engine owns its database, so idempotent bootstrap beats a migration tool.
func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price TEXT NOT NULL,
			stock INT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true,
			variant_ids JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS variants (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			name TEXT NOT NULL,
			price TEXT NOT NULL,
			stock INT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_variants_product ON variants (product_id)`,
		`CREATE TABLE IF NOT EXISTS bundles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			price TEXT NOT NULL,
			auto_price BOOLEAN NOT NULL DEFAULT false,
			active BOOLEAN NOT NULL DEFAULT true,
			entries JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			entries JSONB NOT NULL DEFAULT '[]',
			products_sold JSONB NOT NULL DEFAULT '[]',
			revenue TEXT NOT NULL DEFAULT '0',
			initial_balance TEXT,
			final_balance TEXT,
			finished BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			sale_id TEXT NOT NULL,
			name TEXT NOT NULL,
			lines JSONB NOT NULL DEFAULT '[]',
			total TEXT NOT NULL,
			tendered TEXT NOT NULL,
			change TEXT NOT NULL,
			canceled BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_sale ON orders (sale_id)`,
		`CREATE TABLE IF NOT EXISTS attachments (
			collection TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			mime_type TEXT NOT NULL DEFAULT '',
			data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (collection, owner_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS app_users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, stock, active, variant_ids, created_at, updated_at
		FROM products
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock, active, variant_ids, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	variantIDs, err := jsonStringSlice(product.VariantIDs)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, active, variant_ids, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Price, product.Stock, product.Active, variantIDs, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	product.UpdatedAt = time.Now().UTC()

	variantIDs, err := jsonStringSlice(product.VariantIDs)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, price = $3, stock = $4, active = $5, variant_ids = $6, updated_at = $7
		WHERE id = $1
	`, product.ID, product.Name, product.Price, product.Stock, product.Active, variantIDs, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	return s.queryVariants(ctx, `
		SELECT id, product_id, name, price, stock, active, created_at, updated_at
		FROM variants
		ORDER BY name, id
	`)
}

func (s *Store) ListVariantsByProduct(ctx context.Context, productID string) ([]domain.Variant, error) {
	return s.queryVariants(ctx, `
		SELECT id, product_id, name, price, stock, active, created_at, updated_at
		FROM variants
		WHERE product_id = $1
		ORDER BY name, id
	`, productID)
}

func (s *Store) queryVariants(ctx context.Context, query string, args ...any) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0, 16)
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.Stock, &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		v.CreatedAt = v.CreatedAt.UTC()
		v.UpdatedAt = v.UpdatedAt.UTC()
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return variants, nil
}

func (s *Store) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	var v domain.Variant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, name, price, stock, active, created_at, updated_at
		FROM variants
		WHERE id = $1
	`, id).Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.Stock, &v.Active, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return &v, nil
}

func (s *Store) CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.Name == "" || variant.ProductID == "" {
		return nil, store.ErrInvalidInput
	}
	if variant.ID == "" {
		variant.ID = xid.New("var")
	}
	now := time.Now().UTC()
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = now
	}
	variant.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO variants (id, product_id, name, price, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, variant.ID, variant.ProductID, variant.Name, variant.Price, variant.Stock, variant.Active, variant.CreatedAt, variant.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := variant
	return &created, nil
}

func (s *Store) UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" || variant.Name == "" {
		return nil, store.ErrInvalidInput
	}
	variant.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE variants
		SET name = $2, price = $3, stock = $4, active = $5, updated_at = $6
		WHERE id = $1
	`, variant.ID, variant.Name, variant.Price, variant.Stock, variant.Active, variant.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := variant
	return &updated, nil
}

func (s *Store) DeleteVariant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM variants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListBundles(ctx context.Context) ([]domain.Bundle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, auto_price, active, entries, created_at, updated_at
		FROM bundles
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bundles := make([]domain.Bundle, 0, 16)
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bundles, nil
}

func (s *Store) GetBundle(ctx context.Context, id string) (*domain.Bundle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, auto_price, active, entries, created_at, updated_at
		FROM bundles
		WHERE id = $1
	`, id)
	b, err := scanBundle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateBundle(ctx context.Context, bundle domain.Bundle) (*domain.Bundle, error) {
	if bundle.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if bundle.ID == "" {
		bundle.ID = xid.New("bundle")
	}
	now := time.Now().UTC()
	if bundle.CreatedAt.IsZero() {
		bundle.CreatedAt = now
	}
	bundle.UpdatedAt = now

	entries, err := json.Marshal(bundle.Entries)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bundles (id, name, price, auto_price, active, entries, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, bundle.ID, bundle.Name, bundle.Price, bundle.AutoPrice, bundle.Active, entries, bundle.CreatedAt, bundle.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := bundle
	return &created, nil
}

func (s *Store) UpdateBundle(ctx context.Context, bundle domain.Bundle) (*domain.Bundle, error) {
	if bundle.ID == "" || bundle.Name == "" {
		return nil, store.ErrInvalidInput
	}
	bundle.UpdatedAt = time.Now().UTC()

	entries, err := json.Marshal(bundle.Entries)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE bundles
		SET name = $2, price = $3, auto_price = $4, active = $5, entries = $6, updated_at = $7
		WHERE id = $1
	`, bundle.ID, bundle.Name, bundle.Price, bundle.AutoPrice, bundle.Active, entries, bundle.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := bundle
	return &updated, nil
}

func (s *Store) DeleteBundle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bundles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, entries, products_sold, revenue, initial_balance, final_balance, finished, created_at, updated_at
		FROM sales
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 16)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entries, products_sold, revenue, initial_balance, final_balance, finished, created_at, updated_at
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = now

	entries, productsSold, err := saleJSON(sale)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, name, entries, products_sold, revenue, initial_balance, final_balance, finished, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sale.ID, sale.Name, entries, productsSold, sale.Revenue, nullIfEmpty(sale.InitialBalance), nullIfEmpty(sale.FinalBalance), sale.Finished, sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		return nil, store.ErrInvalidInput
	}
	sale.UpdatedAt = time.Now().UTC()

	entries, productsSold, err := saleJSON(sale)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET name = $2, entries = $3, products_sold = $4, revenue = $5,
			initial_balance = $6, final_balance = $7, finished = $8, updated_at = $9
		WHERE id = $1
	`, sale.ID, sale.Name, entries, productsSold, sale.Revenue, nullIfEmpty(sale.InitialBalance), nullIfEmpty(sale.FinalBalance), sale.Finished, sale.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := sale
	return &updated, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.queryOrders(ctx, `
		SELECT id, sale_id, name, lines, total, tendered, change, canceled, created_at
		FROM orders
		ORDER BY created_at ASC, id
	`)
}

func (s *Store) ListOrdersBySale(ctx context.Context, saleID string) ([]domain.Order, error) {
	return s.queryOrders(ctx, `
		SELECT id, sale_id, name, lines, total, tendered, change, canceled, created_at
		FROM orders
		WHERE sale_id = $1
		ORDER BY created_at ASC, id
	`, saleID)
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 16)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, sale_id, name, lines, total, tendered, change, canceled, created_at
		FROM orders
		WHERE id = $1
	`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.SaleID == "" || len(order.Lines) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("order")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	lines, err := json.Marshal(order.Lines)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, sale_id, name, lines, total, tendered, change, canceled, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, order.ID, order.SaleID, order.Name, lines, order.Total, order.Tendered, order.Change, order.Canceled, order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := order
	return &created, nil
}

func (s *Store) UpdateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.ID == "" {
		return nil, store.ErrInvalidInput
	}

	lines, err := json.Marshal(order.Lines)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET name = $2, lines = $3, total = $4, tendered = $5, change = $6, canceled = $7
		WHERE id = $1
	`, order.ID, order.Name, lines, order.Total, order.Tendered, order.Change, order.Canceled)
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	updated := order
	return &updated, nil
}

func (s *Store) DeleteOrdersBySale(ctx context.Context, saleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE sale_id = $1`, saleID)
	return err
}

func (s *Store) PutAttachment(ctx context.Context, att domain.Attachment) error {
	if att.Collection == "" || att.OwnerID == "" || att.Name == "" || len(att.Data) == 0 {
		return store.ErrInvalidInput
	}
	if att.UpdatedAt.IsZero() {
		att.UpdatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (collection, owner_id, name, mime_type, data, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (collection, owner_id, name)
		DO UPDATE SET mime_type = EXCLUDED.mime_type, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, att.Collection, att.OwnerID, att.Name, att.MIMEType, att.Data, att.UpdatedAt)
	return err
}

func (s *Store) GetAttachment(ctx context.Context, collection string, ownerID string, name string) (*domain.Attachment, error) {
	var att domain.Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT collection, owner_id, name, mime_type, data, updated_at
		FROM attachments
		WHERE collection = $1 AND owner_id = $2 AND name = $3
	`, collection, ownerID, name).Scan(&att.Collection, &att.OwnerID, &att.Name, &att.MIMEType, &att.Data, &att.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	att.UpdatedAt = att.UpdatedAt.UTC()
	return &att, nil
}

func (s *Store) ListAttachments(ctx context.Context) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, owner_id, name, mime_type, data, updated_at
		FROM attachments
		ORDER BY collection, owner_id, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Attachment, 0, 16)
	for rows.Next() {
		var att domain.Attachment
		if err := rows.Scan(&att.Collection, &att.OwnerID, &att.Name, &att.MIMEType, &att.Data, &att.UpdatedAt); err != nil {
			return nil, err
		}
		att.UpdatedAt = att.UpdatedAt.UTC()
		result = append(result, att)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteAttachments(ctx context.Context, collection string, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM attachments
		WHERE collection = $1 AND owner_id = $2
	`, collection, ownerID)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ReplaceAll swaps every collection with the snapshot contents in a single
// serializable transaction so a failed import leaves the database untouched.
func (s *Store) ReplaceAll(ctx context.Context, snapshot domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"orders", "sales", "bundles", "variants", "products", "attachments", "app_users"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}

	for _, p := range snapshot.Products {
		if p.ID == "" {
			return store.ErrInvalidInput
		}
		variantIDs, err := jsonStringSlice(p.VariantIDs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO products (id, name, price, stock, active, variant_ids, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, p.ID, p.Name, p.Price, p.Stock, p.Active, variantIDs, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return err
		}
	}
	for _, v := range snapshot.Variants {
		if v.ID == "" {
			return store.ErrInvalidInput
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO variants (id, product_id, name, price, stock, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, v.ID, v.ProductID, v.Name, v.Price, v.Stock, v.Active, v.CreatedAt, v.UpdatedAt)
		if err != nil {
			return err
		}
	}
	for _, b := range snapshot.Bundles {
		if b.ID == "" {
			return store.ErrInvalidInput
		}
		entries, err := json.Marshal(b.Entries)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bundles (id, name, price, auto_price, active, entries, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, b.ID, b.Name, b.Price, b.AutoPrice, b.Active, entries, b.CreatedAt, b.UpdatedAt)
		if err != nil {
			return err
		}
	}
	for _, sale := range snapshot.Sales {
		if sale.ID == "" {
			return store.ErrInvalidInput
		}
		entries, productsSold, err := saleJSON(sale)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales (id, name, entries, products_sold, revenue, initial_balance, final_balance, finished, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, sale.ID, sale.Name, entries, productsSold, sale.Revenue, nullIfEmpty(sale.InitialBalance), nullIfEmpty(sale.FinalBalance), sale.Finished, sale.CreatedAt, sale.UpdatedAt)
		if err != nil {
			return err
		}
	}
	for _, o := range snapshot.Orders {
		if o.ID == "" || o.SaleID == "" {
			return store.ErrInvalidInput
		}
		lines, err := json.Marshal(o.Lines)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (id, sale_id, name, lines, total, tendered, change, canceled, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, o.ID, o.SaleID, o.Name, lines, o.Total, o.Tendered, o.Change, o.Canceled, o.CreatedAt)
		if err != nil {
			return err
		}
	}
	for _, u := range snapshot.Users {
		if u.Username == "" {
			return store.ErrInvalidInput
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO app_users (username, password, role, active, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,now())
		`, u.Username, u.Password, u.Role, u.Active, u.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var variantIDs []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Active, &variantIDs, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return p, err
	}
	if len(variantIDs) > 0 {
		if err := json.Unmarshal(variantIDs, &p.VariantIDs); err != nil {
			return p, err
		}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func scanBundle(row rowScanner) (domain.Bundle, error) {
	var b domain.Bundle
	var entries []byte
	if err := row.Scan(&b.ID, &b.Name, &b.Price, &b.AutoPrice, &b.Active, &entries, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return b, err
	}
	if len(entries) > 0 {
		if err := json.Unmarshal(entries, &b.Entries); err != nil {
			return b, err
		}
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var entries []byte
	var productsSold []byte
	var initialBalance sql.NullString
	var finalBalance sql.NullString
	if err := row.Scan(&sale.ID, &sale.Name, &entries, &productsSold, &sale.Revenue, &initialBalance, &finalBalance, &sale.Finished, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
		return sale, err
	}
	if len(entries) > 0 {
		if err := json.Unmarshal(entries, &sale.Entries); err != nil {
			return sale, err
		}
	}
	if len(productsSold) > 0 {
		if err := json.Unmarshal(productsSold, &sale.ProductsSold); err != nil {
			return sale, err
		}
	}
	if initialBalance.Valid {
		sale.InitialBalance = initialBalance.String
	}
	if finalBalance.Valid {
		sale.FinalBalance = finalBalance.String
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return sale, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var lines []byte
	if err := row.Scan(&o.ID, &o.SaleID, &o.Name, &lines, &o.Total, &o.Tendered, &o.Change, &o.Canceled, &o.CreatedAt); err != nil {
		return o, err
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &o.Lines); err != nil {
			return o, err
		}
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func saleJSON(sale domain.Sale) ([]byte, []byte, error) {
	entries, err := json.Marshal(sale.Entries)
	if err != nil {
		return nil, nil, err
	}
	productsSold, err := json.Marshal(sale.ProductsSold)
	if err != nil {
		return nil, nil, err
	}
	return entries, productsSold, nil
}

func jsonStringSlice(vals []string) ([]byte, error) {
	if vals == nil {
		vals = []string{}
	}
	return json.Marshal(vals)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
