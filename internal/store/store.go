package store

import (
	"context"
	"errors"

	"jualin/pos/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidInput        = errors.New("invalid input")
)

// Repository is the document CRUD boundary the engine depends on. It has no
// multi-document transaction primitive; callers that need atomicity across
// documents must validate everything before mutating anything.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListVariants(ctx context.Context) ([]domain.Variant, error)
	ListVariantsByProduct(ctx context.Context, productID string) ([]domain.Variant, error)
	GetVariant(ctx context.Context, id string) (*domain.Variant, error)
	CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	DeleteVariant(ctx context.Context, id string) error

	ListBundles(ctx context.Context) ([]domain.Bundle, error)
	GetBundle(ctx context.Context, id string) (*domain.Bundle, error)
	CreateBundle(ctx context.Context, bundle domain.Bundle) (*domain.Bundle, error)
	UpdateBundle(ctx context.Context, bundle domain.Bundle) (*domain.Bundle, error)
	DeleteBundle(ctx context.Context, id string) error

	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error

	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersBySale(ctx context.Context, saleID string) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	UpdateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	DeleteOrdersBySale(ctx context.Context, saleID string) error

	PutAttachment(ctx context.Context, att domain.Attachment) error
	GetAttachment(ctx context.Context, collection string, ownerID string, name string) (*domain.Attachment, error)
	ListAttachments(ctx context.Context) ([]domain.Attachment, error)
	DeleteAttachments(ctx context.Context, collection string, ownerID string) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	// ReplaceAll swaps every collection with the snapshot contents. Used by
	// backup import; not reachable from any order/catalog path.
	ReplaceAll(ctx context.Context, snapshot domain.Snapshot) error
}
