package domain

import "time"

// ItemKind distinguishes the three sellable document types an item
// reference can point at.
type ItemKind string

const (
	KindProduct ItemKind = "product"
	KindVariant ItemKind = "variant"
	KindBundle  ItemKind = "bundle"
)

// ItemRef identifies a catalog document. Bundles may only reference
// products and variants; order lines may reference all three kinds.
type ItemRef struct {
	Kind ItemKind `json:"kind"`
	ID   string   `json:"id"`
}

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	Stock      int       `json:"stock"`
	Active     bool      `json:"active"`
	VariantIDs []string  `json:"variant_ids,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasVariants reports whether the product sells through variants. Such a
// product keeps price "0" and stock 0; its variants are the sellable units.
func (p Product) HasVariants() bool {
	return len(p.VariantIDs) > 0
}

type Variant struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Stock     int       `json:"stock"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BundleEntry is one fixed component of a bundle. Name, price and active
// are cached from the referenced document and re-derived on every
// stock-affecting mutation of that document.
type BundleEntry struct {
	Item   ItemRef `json:"item"`
	Qty    int     `json:"qty"`
	Name   string  `json:"name"`
	Price  string  `json:"price"`
	Active bool    `json:"active"`
}

type Bundle struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Price     string        `json:"price"`
	AutoPrice bool          `json:"auto_price"`
	Active    bool          `json:"active"`
	Entries   []BundleEntry `json:"entries"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SaleEntry is one sellable offered on a sale's tab.
type SaleEntry struct {
	Item ItemRef `json:"item"`
	Qty  int     `json:"qty"`
}

// SoldItem is one line of a sale's rolling (and, at settlement, recomputed)
// sold-items summary.
type SoldItem struct {
	Item  ItemRef `json:"item"`
	Name  string  `json:"name"`
	Qty   int     `json:"qty"`
	Total string  `json:"total"`
}

type Sale struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Entries        []SaleEntry `json:"entries"`
	ProductsSold   []SoldItem  `json:"products_sold"`
	Revenue        string      `json:"revenue"`
	InitialBalance string      `json:"initial_balance,omitempty"`
	FinalBalance   string      `json:"final_balance,omitempty"`
	Finished       bool        `json:"finished"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// HasBalance reports whether the sale tracks a cash-drawer float.
func (s Sale) HasBalance() bool {
	return s.InitialBalance != ""
}

// OrderLine is one requested line of an order. A bundle line carries the
// expanded component lines in SubLines; plain lines leave it empty.
type OrderLine struct {
	Item      ItemRef     `json:"item"`
	Name      string      `json:"name"`
	Qty       int         `json:"qty"`
	UnitPrice string      `json:"unit_price"`
	Total     string      `json:"total"`
	SubLines  []OrderLine `json:"sub_lines,omitempty"`
}

// Order is an immutable settlement record: once created it only ever
// changes by having its canceled flag set.
type Order struct {
	ID        string      `json:"id"`
	SaleID    string      `json:"sale_id"`
	Name      string      `json:"name"`
	Lines     []OrderLine `json:"lines"`
	Total     string      `json:"total"`
	Tendered  string      `json:"tendered"`
	Change    string      `json:"change"`
	Canceled  bool        `json:"canceled"`
	CreatedAt time.Time   `json:"created_at"`
}

// Attachment is a binary blob hanging off a catalog document, typically a
// product image.
type Attachment struct {
	Collection string    `json:"collection"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	MIMEType   string    `json:"mime_type"`
	Data       []byte    `json:"data"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserAccount is an internal persistence model for operator credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

type ProductUpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Price  *string `json:"price,omitempty"`
	Stock  *int    `json:"stock,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type VariantCreateRequest struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Stock     int    `json:"stock"`
}

type VariantUpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Price  *string `json:"price,omitempty"`
	Stock  *int    `json:"stock,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type BundleEntryRequest struct {
	Item ItemRef `json:"item"`
	Qty  int     `json:"qty"`
}

type BundleCreateRequest struct {
	Name string `json:"name"`
	// Price is ignored when AutoPrice is set; the bundle then prices itself
	// as the sum of entry price x qty.
	Price     string               `json:"price,omitempty"`
	AutoPrice bool                 `json:"auto_price"`
	Entries   []BundleEntryRequest `json:"entries"`
}

type BundleUpdateRequest struct {
	Name      *string               `json:"name,omitempty"`
	Price     *string               `json:"price,omitempty"`
	AutoPrice *bool                 `json:"auto_price,omitempty"`
	Entries   *[]BundleEntryRequest `json:"entries,omitempty"`
}

type SaleCreateRequest struct {
	Name           string      `json:"name"`
	Entries        []SaleEntry `json:"entries"`
	InitialBalance string      `json:"initial_balance,omitempty"`
}

type SaleUpdateRequest struct {
	Name    *string      `json:"name,omitempty"`
	Entries *[]SaleEntry `json:"entries,omitempty"`
}

// OrderLineRequest is a requested (non-expanded) order line.
type OrderLineRequest struct {
	Item ItemRef `json:"item"`
	Qty  int     `json:"qty"`
}

type OrderAddRequest struct {
	Lines    []OrderLineRequest `json:"lines"`
	Tendered string             `json:"tendered"`
}

// CatalogView is the combined catalog listing served to the UI shell,
// cache-friendly as a single document.
type CatalogView struct {
	Products []Product `json:"products"`
	Variants []Variant `json:"variants"`
	Bundles  []Bundle  `json:"bundles"`
}

// Snapshot is the backup wire format: every collection keyed by name, plus
// attachment blobs.
type Snapshot struct {
	Version     int              `json:"version"`
	ExportedAt  time.Time        `json:"exported_at"`
	Products    []Product        `json:"products"`
	Variants    []Variant        `json:"variants"`
	Bundles     []Bundle         `json:"bundles"`
	Sales       []Sale           `json:"sales"`
	Orders      []Order          `json:"orders"`
	Users       []UserAccount    `json:"users"`
	Attachments []AttachmentDump `json:"attachments"`
}

// AttachmentDump is an Attachment with its payload base64-armored for the
// snapshot file.
type AttachmentDump struct {
	Collection string    `json:"collection"`
	OwnerID    string    `json:"owner_id"`
	Name       string    `json:"name"`
	MIMEType   string    `json:"mime_type"`
	Data       string    `json:"data"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	CollectionProducts = "products"
	CollectionVariants = "variants"
	CollectionBundles  = "bundles"
	CollectionSales    = "sales"
	CollectionOrders   = "orders"
	CollectionUsers    = "users"
)
