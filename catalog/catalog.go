// Package catalog reads the public product catalog and provides the
// listing, filtering and featured-selection helpers the storefront views
// use.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/cart"
	"github.com/ggoodman/storefront-go/internal/logctx"
	"github.com/shopspring/decimal"
)

const (
	ProductsPath   = "/products"
	CategoriesPath = "/categories"
)

// Product is a normalized catalog entry.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
	Stock       int             `json:"stock"`
	CategoryID  int64           `json:"category_id"`
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool { return p.Stock > 0 }

// CartProduct is the snapshot captured when p is added to a cart.
func (p Product) CartProduct() cart.Product {
	return cart.Product{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		ImageURL: p.ImageURL,
	}
}

// RawProduct is a product row as the backend sends it. Price and stock may
// arrive as numbers or strings.
type RawProduct struct {
	ID          int64           `json:"id_product"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       json.RawMessage `json:"price"`
	ImageURL    string          `json:"image_url"`
	Stock       json.RawMessage `json:"stock"`
	CategoryID  int64           `json:"id_category_fk"`
	IsActive    *int            `json:"is_active,omitempty"`
}

// Category is a product category.
type Category struct {
	ID   int64  `json:"id_category"`
	Name string `json:"category"`
}

// Normalize converts a backend row. An unparsable price becomes zero and an
// unparsable stock becomes zero.
func Normalize(raw RawProduct) Product {
	return Product{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Price:       ParsePrice(raw.Price),
		ImageURL:    raw.ImageURL,
		Stock:       parseStock(raw.Stock),
		CategoryID:  raw.CategoryID,
	}
}

// ParsePrice reads a JSON number or string. Strings may use a comma as the
// decimal separator ("12,50"). Anything else is zero.
func ParsePrice(raw json.RawMessage) decimal.Decimal {
	s := unquote(raw)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseStock(raw json.RawMessage) int {
	s := unquote(raw)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// unquote returns the text of a JSON scalar: the contents of a string, the
// literal of a number, or "" for null, objects and arrays.
func unquote(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{', '[', 't', 'f':
		return ""
	}
	return string(raw)
}

// Service reads the catalog through the shared API client.
type Service struct {
	client *api.Client
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a catalog Service.
func NewService(client *api.Client, opts ...Option) *Service {
	s := &Service{client: client}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logctx.Wrap(s.log)
	return s
}

// RawProducts returns the product rows without normalizing them.
func (s *Service) RawProducts(ctx context.Context) ([]RawProduct, error) {
	var raw []RawProduct
	if err := s.client.GetJSON(ctx, ProductsPath, &raw); err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	return raw, nil
}

// Products lists and normalizes the catalog.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	raw, err := s.RawProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(raw))
	for _, r := range raw {
		out = append(out, Normalize(r))
	}
	s.log.DebugContext(ctx, "catalog.products", slog.Int("count", len(out)))
	return out, nil
}

// Product returns the product with id, or api.ErrNotFound.
func (s *Service) Product(ctx context.Context, id int64) (Product, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("catalog: product %d: %w", id, api.ErrNotFound)
}

// Categories lists the product categories.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := s.client.GetJSON(ctx, CategoriesPath, &out); err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	return out, nil
}
