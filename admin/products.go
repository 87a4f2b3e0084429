package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/catalog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const ProductsPath = "/admin/products"

// UncategorizedName labels products whose category is unknown.
const UncategorizedName = "Sin categoría"

// ProductRow is a product joined with its category name.
type ProductRow struct {
	catalog.Product
	CategoryName string `json:"category_name"`
	Active       bool   `json:"active"`
}

// ProductInput is the editable part of a product.
type ProductInput struct {
	Name        string
	Description string
	ImageURL    string
	Price       decimal.Decimal
	Stock       int
	CategoryID  int64
	Active      bool
}

// Validate checks the input. Errors wrap ErrInvalidProduct.
func (in ProductInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	case in.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	case in.Stock < 0:
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidProduct)
	}
	return nil
}

// Input returns the editable fields of row.
func (row ProductRow) Input() ProductInput {
	return ProductInput{
		Name:        row.Name,
		Description: row.Description,
		ImageURL:    row.ImageURL,
		Price:       row.Price,
		Stock:       row.Stock,
		CategoryID:  row.CategoryID,
		Active:      row.Active,
	}
}

type productBody struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CategoryID  int64           `json:"id_category_fk"`
	IsActive    int             `json:"is_active"`
}

func (in ProductInput) body() productBody {
	b := productBody{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Price:       in.Price,
		Stock:       in.Stock,
		CategoryID:  in.CategoryID,
	}
	if in.Active {
		b.IsActive = 1
	}
	return b
}

// Products manages the product catalog.
type Products struct {
	base
	catalog *catalog.Service
}

// NewProducts creates a Products service.
func NewProducts(client *api.Client, opts ...Option) *Products {
	b := newBase(client, opts)
	return &Products{base: b, catalog: catalog.NewService(client, catalog.WithLogger(b.log))}
}

// List returns every product, active or not, joined with category names.
func (p *Products) List(ctx context.Context) ([]ProductRow, error) {
	if err := p.check(); err != nil {
		return nil, err
	}

	var (
		raw        []catalog.RawProduct
		categories []catalog.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.client.GetJSON(gctx, ProductsPath, &raw); err != nil {
			return fmt.Errorf("admin: list products: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = p.catalog.Categories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Join(raw, categories), nil
}

// Join normalizes raw and attaches category names. A row without an
// is_active field is considered active.
func Join(raw []catalog.RawProduct, categories []catalog.Category) []ProductRow {
	out := make([]ProductRow, 0, len(raw))
	for _, r := range raw {
		row := ProductRow{
			Product:      catalog.Normalize(r),
			CategoryName: catalog.CategoryName(categories, r.CategoryID),
			Active:       r.IsActive == nil || *r.IsActive != 0,
		}
		if row.CategoryName == "" {
			row.CategoryName = UncategorizedName
		}
		out = append(out, row)
	}
	return out
}

// Create adds a product and returns the backend's copy when its response
// carries one.
func (p *Products) Create(ctx context.Context, in ProductInput) (*catalog.Product, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	req, err := api.NewJSONRequest(http.MethodPost, ProductsPath, in.body())
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("admin: create product: %w", err)
	}
	p.log.InfoContext(ctx, "admin.products.created", slog.String("name", in.Name))

	var raw catalog.RawProduct
	if len(resp.Body) == 0 || json.Unmarshal(resp.Body, &raw) != nil || raw.ID == 0 {
		return nil, nil
	}
	created := catalog.Normalize(raw)
	return &created, nil
}

// Update replaces the editable fields of product id.
func (p *Products) Update(ctx context.Context, id int64, in ProductInput) error {
	if err := p.check(); err != nil {
		return err
	}
	if err := in.Validate(); err != nil {
		return err
	}
	if err := p.client.PutJSON(ctx, productPath(id), in.body(), nil); err != nil {
		return fmt.Errorf("admin: update product %d: %w", id, err)
	}
	p.log.InfoContext(ctx, "admin.products.updated", slog.Int64("id", id))
	return nil
}

// Deactivate hides product id from the public catalog. The backend keeps
// the row.
func (p *Products) Deactivate(ctx context.Context, id int64) error {
	if err := p.check(); err != nil {
		return err
	}
	if err := p.client.Delete(ctx, productPath(id)); err != nil {
		return fmt.Errorf("admin: deactivate product %d: %w", id, err)
	}
	p.log.InfoContext(ctx, "admin.products.deactivated", slog.Int64("id", id))
	return nil
}

func productPath(id int64) string {
	return ProductsPath + "/" + strconv.FormatInt(id, 10)
}

// Search keeps rows whose name or category name contains term,
// case-insensitively.
func Search(rows []ProductRow, term string) []ProductRow {
	q := strings.ToLower(strings.TrimSpace(term))
	out := make([]ProductRow, 0, len(rows))
	for _, r := range rows {
		if q == "" ||
			strings.Contains(strings.ToLower(r.Name), q) ||
			strings.Contains(strings.ToLower(r.CategoryName), q) {
			out = append(out, r)
		}
	}
	return out
}
