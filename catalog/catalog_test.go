package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/api/apitest"
	"github.com/ggoodman/storefront-go/catalog"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*apitest.Server, *catalog.Service) {
	t.Helper()
	srv := apitest.New(t)
	srv.AddCategory(apitest.Category{IDCategory: 1, Category: "Ropa"})
	srv.AddCategory(apitest.Category{IDCategory: 2, Category: "Juguetes"})
	srv.AddProduct(apitest.Product{IDProduct: 1, Name: "Body", Description: "Algodón", Price: "12,50", Stock: 3, CategoryID: 1, IsActive: 1})
	srv.AddProduct(apitest.Product{IDProduct: 2, Name: "Sonaja", Description: "Madera", Price: 8.0, Stock: 0, CategoryID: 2, IsActive: 1})
	srv.AddProduct(apitest.Product{IDProduct: 3, Name: "Gorro", Description: "Lana", Price: "abc", Stock: 1, CategoryID: 1, IsActive: 1})
	srv.AddProduct(apitest.Product{IDProduct: 4, Name: "Oculto", Price: 1.0, IsActive: 0})

	client, err := api.New(srv.APIURL())
	if err != nil {
		t.Fatalf("api.New failed: %v", err)
	}
	return srv, catalog.NewService(client)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		price string
		stock string
		want  catalog.Product
	}{
		{"number price", `9.99`, `4`, catalog.Product{ID: 1, Price: price("9.99"), Stock: 4}},
		{"comma string price", `"12,50"`, `"2"`, catalog.Product{ID: 1, Price: price("12.50"), Stock: 2}},
		{"garbage price", `"gratis"`, `null`, catalog.Product{ID: 1, Price: decimal.Zero}},
		{"null price", `null`, `"x"`, catalog.Product{ID: 1, Price: decimal.Zero}},
		{"object price", `{"q":1}`, `1.0`, catalog.Product{ID: 1, Price: decimal.Zero, Stock: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := catalog.Normalize(catalog.RawProduct{
				ID:    1,
				Price: json.RawMessage(tt.price),
				Stock: json.RawMessage(tt.stock),
			})
			if diff := cmp.Diff(tt.want, got, decimalEqual); diff != "" {
				t.Fatalf("Unexpected product (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServiceProducts(t *testing.T) {
	_, svc := newService(t)

	products, err := svc.Products(t.Context())
	if err != nil {
		t.Fatalf("Products failed: %v", err)
	}
	if want, got := 3, len(products); want != got {
		t.Fatalf("Unexpected count: want %d, got %d", want, got)
	}
	if !products[0].Price.Equal(price("12.5")) {
		t.Errorf("Unexpected comma price: %s", products[0].Price)
	}
	if !products[2].Price.IsZero() {
		t.Errorf("Expected unparsable price to be zero, got %s", products[2].Price)
	}

	cats, err := svc.Categories(t.Context())
	if err != nil {
		t.Fatalf("Categories failed: %v", err)
	}
	if want, got := "Juguetes", catalog.CategoryName(cats, 2); want != got {
		t.Fatalf("Unexpected category: want %q, got %q", want, got)
	}

	if _, err := svc.Product(t.Context(), 99); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	products := []catalog.Product{
		{ID: 1, Name: "Body", Description: "algodón", Price: price("12.5"), CategoryID: 1},
		{ID: 2, Name: "Sonaja", Description: "Madera natural", Price: price("8"), CategoryID: 2},
		{ID: 3, Name: "Gorro", Description: "lana", Price: price("8"), CategoryID: 1},
		{ID: 4, Name: "Manta", Description: "Algodón suave", Price: price("30"), CategoryID: 2},
	}
	ids := func(ps []catalog.Product) []int64 {
		out := []int64{}
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	tests := []struct {
		name  string
		query catalog.Query
		want  []int64
	}{
		{"everything", catalog.Query{}, []int64{1, 2, 3, 4}},
		{"search by description", catalog.Query{Search: "  ALGODÓN "}, []int64{1, 4}},
		{"search by name", catalog.Query{Search: "son"}, []int64{2}},
		{"category", catalog.Query{CategoryID: 1}, []int64{1, 3}},
		{"price asc is stable", catalog.Query{Sort: catalog.SortPriceAsc}, []int64{2, 3, 1, 4}},
		{"price desc is stable", catalog.Query{Sort: catalog.SortPriceDesc}, []int64{4, 1, 2, 3}},
		{"combined", catalog.Query{CategoryID: 2, Sort: catalog.SortPriceDesc}, []int64{4, 2}},
		{"no match", catalog.Query{Search: "zapato"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(catalog.Filter(products, tt.query))); diff != "" {
				t.Fatalf("Unexpected ids (-want +got):\n%s", diff)
			}
		})
	}

	if want, got := int64(1), products[0].ID; want != got {
		t.Fatal("Filter must not reorder its input")
	}
}

func TestParseSort(t *testing.T) {
	for in, want := range map[string]catalog.Sort{
		"precio_asc":   catalog.SortPriceAsc,
		"PRICE_DESC":   catalog.SortPriceDesc,
		"recomendados": catalog.SortRecommended,
		"":             catalog.SortRecommended,
	} {
		if got := catalog.ParseSort(in); got != want {
			t.Errorf("ParseSort(%q): want %q, got %q", in, want, got)
		}
	}
}

func TestFeatured(t *testing.T) {
	products := []catalog.Product{
		{ID: 1, Stock: 0},
		{ID: 2, Stock: 5},
		{ID: 3, Stock: 0},
		{ID: 4, Stock: 1},
		{ID: 5, Stock: 2},
		{ID: 6, Stock: 1},
	}

	got := catalog.Featured(products, catalog.FeaturedCount)
	var ids []int64
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]int64{2, 4, 5, 6}, ids); diff != "" {
		t.Fatalf("Unexpected featured (-want +got):\n%s", diff)
	}

	few := catalog.Featured(products[:3], catalog.FeaturedCount)
	ids = nil
	for _, p := range few {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]int64{2, 1, 3}, ids); diff != "" {
		t.Fatalf("Expected out-of-stock products to fill the rest (-want +got):\n%s", diff)
	}
}

func TestListingLoad(t *testing.T) {
	_, svc := newService(t)
	l := catalog.NewListing(svc)

	if err := l.Load(t.Context()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !l.Loaded() {
		t.Fatal("Expected listing to be loaded")
	}
	if want, got := 2, len(l.Categories()); want != got {
		t.Fatalf("Unexpected categories: want %d, got %d", want, got)
	}
	if want, got := 2, len(l.Products(catalog.Query{CategoryID: 1})); want != got {
		t.Fatalf("Unexpected filtered products: want %d, got %d", want, got)
	}
	if want, got := int64(1), l.Featured()[0].ID; want != got {
		t.Fatalf("Unexpected first featured: want %d, got %d", want, got)
	}
}

func TestListingDiscardsCancelledLoad(t *testing.T) {
	srv, svc := newService(t)
	l := catalog.NewListing(svc)
	if err := l.Load(t.Context()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	before := l.Products(catalog.Query{})

	srv.AddProduct(apitest.Product{IDProduct: 10, Name: "Nuevo", Price: 1.0, IsActive: 1})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if err := l.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if diff := cmp.Diff(before, l.Products(catalog.Query{}), decimalEqual); diff != "" {
		t.Fatalf("Cancelled load changed the listing (-want +got):\n%s", diff)
	}
	if l.Err() != "" {
		t.Fatalf("Cancellation must not be recorded, got %q", l.Err())
	}
}

func TestListingRecordsFailure(t *testing.T) {
	srv, svc := newService(t)
	srv.FailNext(catalog.CategoriesPath, http.StatusInternalServerError)

	l := catalog.NewListing(svc)
	if err := l.Load(t.Context()); err == nil {
		t.Fatal("Expected Load to fail")
	}
	if l.Err() == "" {
		t.Fatal("Expected the failure to be recorded")
	}
	if l.Loaded() {
		t.Fatal("Expected listing to remain unloaded")
	}
}

func TestCartProduct(t *testing.T) {
	p := catalog.Product{ID: 5, Name: "Body", Price: price("12.5"), ImageURL: "http://img/5.png", Stock: 2}
	cp := p.CartProduct()
	if cp.ID != 5 || cp.Name != "Body" || !cp.Price.Equal(p.Price) || cp.ImageURL != p.ImageURL {
		t.Fatalf("Unexpected cart product: %+v", cp)
	}
}
