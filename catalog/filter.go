package catalog

import (
	"slices"
	"strings"
)

// Sort orders a product listing.
type Sort string

const (
	SortRecommended Sort = "recommended"
	SortPriceAsc    Sort = "price_asc"
	SortPriceDesc   Sort = "price_desc"
)

// ParseSort maps user input to a Sort. Unknown values are SortRecommended.
func ParseSort(s string) Sort {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "price_asc", "precio_asc", "asc":
		return SortPriceAsc
	case "price_desc", "precio_desc", "desc":
		return SortPriceDesc
	}
	return SortRecommended
}

// Query filters a product listing. Zero values match everything.
type Query struct {
	Search     string
	CategoryID int64
	Sort       Sort
}

// Filter returns the products matching q in the requested order. Search
// matches name or description case-insensitively. The recommended order is
// the backend's order. The input slice is not modified.
func Filter(products []Product, q Query) []Product {
	term := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if term != "" &&
			!strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.Description), term) {
			continue
		}
		if q.CategoryID != 0 && p.CategoryID != q.CategoryID {
			continue
		}
		out = append(out, p)
	}

	switch q.Sort {
	case SortPriceAsc:
		slices.SortStableFunc(out, func(a, b Product) int { return a.Price.Cmp(b.Price) })
	case SortPriceDesc:
		slices.SortStableFunc(out, func(a, b Product) int { return b.Price.Cmp(a.Price) })
	}
	return out
}

// FeaturedCount is the number of products shown as featured.
const FeaturedCount = 4

// Featured returns up to n products, in-stock ones first, each group in
// catalog order.
func Featured(products []Product, n int) []Product {
	if n <= 0 {
		return nil
	}
	out := make([]Product, 0, min(n, len(products)))
	for _, inStock := range []bool{true, false} {
		for _, p := range products {
			if len(out) == n {
				return out
			}
			if p.InStock() == inStock {
				out = append(out, p)
			}
		}
	}
	return out
}

// CategoryName returns the name of category id, or "" if unknown.
func CategoryName(categories []Category, id int64) string {
	for _, c := range categories {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}
