package cart

import (
	"maps"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Action is a cart intent consumed by Reduce.
type Action interface {
	action()
}

// Add puts one unit of Product in the cart.
type Add struct{ Product Product }

// Remove deletes the line for ID.
type Remove struct{ ID int64 }

// SetQuantity replaces the quantity of the line for ID. Values below one are
// clamped to one.
type SetQuantity struct {
	ID       int64
	Quantity int
}

// Clear empties the cart.
type Clear struct{}

func (Add) action()         {}
func (Remove) action()      {}
func (SetQuantity) action() {}
func (Clear) action()       {}

// Reduce applies a to s and returns the resulting state. s is never mutated.
// Actions that change nothing (removing or updating an absent id, unknown
// action types) return s itself.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Add:
		return reduceAdd(s, a.Product)
	case Remove:
		i := s.index(a.ID)
		if i < 0 {
			return s
		}
		items := make([]LineItem, 0, len(s.Items)-1)
		items = append(items, s.Items[:i]...)
		items = append(items, s.Items[i+1:]...)
		return State{Items: items}
	case SetQuantity:
		i := s.index(a.ID)
		if i < 0 {
			return s
		}
		items := append([]LineItem(nil), s.Items...)
		items[i].Quantity = ClampQuantity(a.Quantity)
		return State{Items: items}
	case Clear:
		return Empty()
	default:
		return s
	}
}

func reduceAdd(s State, p Product) State {
	if i := s.index(p.ID); i >= 0 {
		// Merge: keep the captured price and display fields.
		items := append([]LineItem(nil), s.Items...)
		items[i].Quantity++
		return State{Items: items}
	}

	price := p.Price
	if price.IsNegative() {
		price = decimal.Zero
	}
	items := make([]LineItem, len(s.Items), len(s.Items)+1)
	copy(items, s.Items)
	items = append(items, LineItem{
		ID:         p.ID,
		Quantity:   1,
		UnitPrice:  price,
		Name:       p.Name,
		ImageURL:   p.ImageURL,
		Attributes: maps.Clone(p.Attributes),
	})
	return State{Items: items}
}

// ClampQuantity returns q, or 1 when q is below one.
func ClampQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}

// ParseQuantity converts user input to a quantity. Anything that is not a
// positive integer becomes 1.
func ParseQuantity(s string) int {
	q, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 1
	}
	return ClampQuantity(q)
}
