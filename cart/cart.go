// Package cart implements the client-side shopping cart: an immutable state
// value, a pure reducer over it, and a Store that persists every new state to
// a storage.Storage before returning it to the caller.
//
// Totals are never stored. State.Totals recomputes them from the line items
// on each call so they cannot drift from the items they summarize.
package cart

import (
	"maps"

	"github.com/shopspring/decimal"
)

// LineItem is one product in the cart. Price and display fields are a
// snapshot captured when the product was first added.
type LineItem struct {
	ID         int64             `json:"id"`
	Quantity   int               `json:"qty"`
	UnitPrice  decimal.Decimal   `json:"price"`
	Name       string            `json:"name,omitempty"`
	ImageURL   string            `json:"image_url,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Total returns Quantity × UnitPrice.
func (li LineItem) Total() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

func (li LineItem) clone() LineItem {
	li.Attributes = maps.Clone(li.Attributes)
	return li
}

// Product is the snapshot handed to Add.
type Product struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	ImageURL   string
	Attributes map[string]string
}

// State is the cart contents in insertion order. Treat values as immutable:
// the reducer always builds a new Items slice when anything changes.
type State struct {
	Items []LineItem `json:"items"`
}

// Totals is derived from State and never persisted.
type Totals struct {
	ItemCount int
	Subtotal  decimal.Decimal
}

// Totals sums quantities and line totals.
func (s State) Totals() Totals {
	t := Totals{Subtotal: decimal.Zero}
	for _, it := range s.Items {
		t.ItemCount += it.Quantity
		t.Subtotal = t.Subtotal.Add(it.Total())
	}
	return t
}

// Len returns the number of distinct lines.
func (s State) Len() int { return len(s.Items) }

// Find returns the line for id.
func (s State) Find(id int64) (LineItem, bool) {
	if i := s.index(id); i >= 0 {
		return s.Items[i].clone(), true
	}
	return LineItem{}, false
}

func (s State) index(id int64) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy.
func (s State) Clone() State {
	if s.Items == nil {
		return State{Items: []LineItem{}}
	}
	items := make([]LineItem, len(s.Items))
	for i, it := range s.Items {
		items[i] = it.clone()
	}
	return State{Items: items}
}

// Empty returns a cart with no items.
func Empty() State { return State{Items: []LineItem{}} }

// sanitize enforces the line invariants on state restored from storage:
// quantities below one become one and repeated ids keep their first line.
func sanitize(s State) State {
	out := State{Items: make([]LineItem, 0, len(s.Items))}
	seen := make(map[int64]struct{}, len(s.Items))
	for _, it := range s.Items {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		if it.UnitPrice.IsNegative() {
			it.UnitPrice = decimal.Zero
		}
		out.Items = append(out.Items, it.clone())
	}
	return out
}
