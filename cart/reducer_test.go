package cart

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAddMergesInsteadOfDuplicating(t *testing.T) {
	s := Empty()
	p := Product{ID: 1, Name: "Taza", Price: price("10")}

	s = Reduce(s, Add{Product: p})
	s = Reduce(s, Add{Product: p})

	want := State{Items: []LineItem{{ID: 1, Quantity: 2, UnitPrice: price("10"), Name: "Taza"}}}
	if diff := cmp.Diff(want, s, decimalEqual); diff != "" {
		t.Fatalf("unexpected state (-want +got):\n%s", diff)
	}
	if got := s.Totals().Subtotal; !got.Equal(price("20")) {
		t.Fatalf("subtotal = %s, want 20", got)
	}
}

func TestAddKeepsCapturedPriceAndFields(t *testing.T) {
	s := Reduce(Empty(), Add{Product: Product{ID: 7, Name: "Olla", Price: price("55.50"), ImageURL: "a.png"}})
	s = Reduce(s, Add{Product: Product{ID: 7, Name: "Olla grande", Price: price("99"), ImageURL: "b.png"}})

	li, ok := s.Find(7)
	if !ok {
		t.Fatal("line 7 missing")
	}
	if li.Quantity != 2 || !li.UnitPrice.Equal(price("55.50")) || li.Name != "Olla" || li.ImageURL != "a.png" {
		t.Fatalf("captured snapshot changed: %+v", li)
	}
}

func TestAddAppendsInInsertionOrder(t *testing.T) {
	s := Empty()
	for _, id := range []int64{3, 1, 2} {
		s = Reduce(s, Add{Product: Product{ID: id, Price: price("1")}})
	}
	var ids []int64
	for _, it := range s.Items {
		ids = append(ids, it.ID)
	}
	if diff := cmp.Diff([]int64{3, 1, 2}, ids); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	before := Reduce(Empty(), Add{Product: Product{ID: 1, Price: price("10")}})
	snapshot := before.Clone()

	_ = Reduce(before, Add{Product: Product{ID: 1, Price: price("10")}})
	_ = Reduce(before, SetQuantity{ID: 1, Quantity: 9})
	_ = Reduce(before, Add{Product: Product{ID: 2, Price: price("3")}})
	_ = Reduce(before, Remove{ID: 1})
	_ = Reduce(before, Clear{})

	if diff := cmp.Diff(snapshot, before, decimalEqual); diff != "" {
		t.Fatalf("input state mutated (-want +got):\n%s", diff)
	}
}

func TestRemoveMissingIsNoop(t *testing.T) {
	s := Reduce(Empty(), Add{Product: Product{ID: 1, Price: price("10")}})
	got := Reduce(s, Remove{ID: 42})
	if diff := cmp.Diff(s, got, decimalEqual); diff != "" {
		t.Fatalf("state changed (-want +got):\n%s", diff)
	}
}

func TestRemoveDeletesLine(t *testing.T) {
	s := Empty()
	s = Reduce(s, Add{Product: Product{ID: 1, Price: price("1")}})
	s = Reduce(s, Add{Product: Product{ID: 2, Price: price("2")}})
	s = Reduce(s, Remove{ID: 1})
	if s.Len() != 1 || s.Items[0].ID != 2 {
		t.Fatalf("unexpected items after remove: %+v", s.Items)
	}
}

func TestSetQuantityFloor(t *testing.T) {
	base := Reduce(Empty(), Add{Product: Product{ID: 1, Price: price("10")}})
	for _, q := range []int{0, -1, -5, -1 << 31} {
		s := Reduce(base, SetQuantity{ID: 1, Quantity: q})
		if li, _ := s.Find(1); li.Quantity != 1 {
			t.Fatalf("SetQuantity(%d) -> %d, want 1", q, li.Quantity)
		}
	}
	s := Reduce(base, SetQuantity{ID: 1, Quantity: 4})
	if li, _ := s.Find(1); li.Quantity != 4 {
		t.Fatalf("SetQuantity(4) -> %d", li.Quantity)
	}
}

func TestSetQuantityMissingIsNoop(t *testing.T) {
	base := Reduce(Empty(), Add{Product: Product{ID: 1, Price: price("10")}})
	got := Reduce(base, SetQuantity{ID: 2, Quantity: 5})
	if diff := cmp.Diff(base, got, decimalEqual); diff != "" {
		t.Fatalf("state changed (-want +got):\n%s", diff)
	}
}

func TestClear(t *testing.T) {
	s := Reduce(Empty(), Add{Product: Product{ID: 1, Price: price("10")}})
	s = Reduce(s, Clear{})
	if s.Len() != 0 || s.Items == nil {
		t.Fatalf("expected empty non-nil items, got %#v", s.Items)
	}
}

func TestTotalsRecomputedAfterEveryMutation(t *testing.T) {
	s := Empty()
	s = Reduce(s, Add{Product: Product{ID: 1, Price: price("10")}})
	s = Reduce(s, Add{Product: Product{ID: 2, Price: price("2.25")}})
	s = Reduce(s, SetQuantity{ID: 2, Quantity: 4})

	check := func(wantCount int, wantSub string) {
		t.Helper()
		tot := s.Totals()
		var count int
		sub := decimal.Zero
		for _, it := range s.Items {
			count += it.Quantity
			sub = sub.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		if tot.ItemCount != count || tot.ItemCount != wantCount {
			t.Fatalf("item count = %d, want %d", tot.ItemCount, wantCount)
		}
		if !tot.Subtotal.Equal(sub) || !tot.Subtotal.Equal(price(wantSub)) {
			t.Fatalf("subtotal = %s, want %s", tot.Subtotal, wantSub)
		}
	}

	check(5, "19")
	s = Reduce(s, Remove{ID: 1})
	check(4, "9")
	s = Reduce(s, Clear{})
	check(0, "0")
}

func TestNegativePriceClampedToZero(t *testing.T) {
	s := Reduce(Empty(), Add{Product: Product{ID: 1, Price: price("-3")}})
	if li, _ := s.Find(1); !li.UnitPrice.IsZero() {
		t.Fatalf("expected zero price, got %s", li.UnitPrice)
	}
}

func TestParseQuantity(t *testing.T) {
	cases := map[string]int{
		"3":    3,
		" 12 ": 12,
		"0":    1,
		"-5":   1,
		"abc":  1,
		"":     1,
		"2.5":  1,
	}
	for in, want := range cases {
		if got := ParseQuantity(in); got != want {
			t.Errorf("ParseQuantity(%q) = %d, want %d", in, got, want)
		}
	}
}
