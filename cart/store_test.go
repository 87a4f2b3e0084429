package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/ggoodman/storefront-go/storage"
	"github.com/ggoodman/storefront-go/storage/memory"
	"github.com/google/go-cmp/cmp"
)

func newMemory(t *testing.T) *memory.Storage {
	t.Helper()
	s, err := memory.New(16)
	if err != nil {
		t.Fatalf("memory.New() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// failingStorage rejects every write.
type failingStorage struct {
	storage.Storage
}

func (failingStorage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	return errors.New("disk full")
}

func TestStoreWritesThroughOnEveryMutation(t *testing.T) {
	ctx := context.Background()
	st := newMemory(t)
	s := Open(ctx, st)

	s.Add(ctx, Product{ID: 1, Name: "Taza", Price: price("10")})

	item, err := st.Get(ctx, StorageKey)
	if err != nil || item == nil {
		t.Fatalf("expected persisted cart, got %v, %v", item, err)
	}
	if got := Decode(item.Data); got.Len() != 1 || got.Items[0].Quantity != 1 {
		t.Fatalf("persisted state mismatch: %+v", got)
	}

	s.SetQuantity(ctx, 1, 3)
	item, _ = st.Get(ctx, StorageKey)
	if got := Decode(item.Data); got.Items[0].Quantity != 3 {
		t.Fatalf("expected persisted qty 3, got %d", got.Items[0].Quantity)
	}

	s.Clear(ctx)
	item, _ = st.Get(ctx, StorageKey)
	if string(item.Data) != `{"items":[]}` {
		t.Fatalf("expected empty document, got %s", string(item.Data))
	}
}

func TestStorePersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newMemory(t)

	first := Open(ctx, st)
	first.Add(ctx, Product{ID: 1, Name: "Taza", Price: price("10"), Attributes: map[string]string{"color": "verde"}})
	first.Add(ctx, Product{ID: 2, Name: "Plato", Price: price("4.75")})
	first.Add(ctx, Product{ID: 1, Name: "Taza", Price: price("10")})
	want := first.State()

	second := Open(ctx, st)
	if diff := cmp.Diff(want, second.State(), decimalEqual); diff != "" {
		t.Fatalf("restored state differs (-want +got):\n%s", diff)
	}
}

func TestStoreOpenWithCorruptOrMissingData(t *testing.T) {
	ctx := context.Background()

	cases := map[string][]byte{
		"not json":      []byte("{oops"),
		"no items":      []byte(`{"other":true}`),
		"null items":    []byte(`{"items":null}`),
		"wrong type":    []byte(`{"items":"many"}`),
		"bare array":    []byte(`[1,2,3]`),
		"empty payload": []byte(``),
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			st := newMemory(t)
			if err := st.Set(ctx, StorageKey, payload); err != nil {
				t.Fatalf("Set() failed: %v", err)
			}
			s := Open(ctx, st)
			if s.State().Len() != 0 {
				t.Fatalf("expected empty cart, got %+v", s.State())
			}
		})
	}

	t.Run("absent", func(t *testing.T) {
		s := Open(ctx, newMemory(t))
		if s.State().Len() != 0 {
			t.Fatal("expected empty cart")
		}
	})
}

func TestStoreSanitizesRestoredLines(t *testing.T) {
	ctx := context.Background()
	st := newMemory(t)
	doc := `{"items":[{"id":1,"qty":0,"price":10},{"id":1,"qty":5,"price":"99"},{"id":2,"qty":-3,"price":"2.5"}]}`
	if err := st.Set(ctx, StorageKey, []byte(doc)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	got := Open(ctx, st).State()
	want := State{Items: []LineItem{
		{ID: 1, Quantity: 1, UnitPrice: price("10")},
		{ID: 2, Quantity: 1, UnitPrice: price("2.5")},
	}}
	if diff := cmp.Diff(want, got, decimalEqual); diff != "" {
		t.Fatalf("sanitized state (-want +got):\n%s", diff)
	}
}

func TestStoreWriteFailureIsNotSurfaced(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, failingStorage{Storage: newMemory(t)})

	got := s.Add(ctx, Product{ID: 1, Price: price("10")})
	if got.Len() != 1 {
		t.Fatalf("expected in-memory state to advance, got %+v", got)
	}
	if s.Totals().ItemCount != 1 {
		t.Fatal("in-memory state should stay authoritative")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := Open(ctx, newMemory(t))
	got := s.Add(ctx, Product{ID: 1, Price: price("10")})
	got.Items[0].Quantity = 99

	if li, _ := s.State().Find(1); li.Quantity != 1 {
		t.Fatalf("store state changed through returned value: %d", li.Quantity)
	}
}

func TestStoreReload(t *testing.T) {
	ctx := context.Background()
	st := newMemory(t)
	a := Open(ctx, st)
	b := Open(ctx, st)

	a.Add(ctx, Product{ID: 5, Price: price("1")})
	if b.State().Len() != 0 {
		t.Fatal("b should not see a's write before Reload")
	}
	if got := b.Reload(ctx); got.Len() != 1 {
		t.Fatalf("Reload() = %+v", got)
	}
}

func TestScenarioAddExistingDoublesQuantity(t *testing.T) {
	ctx := context.Background()
	st := newMemory(t)
	if err := st.Set(ctx, StorageKey, []byte(`{"items":[{"id":1,"price":10,"qty":1}]}`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	s := Open(ctx, st)

	got := s.Add(ctx, Product{ID: 1, Price: price("10")})
	if got.Len() != 1 || got.Items[0].Quantity != 2 {
		t.Fatalf("expected one line with qty 2, got %+v", got.Items)
	}
	if sub := got.Totals().Subtotal; !sub.Equal(price("20")) {
		t.Fatalf("subtotal = %s, want 20", sub)
	}

	got = s.SetQuantity(ctx, 1, -5)
	if got.Items[0].Quantity != 1 {
		t.Fatalf("SetQuantity(-5) -> %d, want 1", got.Items[0].Quantity)
	}
}

func TestSchemaDescribesPersistedDocument(t *testing.T) {
	s := Schema()
	items, ok := s.Properties.Get("items")
	if !ok {
		t.Fatal("schema has no items property")
	}
	if items.Type != "array" || items.Items == nil {
		t.Fatalf("items should be an array schema, got %+v", items)
	}
	for _, field := range []string{"id", "qty", "price"} {
		if _, ok := items.Items.Properties.Get(field); !ok {
			t.Errorf("line item schema missing %q", field)
		}
	}
	pr, _ := items.Items.Properties.Get("price")
	if len(pr.OneOf) != 2 {
		t.Fatalf("price should accept string or number, got %+v", pr)
	}
}
