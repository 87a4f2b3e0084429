package cart

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ggoodman/storefront-go/storage"
)

// StorageKey is the key the cart document is persisted under.
const StorageKey = "app_cart_v1"

// Store owns the current cart state. Every mutation reduces the current
// state, swaps the result in and writes it to storage before returning.
// Mutations are serialized; readers always see a complete state.
//
// Persistence is best-effort: a failed write is logged and the in-memory
// state stays authoritative for the lifetime of the Store.
type Store struct {
	st  storage.Storage
	key string
	log *slog.Logger

	mu    sync.Mutex
	state State
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithKey overrides StorageKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// Open restores the cart from st. A missing, unreadable or corrupt document
// yields an empty cart; Open never fails.
func Open(ctx context.Context, st storage.Storage, opts ...Option) *Store {
	s := &Store{
		st:  st,
		key: StorageKey,
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) State {
	item, err := s.st.Get(ctx, s.key)
	if err != nil {
		s.log.WarnContext(ctx, "cart restore failed", slog.String("key", s.key), slog.String("err", err.Error()))
		return Empty()
	}
	if item == nil {
		return Empty()
	}
	st, ok := decodeState(item.Data)
	if !ok {
		s.log.DebugContext(ctx, "discarding unreadable cart document", slog.String("key", s.key))
		return Empty()
	}
	return st
}

// decodeState parses a persisted document. ok is false when the document is
// not JSON or has no items array.
func decodeState(data []byte) (State, bool) {
	var doc struct {
		Items *[]LineItem `json:"items"`
	}
	if err := json.Unmarshal(data, &doc); err != nil || doc.Items == nil {
		return State{}, false
	}
	return sanitize(State{Items: *doc.Items}), true
}

// Encode serializes s in the persisted document format.
func Encode(s State) ([]byte, error) {
	if s.Items == nil {
		s = Empty()
	}
	return json.Marshal(s)
}

// Decode parses a persisted document, returning an empty cart for anything
// that cannot be read.
func Decode(data []byte) State {
	st, ok := decodeState(data)
	if !ok {
		return Empty()
	}
	return st
}

func (s *Store) persist(ctx context.Context, st State) {
	data, err := Encode(st)
	if err != nil {
		s.log.WarnContext(ctx, "cart encode failed", slog.String("err", err.Error()))
		return
	}
	if err := s.st.Set(ctx, s.key, data); err != nil {
		s.log.WarnContext(ctx, "cart persist failed", slog.String("key", s.key), slog.String("err", err.Error()))
	}
}

// Dispatch applies a, persists the result and returns it.
func (s *Store) Dispatch(ctx context.Context, a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := Reduce(s.state, a)
	s.state = next
	s.persist(ctx, next)
	return next.Clone()
}

// Add puts one unit of p in the cart.
func (s *Store) Add(ctx context.Context, p Product) State {
	return s.Dispatch(ctx, Add{Product: p})
}

// Remove deletes the line for id, if present.
func (s *Store) Remove(ctx context.Context, id int64) State {
	return s.Dispatch(ctx, Remove{ID: id})
}

// SetQuantity sets the quantity of the line for id, clamped to at least one.
func (s *Store) SetQuantity(ctx context.Context, id int64, quantity int) State {
	return s.Dispatch(ctx, SetQuantity{ID: id, Quantity: quantity})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) State {
	return s.Dispatch(ctx, Clear{})
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Items returns a copy of the current line items.
func (s *Store) Items() []LineItem {
	return s.State().Items
}

// Totals recomputes totals from the current items.
func (s *Store) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Totals()
}

// Reload replaces the in-memory state with whatever storage currently holds.
// It is meant for picking up writes made by another process and offers no
// merge or ordering guarantees.
func (s *Store) Reload(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.load(ctx)
	return s.state.Clone()
}
