package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Listing is the state behind a product listing view. Load is bound to the
// caller's context: results that arrive after the context is done are
// dropped and leave the listing untouched.
type Listing struct {
	svc *Service

	mu         sync.RWMutex
	loaded     bool
	products   []Product
	categories []Category
	errMsg     string
}

// NewListing creates an empty Listing.
func NewListing(svc *Service) *Listing {
	return &Listing{svc: svc}
}

// Load fetches products and categories concurrently. On failure the error
// is recorded for display and returned; cancellation is returned but never
// recorded.
func (l *Listing) Load(ctx context.Context) error {
	var (
		products   []Product
		categories []Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = l.svc.Products(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = l.svc.Categories(gctx)
		return err
	})
	err := g.Wait()

	if ctx.Err() != nil {
		l.svc.log.DebugContext(ctx, "catalog.listing.discarded")
		return ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			l.errMsg = err.Error()
			l.svc.log.WarnContext(ctx, "catalog.listing.failed", slog.String("err", err.Error()))
		}
		return err
	}
	l.loaded = true
	l.products = products
	l.categories = categories
	l.errMsg = ""
	return nil
}

// Loaded reports whether a Load has succeeded.
func (l *Listing) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Err returns the message of the last failed Load, or "".
func (l *Listing) Err() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.errMsg
}

// Products returns the loaded products filtered by q.
func (l *Listing) Products(q Query) []Product {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Filter(l.products, q)
}

// Featured returns the featured selection of the loaded products.
func (l *Listing) Featured() []Product {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Featured(l.products, FeaturedCount)
}

// Categories returns a copy of the loaded categories.
func (l *Listing) Categories() []Category {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Category(nil), l.categories...)
}
