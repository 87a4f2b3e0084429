// Package admin implements the back-office operations: order status
// management and product maintenance. Every call goes through the shared,
// session-mediated api.Client, so bearer credentials and token refresh are
// handled there; an optional Guard rejects calls locally before they are
// sent.
package admin

import (
	"errors"
	"log/slog"

	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/internal/logctx"
)

// ErrTerminal is returned when an order cannot move from its status.
var ErrTerminal = errors.New("admin: order status is terminal")

// ErrInvalidProduct wraps product input problems.
var ErrInvalidProduct = errors.New("admin: invalid product")

// Guard authorizes an admin call before it is sent. session.Manager's
// AuthorizeAdmin fits.
type Guard func() error

// Option configures the admin services.
type Option func(*base)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.log = l }
}

// WithGuard installs a Guard consulted before every call.
func WithGuard(g Guard) Option {
	return func(b *base) { b.guard = g }
}

type base struct {
	client *api.Client
	log    *slog.Logger
	guard  Guard
}

func newBase(client *api.Client, opts []Option) base {
	b := base{client: client}
	for _, opt := range opts {
		opt(&b)
	}
	b.log = logctx.Wrap(b.log)
	return b
}

func (b *base) check() error {
	if b.guard == nil {
		return nil
	}
	return b.guard()
}
