// Package storefront wires the storefront client together: one storage
// backend, one API client with the session pipeline installed, the
// persisted cart and the catalog, orders and admin services built on them.
//
// A typical program builds an App from config.Load, calls Boot to restore
// any previous session, and calls Close before exiting so the refresh
// cookie survives into the next run.
package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ggoodman/storefront-go/admin"
	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/cart"
	"github.com/ggoodman/storefront-go/catalog"
	"github.com/ggoodman/storefront-go/config"
	"github.com/ggoodman/storefront-go/internal/logctx"
	"github.com/ggoodman/storefront-go/orders"
	"github.com/ggoodman/storefront-go/session"
	"github.com/ggoodman/storefront-go/storage"
	"github.com/ggoodman/storefront-go/storage/file"
	"github.com/ggoodman/storefront-go/storage/memory"
	"github.com/ggoodman/storefront-go/storage/redis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// CookieKey is the storage key the API cookies are persisted under.
const CookieKey = "app_cookies_v1"

// App is a fully wired storefront client.
type App struct {
	Config  config.Config
	Log     *slog.Logger
	Storage storage.Storage
	Client  *api.Client
	Session *session.Manager
	Cart    *cart.Store
	Catalog *catalog.Service
	Orders  *orders.Service

	AdminOrders   *admin.Orders
	AdminProducts *admin.Products

	ownsStorage bool
}

// Option configures an App.
type Option func(*options)

type options struct {
	log     *slog.Logger
	storage storage.Storage
	hc      *http.Client
	tp      trace.TracerProvider
	prop    propagation.TextMapPropagator
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStorage uses st instead of opening the configured backend. The App
// does not close it.
func WithStorage(st storage.Storage) Option {
	return func(o *options) { o.storage = st }
}

// WithHTTPClient is passed through to api.WithHTTPClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.hc = hc }
}

// WithTracerProvider sets the provider API calls are traced on. Defaults to
// otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithPropagator sets how trace context travels to the backend. Defaults to
// W3C trace context plus baggage.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *options) { o.prop = p }
}

// New builds an App from cfg. Persisted cookies are restored into the
// client before anything is sent.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := logctx.Wrap(o.log)

	app := &App{Config: cfg, Log: log, Storage: o.storage}
	if app.Storage == nil {
		st, err := openStorage(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		app.Storage = st
		app.ownsStorage = true
	}

	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}
	if o.prop == nil {
		o.prop = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}

	clientOpts := []api.Option{
		api.WithLogger(log),
		api.WithTracerProvider(o.tp),
		api.WithPropagator(o.prop),
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, api.WithTimeout(cfg.Timeout))
	}
	if o.hc != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(o.hc))
	}
	client, err := api.New(cfg.APIURL, clientOpts...)
	if err != nil {
		return nil, errors.Join(err, app.closeStorage())
	}
	app.Client = client
	app.restoreCookies(ctx)

	mgr, err := session.New(client, app.Storage, session.WithLogger(log))
	if err != nil {
		return nil, errors.Join(err, app.closeStorage())
	}
	app.Session = mgr

	app.Cart = cart.Open(ctx, app.Storage, cart.WithLogger(log))
	app.Catalog = catalog.NewService(client, catalog.WithLogger(log))
	app.Orders = orders.NewService(client, orders.WithLogger(log))

	guard := admin.WithGuard(mgr.AuthorizeAdmin)
	app.AdminOrders = admin.NewOrders(client, admin.WithLogger(log), guard)
	app.AdminProducts = admin.NewProducts(client, admin.WithLogger(log), guard)

	return app, nil
}

func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.New(0)
	case config.StorageRedis:
		return redis.Dial(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	case config.StorageFile, "":
		dir, err := cfg.Dir()
		if err != nil {
			return nil, err
		}
		return file.New(dir, file.WithLogger(log))
	default:
		return nil, fmt.Errorf("storefront: unknown storage %q", cfg.Storage)
	}
}

// Boot restores a previous session. See session.Manager.Boot.
func (a *App) Boot(ctx context.Context) session.Phase {
	return a.Session.Boot(ctx)
}

// Checkout submits the cart for c and empties it once the order is
// accepted. The cart is kept on any error.
func (a *App) Checkout(ctx context.Context, c orders.Customer) (orders.Receipt, error) {
	r, err := a.Orders.Submit(ctx, c, a.Cart.Items())
	if err != nil {
		return orders.Receipt{}, err
	}
	a.Cart.Clear(ctx)
	return r, nil
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (a *App) restoreCookies(ctx context.Context) {
	item, err := a.Storage.Get(ctx, CookieKey)
	if err != nil {
		a.Log.WarnContext(ctx, "storefront.cookies.read_failed", slog.String("err", err.Error()))
		return
	}
	if item == nil {
		return
	}
	var stored []storedCookie
	if err := json.Unmarshal(item.Data, &stored); err != nil {
		a.Log.DebugContext(ctx, "storefront.cookies.corrupt", slog.String("err", err.Error()))
		return
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/", HttpOnly: true})
	}
	a.Client.SetCookies(session.RefreshPath, cookies)
}

// SaveCookies persists the cookies the client would send to the refresh
// endpoint, or removes the stored copy when there are none.
func (a *App) SaveCookies(ctx context.Context) error {
	cookies := a.Client.Cookies(session.RefreshPath)
	if len(cookies) == 0 {
		return a.Storage.Delete(ctx, CookieKey)
	}
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return a.Storage.Set(ctx, CookieKey, data)
}

// Close saves cookies and releases the storage backend if the App opened
// it.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.SaveCookies(ctx); err != nil {
		errs = append(errs, fmt.Errorf("storefront: save cookies: %w", err))
	}
	if err := a.closeStorage(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeStorage() error {
	if !a.ownsStorage || a.Storage == nil {
		return nil
	}
	return a.Storage.Close()
}
