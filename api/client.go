// Package api is the HTTP client core every storefront component talks to
// the backend through. A Client owns one http.Client (with a cookie jar so
// the refresh cookie travels on credentialed calls) and one middleware
// pipeline. Middleware is installed by name, once; the session package uses
// that to attach bearer credentials and retry expired tokens.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ggoodman/storefront-go/internal/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 8 << 20
)

// Doer sends a Request.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f DoerFunc) Do(ctx context.Context, req *Request) (*Response, error) { return f(ctx, req) }

// Middleware wraps the rest of the pipeline.
type Middleware func(next Doer) Doer

type namedMiddleware struct {
	name string
	mw   Middleware
}

// Client is safe for concurrent use. Create one per process and share it.
type Client struct {
	base      *url.URL
	http      *http.Client
	log       *slog.Logger
	userAgent string

	mu          sync.RWMutex
	middlewares []namedMiddleware
}

// Option configures a Client.
type Option func(*config)

type config struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	userAgent  string
	tracer     trace.TracerProvider
	propagator propagation.TextMapPropagator
}

// WithHTTPClient uses hc (copied) instead of a fresh client. A cookie jar is
// added if hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithTimeout sets the per-attempt timeout. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *config) { c.userAgent = ua }
}

// WithTracerProvider records a client span per HTTP attempt on tp. Defaults
// to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracer = tp }
}

// WithPropagator injects trace context into outgoing requests with p.
// Defaults to the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *config) { c.propagator = p }
}

// New creates a Client for the API rooted at baseURL
// (e.g. "http://localhost:3001/api").
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &config{timeout: DefaultTimeout, userAgent: "storefront-go"}
	for _, opt := range opts {
		opt(cfg)
	}

	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api: base url must be http or https, got %q", baseURL)
	}

	var hc http.Client
	if cfg.httpClient != nil {
		hc = *cfg.httpClient
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("api: cookie jar: %w", err)
		}
		hc.Jar = jar
	}
	if hc.Transport == nil {
		hc.Transport = http.DefaultTransport
	}
	var otelOpts []otelhttp.Option
	if cfg.tracer != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracer))
	}
	if cfg.propagator != nil {
		otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagator))
	}
	hc.Transport = otelhttp.NewTransport(hc.Transport, otelOpts...)
	if cfg.timeout > 0 {
		hc.Timeout = cfg.timeout
	}

	return &Client{
		base:      base,
		http:      &hc,
		log:       logctx.Wrap(cfg.logger),
		userAgent: cfg.userAgent,
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) resolve(path string) *url.URL {
	u := *c.base
	u.Path = c.base.Path + "/" + strings.TrimPrefix(path, "/")
	return &u
}

// Cookies returns the cookies the jar would send with a request to path.
// Only names and values are known to the jar.
func (c *Client) Cookies(path string) []*http.Cookie {
	return c.http.Jar.Cookies(c.resolve(path))
}

// SetCookies stores cookies as if they had been set by a response to path.
func (c *Client) SetCookies(path string, cookies []*http.Cookie) {
	c.http.Jar.SetCookies(c.resolve(path), cookies)
}

// Use appends mw to the pipeline. The first installed middleware is the
// outermost. Installing a second middleware under the same name fails with
// ErrAlreadyInstalled and leaves the pipeline unchanged.
func (c *Client) Use(name string, mw Middleware) error {
	if mw == nil {
		return errors.New("api: nil middleware")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.middlewares {
		if m.name == name {
			return fmt.Errorf("%w: %s", ErrAlreadyInstalled, name)
		}
	}
	c.middlewares = append(c.middlewares, namedMiddleware{name: name, mw: mw})
	return nil
}

// Do runs req through the pipeline. Non-2xx responses are returned as
// *StatusError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.id == "" {
		req.id = uuid.NewString()
	}

	c.mu.RLock()
	var d Doer = DoerFunc(c.send)
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		d = c.middlewares[i].mw(d)
	}
	c.mu.RUnlock()

	return d.Do(ctx, req)
}

// send performs a single HTTP attempt.
func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
		RequestID: req.id,
		Method:    req.Method,
		Path:      req.Path,
		Attempt:   req.Attempt(),
	})

	u := c.resolve(req.Path)
	u.RawQuery = req.Query.Encode()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("api: build %s %s: %w", req.Method, req.Path, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("Accept", jsonMediaType.String())
	hreq.Header.Set("X-Request-ID", req.id)
	if c.userAgent != "" {
		hreq.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	hresp, err := c.http.Do(hreq)
	if err != nil {
		if ctx.Err() == nil {
			c.log.WarnContext(ctx, "api request failed", slog.String("err", err.Error()))
		}
		return nil, fmt.Errorf("api: %s %s: %w", req.Method, req.Path, err)
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("api: read %s %s: %w", req.Method, req.Path, err)
	}

	c.log.DebugContext(ctx, "api response",
		slog.Int("status", hresp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		return nil, newStatusError(req, hresp.StatusCode, data)
	}
	return &Response{Status: hresp.StatusCode, Header: hresp.Header, Body: data}, nil
}
