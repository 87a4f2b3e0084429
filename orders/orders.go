// Package orders implements guest checkout and order tracking by code.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/cart"
	"github.com/ggoodman/storefront-go/internal/logctx"
)

const (
	OrdersPath = "/orders"

	// MinCodeLength is the shortest order code Lookup will send.
	MinCodeLength = 3
)

// ErrNotFound is the negative lookup result. It is not a failure.
var ErrNotFound = errors.New("orders: not found")

// Receipt identifies a submitted order.
type Receipt struct {
	Code string `json:"code"`
	ID   int64  `json:"id_order"`
}

type submitLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type submitBody struct {
	Customer Customer     `json:"customer"`
	Items    []submitLine `json:"items"`
}

// Service talks to the orders endpoints.
type Service struct {
	client *api.Client
	log    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates an orders Service.
func NewService(client *api.Client, opts ...Option) *Service {
	s := &Service{client: client}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logctx.Wrap(s.log)
	return s
}

// Submit validates the checkout and posts it. Validation problems are
// returned as *ValidationError without calling the API.
func (s *Service) Submit(ctx context.Context, c Customer, items []cart.LineItem) (Receipt, error) {
	c = c.Normalized()
	verr := &ValidationError{}
	if err := c.Validate(); err != nil {
		errors.As(err, &verr)
	}
	if len(items) == 0 {
		verr.add("items", "El carrito está vacío")
	}
	if err := verr.orNil(); err != nil {
		return Receipt{}, err
	}

	body := submitBody{Customer: c, Items: make([]submitLine, 0, len(items))}
	for _, it := range items {
		body.Items = append(body.Items, submitLine{ProductID: it.ID, Quantity: cart.ClampQuantity(it.Quantity)})
	}

	var r Receipt
	if err := s.client.PostJSON(ctx, OrdersPath, body, &r); err != nil {
		return Receipt{}, fmt.Errorf("orders: submit: %w", err)
	}
	if r.Code == "" {
		return Receipt{}, fmt.Errorf("%w: order response without code", api.ErrMalformedResponse)
	}
	s.log.InfoContext(ctx, "orders.submitted", slog.String("code", r.Code), slog.Int64("id", r.ID))
	return r, nil
}

// ValidateCode trims code and checks its length. Codes are a single path
// segment, so "/" is rejected.
func ValidateCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) < MinCodeLength || strings.Contains(code, "/") {
		return "", &ValidationError{Fields: map[string]string{"code": "Escribe un código de pedido válido."}}
	}
	return code, nil
}

// Lookup fetches an order by its human-readable code. A 404, or a body
// that normalizes to an empty code, yields ErrNotFound.
func (s *Service) Lookup(ctx context.Context, code string) (Order, error) {
	code, err := ValidateCode(code)
	if err != nil {
		return Order{}, err
	}

	req := api.NewRequest(http.MethodGet, OrdersPath+"/"+code)
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		if api.IsNotFound(err) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("orders: lookup %q: %w", code, err)
	}

	var raw json.RawMessage
	if err := resp.Decode(&raw); err != nil {
		return Order{}, fmt.Errorf("orders: lookup %q: %w", code, err)
	}
	o, ok := Normalize(raw)
	if !ok || o.Code == "" {
		s.log.DebugContext(ctx, "orders.lookup.empty", slog.String("code", code))
		return Order{}, ErrNotFound
	}
	return o, nil
}
