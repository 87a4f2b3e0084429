package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/orders"
	"github.com/shopspring/decimal"
)

const OrdersPath = "/admin/orders"

// StatusAll disables the status filter in FilterOrders.
const StatusAll = "ALL"

// OrderRow is one entry of the admin order list.
type OrderRow struct {
	ID            int64           `json:"id_order"`
	Code          string          `json:"code"`
	Status        orders.Status   `json:"status"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	Total         decimal.Decimal `json:"total"`
	EntryDate     string          `json:"entry_date,omitempty"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
}

// Orders manages orders.
type Orders struct {
	base
}

// NewOrders creates an Orders service.
func NewOrders(client *api.Client, opts ...Option) *Orders {
	return &Orders{base: newBase(client, opts)}
}

// List returns every order. A body that is not a JSON array is treated as
// an empty list.
func (o *Orders) List(ctx context.Context) ([]OrderRow, error) {
	if err := o.check(); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := o.client.GetJSON(ctx, OrdersPath, &raw); err != nil {
		return nil, fmt.Errorf("admin: list orders: %w", err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
		o.log.WarnContext(ctx, "admin.orders.not_an_array")
		return []OrderRow{}, nil
	}
	var rows []OrderRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("admin: list orders: %w: %v", api.ErrMalformedResponse, err)
	}
	return rows, nil
}

// SetStatus changes an order's status.
func (o *Orders) SetStatus(ctx context.Context, id int64, status orders.Status) error {
	if err := o.check(); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("admin: unknown status %q", status)
	}
	path := OrdersPath + "/" + strconv.FormatInt(id, 10) + "/status"
	req, err := api.NewJSONRequest(http.MethodPatch, path, map[string]orders.Status{"status": status})
	if err != nil {
		return err
	}
	if _, err := o.client.Do(ctx, req); err != nil {
		return fmt.Errorf("admin: set order %d status: %w", id, err)
	}
	o.log.InfoContext(ctx, "admin.orders.status_changed", slog.Int64("id", id), slog.String("status", string(status)))
	return nil
}

// Advance moves row to the next status in the flow and returns the updated
// row. Terminal statuses yield ErrTerminal.
func (o *Orders) Advance(ctx context.Context, row OrderRow) (OrderRow, error) {
	next, ok := orders.Next(row.Status)
	if !ok {
		return row, fmt.Errorf("%w: %s", ErrTerminal, row.Status)
	}
	return o.transition(ctx, row, next)
}

// Cancel cancels row unless it is already terminal.
func (o *Orders) Cancel(ctx context.Context, row OrderRow) (OrderRow, error) {
	if !orders.CanCancel(row.Status) {
		return row, fmt.Errorf("%w: %s", ErrTerminal, row.Status)
	}
	return o.transition(ctx, row, orders.StatusCancelled)
}

func (o *Orders) transition(ctx context.Context, row OrderRow, to orders.Status) (OrderRow, error) {
	if err := o.SetStatus(ctx, row.ID, to); err != nil {
		return row, err
	}
	row.Status = to
	row.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return row, nil
}

// FilterOrders keeps rows whose status equals status (StatusAll or "" keeps
// every status) and whose code or id contains search, case-insensitively.
func FilterOrders(rows []OrderRow, status string, search string) []OrderRow {
	q := strings.ToLower(strings.TrimSpace(search))
	out := make([]OrderRow, 0, len(rows))
	for _, r := range rows {
		if status != "" && status != StatusAll && string(r.Status) != status {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(r.Code), q) &&
			!strings.Contains(strconv.FormatInt(r.ID, 10), q) {
			continue
		}
		out = append(out, r)
	}
	return out
}
