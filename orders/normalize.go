package orders

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/storefront-go/cart"
	"github.com/ggoodman/storefront-go/catalog"
	"github.com/shopspring/decimal"
)

// The order lookup endpoint has no stable schema. Each target field below
// is read from the first source field in its precedence list that holds a
// usable value; when none does, the documented default is used.
//
//	Code       code, order_code, codigo, order.code                      default ""
//	Status     status, estado, order.status                              default RECEIVED
//	EntryDate  entry_date, entryDate, created_at, order.entry_date       default ""
//	Customer   customer, anonimal_order_details, guest, order.customer   else flat customer_* fields
//	  .Name    name, customer_name (same pattern for email, phone, address)
//	Items      items, order_items, details, order_detail, order.items    default []
//	Notes      notes, comentarios, order.notes                           default ""
//
// Per item:
//
//	ID         id, id_order_detail, id_product_fk, product_id            default ""
//	Name       name, product_name, product.name, product.nombre          default "Producto"
//	Quantity   quantity, count, qty                                      default 1
//	UnitPrice  price, unit_price, product.price                          default 0
//	ImageURL   image_url, imageUrl, product.image_url                    default ""
//
// "Usable" differs by field: text fields skip empty strings, zero and false;
// Quantity and UnitPrice only skip absent or null values. A present but
// non-numeric quantity or price falls back to the default.
// TODO: replace with a fixed decoder once the backend publishes the order
// detail schema.
var (
	codeFields      = []string{"code", "order_code", "codigo", "order.code"}
	statusFields    = []string{"status", "estado", "order.status"}
	entryDateFields = []string{"entry_date", "entryDate", "created_at", "order.entry_date"}
	customerFields  = []string{"customer", "anonimal_order_details", "guest", "order.customer"}
	itemsFields     = []string{"items", "order_items", "details", "order_detail", "order.items"}
	notesFields     = []string{"notes", "comentarios", "order.notes"}

	itemIDFields    = []string{"id", "id_order_detail", "id_product_fk", "product_id"}
	itemNameFields  = []string{"name", "product_name", "product.name", "product.nombre"}
	itemQtyFields   = []string{"quantity", "count", "qty"}
	itemPriceFields = []string{"price", "unit_price", "product.price"}
	itemImageFields = []string{"image_url", "imageUrl", "product.image_url"}
)

const defaultItemName = "Producto"

// Order is a looked-up order in a fixed shape.
type Order struct {
	Code      string   `json:"code"`
	Status    Status   `json:"status"`
	EntryDate string   `json:"entry_date,omitempty"`
	Customer  Customer `json:"customer"`
	Items     []Item   `json:"items"`
	Notes     string   `json:"notes,omitempty"`
}

// Item is one line of a looked-up order.
type Item struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Quantity  int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url,omitempty"`
}

// Totals mirrors cart totals for the order's lines.
func (o Order) Totals() cart.Totals {
	t := cart.Totals{Subtotal: decimal.Zero}
	for _, it := range o.Items {
		t.ItemCount += it.Quantity
		t.Subtotal = t.Subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return t
}

// Entered parses EntryDate as RFC 3339.
func (o Order) Entered() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, o.EntryDate)
	return t, err == nil
}

// Normalize parses a raw order body. It reports false when raw is not a
// JSON object.
func Normalize(raw json.RawMessage) (Order, bool) {
	obj, ok := parseObject(raw)
	if !ok {
		return Order{}, false
	}

	o := Order{
		Code:      obj.text(codeFields...),
		Status:    Status(obj.text(statusFields...)),
		EntryDate: obj.text(entryDateFields...),
		Notes:     obj.text(notesFields...),
		Items:     []Item{},
	}
	if o.Status == "" {
		o.Status = StatusReceived
	}

	cust, ok := obj.firstObject(customerFields...)
	if !ok {
		cust = object{
			"name":    obj["customer_name"],
			"email":   obj["customer_email"],
			"phone":   obj["customer_phone"],
			"address": obj["customer_address"],
		}
	}
	o.Customer = Customer{
		Name:    cust.text("name", "customer_name"),
		Email:   cust.text("email", "customer_email"),
		Phone:   cust.text("phone", "customer_phone"),
		Address: cust.text("address", "customer_address"),
	}

	for _, rawItem := range obj.firstArray(itemsFields...) {
		it, ok := parseObject(rawItem)
		if !ok {
			it = object{}
		}
		item := Item{
			ID:        it.text(itemIDFields...),
			Name:      it.text(itemNameFields...),
			Quantity:  1,
			UnitPrice: decimal.Zero,
			ImageURL:  it.text(itemImageFields...),
		}
		if item.Name == "" {
			item.Name = defaultItemName
		}
		if v, ok := it.present(itemQtyFields...); ok {
			if n, ok := parseInt(v); ok {
				item.Quantity = n
			}
		}
		if v, ok := it.present(itemPriceFields...); ok {
			item.UnitPrice = catalog.ParsePrice(v)
		}
		o.Items = append(o.Items, item)
	}
	return o, true
}

type object map[string]json.RawMessage

func parseObject(raw json.RawMessage) (object, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, false
	}
	return o, true
}

// get resolves a dotted path.
func (o object) get(path string) (json.RawMessage, bool) {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := o[head]
	if !ok || isNull(v) {
		return nil, false
	}
	if !nested {
		return v, true
	}
	child, ok := parseObject(v)
	if !ok {
		return nil, false
	}
	return child.get(rest)
}

// present returns the first path holding a non-null value.
func (o object) present(paths ...string) (json.RawMessage, bool) {
	for _, p := range paths {
		if v, ok := o.get(p); ok {
			return v, true
		}
	}
	return nil, false
}

// text returns the first non-empty, non-zero scalar as a string.
func (o object) text(paths ...string) string {
	for _, p := range paths {
		v, ok := o.get(p)
		if !ok {
			continue
		}
		if s := scalarText(v); s != "" {
			return s
		}
	}
	return ""
}

func (o object) firstObject(paths ...string) (object, bool) {
	for _, p := range paths {
		if v, ok := o.get(p); ok {
			if obj, ok := parseObject(v); ok {
				return obj, true
			}
		}
	}
	return nil, false
}

// firstArray returns the first path holding any array, even an empty one.
func (o object) firstArray(paths ...string) []json.RawMessage {
	for _, p := range paths {
		v, ok := o.get(p)
		if !ok {
			continue
		}
		var arr []json.RawMessage
		if bytes.HasPrefix(bytes.TrimSpace(v), []byte("[")) && json.Unmarshal(v, &arr) == nil {
			return arr
		}
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// scalarText renders strings and non-zero numbers; empty strings, zero,
// booleans, objects and arrays yield "".
func scalarText(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return ""
	}
	switch v[0] {
	case '"':
		var s string
		if json.Unmarshal(v, &s) != nil {
			return ""
		}
		return s
	case '{', '[', 't', 'f', 'n':
		return ""
	}
	if f, err := strconv.ParseFloat(string(v), 64); err != nil || f == 0 {
		return ""
	}
	return string(v)
}

func parseInt(v json.RawMessage) (int, bool) {
	v = bytes.TrimSpace(v)
	s := string(v)
	if len(v) > 0 && v[0] == '"' {
		if json.Unmarshal(v, &s) != nil {
			return 0, false
		}
		s = strings.TrimSpace(s)
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), true
	}
	return 0, false
}
