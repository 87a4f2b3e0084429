package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ggoodman/storefront-go/api"
	"github.com/ggoodman/storefront-go/cart"
	"github.com/ggoodman/storefront-go/catalog"
	"github.com/ggoodman/storefront-go/orders"
	"github.com/ggoodman/storefront-go/session"
	"github.com/ggoodman/storefront-go/storage/file"
	"github.com/shopspring/decimal"
)

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// emit prints v as JSON in -json mode, and calls text otherwise.
func (c *cli) emit(v any, text func(w *tabwriter.Writer)) error {
	if c.json {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

func describe(err error) string {
	var verr *orders.ValidationError
	var serr *api.StatusError
	switch {
	case errors.As(err, &verr):
		var b strings.Builder
		b.WriteString("invalid input")
		for _, k := range slices.Sorted(maps.Keys(verr.Fields)) {
			fmt.Fprintf(&b, "\n  %s: %s", k, verr.Fields[k])
		}
		return b.String()
	case errors.Is(err, session.ErrInvalidCredentials):
		return "invalid email or password"
	case errors.Is(err, session.ErrNotAuthenticated):
		return "not logged in"
	case errors.Is(err, orders.ErrNotFound):
		return "no order with that code"
	case errors.As(err, &serr):
		return fmt.Sprintf("server said %d: %s", serr.Status, serr.Message)
	}
	return err.Error()
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func money(d decimal.Decimal) string { return "$" + d.StringFixed(2) }

func cmdLogin(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *email == "" || *password == "" {
		fs.Usage()
		return errUsage
	}
	u, err := c.app.Session.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	return c.emit(u, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "logged in as %s (%s)\n", u.Name, u.Role)
	})
}

func cmdLogout(ctx context.Context, c *cli, _ []string) error {
	c.app.Session.Logout(ctx)
	return c.emit(map[string]bool{"ok": true}, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "logged out")
	})
}

func cmdWhoami(_ context.Context, c *cli, _ []string) error {
	s := c.app.Session.State()
	exp, hasExp := c.app.Session.TokenExpiry()
	out := struct {
		Phase   string        `json:"phase"`
		User    *session.User `json:"user,omitempty"`
		Expires string        `json:"token_expires,omitempty"`
	}{Phase: s.Phase().String(), User: s.User}
	if hasExp {
		out.Expires = exp.Format("2006-01-02 15:04:05 MST")
	}
	return c.emit(out, func(w *tabwriter.Writer) {
		if s.User == nil {
			fmt.Fprintln(w, "anonymous")
			return
		}
		fmt.Fprintf(w, "user\t%s <%s>\n", s.User.Name, s.User.Email)
		fmt.Fprintf(w, "role\t%s\n", s.User.Role)
		if hasExp {
			fmt.Fprintf(w, "token expires\t%s\n", out.Expires)
		}
	})
}

func cmdProducts(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("products")
	search := fs.String("q", "", "search name and description")
	category := fs.Int64("category", 0, "category id")
	sort := fs.String("sort", "recommended", "recommended, price_asc or price_desc")
	featured := fs.Bool("featured", false, "only the featured selection")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	l := catalog.NewListing(c.app.Catalog)
	if err := l.Load(ctx); err != nil {
		return err
	}
	var products []catalog.Product
	if *featured {
		products = l.Featured()
	} else {
		products = l.Products(catalog.Query{Search: *search, CategoryID: *category, Sort: catalog.ParseSort(*sort)})
	}
	categories := l.Categories()

	return c.emit(products, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
		for _, p := range products {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", p.ID, p.Name, catalog.CategoryName(categories, p.CategoryID), money(p.Price), p.Stock)
		}
	})
}

func cmdCategories(ctx context.Context, c *cli, _ []string) error {
	cats, err := c.app.Catalog.Categories(ctx)
	if err != nil {
		return err
	}
	return c.emit(cats, func(w *tabwriter.Writer) {
		for _, cat := range cats {
			fmt.Fprintf(w, "%d\t%s\n", cat.ID, cat.Name)
		}
	})
}

func (c *cli) showCart(st cart.State) error {
	totals := st.Totals()
	out := struct {
		Items    []cart.LineItem `json:"items"`
		Count    int             `json:"item_count"`
		Subtotal decimal.Decimal `json:"subtotal"`
	}{Items: st.Items, Count: totals.ItemCount, Subtotal: totals.Subtotal}
	return c.emit(out, func(w *tabwriter.Writer) {
		if len(st.Items) == 0 {
			fmt.Fprintln(w, "cart is empty")
			return
		}
		fmt.Fprintln(w, "ID\tNAME\tQTY\tPRICE\tTOTAL")
		for _, it := range st.Items {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", it.ID, it.Name, it.Quantity, money(it.UnitPrice), money(it.Total()))
		}
		fmt.Fprintf(w, "\t%d items\t\t\t%s\n", totals.ItemCount, money(totals.Subtotal))
	})
}

func cmdCart(ctx context.Context, c *cli, args []string) error {
	if len(args) == 0 {
		return c.showCart(c.app.Cart.State())
	}
	store := c.app.Cart
	sub, rest := args[0], args[1:]

	switch sub {
	case "show":
		return c.showCart(store.State())
	case "add":
		if len(rest) != 1 {
			return errors.New("usage: cart add ID")
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		p, err := c.app.Catalog.Product(ctx, id)
		if err != nil {
			return err
		}
		if !p.InStock() {
			return fmt.Errorf("%s is out of stock", p.Name)
		}
		return c.showCart(store.Add(ctx, p.CartProduct()))
	case "remove":
		if len(rest) != 1 {
			return errors.New("usage: cart remove ID")
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		return c.showCart(store.Remove(ctx, id))
	case "qty":
		if len(rest) != 2 {
			return errors.New("usage: cart qty ID N")
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		return c.showCart(store.SetQuantity(ctx, id, cart.ParseQuantity(rest[1])))
	case "clear":
		return c.showCart(store.Clear(ctx))
	case "schema":
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(cart.Schema())
	case "watch":
		return c.watchCart(ctx)
	}
	return fmt.Errorf("unknown cart command %q", sub)
}

// watchCart prints the cart every time another process rewrites it, until
// ctx is done or output fails.
func (c *cli) watchCart(ctx context.Context) error {
	fst, ok := c.app.Storage.(*file.Storage)
	if !ok {
		return errors.New("cart watch needs STOREFRONT_STORAGE=file")
	}
	if err := c.showCart(c.app.Cart.State()); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var werr error
	err := fst.Watch(ctx, func(key string) {
		if key != cart.StorageKey || werr != nil {
			return
		}
		st := c.app.Cart.Reload(ctx)
		if _, err := fmt.Fprintln(c.out, "--"); err != nil {
			werr = err
		} else {
			werr = c.showCart(st)
		}
		if werr != nil {
			cancel()
		}
	})
	if werr != nil {
		return fmt.Errorf("cart watch: %w", werr)
	}
	return err
}

func cmdCheckout(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("checkout")
	var cust orders.Customer
	fs.StringVar(&cust.Name, "name", "", "full name")
	fs.StringVar(&cust.Phone, "phone", "", "phone number")
	fs.StringVar(&cust.Address, "address", "", "delivery address")
	fs.StringVar(&cust.Email, "email", "", "email (optional)")
	fs.StringVar(&cust.Notes, "notes", "", "delivery notes (optional)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	r, err := c.app.Checkout(ctx, cust)
	if err != nil {
		return err
	}
	return c.emit(r, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "order placed: %s\n", r.Code)
		fmt.Fprintf(w, "track it with: storefront order %s\n", r.Code)
	})
}

func cmdOrder(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: order CODE")
	}
	o, err := c.app.Orders.Lookup(ctx, args[0])
	if err != nil {
		return err
	}
	meta := orders.StatusMeta(o.Status)
	totals := o.Totals()
	return c.emit(o, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "order\t%s\n", o.Code)
		fmt.Fprintf(w, "status\t%s (%d%%)\n", meta.Label, meta.Progress)
		if t, ok := o.Entered(); ok {
			fmt.Fprintf(w, "placed\t%s\n", t.Local().Format("2006-01-02 15:04"))
		}
		if o.Customer.Name != "" {
			fmt.Fprintf(w, "customer\t%s\n", o.Customer.Name)
		}
		for _, it := range o.Items {
			fmt.Fprintf(w, "  %d x %s\t%s\n", it.Quantity, it.Name, money(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))))
		}
		fmt.Fprintf(w, "total\t%s\n", money(totals.Subtotal))
	})
}
