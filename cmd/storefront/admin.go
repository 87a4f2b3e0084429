package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ggoodman/storefront-go/admin"
	"github.com/shopspring/decimal"
)

func cmdAdmin(ctx context.Context, c *cli, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: admin orders|advance ID|cancel ID|products|create|update ID|deactivate ID")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "orders":
		return adminOrders(ctx, c, rest)
	case "advance", "cancel":
		return adminTransition(ctx, c, sub, rest)
	case "products":
		return adminProducts(ctx, c, rest)
	case "create":
		return adminCreate(ctx, c, rest)
	case "update":
		return adminUpdate(ctx, c, rest)
	case "deactivate":
		if len(rest) != 1 {
			return errors.New("usage: admin deactivate ID")
		}
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		return c.app.AdminProducts.Deactivate(ctx, id)
	}
	return fmt.Errorf("unknown admin command %q", sub)
}

func adminOrders(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("admin orders")
	status := fs.String("status", admin.StatusAll, "status filter")
	search := fs.String("q", "", "search code or id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	rows, err := c.app.AdminOrders.List(ctx)
	if err != nil {
		return err
	}
	rows = admin.FilterOrders(rows, strings.ToUpper(*status), *search)
	return c.emit(rows, printOrders(rows))
}

func printOrders(rows []admin.OrderRow) func(w *tabwriter.Writer) {
	return func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tCODE\tSTATUS\tCUSTOMER\tPHONE\tTOTAL")
		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Code, r.Status, r.CustomerName, r.CustomerPhone, money(r.Total))
		}
	}
}

func adminTransition(ctx context.Context, c *cli, verb string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: admin %s ID", verb)
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	rows, err := c.app.AdminOrders.List(ctx)
	if err != nil {
		return err
	}
	var row *admin.OrderRow
	for i := range rows {
		if rows[i].ID == id {
			row = &rows[i]
			break
		}
	}
	if row == nil {
		return fmt.Errorf("no order with id %d", id)
	}

	var updated admin.OrderRow
	if verb == "advance" {
		updated, err = c.app.AdminOrders.Advance(ctx, *row)
	} else {
		updated, err = c.app.AdminOrders.Cancel(ctx, *row)
	}
	if err != nil {
		return err
	}
	return c.emit(updated, printOrders([]admin.OrderRow{updated}))
}

func adminProducts(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("admin products")
	search := fs.String("q", "", "search name or category")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	rows, err := c.app.AdminProducts.List(ctx)
	if err != nil {
		return err
	}
	rows = admin.Search(rows, *search)
	return c.emit(rows, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK\tACTIVE")
		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%t\n", r.ID, r.Name, r.CategoryName, money(r.Price), r.Stock, r.Active)
		}
	})
}

// productFlags binds in's fields to fs.
func productFlags(fs *flag.FlagSet, in *admin.ProductInput) *string {
	fs.StringVar(&in.Name, "name", in.Name, "product name")
	fs.StringVar(&in.Description, "description", in.Description, "description")
	fs.StringVar(&in.ImageURL, "image", in.ImageURL, "image URL")
	fs.IntVar(&in.Stock, "stock", in.Stock, "units in stock")
	fs.Int64Var(&in.CategoryID, "category", in.CategoryID, "category id")
	fs.BoolVar(&in.Active, "active", in.Active, "visible in the catalog")
	return fs.String("price", in.Price.String(), "unit price")
}

func applyPrice(in *admin.ProductInput, raw string) error {
	d, err := decimal.NewFromString(strings.Replace(strings.TrimSpace(raw), ",", ".", 1))
	if err != nil {
		return fmt.Errorf("invalid price %q", raw)
	}
	in.Price = d
	return nil
}

func adminCreate(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("admin create")
	in := admin.ProductInput{Active: true}
	price := productFlags(fs, &in)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if err := applyPrice(&in, *price); err != nil {
		return err
	}
	created, err := c.app.AdminProducts.Create(ctx, in)
	if err != nil {
		return err
	}
	return c.emit(created, func(w *tabwriter.Writer) {
		if created == nil {
			fmt.Fprintln(w, "product created")
			return
		}
		fmt.Fprintf(w, "product %d created\n", created.ID)
	})
}

func adminUpdate(ctx context.Context, c *cli, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: admin update ID [flags]")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	rows, err := c.app.AdminProducts.List(ctx)
	if err != nil {
		return err
	}
	var in *admin.ProductInput
	for _, r := range rows {
		if r.ID == id {
			v := r.Input()
			in = &v
			break
		}
	}
	if in == nil {
		return fmt.Errorf("no product with id %d", id)
	}

	fs := c.flags("admin update")
	price := productFlags(fs, in)
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}
	if err := applyPrice(in, *price); err != nil {
		return err
	}
	if err := c.app.AdminProducts.Update(ctx, id, *in); err != nil {
		return err
	}
	return c.emit(map[string]int64{"updated": id}, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "product %d updated\n", id)
	})
}
