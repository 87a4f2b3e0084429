// Command storefront is a terminal client for the storefront API.
//
//	storefront [-json] <command> [flags] [args]
//
// Settings come from the environment (see package config). Session and
// cart state persist between invocations in the configured storage.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/storefront-go"
	"github.com/ggoodman/storefront-go/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// errUsage marks errors already explained by printed usage.
var errUsage = errors.New("usage")

type cli struct {
	app    *storefront.App
	out    io.Writer
	errOut io.Writer
	json   bool
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *cli, args []string) error
}

func commands() []command {
	return []command{
		{"login", "log in: login -email E -password P", cmdLogin},
		{"logout", "end the session", cmdLogout},
		{"whoami", "show the session", cmdWhoami},
		{"products", "list products: products [-q S] [-category ID] [-sort S] [-featured]", cmdProducts},
		{"categories", "list categories", cmdCategories},
		{"cart", "cart show|add ID|remove ID|qty ID N|clear|watch|schema", cmdCart},
		{"checkout", "submit the cart: checkout -name N -phone P -address A [-email E] [-notes T]", cmdCheckout},
		{"order", "track an order: order CODE", cmdOrder},
		{"admin", "admin orders|advance ID|cancel ID|products|create|update ID|deactivate ID", cmdAdmin},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print JSON instead of text")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: storefront [-json] <command> [flags] [args]")
		fmt.Fprintln(stderr, "\ncommands:")
		for _, c := range commands() {
			fmt.Fprintf(stderr, "  %-11s %s\n", c.name, c.summary)
		}
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	var cmd *command
	for _, c := range commands() {
		if c.name == fs.Arg(0) {
			cmd = &c
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "storefront: unknown command %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log := cfg.Logger(stderr)

	app, err := storefront.New(ctx, cfg, storefront.WithLogger(log))
	if err != nil {
		fmt.Fprintf(stderr, "storefront: %v\n", err)
		return 1
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("storefront.close_failed", "err", err)
		}
	}()
	app.Boot(ctx)

	c := &cli{app: app, out: stdout, errOut: stderr, json: *asJSON}
	if err := cmd.run(ctx, c, fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(stderr, "storefront %s: %s\n", cmd.name, describe(err))
		return 1
	}
	return 0
}
