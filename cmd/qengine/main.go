// Command qengine serves client requests over HTTP for the models of a
// YAML catalog.
//
//	qengine -config qengine.yaml -schema schema.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syssam/qengine/config"
	"github.com/syssam/qengine/engine"
	"github.com/syssam/qengine/schema"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options are the command line options.
type options struct {
	config string
	schema string
	addr   string
}

func parse(args []string, out io.Writer) (*options, error) {
	fs := flag.NewFlagSet("qengine", flag.ContinueOnError)
	fs.SetOutput(out)
	var o options
	fs.StringVar(&o.config, "config", "", "Path to the configuration file. Defaults to ./qengine.yaml if present.")
	fs.StringVar(&o.schema, "schema", "schema.yaml", "Path to the YAML catalog of models and relations.")
	fs.StringVar(&o.addr, "addr", "", "Listen address. Overrides request.addr of the configuration.")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &o, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	o, err := parse(args, out)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	cfg, err := config.Load(o.config)
	if err != nil {
		return err
	}
	if o.addr != "" {
		cfg.Request.Addr = o.addr
	}
	logger := cfg.Log.Logger(out)
	slog.SetDefault(logger)
	c, err := schema.LoadFile(o.schema)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	e, err := engine.Open(cfg, c, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	defer e.Close()

	srv := &http.Server{
		Addr:              cfg.Request.Addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Request.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdown)
}
