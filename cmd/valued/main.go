package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/primary"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/updates"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/valueindex"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/valued.yaml", "path to config file")
	dumpPath := flag.String("dump", "", "node dump of the document; empty loads the nodes table from postgres")
	rebuild := flag.Bool("rebuild", false, "rebuild the index even when the catalog lists it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, *dumpPath, *rebuild); err != nil {
		slog.Error("valued stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("valued stopped")
}

func run(cfg *config.Config, dumpPath string, rebuild bool) error {
	if cfg.Kafka.Enabled && !cfg.Index.Updatable {
		return errors.New("the update feed requires index.updatable")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, closeCatalog, err := catalog.FromConfig(*cfg)
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer closeCatalog()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	opts, err := valueindex.OptionsFromConfig(cfg.Index)
	if err != nil {
		return err
	}
	opts.Metrics = m
	opts.Catalog = cat

	tbl, err := primary.Load(ctx, dumpPath, cfg.Postgres, opts.Document)
	if err != nil {
		return fmt.Errorf("loading primary table: %w", err)
	}
	slog.Info("primary table loaded", "document", opts.Document, "positions", tbl.Size())

	indexed, err := cat.IsIndexed(ctx, opts.Document, opts.Type.String())
	if err != nil {
		slog.Warn("catalog unavailable, rebuilding index", "error", err)
	}
	fresh := rebuild || !indexed

	var (
		reader    *valueindex.Reader
		updatable *valueindex.Updatable
	)
	switch {
	case cfg.Index.Updatable && fresh:
		updatable, err = valueindex.BuildUpdatable(ctx, tbl, opts)
	case cfg.Index.Updatable:
		updatable, err = valueindex.OpenUpdatable(tbl, opts)
	case fresh:
		reader, err = valueindex.Build(ctx, tbl, opts)
	default:
		reader, err = valueindex.Open(tbl, opts)
	}
	if err != nil {
		return fmt.Errorf("preparing %s index: %w", opts.Type, err)
	}
	if updatable != nil {
		reader = updatable.Reader
	}
	defer reader.Close()

	checker := health.NewChecker()
	checker.Register("index", health.Probe(true, func(context.Context) error {
		_, err := reader.Count(nil)
		return err
	}))
	checker.Register("catalog", health.Probe(false, func(ctx context.Context) error {
		_, err := cat.Indexes(ctx, opts.Document)
		return err
	}))
	shutdown := metrics.StartServer(cfg.Server.Port, map[string]http.Handler{
		"/healthz": checker.LiveHandler(),
		"/readyz":  checker.ReadyHandler(),
	})

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.UpdateTopic, updates.NewHandler(opts.Document, updatable, m))
		g.Go(func() error { return consumer.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	st := reader.Stats()
	slog.Info("valued ready",
		"document", opts.Document,
		"index", st.Type,
		"keys", st.Keys,
		"updatable", updatable != nil,
		"update_feed", cfg.Kafka.Enabled,
		"port", cfg.Server.Port,
	)
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	if updatable != nil {
		if err := updatable.Flush(); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	return runErr
}
