package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/storefront-cart/internal/cart"
	"github.com/nikolayk812/storefront-cart/internal/checkout"
	"github.com/nikolayk812/storefront-cart/internal/config"
	"github.com/nikolayk812/storefront-cart/internal/logging"
	"github.com/nikolayk812/storefront-cart/internal/notify"
	"github.com/nikolayk812/storefront-cart/internal/port"
	"github.com/nikolayk812/storefront-cart/internal/productapi"
	"github.com/nikolayk812/storefront-cart/internal/storage/filestore"
	"github.com/nikolayk812/storefront-cart/internal/storage/memstore"
	"github.com/nikolayk812/storefront-cart/internal/storage/pgstore"
	"github.com/nikolayk812/storefront-cart/internal/storage/redisstore"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// backend is a storage slot that can also report changes made elsewhere.
type backend interface {
	port.Storage
	port.StorageWatcher
}

// app holds everything a cart command needs, built once per invocation.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	storage  backend
	notifier *notify.Notifier
	store    *cart.Store
	catalog  port.ProductCatalog
	checkout *checkout.Service

	closers []func()
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging.New: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	unit, err := a.cfg.CurrencyUnit()
	if err != nil {
		return err
	}

	a.storage, err = a.openBackend(ctx)
	if err != nil {
		return fmt.Errorf("a.openBackend: %w", err)
	}

	a.notifier = notify.New(a.cfg.Cart.Key, notify.WithLogger(a.logger))

	a.store, err = cart.NewStore(a.storage, a.notifier,
		cart.WithKey(a.cfg.Cart.Key),
		cart.WithCurrency(unit),
		cart.WithLogger(a.logger),
		cart.WithMetrics(cart.NewMetrics(a.registry)))
	if err != nil {
		return fmt.Errorf("cart.NewStore: %w", err)
	}

	a.catalog, err = productapi.New(a.cfg.API.BaseURL,
		productapi.WithTimeout(a.cfg.API.Timeout),
		productapi.WithCurrency(unit),
		productapi.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("productapi.New: %w", err)
	}

	a.checkout, err = checkout.NewService(a.catalog, a.store, checkout.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("checkout.NewService: %w", err)
	}

	return nil
}

func (a *app) openBackend(ctx context.Context) (backend, error) {
	sc := a.cfg.Storage

	switch sc.Backend {
	case config.BackendMemory:
		return memstore.NewOrigin().Open(), nil

	case config.BackendFile:
		s, err := filestore.New(filepath.Join(sc.Dir, sc.Origin), filestore.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("filestore.New: %w", err)
		}
		return s, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, sc.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("pgxpool.New: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("pool.Ping: %w", err)
		}

		s, err := pgstore.New(pool, sc.Origin, pgstore.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("pgstore.New: %w", err)
		}
		return s, nil

	case config.BackendRedis:
		client, err := redisstore.Connect(ctx, sc.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redisstore.Connect: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })

		s, err := redisstore.New(client, sc.Origin, redisstore.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("redisstore.New: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("storage.backend[%s] is not supported", sc.Backend)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
