package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/choreo"
	"github.com/aretw0/choreo/internal/config"
	"github.com/aretw0/choreo/pkg/adapters/memory"
	"github.com/aretw0/choreo/pkg/adapters/redis"
	"github.com/aretw0/choreo/pkg/adapters/sqlite"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/observability"
	"github.com/aretw0/choreo/pkg/persistence/middleware"
	"github.com/aretw0/choreo/pkg/ports"
)

// Backend is the storage stack selected by configuration.
type Backend struct {
	Repo ports.Repository
	// Locker is set for drivers shared between processes.
	Locker  ports.DistributedLocker
	closers []func() error
}

// Close releases the underlying connections.
func (b *Backend) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// OpenBackend opens the configured store and wraps it with the configured
// middleware. reg may be nil to skip latency metrics.
func OpenBackend(ctx context.Context, cfg config.StoreConfig, reg prometheus.Registerer) (*Backend, error) {
	b := &Backend{}
	switch cfg.Driver {
	case config.DriverMemory:
		b.Repo = memory.NewStore()
	case config.DriverRedis:
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		if err := store.Client().Ping(ctx).Err(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		b.Repo = store
		b.Locker = redis.NewLocker(store.Client(), cfg.Redis.Prefix)
		b.closers = append(b.closers, store.Close)
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		b.Repo = store
		b.closers = append(b.closers, store.Close)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	var mws []middleware.Middleware
	if reg != nil {
		mw, err := middleware.NewMetricsMiddleware(reg)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		mws = append(mws, mw)
	}
	if len(cfg.MaskSlots) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.MaskSlots))
	}
	active, fallback, err := cfg.Encryption.Keys()
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	b.Repo = middleware.Chain(b.Repo, mws...)
	return b, nil
}

// NewEngine builds an Engine with standard CLI conventions: lifecycle events
// are logged, prompts go to the log, and metrics are recorded when reg is set.
func NewEngine(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*choreo.Engine, *Backend, error) {
	backend, err := OpenBackend(ctx, cfg.Store, reg)
	if err != nil {
		return nil, nil, err
	}

	hooks := []domain.LifecycleHooks{observability.LogHooks(logger)}
	if reg != nil {
		metrics, err := observability.NewMetrics(reg)
		if err != nil {
			_ = backend.Close()
			return nil, nil, err
		}
		hooks = append(hooks, metrics.Hooks())
	}

	opts := []choreo.Option{
		choreo.WithRepository(backend.Repo),
		choreo.WithLogger(logger),
		choreo.WithLifecycleHooks(observability.Merge(hooks...)),
		choreo.WithCompileCache(cfg.Compiler.CacheSize),
		choreo.WithOutbound(TextComposer{}, NewLogNotifier(logger), cfg.Outbound.Timeout),
	}
	if backend.Locker != nil {
		opts = append(opts, choreo.WithLocker(backend.Locker, cfg.Lock.TTL))
	}

	eng, err := choreo.New(opts...)
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return eng, backend, nil
}
