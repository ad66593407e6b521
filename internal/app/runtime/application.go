package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/R3E-Network/lottery_layer/internal/app"
	"github.com/R3E-Network/lottery_layer/internal/app/cache"
	"github.com/R3E-Network/lottery_layer/internal/app/httpapi"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/lottery_layer/internal/config"
	"github.com/R3E-Network/lottery_layer/internal/middleware"
	"github.com/R3E-Network/lottery_layer/internal/platform/migrations"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	app     *app.Application
	handler http.Handler
	server  *http.Server
	limiter *middleware.RateLimiter
	db      *sqlx.DB
	redis   *cache.RedisService

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewApplication builds the service from cfg. A nil cfg is loaded from the
// config file and environment. Without a database DSN the in-memory stores
// are used.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	log := logger.New(cfg.Logging)

	a := &Application{cfg: cfg, log: log}
	stores := app.Stores{}
	if cfg.Database.DSN != "" {
		db, err := openDatabase(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
		if cfg.Database.MigrateOnStart {
			version, err := migrations.Up(db.DB)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("migrate database: %w", err)
			}
			log.WithField("version", version).Info("database migrated")
		}
		store := postgres.New(db)
		stores = app.Stores{
			Lotteries:    store,
			Combinations: store,
			Bets:         store,
			Prizes:       store,
			Results:      store,
			Balances:     store,
		}
	} else {
		log.Warn("database.dsn not set; using in-memory stores")
	}

	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rs, err := cache.NewRedisService(ctx, cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.CacheTTL,
		})
		cancel()
		if err != nil {
			a.closeResources()
			return nil, err
		}
		a.redis = rs
	}

	application, err := app.New(stores, app.Options{Config: cfg, Redis: a.redis}, log)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("build application: %w", err)
	}
	a.app = application

	if cfg.RateLimit.RequestsPerSecond > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	}
	handler, err := httpapi.NewHandler(application, httpapi.Options{
		Auth:        cfg.Auth,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimiter: a.limiter,
		AuditPath:   cfg.Server.AuditLog,
		Health:      a.health,
	}, log)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.handler = handler
	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return a, nil
}

// App exposes the service container.
func (a *Application) App() *app.Application { return a.app }

// Handler exposes the routed API.
func (a *Application) Handler() http.Handler { return a.handler }

// Run starts the background services and the HTTP server, and blocks until
// ctx is cancelled or the server fails. Either way the application is shut
// down before Run returns.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.limiter != nil {
		a.limiter.StartCleanup(gctx, time.Minute)
	}
	g.Go(func() error {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.Background())
	})
	return g.Wait()
}

// Shutdown stops the HTTP server, the services and the connections. Only the
// first call does any work.
func (a *Application) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		if err := a.app.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("services: %w", err))
		}
		a.closeResources()
		a.shutdownErr = errors.Join(errs...)
	})
	return a.shutdownErr
}

func (a *Application) health(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Client().Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *Application) closeResources() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
}

// OpenDatabase opens and pings the configured Postgres database.
func OpenDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	return openDatabase(cfg)
}

func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
