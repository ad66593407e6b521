package app

import (
	"context"
	"fmt"

	"github.com/R3E-Network/lottery_layer/internal/app/cache"
	"github.com/R3E-Network/lottery_layer/internal/app/services/admission"
	"github.com/R3E-Network/lottery_layer/internal/app/services/inventory"
	"github.com/R3E-Network/lottery_layer/internal/app/services/prizes"
	"github.com/R3E-Network/lottery_layer/internal/app/services/query"
	"github.com/R3E-Network/lottery_layer/internal/app/services/results"
	"github.com/R3E-Network/lottery_layer/internal/app/services/scheduler"
	"github.com/R3E-Network/lottery_layer/internal/app/services/settlement"
	"github.com/R3E-Network/lottery_layer/internal/app/services/validation"
	"github.com/R3E-Network/lottery_layer/internal/app/storage"
	"github.com/R3E-Network/lottery_layer/internal/app/storage/memory"
	"github.com/R3E-Network/lottery_layer/internal/app/system"
	"github.com/R3E-Network/lottery_layer/internal/balance"
	"github.com/R3E-Network/lottery_layer/internal/config"
	"github.com/R3E-Network/lottery_layer/internal/httputil"
	"github.com/R3E-Network/lottery_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Lotteries    storage.LotteryStore
	Combinations storage.CombinationStore
	Bets         storage.BetStore
	Prizes       storage.PrizeStore
	Results      storage.ResultStore
	Balances     storage.BalanceStore
}

// Options carries the optional infrastructure. A nil Config uses
// config.Default and a nil Redis disables the availability cache and the
// cross-process draw lock.
type Options struct {
	Config *config.Config
	Redis  *cache.RedisService
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Stores     Stores
	Inventory  *inventory.Service
	Balances   *balance.Manager
	Validator  *validation.Validator
	Admission  *admission.Service
	Prizes     *prizes.Catalog
	Settlement *settlement.Engine
	Results    *results.Service
	Query      *query.Service
	Scheduler  *scheduler.Scheduler
	Roller     *scheduler.DrawRoller
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	mem := memory.New()
	if stores.Lotteries == nil {
		stores.Lotteries = mem
	}
	if stores.Combinations == nil {
		stores.Combinations = mem
	}
	if stores.Bets == nil {
		stores.Bets = mem
	}
	if stores.Prizes == nil {
		stores.Prizes = mem
	}
	if stores.Results == nil {
		stores.Results = mem
	}
	if stores.Balances == nil {
		stores.Balances = mem
	}

	manager := system.NewManager()

	var invOpts []inventory.Option
	if opts.Redis != nil && cfg.Inventory.CacheEnabled {
		invOpts = append(invOpts, inventory.WithCache(opts.Redis))
	}
	invService := inventory.New(stores.Combinations, stores.Bets, log, invOpts...)
	balances := balance.NewManager(stores.Balances, log)
	validator := validation.New(invService, balances, stores.Bets)
	admissionService := admission.New(stores.Lotteries, stores.Bets, invService, validator, balances, log)
	catalog := prizes.New(stores.Prizes, log)

	var engineOpts []settlement.Option
	if cfg.Settlement.CreditWinnings {
		engineOpts = append(engineOpts, settlement.WithCredit(balances))
	} else {
		log.Warn("settlement.credit_winnings disabled; winnings are recorded but not paid")
	}
	if opts.Redis != nil {
		engineOpts = append(engineOpts, settlement.WithDrawLock(opts.Redis, cfg.Settlement.LockTTL))
	}
	engine := settlement.New(stores.Lotteries, stores.Bets, catalog, invService, log, engineOpts...)

	var feed results.Fetcher
	if cfg.Feed.URL != "" {
		client := httputil.NewClient(httputil.ClientConfig{
			BaseURL:    cfg.Feed.URL,
			APIKey:     cfg.Feed.APIKey,
			Timeout:    cfg.Feed.Timeout,
			MaxRetries: cfg.Feed.MaxRetries,
		})
		feed = results.NewFeed(client, cfg.Feed.Path)
	} else {
		log.Warn("feed.url not set; result sync disabled")
	}
	resultService := results.New(stores.Lotteries, stores.Results, engine, feed, log)
	queryService := query.New(stores.Lotteries, stores.Bets, stores.Results, invService, catalog)

	sched := scheduler.New(cfg.Scheduler.Location(), log)
	roller := scheduler.NewDrawRoller(stores.Lotteries, log)
	if cfg.Scheduler.Enabled {
		if feed != nil {
			if err := sched.Add(scheduler.ResultSyncJob(cfg.Scheduler.ResultSync, resultService, log)); err != nil {
				return nil, err
			}
		}
		if err := sched.Add(scheduler.DrawRollJob(cfg.Scheduler.DrawRollover, roller)); err != nil {
			return nil, err
		}
		if err := manager.Register(sched); err != nil {
			return nil, fmt.Errorf("register %s: %w", sched.Name(), err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		Stores:     stores,
		Inventory:  invService,
		Balances:   balances,
		Validator:  validator,
		Admission:  admissionService,
		Prizes:     catalog,
		Settlement: engine,
		Results:    resultService,
		Query:      queryService,
		Scheduler:  sched,
		Roller:     roller,
	}, nil
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
