package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/olimpia-bot/internal/bot"
	"github.com/Spok95/olimpia-bot/internal/commit"
	"github.com/Spok95/olimpia-bot/internal/config"
	"github.com/Spok95/olimpia-bot/internal/dialog"
	"github.com/Spok95/olimpia-bot/internal/domain/catalog"
	"github.com/Spok95/olimpia-bot/internal/domain/counterparties"
	"github.com/Spok95/olimpia-bot/internal/domain/records"
	"github.com/Spok95/olimpia-bot/internal/flow"
	"github.com/Spok95/olimpia-bot/internal/infra/cache"
	"github.com/Spok95/olimpia-bot/internal/infra/db"
	"github.com/Spok95/olimpia-bot/internal/infra/erp"
	httpx "github.com/Spok95/olimpia-bot/internal/infra/http"
	"github.com/Spok95/olimpia-bot/internal/infra/logger"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	// даты заказов и границы выгрузки считаются в местном времени
	if cfg.App.Timezone != "" {
		loc, err := time.LoadLocation(cfg.App.Timezone)
		if err != nil {
			log.Error("bad timezone", "tz", cfg.App.Timezone, "err", err)
			os.Exit(1)
		}
		time.Local = loc
	}
	if err := run(cfg, log); err != nil {
		log.Error("bot stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("graceful shutdown complete")
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres.DSN); err != nil {
		return err
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("db connected")

	deps := map[string]httpx.Pinger{"postgres": pool}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		deps["redis"] = httpx.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		log.Info("redis connected", "addr", cfg.Redis.Addr)
	}

	var (
		store   dialog.Store
		sweeper *dialog.Repo
	)
	switch cfg.Session.Backend {
	case "redis":
		store = dialog.NewRedisStore(rdb, cfg.Session.IdleTTL)
	case "postgres":
		sweeper = dialog.NewRepo(pool, cfg.Session.IdleTTL)
		store = sweeper
	}
	log.Info("session store", "backend", cfg.Session.Backend, "idle_ttl", cfg.Session.IdleTTL)

	ws := make(catalog.Warehouses, 0, len(cfg.ERP.Warehouses))
	for _, w := range cfg.ERP.Warehouses {
		ws = append(ws, catalog.Warehouse{ID: w.ID, Name: w.Name, Path: w.Path})
	}
	erpClient := erp.NewClient(erp.Options{
		BaseURL:            cfg.ERP.BaseURL,
		Username:           cfg.ERP.Username,
		Password:           cfg.ERP.Password,
		InsecureSkipVerify: cfg.ERP.InsecureSkipVerify,
		Timeout:            cfg.ERP.Timeout,
		Retries:            cfg.ERP.Retries,
		Warehouses:         ws,
	}, log)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	log.Info("telegram authorized", "username", api.Self.UserName)

	recs := records.NewRepo(pool)
	cps := counterparties.NewRepo(pool)
	coord := commit.NewCoordinator(erpClient, recs, cps, bot.NewFileFetcher(api), ws, log)
	engine := flow.NewEngine(flow.Standard(ws), dialog.NewManager(store), erpClient, coord, log)
	b := bot.New(api, log, engine, cps, recs, cfg.Telegram.AdminChatID)

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, log, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server started", "addr", cfg.HTTP.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := b.Run(gctx, cfg.Telegram.PollTimeout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if sweeper != nil {
		g.Go(func() error {
			sweep(gctx, sweeper, cfg.Session.SweepInterval, log)
			return nil
		})
	}
	return g.Wait()
}

// sweep периодически удаляет истёкшие сессии из Postgres.
func sweep(ctx context.Context, r *dialog.Repo, every time.Duration, log *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				log.Warn("session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
