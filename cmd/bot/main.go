package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/Spok95/pos-bot/internal/bot"
	"github.com/Spok95/pos-bot/internal/config"
	"github.com/Spok95/pos-bot/internal/dialog"
	"github.com/Spok95/pos-bot/internal/domain/items"
	"github.com/Spok95/pos-bot/internal/domain/orders"
	"github.com/Spok95/pos-bot/internal/domain/users"
	"github.com/Spok95/pos-bot/internal/infra/db"
	httpx "github.com/Spok95/pos-bot/internal/infra/http"
	"github.com/Spok95/pos-bot/internal/infra/logger"
	"github.com/Spok95/pos-bot/internal/infra/pricing"
)

func runMigrations(dsn string, log *slog.Logger) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	if err := goose.Up(sqlDB, "migrations"); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func main() {
	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN, log); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}
	log.Info("telegram authorized", "bot", api.Self.UserName)

	usersRepo := users.NewRepo(pool)
	statesRepo := dialog.NewRepo(pool)
	itemsRepo := items.NewRepo(pool)
	ordersRepo := orders.NewRepo(pool)
	pricer := pricing.NewService(cfg.Pricing.BaseURL)

	b := bot.New(api, log, usersRepo, statesRepo, itemsRepo, ordersRepo, pricer,
		cfg.Telegram.AdminChatID, bot.POSConfig{
			PriceList:          cfg.POS.PriceList,
			Currency:           cfg.POS.Currency,
			Company:            cfg.POS.Company,
			PageLength:         cfg.POS.PageLength,
			SearchDebounce:     time.Duration(cfg.POS.SearchDebounceMs) * time.Millisecond,
			DeliveryOffsetDays: cfg.POS.DeliveryOffsetDays,
		})

	go func() {
		if err := b.Run(ctx, 30); err != nil && ctx.Err() == nil {
			log.Error("bot stopped", "err", err)
		}
	}()
	log.Info("bot started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
