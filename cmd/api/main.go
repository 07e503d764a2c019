package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/littlewears/littlewears-backend/api/routes"
	"github.com/littlewears/littlewears-backend/internal/commission"
	"github.com/littlewears/littlewears-backend/internal/ledger"
	"github.com/littlewears/littlewears-backend/internal/notifications"
	"github.com/littlewears/littlewears-backend/internal/orders"
	"github.com/littlewears/littlewears-backend/pkg/bank"
	"github.com/littlewears/littlewears-backend/pkg/config"
	"github.com/littlewears/littlewears-backend/pkg/db"
	"github.com/littlewears/littlewears-backend/pkg/logger"
	"github.com/littlewears/littlewears-backend/pkg/migrate"
	"github.com/littlewears/littlewears-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	bankClient, err := bank.NewClient(context.Background(), cfg.Bank, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create bank client", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(logg, nil, cfg.Email)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	fees, err := ledger.FeesFromConfig(cfg.Fees)
	if err != nil {
		logg.Error(context.Background(), "failed to parse fee configuration", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Logger:   logg,
		Repo:     ledger.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Orders:   ordersRepo,
		Gateway:  bankClient,
		Notifier: notificationsService,
		Fees:     fees,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	defaultRate, err := commission.DefaultRateFromConfig(cfg.Fees)
	if err != nil {
		logg.Error(context.Background(), "failed to parse commission rate", err)
		os.Exit(1)
	}

	commissionService, err := commission.NewService(commission.ServiceParams{
		Logger:      logg,
		Repo:        commission.NewRepository(dbClient.DB()),
		Tx:          dbClient,
		Gateway:     bankClient,
		Notifier:    notificationsService,
		DefaultRate: defaultRate,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create commission service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Logger:         logg,
		Repo:           ordersRepo,
		Tx:             dbClient,
		Earnings:       ledgerService,
		Commissions:    commissionService,
		Notifier:       notificationsService,
		ReservationTTL: cfg.Orders.ReservationTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, ordersService, ledgerService, commissionService, bankClient),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
