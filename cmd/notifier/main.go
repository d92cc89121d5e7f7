package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-pix-reconciler/internal/config"
	kafkax "github.com/ariefcatur/go-pix-reconciler/internal/kafka"
	"github.com/ariefcatur/go-pix-reconciler/internal/notify"
	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
	"github.com/ariefcatur/go-pix-reconciler/internal/postgres"
	"github.com/ariefcatur/go-pix-reconciler/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("notifier exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Store: &notify.Repo{DB: db},
		Dedup: &redisx.Dedup{RDB: rdb, Service: "notifier"},
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicPaymentApproved, cfg.NotifierWorkers)
	slog.Info("notifier consumer started",
		"group", cfg.NotifierGroup, "topic", orders.TopicPaymentApproved, "workers", cfg.NotifierWorkers)

	if err := cons.Start(ctx, svc.HandlePaymentApproved); err != nil {
		return err
	}
	slog.Info("notifier stopped")
	return nil
}
