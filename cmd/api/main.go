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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-pix-reconciler/internal/config"
	"github.com/ariefcatur/go-pix-reconciler/internal/httpx"
	kafkax "github.com/ariefcatur/go-pix-reconciler/internal/kafka"
	"github.com/ariefcatur/go-pix-reconciler/internal/orders"
	"github.com/ariefcatur/go-pix-reconciler/internal/postgres"
	"github.com/ariefcatur/go-pix-reconciler/internal/reconcile"
	"github.com/ariefcatur/go-pix-reconciler/internal/redisx"
	"github.com/ariefcatur/go-pix-reconciler/internal/shipping"
	"github.com/ariefcatur/go-pix-reconciler/internal/telemetry"
	"github.com/ariefcatur/go-pix-reconciler/internal/webhook"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(sctx)
	}()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	statusCache := &redisx.OrderStatusCache{RDB: rdb}

	// Kafka producer gets its own context so it can flush after HTTP drains.
	prodCtx, stopProducer := context.WithCancel(context.Background())
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentApproved, 1024)
	prod.Start(prodCtx)

	// Reconciliation + webhook
	rec, err := reconcile.NewService(&orders.PaymentRepo{DB: db}, prod, statusCache, cfg.ServiceName)
	if err != nil {
		stopProducer()
		return err
	}
	var mp httpx.PaymentStatusSource
	if cfg.MercadoPagoAccessToken != "" {
		mp = webhook.NewMercadoPagoClient(cfg.MercadoPagoAPIURL, cfg.MercadoPagoAccessToken, cfg.ProviderTimeout)
	} else {
		slog.Warn("MERCADOPAGO_ACCESS_TOKEN not set; trusting notification action for mercadopago")
	}
	wh, err := httpx.NewWebhookHandler(rec, webhook.Verifier{
		MercadoPagoSecret: cfg.MercadoPagoWebhookSecret,
		PagBankToken:      cfg.PagBankWebhookToken,
	}, mp)
	if err != nil {
		stopProducer()
		return err
	}

	// Shipping
	agg, err := shipping.NewAggregator(
		&shipping.SettingsRepo{DB: db},
		shipping.NewMelhorEnvioClient(cfg.MelhorEnvioURL, cfg.MelhorEnvioSandboxURL, cfg.ShippingServiceIDs, cfg.ProviderTimeout, cfg.ServiceName),
		&redisx.QuoteCache{RDB: rdb},
		cfg.QuoteCacheTTL,
	)
	if err != nil {
		stopProducer()
		return err
	}

	router := httpx.NewRouter()
	wh.Register(router)
	(&httpx.ShippingHandler{Quotes: agg}).Register(router)
	(&httpx.OrdersHandler{Repo: &orders.Repo{DB: db}, Cache: statusCache}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err = g.Wait()

	// no more handlers can publish; flush and close the writer
	stopProducer()
	prod.WaitClosed()
	return err
}
