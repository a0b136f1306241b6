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
	"github.com/percystore/smartsales/internal/audit"
	"github.com/percystore/smartsales/internal/auth"
	"github.com/percystore/smartsales/internal/cart"
	"github.com/percystore/smartsales/internal/catalog"
	"github.com/percystore/smartsales/internal/config"
	"github.com/percystore/smartsales/internal/httpx"
	kafkax "github.com/percystore/smartsales/internal/kafka"
	"github.com/percystore/smartsales/internal/orders"
	"github.com/percystore/smartsales/internal/payments"
	"github.com/percystore/smartsales/internal/postgres"
	"github.com/percystore/smartsales/internal/redisx"
	"github.com/percystore/smartsales/internal/report"
	"github.com/percystore/smartsales/internal/settlement"
	"github.com/percystore/smartsales/internal/users"
	"github.com/percystore/smartsales/internal/verify"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(cfg.Logger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			slog.Error("migrate", "err", err)
			os.Exit(1)
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	topics := []string{orders.TopicOrderCreated, orders.TopicOrderPaid, orders.TopicOrderVoided, orders.TopicOrderStatusChanged}
	producers := make([]*kafkax.Producer, 0, len(topics)+1)
	events := map[string]orders.Publisher{}
	for _, t := range topics {
		p := kafkax.NewProducer(cfg.KafkaBrokers, t, 1024)
		p.Start(ctx)
		producers = append(producers, p)
		events[t] = p
	}

	keys := auth.NewKeys(cfg.JWTSecret, cfg.JWTTTL)
	codes := &verify.Service{
		Store:      verify.RedisStore{RDB: rdb},
		Email:      verify.SMTPSender{Cfg: cfg.SMTP},
		Phone:      verify.NewTwilioSender(cfg.Twilio),
		Production: cfg.Production(),
	}
	userRepo := &users.Repo{DB: db}

	engine := &orders.Engine{
		Store:    &orders.Repo{DB: db},
		Events:   events,
		Producer: cfg.ServiceName,
		Currency: cfg.Currency,
	}
	if cfg.StripeSecretKey != "" {
		engine.Gateway = payments.NewStripeGateway(cfg.StripeSecretKey)
	}

	var hooks []payments.Webhook
	if cfg.StripeWebhookSecret != "" {
		hooks = append(hooks, payments.StripeWebhook{Secret: cfg.StripeWebhookSecret})
	}
	if cfg.QRWebhookSecret != "" {
		hooks = append(hooks, payments.QRWebhook{Secret: cfg.QRWebhookSecret})
	}
	settle := &settlement.Service{Settler: engine, Redis: rdb, ServiceName: cfg.ServiceName}
	if cfg.WebhookAsync {
		p := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentCallbacks, 1024)
		p.Start(ctx)
		producers = append(producers, p)
		settle.Callbacks = p
	}

	auditRepo := &audit.Repo{DB: db}
	archive := &report.Repo{DB: db}

	router := httpx.NewRouter()
	api := &httpx.API{
		Keys:     keys,
		Accounts: &users.Service{Accounts: userRepo, Keys: keys, Codes: codes},
		Profiles: userRepo,
		Codes:    codes,
		Catalog:  &catalog.Repo{DB: db},
		Carts:    &cart.Repo{DB: db, Currency: cfg.Currency},
		Engine:   engine,
		Orders:   &orders.Repo{DB: db},
		Reports:  report.NewService(&report.PGSource{DB: db}, auditRepo, archive),
		Archive:  archive,
		Audit:    auditRepo,
		Settle:   settle,
		Webhooks: payments.NewRegistry(hooks...),
		Currency: cfg.Currency,
	}
	api.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr, "webhook_providers", len(hooks), "async_settlement", settle.Async())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // close inbox, the loop flushes and closes the writer
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
