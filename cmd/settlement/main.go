package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/percystore/smartsales/internal/config"
	kafkax "github.com/percystore/smartsales/internal/kafka"
	"github.com/percystore/smartsales/internal/orders"
	"github.com/percystore/smartsales/internal/postgres"
	"github.com/percystore/smartsales/internal/redisx"
	"github.com/percystore/smartsales/internal/settlement"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	cfg.ServiceName += "-settlement"
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

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// settled orders are announced the same way the API does
	paid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024)
	paid.Start(ctx)

	engine := &orders.Engine{
		Store:    &orders.Repo{DB: db},
		Events:   map[string]orders.Publisher{orders.TopicOrderPaid: paid},
		Producer: cfg.ServiceName,
		Currency: cfg.Currency,
	}
	svc := &settlement.Service{
		Settler:     engine,
		Redis:       rdb,
		ServiceName: cfg.ServiceName,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.SettlementGroup, orders.TopicPaymentCallbacks, cfg.SettlementWorkers)
	go func() {
		slog.Info("settlement consumer started",
			"group", cfg.SettlementGroup, "topic", orders.TopicPaymentCallbacks, "workers", cfg.SettlementWorkers)
		if err := cons.Start(ctx, svc.HandleCallback); err != nil {
			slog.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	slog.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
	paid.Close()
	paid.WaitClosed()
}
