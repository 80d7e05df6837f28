package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/crosslane/relayd/params"
	"github.com/crosslane/relayd/pkg/api"
	"github.com/crosslane/relayd/pkg/firehose"
	"github.com/crosslane/relayd/pkg/ledger"
	"github.com/crosslane/relayd/pkg/payments"
	"github.com/crosslane/relayd/pkg/relay"
	"github.com/crosslane/relayd/pkg/store"
	"github.com/crosslane/relayd/pkg/util"
	"github.com/crosslane/relayd/pkg/workflow"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// Console-only logging unless LOG_FILE is set.
	var logger *zap.Logger
	var err error
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		logger, err = util.NewLoggerWithFile(logFile)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// ---- Order store ----
	st, err := store.Open(cfg.Relay.StoragePath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Relay.StoragePath, "err", err)
	}
	defer st.Close()

	// ---- Protocol engine ----
	engine := relay.NewEngine(st, sugar, relay.Options{
		CallTimeout:      cfg.Relay.CallTimeout,
		SubscriberBuffer: cfg.Relay.SubscriberBuffer,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Kafka firehose (optional) ----
	if len(cfg.Firehose.Brokers) > 0 {
		pub := firehose.NewPublisher(cfg.Firehose.Brokers, cfg.Firehose.Topic, engine.Bus(), sugar)
		defer pub.Close()
		go pub.Run(ctx)
		sugar.Infow("firehose_enabled", "brokers", cfg.Firehose.Brokers, "topic", cfg.Firehose.Topic)
	} else {
		sugar.Info("firehose_disabled")
	}

	// ---- Workflow tier (optional, needs a payment daemon) ----
	if cfg.Payments.DaemonURL != "" {
		ldg, err := ledger.Open(cfg.Payments.LedgerPath)
		if err != nil {
			sugar.Fatalw("ledger_open_failed", "path", cfg.Payments.LedgerPath, "err", err)
		}
		defer ldg.Close()

		wf := workflow.New(ldg, payments.NewClient(cfg.Payments.DaemonURL), sugar)
		go wf.RunRefundSettler(ctx, engine.Bus())
		sugar.Infow("workflow_enabled", "daemon", cfg.Payments.DaemonURL)
	} else {
		sugar.Info("workflow_disabled - no payment daemon configured")
	}

	// ---- API server ----
	server := api.NewServer(engine, sugar)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.API.Addr)
	}()

	sugar.Infow("relayd_started", "addr", cfg.API.Addr, "storage", cfg.Relay.StoragePath)

	select {
	case <-ctx.Done():
		sugar.Info("shutting_down")
	case err := <-errCh:
		sugar.Fatalw("api_server_failed", "err", err)
	}
}
