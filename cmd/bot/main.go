package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_intake_bot/internal/config"
	"tg_intake_bot/internal/feature/intake"
	"tg_intake_bot/internal/feature/reply"
	"tg_intake_bot/internal/health"
	"tg_intake_bot/internal/logging"
	"tg_intake_bot/internal/store"
	"tg_intake_bot/internal/telegram"
)

const (
	healthShutdownTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(cfg.FormatRedacted())
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"data_dir": cfg.DataDir,
	}).Info("configuration loaded")

	tickets, err := store.NewTicketStore(cfg.DataDir, logger)
	if err != nil {
		logger.WithError(err).Error("ticket store setup error")
		fmt.Fprintf(os.Stderr, "ticket store setup error: %v\n", err)
		os.Exit(1)
	}

	counter, err := store.OpenCounter(cfg.DataDir, cfg.InitialCounter, logger)
	if err != nil {
		logger.WithError(err).Error("counter setup error")
		fmt.Fprintf(os.Stderr, "counter setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logging.Fields{
		"event":       "store_ready",
		"tickets":     tickets.Count(),
		"next_ticket": counter.Peek(),
	}).Info("ticket store opened")

	dispatcher := intake.NewDispatcher(tickets, counter, cfg.GroupID, logger)
	flow := intake.NewFlow(intake.NewSessions(), dispatcher, logger)
	replyRouter := reply.NewRouter(tickets, cfg.GroupID, logger)

	tgClient, err := telegram.NewClient(cfg, logger,
		telegram.WithIntakeFlow(flow),
		telegram.WithReplyRouter(replyRouter),
	)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, cfg.PingKey, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	} else {
		logger.WithField("event", "health_shutdown").Info("health server stopped")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
