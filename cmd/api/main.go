package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mcclellann/installments/pkg/config"
	"github.com/mcclellann/installments/pkg/ledger"
	"github.com/mcclellann/installments/pkg/notify"
	"github.com/mcclellann/installments/pkg/store"
	"github.com/mcclellann/installments/pkg/sweeper"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	planStore, err := store.Open(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to initialize %s store: %v", cfg.DBDriver, err)
	}
	defer planStore.Close()
	logger.Infof("Database connection established (%s)", cfg.DBDriver)

	clock := ledger.SystemClock{}
	l := ledger.NewLedger(planStore,
		ledger.WithClock(clock),
		ledger.WithLogger(logger),
		ledger.WithCappedOverpayment(cfg.CapOverpayment),
	)

	var notifier sweeper.Notifier
	if cfg.NoticesEnabled() {
		notifier = notify.NewEmailNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SenderEmail,
			To:       cfg.OverdueNoticeTo,
		}, logger)
	}
	sw := sweeper.New(l, clock, cfg.SweepInterval, notifier, logger)

	server := NewServer(planStore, l, sw, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sw.Run(ctx)
	}()

	addr := fmt.Sprintf(":%s", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown failed: %v", err)
		}
	}()

	logger.Infof("Server starting on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Server failed: %v", err)
		stop()
	}

	wg.Wait()
	logger.Info("Server stopped")
}
