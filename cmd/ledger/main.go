// Package main запускает HTTP-сервер расчётного ядра и его фоновые задачи.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/chatbox-ledger/internal/config"
	"github.com/mmeshcher/chatbox-ledger/internal/handler"
	"github.com/mmeshcher/chatbox-ledger/internal/middleware"
	"github.com/mmeshcher/chatbox-ledger/internal/notify"
	"github.com/mmeshcher/chatbox-ledger/internal/repository"
	"github.com/mmeshcher/chatbox-ledger/internal/repository/memstore"
	"github.com/mmeshcher/chatbox-ledger/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	rate, err := cfg.Rate()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	store, err := openStore(cfg, sugar)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}

	sink, closeSink := openSink(cfg, logger)
	defer closeSink()

	dispatcher := notify.NewDispatcher(sink, cfg.NotifyBuffer, logger)

	svc := service.NewService(store, service.Settings{
		ExchangeRate: rate,
		Payment: service.PaymentConfig{
			BankID:     cfg.PaymentBankID,
			AccountNo:  cfg.PaymentAccountNo,
			QRTemplate: cfg.PaymentQRTemplate,
		},
	}, dispatcher, logger)
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, identity cookies will not survive a restart")
	}
	if cfg.AdminToken == "" {
		sugar.Warn("ADMIN_TOKEN is empty, admin routes are disabled")
	}

	h := handler.NewHandler(svc, logger, middleware.NewAuthMiddleware(cfg.AuthSecret), cfg.AdminToken)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	g.Go(func() error {
		return svc.RunTierSync(ctx, cfg.TierSyncInterval)
	})

	g.Go(func() error {
		return svc.RunMonthlyVouchers(ctx, cfg.MonthlyVoucherInterval)
	})

	g.Go(func() error {
		sugar.Infow("starting ledger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

// openStore открывает Postgres или, если DATABASE_URI пуст, хранилище в памяти.
func openStore(cfg *config.Config, sugar *zap.SugaredLogger) (service.Store, error) {
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is empty, using in-memory store")
		return memstore.New(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}

func openSink(cfg *config.Config, logger *zap.Logger) (notify.Sink, func()) {
	if cfg.RedisAddr == "" {
		return notify.NewLogSink(logger), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis is unreachable, notifications will be dropped until it recovers",
			zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	return notify.NewRedisSink(client, logger), func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis client", zap.Error(err))
		}
	}
}
