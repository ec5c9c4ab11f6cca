// Package main запускает HTTP-сервер сервиса оформления заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bundle-checkout/internal/config"
	"github.com/mmeshcher/bundle-checkout/internal/handler"
	"github.com/mmeshcher/bundle-checkout/internal/middleware"
	"github.com/mmeshcher/bundle-checkout/internal/payment"
	"github.com/mmeshcher/bundle-checkout/internal/paymentmethod"
	"github.com/mmeshcher/bundle-checkout/internal/pricing"
	"github.com/mmeshcher/bundle-checkout/internal/repository"
	"github.com/mmeshcher/bundle-checkout/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := config.LoadDotEnv(".env"); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	rules, err := pricing.NewStore(cfg.PricingRulesFile)
	if err != nil {
		sugar.Fatalw("pricing rules error", "error", err.Error(), "file", cfg.PricingRulesFile)
	}
	sugar.Infow("pricing rules loaded", "version", rules.Rules().Version)

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	methods := paymentmethod.NewDefaultRegistry()
	providers, err := buildProviders(cfg, logger, methods)
	if err != nil {
		sugar.Fatalw("payment provider error", "error", err.Error())
	}

	svc := service.NewService(repo, rules, methods, providers, logger, service.Options{
		Currency:          cfg.Currency,
		ReconcileInterval: cfg.ReconcileInterval,
		ReconcileMinAge:   cfg.ReconcileMinAge,
	})
	defer svc.Close()

	h := handler.NewHandler(svc, logger, middleware.NewAdminAuth(cfg.AdminSecret))

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая сверка зависших заказов
	g.Go(func() error {
		svc.StartReconciliation(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting checkout server", "addr", cfg.RunAddress, "providers", len(providers))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

// buildProviders подключает платёжные системы, для которых заданы учётные данные.
// Без учётных данных PayPal одноимённый способ оплаты выключается.
func buildProviders(cfg *config.Config, logger *zap.Logger, methods *paymentmethod.Registry) ([]payment.Provider, error) {
	var providers []payment.Provider

	if cfg.StripeSecretKey != "" {
		s, err := payment.NewStripe(payment.StripeConfig{APIKey: cfg.StripeSecretKey, Logger: logger})
		if err != nil {
			return nil, err
		}
		providers = append(providers, s)
	} else {
		logger.Warn("stripe is not configured")
	}

	if cfg.PayPalEnabled() {
		p, err := payment.NewPayPal(payment.PayPalConfig{
			BaseURL:      cfg.PayPalBaseURL,
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			ReturnURL:    returnURL(cfg.PublicBaseURL, "/checkout/paypal/return"),
			CancelURL:    returnURL(cfg.PublicBaseURL, "/checkout/paypal/cancel"),
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	} else {
		logger.Warn("paypal is not configured, disabling payment method")
		if err := methods.Toggle("paypal", false); err != nil {
			return nil, err
		}
	}

	return providers, nil
}

func returnURL(base, path string) string {
	if base == "" {
		return ""
	}
	return base + path
}
