// Package config содержит логику чтения конфигурации сервиса оформления заказов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultPayPalBaseURL     = "https://api-m.paypal.com"
	defaultCurrency          = "usd"
	defaultReconcileInterval = time.Minute
	defaultReconcileMinAge   = 10 * time.Minute
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	StripeSecretKey    string `env:"STRIPE_SECRET_KEY"`
	PayPalClientID     string `env:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string `env:"PAYPAL_CLIENT_SECRET"`
	PayPalBaseURL      string `env:"PAYPAL_BASE_URL"`
	PublicBaseURL      string `env:"PUBLIC_BASE_URL"`

	Currency         string `env:"CURRENCY"`
	PricingRulesFile string `env:"PRICING_RULES_FILE"`
	AdminSecret      string `env:"ADMIN_SECRET"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL"`
	ReconcileMinAge   time.Duration `env:"RECONCILE_MIN_AGE"`
}

// PayPalEnabled сообщает, заданы ли учётные данные PayPal.
func (c *Config) PayPalEnabled() bool {
	return c.PayPalClientID != "" && c.PayPalClientSecret != ""
}

// LoadDotEnv дописывает в окружение переменные из файла .env. Уже заданные переменные не меняются,
// отсутствие файла ошибкой не считается.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.StripeSecretKey, "s", "", "stripe secret key")
	flag.StringVar(&cfg.PayPalBaseURL, "p", defaultPayPalBaseURL, "paypal REST API base URL")
	flag.StringVar(&cfg.PricingRulesFile, "rules", "", "pricing rules YAML file (embedded rules if empty)")
	flag.StringVar(&cfg.Currency, "currency", defaultCurrency, "ISO currency code for payments")
	flag.StringVar(&cfg.PublicBaseURL, "public-url", "", "public storefront URL for payment redirects")
	flag.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", defaultReconcileInterval, "pending orders reconciliation interval")
	flag.DurationVar(&cfg.ReconcileMinAge, "reconcile-min-age", defaultReconcileMinAge, "minimum age of a pending order before reconciliation")

	flag.Parse()

	overrideString(&cfg.RunAddress, envCfg.RunAddress)
	overrideString(&cfg.DatabaseURI, envCfg.DatabaseURI)
	overrideString(&cfg.StripeSecretKey, envCfg.StripeSecretKey)
	overrideString(&cfg.PayPalBaseURL, envCfg.PayPalBaseURL)
	overrideString(&cfg.PricingRulesFile, envCfg.PricingRulesFile)
	overrideString(&cfg.Currency, envCfg.Currency)
	overrideString(&cfg.PublicBaseURL, envCfg.PublicBaseURL)
	if envCfg.ReconcileInterval > 0 {
		cfg.ReconcileInterval = envCfg.ReconcileInterval
	}
	if envCfg.ReconcileMinAge > 0 {
		cfg.ReconcileMinAge = envCfg.ReconcileMinAge
	}

	cfg.PayPalClientID = envCfg.PayPalClientID
	cfg.PayPalClientSecret = envCfg.PayPalClientSecret
	cfg.AdminSecret = envCfg.AdminSecret

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	return cfg, nil
}

func overrideString(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}
