// Package config содержит логику чтения конфигурации расчётного ядра.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultRunAddress   = "localhost:8080"
	defaultExchangeRate = "1"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	DatabaseURI  string `env:"DATABASE_URI"`
	RedisAddr    string `env:"REDIS_ADDR"`
	ExchangeRate string `env:"EXCHANGE_RATE"`

	AuthSecret string `env:"AUTH_SECRET"`
	AdminToken string `env:"ADMIN_TOKEN"`

	PaymentBankID     string `env:"PAYMENT_BANK_ID" envDefault:"970422"`
	PaymentAccountNo  string `env:"PAYMENT_ACCOUNT_NO"`
	PaymentQRTemplate string `env:"PAYMENT_QR_TEMPLATE" envDefault:"compact"`

	TierSyncInterval       time.Duration `env:"TIER_SYNC_INTERVAL" envDefault:"1h"`
	MonthlyVoucherInterval time.Duration `env:"MONTHLY_VOUCHER_INTERVAL" envDefault:"6h"`
	NotifyBuffer           int           `env:"NOTIFY_BUFFER" envDefault:"256"`
}

// Rate возвращает курс пересчёта суммы пополнения в валюту кошелька.
func (c *Config) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.ExchangeRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse exchange rate %q: %w", c.ExchangeRate, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("exchange rate must be positive, got %s", rate)
	}
	return rate, nil
}

// Parse считывает конфигурацию из файла .env (если он есть), флагов командной
// строки и переменных окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddr := cfg.RedisAddr
	envExchangeRate := cfg.ExchangeRate

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, empty runs on the in-memory store")
	flag.StringVar(&cfg.RedisAddr, "r", "", "redis address for notifications, empty logs them")
	flag.StringVar(&cfg.ExchangeRate, "x", defaultExchangeRate, "deposit exchange rate")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddr != "" {
		cfg.RedisAddr = envRedisAddr
	}
	if envExchangeRate != "" {
		cfg.ExchangeRate = envExchangeRate
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.ExchangeRate == "" {
		cfg.ExchangeRate = defaultExchangeRate
	}

	if _, err := cfg.Rate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
