// Package config содержит логику чтения конфигурации сервиса прачечной.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса прачечной.
type Config struct {
	RunAddress           string  `env:"RUN_ADDRESS"`
	DatabaseURI          string  `env:"DATABASE_URI"`
	PaymentSystemAddress string  `env:"PAYMENT_SYSTEM_ADDRESS"`
	DispatchRadiusKm     float64 `env:"DISPATCH_RADIUS_KM"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPaymentAddress := cfg.PaymentSystemAddress
	envRadius := cfg.DispatchRadiusKm

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentSystemAddress, "p", "", "payment system address")
	flag.Float64Var(&cfg.DispatchRadiusKm, "r", 30.0, "max outlet dispatch radius in km")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPaymentAddress != "" {
		cfg.PaymentSystemAddress = envPaymentAddress
	}
	if envRadius != 0 {
		cfg.DispatchRadiusKm = envRadius
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.DispatchRadiusKm <= 0 {
		cfg.DispatchRadiusKm = 30.0
	}

	return cfg, nil
}
