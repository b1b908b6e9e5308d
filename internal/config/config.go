// Package config loads engine configuration from the environment, merging a
// .env file if one is present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the full engine configuration.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	// CacheTTL bounds Redis market-cache staleness.
	CacheTTL time.Duration

	// FeeRate is the fraction of gross taken as fee on every trade.
	FeeRate decimal.Decimal
	// CapFraction bounds a single trade relative to the relevant reserve.
	CapFraction decimal.Decimal
	// UsageCeiling is the hard stop on cumulative pool usage.
	UsageCeiling decimal.Decimal
	// DrawFraction converts a net deposit into pool capital consumed.
	DrawFraction decimal.Decimal

	// SettlementLatency is the simulated backend confirmation delay.
	SettlementLatency time.Duration
	// SettlementTimeout bounds how long a trade waits for confirmation.
	SettlementTimeout time.Duration
	// ReconcileInterval is how often the mirror is checked against the
	// backend. Zero disables the reconcile loop.
	ReconcileInterval time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged first (silently ignored if missing). Unset variables
// fall back to development defaults.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              "8080",
		CacheTTL:          30 * time.Second,
		FeeRate:           decimal.NewFromFloat(0.015),
		CapFraction:       decimal.NewFromFloat(0.95),
		UsageCeiling:      decimal.NewFromFloat(0.95),
		DrawFraction:      decimal.NewFromFloat(0.4),
		SettlementLatency: 100 * time.Millisecond,
		SettlementTimeout: 10 * time.Second,
		ReconcileInterval: time.Minute,
	}

	setStr(&cfg.Port, "PORT")
	setStr(&cfg.DatabaseURL, "DATABASE_URL")
	setStr(&cfg.RedisURL, "REDIS_URL")
	setDuration(&cfg.CacheTTL, "CACHE_TTL")

	setDecimal(&cfg.FeeRate, "FEE_RATE")
	setDecimal(&cfg.CapFraction, "CAP_FRACTION")
	setDecimal(&cfg.UsageCeiling, "USAGE_CEILING")
	setDecimal(&cfg.DrawFraction, "DRAW_FRACTION")

	setDuration(&cfg.SettlementLatency, "SETTLEMENT_LATENCY")
	setDuration(&cfg.SettlementTimeout, "SETTLEMENT_TIMEOUT")
	setDuration(&cfg.ReconcileInterval, "RECONCILE_INTERVAL")

	return cfg
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	// Bare numbers are taken as seconds.
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}
