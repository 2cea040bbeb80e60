// Package config is the godotenv-backed settings loader mirroring the
// teacher's flag/env-var-per-setting convention in cmd/server/main.go: every
// setting has a CORELEDGER_* environment variable and a sane default, loaded
// once at process start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"coreledger/internal/domestictransfer"
)

// Config bundles every environment-driven setting the server needs to wire
// the journal, sharding, breaker, billing throttle, and outbound
// collaborators.
type Config struct {
	Host string
	Port int

	// Database is a sqlite://path or postgresql://... URL, parsed the same
	// way the teacher's parseDatabase does.
	Database string

	EtcdEndpoints []string

	RedisAddr string

	SendgridAPIKey string
	SendgridFrom   string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	GatewayBaseURL string

	BreakerFailureThreshold int
	BreakerCooldown         time.Duration

	BillingThrottleRate  float64
	BillingThrottleBurst int

	FeeThreshold string // decimal string, parsed by the caller into money.Amount
	FeeAmount    string
}

// Load reads a .env file if present (godotenv.Load reports a missing file
// as an error; Load ignores that case) and then populates Config from the
// process environment, applying defaults for anything unset.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	cfg := Config{
		Host:                    getString("CORELEDGER_HOST", "0.0.0.0"),
		Port:                    getInt("CORELEDGER_PORT", 8080),
		Database:                getString("CORELEDGER_DATABASE", "sqlite://./data/coreledger.db"),
		EtcdEndpoints:           getStringSlice("CORELEDGER_ETCD_ENDPOINTS", nil),
		RedisAddr:               getString("CORELEDGER_REDIS_ADDR", "localhost:6379"),
		SendgridAPIKey:          getString("CORELEDGER_SENDGRID_API_KEY", ""),
		SendgridFrom:            getString("CORELEDGER_SENDGRID_FROM", "statements@coreledger.example"),
		MinioEndpoint:           getString("CORELEDGER_MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:          getString("CORELEDGER_MINIO_ACCESS_KEY", ""),
		MinioSecretKey:          getString("CORELEDGER_MINIO_SECRET_KEY", ""),
		MinioBucket:             getString("CORELEDGER_MINIO_BUCKET", "billing-statements"),
		MinioUseSSL:             getBool("CORELEDGER_MINIO_USE_SSL", false),
		GatewayBaseURL:          getString("CORELEDGER_GATEWAY_BASE_URL", "http://localhost:9100"),
		BreakerFailureThreshold: getInt("CORELEDGER_BREAKER_FAILURE_THRESHOLD", domestictransfer.DefaultBreakerConfig.FailureThreshold),
		BreakerCooldown:         getDuration("CORELEDGER_BREAKER_COOLDOWN", domestictransfer.DefaultBreakerConfig.Cooldown),
		BillingThrottleRate:     getFloat("CORELEDGER_BILLING_THROTTLE_RATE", 20),
		BillingThrottleBurst:    getInt("CORELEDGER_BILLING_THROTTLE_BURST", 20),
		FeeThreshold:            getString("CORELEDGER_FEE_THRESHOLD", "250"),
		FeeAmount:               getString("CORELEDGER_FEE_AMOUNT", "12"),
	}
	return cfg, nil
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getStringSlice(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
