package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetAll clears every CORELEDGER_* variable this package reads so each test
// starts from a clean process environment, regardless of what ran before it.
func unsetAll(t *testing.T) {
	t.Helper()
	keys := []string{
		"CORELEDGER_HOST", "CORELEDGER_PORT", "CORELEDGER_DATABASE",
		"CORELEDGER_ETCD_ENDPOINTS", "CORELEDGER_REDIS_ADDR",
		"CORELEDGER_SENDGRID_API_KEY", "CORELEDGER_SENDGRID_FROM",
		"CORELEDGER_MINIO_ENDPOINT", "CORELEDGER_MINIO_ACCESS_KEY",
		"CORELEDGER_MINIO_SECRET_KEY", "CORELEDGER_MINIO_BUCKET",
		"CORELEDGER_MINIO_USE_SSL", "CORELEDGER_GATEWAY_BASE_URL",
		"CORELEDGER_BREAKER_FAILURE_THRESHOLD", "CORELEDGER_BREAKER_COOLDOWN",
		"CORELEDGER_BILLING_THROTTLE_RATE", "CORELEDGER_BILLING_THROTTLE_BURST",
		"CORELEDGER_FEE_THRESHOLD", "CORELEDGER_FEE_AMOUNT",
	}
	for _, k := range keys {
		v, ok := os.LookupEnv(k)
		os.Unsetenv(k)
		if ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoad_DefaultsWhenNoEnvVarsSet(t *testing.T) {
	unsetAll(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite://./data/coreledger.db", cfg.Database)
	assert.Nil(t, cfg.EtcdEndpoints)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "billing-statements", cfg.MinioBucket)
	assert.False(t, cfg.MinioUseSSL)
	assert.Equal(t, "250", cfg.FeeThreshold)
	assert.Equal(t, "12", cfg.FeeAmount)
}

func TestLoad_EnvFileOverridesDefaults(t *testing.T) {
	unsetAll(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"CORELEDGER_PORT=9999\n"+
			"CORELEDGER_ETCD_ENDPOINTS=etcd-1:2379,etcd-2:2379\n"+
			"CORELEDGER_MINIO_USE_SSL=true\n"+
			"CORELEDGER_BREAKER_COOLDOWN=45s\n",
	), 0o600))

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, []string{"etcd-1:2379", "etcd-2:2379"}, cfg.EtcdEndpoints)
	assert.True(t, cfg.MinioUseSSL)
	assert.Equal(t, 45*time.Second, cfg.BreakerCooldown)
	// Untouched settings still fall back to their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Host)
}

func TestLoad_MissingEnvFileIsNotAnError(t *testing.T) {
	unsetAll(t)

	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.env"))
	require.NoError(t, err)
}

func TestLoad_ProcessEnvironmentWinsOverEnvFile(t *testing.T) {
	unsetAll(t)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CORELEDGER_HOST=from-file\n"), 0o600))

	t.Setenv("CORELEDGER_HOST", "from-process")

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "from-process", cfg.Host, "godotenv.Load must not override a variable already set in the process environment")
}

func TestLoad_InvalidNumericValueFallsBackToDefault(t *testing.T) {
	unsetAll(t)
	t.Setenv("CORELEDGER_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}
