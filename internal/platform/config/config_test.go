package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/linetrace_test?sslmode=disable")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultAuditTopic, cfg.AuditTopic)
	assert.Equal(t, DefaultTxTimeout, cfg.TxTimeout)
	assert.NotEmpty(t, cfg.JWTSigningKey, "dev fallback key expected")
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("addr: \":9090\"\ndatabase_url: \"postgres://file/db\"\ntx_timeout: 10s\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("DATABASE_URL", "postgres://env/db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL, "env overrides file")
	assert.Equal(t, 10*time.Second, cfg.TxTimeout)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load("")
	require.Error(t, err)
}

func TestProductionRequiresSigningKey(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("LINETRACE_ENV", "production")
	t.Setenv("JWT_SIGNING_KEY", "")

	_, err := Load("")
	require.Error(t, err)
}

func TestKafkaBrokersFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}
