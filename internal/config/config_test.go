package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultUsesEnvOverrides(t *testing.T) {
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("QDRANT_USE_TLS", "true")

	cfg := Default()

	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.Qdrant.UseTLS)
	assert.Equal(t, 120, cfg.Worker.IngestionBatchSize)
	assert.Equal(t, 10, cfg.Worker.MaxAttempts)
}

func TestDefaultFallsBackWhenEnvUnset(t *testing.T) {
	os.Unsetenv("PG_HOST")
	cfg := Default()
	assert.Equal(t, "localhost", cfg.Postgres.Host)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "h", Port: "5432", User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", p.DSN())
}

func TestDenseVectorNameForDimension(t *testing.T) {
	name, ok := DenseVectorNameForDimension(1536)
	assert.True(t, ok)
	assert.Equal(t, "1536_vectors", name)

	_, ok = DenseVectorNameForDimension(777)
	assert.False(t, ok)
}

func TestDefaultDatasetConfig(t *testing.T) {
	dc := DefaultDatasetConfig()
	assert.True(t, dc.SemanticEnabled)
	assert.False(t, dc.BM25Enabled)
	assert.Equal(t, 1.2, dc.BM25K)
	assert.Equal(t, 0.95, dc.DuplicateCosineThreshold)
}
