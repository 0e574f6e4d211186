// Package config loads process-wide infrastructure settings and per-dataset
// search/embedding configuration (spec §6). Layout and the getEnv/getEnvSlice
// helpers follow the teacher's internal/config.Config.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds process-wide settings for every worker/server entry point.
// Each nested struct corresponds to one infrastructure dependency, mirroring
// the teacher's per-concern ServiceEndpoint grouping.
type Config struct {
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Blob       BlobConfig       `yaml:"blob"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (p PostgresConfig) DSN() string {
	return "postgres://" + p.User + ":" + p.Password + "@" + p.Host + ":" + p.Port + "/" + p.Database + "?sslmode=" + p.SSLMode
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type QdrantConfig struct {
	Host     string        `yaml:"host"`
	GRPCPort int           `yaml:"grpc_port"`
	APIKey   string        `yaml:"api_key"`
	UseTLS   bool          `yaml:"use_tls"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type BlobConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
}

// WorkerConfig carries the backpressure/scheduling constants from spec §5.
type WorkerConfig struct {
	IngestionBatchSize int           `yaml:"ingestion_batch_size"` // 120
	EmbedderBatchSize  int           `yaml:"embedder_batch_size"`  // 30
	RerankerBatchSize  int           `yaml:"reranker_batch_size"`  // 20
	DeleteBatchSize    int           `yaml:"delete_batch_size"`    // 5000
	MaxAttempts        int           `yaml:"max_attempts"`         // 10
	MaxBackoff         time.Duration `yaml:"max_backoff"`          // 300s
	PollTimeout        time.Duration `yaml:"poll_timeout"`
}

func Default() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			User:     getEnv("PG_USER", "trieve"),
			Password: getEnv("PG_PASSWORD", "trieve"),
			Database: getEnv("PG_DATABASE", "trieve"),
			SSLMode:  getEnv("PG_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host: getEnv("REDIS_HOST", "localhost"),
			Port: getEnv("REDIS_PORT", "6379"),
			DB:   getEnvInt("REDIS_DB", 0),
		},
		Qdrant: QdrantConfig{
			Host:     getEnv("QDRANT_HOST", "localhost"),
			GRPCPort: getEnvInt("QDRANT_GRPC_PORT", 6334),
			APIKey:   getEnv("QDRANT_API_KEY", ""),
			UseTLS:   getEnvBool("QDRANT_USE_TLS", false),
			Timeout:  getEnvDuration("QDRANT_TIMEOUT", 30*time.Second),
		},
		ClickHouse: ClickHouseConfig{
			Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
			Port:     getEnv("CLICKHOUSE_PORT", "9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "trieve_analytics"),
			User:     getEnv("CLICKHOUSE_USER", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Blob: BlobConfig{
			Endpoint:  getEnv("BLOB_ENDPOINT", "localhost:9100"),
			AccessKey: getEnv("BLOB_ACCESS_KEY", ""),
			SecretKey: getEnv("BLOB_SECRET_KEY", ""),
			Bucket:    getEnv("BLOB_BUCKET", "trieve-uploads"),
			UseSSL:    getEnvBool("BLOB_USE_SSL", false),
		},
		Worker: WorkerConfig{
			IngestionBatchSize: getEnvInt("INGESTION_BATCH_SIZE", 120),
			EmbedderBatchSize:  getEnvInt("EMBEDDER_BATCH_SIZE", 30),
			RerankerBatchSize:  getEnvInt("RERANKER_BATCH_SIZE", 20),
			DeleteBatchSize:    getEnvInt("DELETE_BATCH_SIZE", 5000),
			MaxAttempts:        getEnvInt("MAX_ATTEMPTS", 10),
			MaxBackoff:         getEnvDuration("MAX_BACKOFF", 300*time.Second),
			PollTimeout:        getEnvDuration("POLL_TIMEOUT", 5*time.Second),
		},
	}
}

// LoadFile starts from Default() (env-derived) and overlays any field set
// in the YAML file at path, the way the teacher's multi_provider.go layers
// a YAML provider file over its own built-in defaults. A zero-value path
// is a no-op: most deployments configure purely through the environment,
// and --config stays optional.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
