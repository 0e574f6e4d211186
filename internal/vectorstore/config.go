package vectorstore

import (
	"fmt"
	"time"
)

// Config configures the gRPC connection to Qdrant, mirroring the
// teacher's internal/vectordb/qdrant.Config field names and defaults.
type Config struct {
	Host       string
	GRPCPort   int
	APIKey     string
	UseTLS     bool
	Timeout    time.Duration
	MaxRetries int
}

func DefaultConfig() *Config {
	return &Config{
		Host:       "localhost",
		GRPCPort:   6334,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}

func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("vectorstore: host must not be empty")
	}
	if c.GRPCPort <= 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("vectorstore: invalid grpc port %d", c.GRPCPort)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}
