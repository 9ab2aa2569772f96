package server

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	Addr     string `env:"ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	// DBPath points at the SQLite database file. When empty, files are kept
	// in process memory and lost on restart.
	DBPath string `env:"DB_PATH"`

	// OTLPEndpoint enables trace export when set, e.g. "localhost:4317".
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`

	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"67108864"`

	// CacheSingleFlight collapses concurrent cache misses for the same file
	// into a single store call.
	CacheSingleFlight bool `env:"CACHE_SINGLE_FLIGHT"`
}

// LoadConfig parses the configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
