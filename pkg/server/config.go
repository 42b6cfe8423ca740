package server

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config holds the server settings. Values are read from SOLVO_*
// environment variables and may be overridden by flags.
type Config struct {
	Address        string        `envconfig:"ADDRESS" default:":8080"`
	ModelsDir      string        `envconfig:"MODELS_DIR"`
	StorePath      string        `envconfig:"STORE_PATH"`
	RateLimitRPS   float64       `envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int           `envconfig:"RATE_LIMIT_BURST" default:"100"`
	MaxConcurrent  int           `envconfig:"MAX_CONCURRENT" default:"4"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	DrainTimeout   time.Duration `envconfig:"DRAIN_TIMEOUT" default:"10s"`
	Profiling      bool          `envconfig:"PROFILING"`
	TLSCert        string        `envconfig:"TLS_CERT"`
	TLSKey         string        `envconfig:"TLS_KEY"`
}

// FromEnv reads the configuration from the environment.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("solvo", cfg); err != nil {
		return nil, errors.Wrap(err, "unable to read configuration")
	}
	return cfg, nil
}
