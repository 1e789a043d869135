package server

import (
	"errors"
	"time"

	"github.com/edgemaps/districtd/internal/engine"
)

const (
	defaultMaxBodySize      = 1 << 20
	defaultResponseCacheTTL = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
)

type Config struct {
	Engine *engine.Engine

	// ResponseCacheTTL bounds how long a lookup response is served from the
	// TTL cache. Zero selects the default; negative disables the cache.
	ResponseCacheTTL time.Duration

	MaxBodySize     int64
	ShutdownTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.Engine == nil {
		return errors.New("engine is required")
	}
	if c.ResponseCacheTTL == 0 {
		c.ResponseCacheTTL = defaultResponseCacheTTL
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
