package api

import (
	"time"

	"github.com/FocuswithJustin/versecite/core/refscan"
)

// Config holds server configuration.
type Config struct {
	Port              int
	DBPath            string        // Citation index database; empty disables /api/documents
	MaxBodyBytes      int64         // Request body and WebSocket message limit
	CacheSize         int           // Parse results kept in memory (0 = no cache)
	CacheTTL          time.Duration // Lifetime of a cached parse result (0 = until evicted)
	MaxBookWords      int           // Words a book name may span
	MaxValue          int           // Largest chapter or verse number
	AllowedOrigins    []string      // CORS and WebSocket origins (empty = allow all)
	RateLimitRequests int           // Requests per minute per client (0 = disabled)
	RateLimitBurst    int           // Burst size
	WSMessageRate     int           // WebSocket messages per second per connection
}

// DefaultConfig returns the settings used by `versecite serve`.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		MaxBodyBytes:   1 << 20,
		CacheSize:      256,
		MaxBookWords:   1,
		MaxValue:       refscan.DefaultMaxValue,
		RateLimitBurst: 10,
		WSMessageRate:  10,
	}
}

// normalize fills zero values with defaults.
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
	if c.MaxBookWords < 1 {
		c.MaxBookWords = def.MaxBookWords
	}
	if c.MaxValue < 1 {
		c.MaxValue = def.MaxValue
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = def.RateLimitBurst
	}
	if c.WSMessageRate <= 0 {
		c.WSMessageRate = def.WSMessageRate
	}
	return c
}
