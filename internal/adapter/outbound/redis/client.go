package redis

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection settings for the remote tier.
type ClientConfig struct {
	URL      string
	Address  string
	Password string
	DB       int
}

// NewClient creates a Redis client without contacting the server.
// The dual-tier store performs its own connectivity probe.
func NewClient(cfg ClientConfig) (redis.UniversalClient, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		return redis.NewClient(opts), nil
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address or url is required")
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
