package events

import (
	"context"
	"fmt"
)

// Driver names a Broker implementation.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Config selects the broker.
type Config struct {
	Driver    Driver `yaml:"driver"`
	RedisAddr string `yaml:"redis_addr"`
	// AllowedOrigins are browser origins besides the serving host that may
	// open the change stream.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Open constructs the configured broker. An empty driver selects memory.
func Open(ctx context.Context, cfg Config, logger Logger) (Broker, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryBroker(logger), nil
	case DriverRedis:
		return NewRedisBroker(ctx, cfg.RedisAddr, logger)
	default:
		return nil, fmt.Errorf("unknown events driver %s", cfg.Driver)
	}
}
