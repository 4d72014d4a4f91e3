package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

var (
	ErrInvalidPort              = errors.New("port must be between 1 and 65535")
	ErrInvalidHeartbeatInterval = errors.New("heartbeat interval must be positive")
	ErrInvalidWriteWait         = errors.New("write wait must be positive")
	ErrInvalidMaxMessageSize    = errors.New("max message size must be positive")
)

// Config holds the relay and presence tracker settings.
type Config struct {
	Host              string        `env:"HOST"               envDefault:"0.0.0.0"`
	Port              int           `env:"PORT"               envDefault:"8080"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	WriteWait         time.Duration `env:"WRITE_WAIT"         envDefault:"5s"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE"   envDefault:"104857600"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT"   envDefault:"15s"`

	// RedisAddr enables presence events when set.
	RedisAddr    string `env:"REDIS_ADDR"`
	PresenceAddr string `env:"PRESENCE_ADDR" envDefault:":8081"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Addr is the relay listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if c.WriteWait <= 0 {
		return ErrInvalidWriteWait
	}
	if c.MaxMessageSize <= 0 {
		return ErrInvalidMaxMessageSize
	}
	return nil
}
