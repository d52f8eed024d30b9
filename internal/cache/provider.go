package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-trainer/internal/config"
)

// Provider is the key/value cache used for raw run payloads.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// FromConfig builds the configured provider. A disabled cache yields a
// NoopProvider; an unreachable Valkey server is an error so callers can decide
// whether to fall back.
func FromConfig(cfg config.CacheConfig, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return NoopProvider{}, nil
	}
	switch cfg.Backend {
	case "memory":
		logger.Info("run cache enabled", slog.String("backend", "memory"))
		return NewMemoryProvider(), nil
	case "valkey", "":
		if cfg.Addr == "" {
			return nil, fmt.Errorf("cache.addr is required for the valkey backend")
		}
		provider, err := NewValkeyProvider(ValkeyConfig{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLS:          cfg.TLS,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("run cache enabled", slog.String("backend", "valkey"), slog.String("addr", cfg.Addr))
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// NoopProvider never stores anything; every lookup misses.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

func (NoopProvider) Del(context.Context, string) error { return nil }

func (NoopProvider) Close() error { return nil }
