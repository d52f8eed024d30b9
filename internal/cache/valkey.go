package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxRetries is the number of retries after the first attempt; <= 0 disables retries.
	MaxRetries int
	TLS        bool
}

func (c ValkeyConfig) withDefaults() ValkeyConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 500 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 500 * time.Millisecond
	}
	return c
}

func (c ValkeyConfig) options() *redis.Options {
	retries := c.MaxRetries
	if retries <= 0 {
		retries = -1
	}
	opts := &redis.Options{
		Addr:            c.Addr,
		Username:        c.Username,
		Password:        c.Password,
		DB:              c.DB,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		MaxRetries:      retries,
		MinRetryBackoff: 25 * time.Millisecond,
		MaxRetryBackoff: 200 * time.Millisecond,
	}
	if c.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: tlsHost(c.Addr)}
	}
	return opts
}

// ValkeyProvider implements Provider on a pooled go-redis client.
type ValkeyProvider struct {
	client *redis.Client
}

// NewValkeyProvider creates a provider and pings the server so bad
// credentials or addresses fail at startup.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	cfg = cfg.withDefaults()
	client := redis.NewClient(cfg.options())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	return &ValkeyProvider{client: client}, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("valkey GET %s: %w", key, err)
	}
	return data, nil
}

// Set stores bytes with the provided TTL; ttl <= 0 stores without expiry.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := p.client.Set(ctx, key, value, expiry(ttl)).Err(); err != nil {
		return fmt.Errorf("valkey SET %s: %w", key, err)
	}
	return nil
}

// SetNX stores the value only if the key does not exist.
func (p *ValkeyProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := p.client.SetNX(ctx, key, value, expiry(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("valkey SET NX %s: %w", key, err)
	}
	return ok, nil
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	return p.client.Del(ctx, key).Err()
}

// Close releases the connection pool.
func (p *ValkeyProvider) Close() error { return p.client.Close() }

// expiry maps negative TTLs to "no expiry"; go-redis reads -1 as KEEPTTL.
func expiry(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}

func tlsHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
