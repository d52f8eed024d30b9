package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestValkeyProviderCommands(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.RequireAuth("secret")

	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.Addr(), Password: "secret", DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	ctx := context.Background()

	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
	if err := p.Set(ctx, "run:1", []byte("payload\r\nwith crlf"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "run:1")
	if err != nil || string(got) != "payload\r\nwith crlf" {
		t.Fatalf("unexpected get %q: %v", got, err)
	}

	ok, err := p.SetNX(ctx, "run:1", []byte("other"), 0)
	if err != nil || ok {
		t.Fatalf("expected SetNX to lose on existing key: ok=%v err=%v", ok, err)
	}
	if err := p.Del(ctx, "run:1"); err != nil {
		t.Fatalf("del: %v", err)
	}
	ok, err = p.SetNX(ctx, "run:1", []byte("other"), 0)
	if err != nil || !ok {
		t.Fatalf("expected SetNX to win after delete: ok=%v err=%v", ok, err)
	}
	if ttl := srv.TTL("run:1"); ttl != 0 {
		t.Fatalf("expected no expiry without ttl, got %s", ttl)
	}
}

func TestValkeyProviderExpiresEntries(t *testing.T) {
	srv := miniredis.RunT(t)
	p, err := NewValkeyProvider(ValkeyConfig{Addr: srv.Addr()})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	ctx := context.Background()

	if err := p.Set(ctx, "run:2", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ttl := srv.TTL("run:2"); ttl != time.Minute {
		t.Fatalf("expected one minute ttl, got %s", ttl)
	}
	srv.FastForward(2 * time.Minute)
	if _, err := p.Get(ctx, "run:2"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestValkeyProviderRejectsBadCredentials(t *testing.T) {
	srv := miniredis.RunT(t)
	srv.RequireAuth("secret")

	if _, err := NewValkeyProvider(ValkeyConfig{Addr: srv.Addr(), Password: "wrong"}); err == nil {
		t.Fatalf("expected authentication error")
	}
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error without address")
	}
}

func TestValkeyConfigOptions(t *testing.T) {
	opts := ValkeyConfig{Addr: "cache.internal:6380", MaxRetries: 2, TLS: true}.withDefaults().options()
	if opts.MaxRetries != 2 || opts.DialTimeout != 2*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.ServerName != "cache.internal" {
		t.Fatalf("expected tls server name from addr, got %+v", opts.TLSConfig)
	}
	if disabled := (ValkeyConfig{Addr: "x:1"}).options(); disabled.MaxRetries != -1 {
		t.Fatalf("expected retries disabled, got %d", disabled.MaxRetries)
	}
}
