package redis

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/viewtube/backend/config"
	"github.com/viewtube/backend/internal/constants"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)

	host, portStr, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		t.Fatalf("Failed to parse test server address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Failed to parse test server port: %v", err)
	}

	client, err := NewClient(&config.Config{
		Redis: config.RedisConfig{
			Host:         host,
			Port:         port,
			PoolSize:     2,
			MinIdleConns: 1,
			DialTimeout:  time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			PoolTimeout:  time.Second,
		},
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, srv
}

func TestClient_HitCountsAndArmsWindow(t *testing.T) {
	client, srv := newTestClient(t)
	fullKey := constants.RateLimitKeyPrefix + "10.0.0.1"

	for want := int64(1); want <= 3; want++ {
		count, err := client.Hit(context.Background(), "10.0.0.1", time.Minute)
		if err != nil {
			t.Fatalf("Hit returned error: %v", err)
		}
		if count != want {
			t.Errorf("Expected count %d, got %d", want, count)
		}
	}

	if srv.TTL(fullKey) <= 0 {
		t.Error("Expected the window key to carry a TTL")
	}
}

func TestClient_HitReArmsMissingTTL(t *testing.T) {
	client, srv := newTestClient(t)
	fullKey := constants.RateLimitKeyPrefix + "10.0.0.1"

	// Simulate a first hit whose EXPIRE never landed: the counter exists
	// but is persistent, so the window would never reset.
	rdb := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	defer rdb.Close()
	if err := rdb.Set(context.Background(), fullKey, "3", 0).Err(); err != nil {
		t.Fatalf("Failed to seed counter key: %v", err)
	}

	count, err := client.Hit(context.Background(), "10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}
	if count != 4 {
		t.Errorf("Expected count 4 on the seeded counter, got %d", count)
	}

	if srv.TTL(fullKey) <= 0 {
		t.Error("Expected the persistent window key to be re-armed with a TTL")
	}
}

func TestClient_HitWindowExpires(t *testing.T) {
	client, srv := newTestClient(t)

	if _, err := client.Hit(context.Background(), "10.0.0.1", time.Minute); err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}
	if _, err := client.Hit(context.Background(), "10.0.0.1", time.Minute); err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}

	srv.FastForward(2 * time.Minute)

	count, err := client.Hit(context.Background(), "10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a fresh window after expiry, got count %d", count)
	}
}

func TestClient_KeysAreIndependent(t *testing.T) {
	client, _ := newTestClient(t)

	if _, err := client.Hit(context.Background(), "10.0.0.1", time.Minute); err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}

	count, err := client.Hit(context.Background(), "10.0.0.2", time.Minute)
	if err != nil {
		t.Fatalf("Hit returned error: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected independent counter for a second key, got %d", count)
	}
}
