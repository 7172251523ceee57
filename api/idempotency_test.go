package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeduper(client, ttl), mr
}

func TestRedisDeduperAddOnce(t *testing.T) {
	d, _ := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	added, err := d.Add(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatalf("expected first add to succeed")
	}

	added, err = d.Add(ctx, "user-1", "key-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added {
		t.Fatalf("expected replay to be rejected")
	}
}

func TestRedisDeduperScopesKeysByActor(t *testing.T) {
	d, _ := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if added, err := d.Add(ctx, "user-1", "key-1"); err != nil || !added {
		t.Fatalf("first actor add failed: added=%v err=%v", added, err)
	}
	if added, err := d.Add(ctx, "user-2", "key-1"); err != nil || !added {
		t.Fatalf("expected same key under another actor to be accepted: added=%v err=%v", added, err)
	}
}

func TestRedisDeduperRemoveAllowsRetry(t *testing.T) {
	d, _ := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	if added, err := d.Add(ctx, "user-1", "key-1"); err != nil || !added {
		t.Fatalf("add failed: added=%v err=%v", added, err)
	}
	if err := d.Remove(ctx, "user-1", "key-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if added, err := d.Add(ctx, "user-1", "key-1"); err != nil || !added {
		t.Fatalf("expected add after remove to succeed: added=%v err=%v", added, err)
	}
}

func TestRedisDeduperKeysExpire(t *testing.T) {
	d, mr := newTestDeduper(t, time.Second)
	ctx := context.Background()

	if added, err := d.Add(ctx, "user-1", "key-1"); err != nil || !added {
		t.Fatalf("add failed: added=%v err=%v", added, err)
	}
	mr.FastForward(2 * time.Second)
	if added, err := d.Add(ctx, "user-1", "key-1"); err != nil || !added {
		t.Fatalf("expected add after expiry to succeed: added=%v err=%v", added, err)
	}
}
