package cache

import (
	"context"
	"testing"
)

func TestNoopNeverFails(t *testing.T) {
	var inv Invalidator = Noop{}
	if err := inv.InvalidateUser(context.Background(), 42); err != nil {
		t.Fatalf("noop invalidation returned %v", err)
	}
}

func TestRedisUserKeyShape(t *testing.T) {
	c := &RedisCache{prefix: "photoai"}
	if got, want := c.userKey(42), "photoai:user_profile:42"; got != want {
		t.Errorf("userKey = %q, want %q", got, want)
	}
}
