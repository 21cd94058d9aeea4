package session

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestRedisGetSetDelete(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	key := Key{Guild: "g1", User: "u1", Purpose: PurposeWizardCursor}

	if _, ok, err := store.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get() on empty store = ok %v, err %v", ok, err)
	}

	if err := store.Set(ctx, key, []byte(`3`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value, ok, err := store.Get(ctx, key)
	if err != nil || !ok || !bytes.Equal(value, []byte(`3`)) {
		t.Fatalf("Get() = %q, ok %v, err %v", value, ok, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := store.Get(ctx, key); ok {
		t.Fatal("entry survived delete")
	}
}

func TestRedisTTL(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	key := Key{Guild: "g1", User: "u1", Purpose: PurposeChoiceBuilder}
	if err := store.Set(ctx, key, []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	s.FastForward(2 * time.Minute)
	if _, ok, _ := store.Get(ctx, key); ok {
		t.Fatal("entry outlived its TTL")
	}
}

func TestRedisDefaultTTLApplied(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	key := Key{Guild: "g1", User: "u2", Purpose: PurposeSuggestionCursor}
	if err := store.Set(ctx, key, []byte(`0`), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ttl := s.TTL("cursor:" + key.String())
	if ttl <= 0 || ttl > DefaultTTL {
		t.Fatalf("ttl = %v, want (0, %v]", ttl, DefaultTTL)
	}
}
