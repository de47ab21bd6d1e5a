package memory

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/tryandromeda/sitegate/internal/db"
)

func TestStore_GetSet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("value = %q, want v", got)
	}
}

func TestStore_Del(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"))
	if err := s.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestStore_ScanPrefix(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.Set(ctx, "cache:a:/docs/", []byte("1"))
	_ = s.Set(ctx, "cache:a:/blog/", []byte("2"))
	_ = s.Set(ctx, "visits:/docs/", []byte("3"))

	keys, err := s.Scan(ctx, "cache:a:*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	sort.Strings(keys)
	want := []string{"cache:a:/blog/", "cache:a:/docs/"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestStore_IncrBy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.IncrBy(ctx, "n", 2); err != nil {
		t.Fatalf("incrby: %v", err)
	}
	if err := s.IncrBy(ctx, "n", 3); err != nil {
		t.Fatalf("incrby: %v", err)
	}
	got, err := s.Get(ctx, "n")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "5" {
		t.Errorf("counter = %q, want 5", got)
	}
}

func TestStore_Exists(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	ok, err := s.Exists(ctx, "k")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Error("absent key reported as existing")
	}

	_ = s.Set(ctx, "k", []byte("v"))
	ok, err = s.Exists(ctx, "k")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Error("present key reported as absent")
	}
}

func TestStore_Expire(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("v"))
	if err := s.Expire(ctx, "k", time.Millisecond, false); err != nil {
		t.Fatalf("expire: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected expired key to be gone, got %v", err)
	}
}

func TestStore_ExpireNxKeepsExistingTTL(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.SetWithTTL(ctx, "k", []byte("v"), time.Hour)
	// nx must not shorten the TTL already in place.
	if err := s.Expire(ctx, "k", time.Millisecond, true); err != nil {
		t.Fatalf("expire nx: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); err != nil {
		t.Errorf("key expired despite nx on an already-expiring key: %v", err)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.SetWithTTL(ctx, "k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("set with ttl: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected expired key to be gone, got %v", err)
	}
}
