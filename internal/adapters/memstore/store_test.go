package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/shoptrip/internal/core/ports"
)

func TestStore_GetMissing(t *testing.T) {
	s := New(0)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected v, got %q (%v)", got, err)
	}
	_ = s.Delete(ctx, "k")
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", s.Len())
	}
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	s := New(0)
	s.now = func() time.Time { return now }

	_ = s.Set(ctx, "k", []byte("v"), 10)
	now = now.Add(11 * time.Second)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected expired key, got %v", err)
	}
}

func TestStore_Quota(t *testing.T) {
	s := New(4)
	if err := s.Set(context.Background(), "k", []byte("12345"), 0); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}
