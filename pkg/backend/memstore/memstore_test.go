package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/khenidak/crossdc/pkg/backend/storetest"
	"github.com/khenidak/crossdc/pkg/types"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) types.LeaseStore {
		return New()
	})
}

func TestLastModifiedStrictlyIncreases(t *testing.T) {
	s := New()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	ctx := context.Background()
	r := &types.LeaseRecord{Key: "k", SubKey: "s", Value: "A"}
	if err := s.Insert(ctx, r, fixed, "seed"); err != nil {
		t.Fatalf("failed to insert:%v", err)
	}
	first, _ := s.Get(ctx, "k", "s")
	if err := s.UpdateIdempotent(ctx, r, fixed, first.LastModified); err != nil {
		t.Fatalf("failed to update:%v", err)
	}
	second, _ := s.Get(ctx, "k", "s")
	if !second.LastModified.After(first.LastModified) {
		t.Fatalf("expected strictly newer token with a frozen clock %v -> %v", first.LastModified, second.LastModified)
	}
}

func TestNoteAndGetCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := &types.LeaseRecord{Key: "k", SubKey: "s", Value: "A"}
	if err := s.Insert(ctx, r, time.Now(), "lease for cross dc leader"); err != nil {
		t.Fatalf("failed to insert:%v", err)
	}
	if note, ok := s.Note("k", "s"); !ok || note != "lease for cross dc leader" {
		t.Fatalf("unexpected note %q %v", note, ok)
	}

	got, _ := s.Get(ctx, "k", "s")
	got.Value = "mutated"
	again, _ := s.Get(ctx, "k", "s")
	if again.Value != "A" {
		t.Fatalf("expected Get to hand out copies")
	}
}

func TestCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Get(ctx, "k", "s"); err == nil {
		t.Fatalf("expected cancelled context to fail")
	}
}
