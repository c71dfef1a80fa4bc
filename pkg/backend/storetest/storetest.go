// Package storetest holds the behavior every types.LeaseStore must show for
// the election engine to be safe. Store packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/khenidak/crossdc/pkg/types"
	testutils "github.com/khenidak/crossdc/test/utils"
)

const subKey = "cross-dc-leader"

// unique per call so suites can share a backend (a real table or bucket)
func uniqueKey() string {
	return "lease-" + testutils.RandObjectName(10)
}

func newRecord(key string, value string, until time.Time) *types.LeaseRecord {
	return &types.LeaseRecord{
		Key:        key,
		SubKey:     subKey,
		Value:      value,
		UpdateIP:   "10.0.0.1",
		UpdateUser: value + "-DcLeader",
		Until:      until,
	}
}

// Run runs the conformance suite. newStore is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) types.LeaseStore) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), uniqueKey(), subKey)
		if !errors.Is(err, types.ErrLeaseNotFound) {
			t.Fatalf("expected ErrLeaseNotFound got %v", err)
		}
	})

	t.Run("insert then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := uniqueKey()
		until := time.Now().Add(time.Hour).Truncate(time.Second)

		if err := s.Insert(ctx, newRecord(key, "DC-A", until), time.Now(), "note"); err != nil {
			t.Fatalf("failed to insert:%v", err)
		}

		got, err := s.Get(ctx, key, subKey)
		if err != nil {
			t.Fatalf("failed to get:%v", err)
		}
		if got.Key != key || got.SubKey != subKey {
			t.Fatalf("unexpected keys %v", got)
		}
		if got.Value != "DC-A" || got.UpdateIP != "10.0.0.1" || got.UpdateUser != "DC-A-DcLeader" {
			t.Fatalf("fields did not round trip %v", got)
		}
		if !got.Until.Equal(until) {
			t.Fatalf("expected until %v got %v", until, got.Until)
		}
		if got.LastModified.IsZero() {
			t.Fatalf("expected store to stamp last modified")
		}
	})

	t.Run("insert twice", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := uniqueKey()

		if err := s.Insert(ctx, newRecord(key, "DC-A", time.Now()), time.Now(), "note"); err != nil {
			t.Fatalf("failed to insert:%v", err)
		}
		err := s.Insert(ctx, newRecord(key, "DC-B", time.Now()), time.Now(), "note")
		if !errors.Is(err, types.ErrLeaseExists) {
			t.Fatalf("expected ErrLeaseExists got %v", err)
		}

		got, err := s.Get(ctx, key, subKey)
		if err != nil {
			t.Fatalf("failed to get:%v", err)
		}
		if got.Value != "DC-A" {
			t.Fatalf("expected first insert to stay got %v", got.Value)
		}
	})

	t.Run("update with current token", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := uniqueKey()

		if err := s.Insert(ctx, newRecord(key, "DC-A", time.Now()), time.Now(), "note"); err != nil {
			t.Fatalf("failed to insert:%v", err)
		}
		before, err := s.Get(ctx, key, subKey)
		if err != nil {
			t.Fatalf("failed to get:%v", err)
		}

		until := time.Now().Add(10 * time.Minute).Truncate(time.Second)
		update := newRecord(key, "DC-B", time.Time{})
		update.UpdateIP = "10.0.0.2"
		if err := s.UpdateIdempotent(ctx, update, until, before.LastModified); err != nil {
			t.Fatalf("failed to update:%v", err)
		}

		after, err := s.Get(ctx, key, subKey)
		if err != nil {
			t.Fatalf("failed to get:%v", err)
		}
		if after.Value != "DC-B" || after.UpdateIP != "10.0.0.2" || after.UpdateUser != "DC-B-DcLeader" {
			t.Fatalf("update was not applied %v", after)
		}
		if !after.Until.Equal(until) {
			t.Fatalf("expected until %v got %v", until, after.Until)
		}
		if !after.LastModified.After(before.LastModified) {
			t.Fatalf("expected last modified to move forward %v -> %v", before.LastModified, after.LastModified)
		}
	})

	t.Run("update with stale token", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := uniqueKey()

		if err := s.Insert(ctx, newRecord(key, "DC-A", time.Now()), time.Now(), "note"); err != nil {
			t.Fatalf("failed to insert:%v", err)
		}
		first, err := s.Get(ctx, key, subKey)
		if err != nil {
			t.Fatalf("failed to get:%v", err)
		}
		if err := s.UpdateIdempotent(ctx, newRecord(key, "DC-B", time.Time{}), time.Now().Add(time.Minute), first.LastModified); err != nil {
			t.Fatalf("failed to update:%v", err)
		}
		second, err := s.Get(ctx, key, subKey)
		if err != nil {
			t.Fatalf("failed to get:%v", err)
		}

		err = s.UpdateIdempotent(ctx, newRecord(key, "DC-C", time.Time{}), time.Now().Add(time.Minute), first.LastModified)
		if !errors.Is(err, types.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed got %v", err)
		}

		third, err := s.Get(ctx, key, subKey)
		if err != nil {
			t.Fatalf("failed to get:%v", err)
		}
		if third.Value != "DC-B" || !third.LastModified.Equal(second.LastModified) {
			t.Fatalf("expected row untouched by a stale update got %v", third)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)
		key := uniqueKey()
		err := s.UpdateIdempotent(context.Background(), newRecord(key, "DC-A", time.Time{}), time.Now(), time.Now())
		if !errors.Is(err, types.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed got %v", err)
		}
	})

	t.Run("concurrent updates have one winner", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := uniqueKey()

		if err := s.Insert(ctx, newRecord(key, "seed", time.Now()), time.Now(), "note"); err != nil {
			t.Fatalf("failed to insert:%v", err)
		}
		seed, err := s.Get(ctx, key, subKey)
		if err != nil {
			t.Fatalf("failed to get:%v", err)
		}

		const contenders = 5
		var wg sync.WaitGroup
		var wins int64
		errs := make(chan error, contenders)
		for i := 0; i < contenders; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r := newRecord(key, fmt.Sprintf("DC-%d", i), time.Time{})
				err := s.UpdateIdempotent(ctx, r, time.Now().Add(time.Minute), seed.LastModified)
				switch {
				case err == nil:
					atomic.AddInt64(&wins, 1)
				case errors.Is(err, types.ErrConditionFailed):
				default:
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Fatalf("unexpected error from contender:%v", err)
		}
		if wins != 1 {
			t.Fatalf("expected exactly one winner got %d", wins)
		}
	})
}
