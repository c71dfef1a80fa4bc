package types

import (
	"testing"
	"time"
)

func TestLeaseStateExclusive(t *testing.T) {
	now := time.Now()

	var nilLease *LeaseRecord
	if nilLease.IsActive(now) || nilLease.IsExpired(now) {
		t.Fatalf("expected nil lease to be neither active nor expired")
	}
	if nilLease.State(now) != AbsentLease {
		t.Fatalf("expected nil lease to be absent got %v", nilLease.State(now))
	}

	for _, offset := range []time.Duration{-time.Hour, -time.Nanosecond, 0, time.Nanosecond, time.Hour} {
		l := &LeaseRecord{Until: now.Add(offset)}
		active := l.IsActive(now)
		expired := l.IsExpired(now)
		if active == expired {
			t.Fatalf("offset %v: expected exactly one of active/expired got active:%v expired:%v", offset, active, expired)
		}
		if offset > 0 && !active {
			t.Fatalf("offset %v: expected active lease", offset)
		}
		if offset <= 0 && !expired {
			t.Fatalf("offset %v: expected expired lease (now >= until)", offset)
		}
	}
}

func TestLeaseCopy(t *testing.T) {
	l := &LeaseRecord{Key: "LEASE", SubKey: "CROSS_DC_LEADER", Value: "A"}
	c := l.Copy()
	c.Value = "B"
	if l.Value != "A" {
		t.Fatalf("expected copy to not alias original")
	}

	var nilLease *LeaseRecord
	if nilLease.Copy() != nil {
		t.Fatalf("expected copy of nil to be nil")
	}
}
