package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/khenidak/crossdc/pkg/types"
)

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "", "dc-a")

	p.Observe("CrossDcLeaderElection", "DC-A")
	if v := testutil.ToFloat64(p.isLeader.WithLabelValues("CrossDcLeaderElection")); v != 1 {
		t.Fatalf("expected is_leader 1 (case insensitive dc match) got %v", v)
	}
	if v := testutil.ToFloat64(p.leaderInfo.WithLabelValues("CrossDcLeaderElection", "DC-A")); v != 1 {
		t.Fatalf("expected leader_info for DC-A to be 1 got %v", v)
	}

	p.Observe("CrossDcLeaderElection", "dc-b")
	if v := testutil.ToFloat64(p.isLeader.WithLabelValues("CrossDcLeaderElection")); v != 0 {
		t.Fatalf("expected is_leader 0 got %v", v)
	}
	if n := testutil.CollectAndCount(p.leaderInfo); n != 1 {
		t.Fatalf("expected previous leader series to be removed, got %d series", n)
	}

	p.Observe("CrossDcLeaderElection", "")
	if n := testutil.CollectAndCount(p.leaderInfo); n != 0 {
		t.Fatalf("expected no leader series when leader is absent, got %d series", n)
	}
}

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test", "A")

	p.RecordElectAttempt("e")
	p.RecordElectAttempt("e")
	p.RecordUpdateFailure("e", true)
	p.RecordUpdateFailure("e", false)
	p.RecordRefreshFailure("e")
	p.RecordElectExhausted("e")
	p.RecordCycle("e", true)
	p.RecordElectDelay("e", 22500*time.Millisecond)
	p.RecordLeaseState("e", types.ActiveLease, 10*time.Minute)

	if v := testutil.ToFloat64(p.electAttempts.WithLabelValues("e")); v != 2 {
		t.Fatalf("expected 2 attempts got %v", v)
	}
	if v := testutil.ToFloat64(p.updateFailures.WithLabelValues("e", "condition")); v != 1 {
		t.Fatalf("expected 1 condition failure got %v", v)
	}
	if v := testutil.ToFloat64(p.leaseState.WithLabelValues("e")); v != float64(types.ActiveLease) {
		t.Fatalf("expected lease state active got %v", v)
	}
	if v := testutil.ToFloat64(p.leaseRemaining.WithLabelValues("e")); v != 600 {
		t.Fatalf("expected 600 remaining seconds got %v", v)
	}

	p.RecordLeaseState("e", types.ExpiredLease, -time.Second)
	if v := testutil.ToFloat64(p.leaseRemaining.WithLabelValues("e")); v != 0 {
		t.Fatalf("expected negative remaining to clamp to 0 got %v", v)
	}
}
