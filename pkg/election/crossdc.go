package election

import (
	"context"
	"errors"
	"sync"
	"time"

	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/metrics"
	"github.com/khenidak/crossdc/pkg/types"
)

const (
	LeaseKey    = "LEASE"
	LeaseSubKey = "CROSS_DC_LEADER"

	CrossDcLeaderElectionName = "CrossDcLeaderElection"

	DefaultMaxElectionDelay = 30 * time.Second
	DefaultElectionInterval = 10 * time.Minute
	DefaultMaxElectRetry    = 3

	seedLeaseNote = "lease for cross dc leader"
)

type Config struct {
	DataCenter string
	LocalIP    string

	MaxElectionDelay time.Duration
	ElectionInterval time.Duration
	MaxElectRetry    int

	// optional, defaults to a no-op collector
	Metrics types.MetricsCollector
}

/*
CrossDcLeaderElection elects one data center as cross dc leader using a single
lease row as the only coordination medium. There is no peer protocol:
every instance reads the row, and when it finds it expired it waits for a delay
proportional to the share of active clusters its dc carries, then tries a
conditional update against the last modified time it observed. Whoever's
update lands first wins, others see an active lease on refresh and stop.

Success of an election means "some lease is active now", not "we won".
Observers are told the current leader on every cycle the lease is active.
*/
type CrossDcLeaderElection struct {
	*Observable

	cfg      Config
	store    types.LeaseStore
	topology types.TopologyCache
	metrics  types.MetricsCollector

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	lock         sync.Mutex
	currentLease *types.LeaseRecord
}

var _ Elector = (*CrossDcLeaderElection)(nil)

func NewCrossDcLeaderElection(cfg Config, store types.LeaseStore, topology types.TopologyCache) *CrossDcLeaderElection {
	if cfg.MaxElectionDelay <= 0 {
		cfg.MaxElectionDelay = DefaultMaxElectionDelay
	}
	if cfg.ElectionInterval <= 0 {
		cfg.ElectionInterval = DefaultElectionInterval
	}
	if cfg.MaxElectRetry <= 0 {
		cfg.MaxElectRetry = DefaultMaxElectRetry
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNop()
	}

	return &CrossDcLeaderElection{
		Observable: NewObservable(),
		cfg:        cfg,
		store:      store,
		topology:   topology,
		metrics:    m,
		now:        time.Now,
		sleep:      sleepWithContext,
	}
}

func (e *CrossDcLeaderElection) ElectionName() string {
	return CrossDcLeaderElectionName
}

func (e *CrossDcLeaderElection) ShouldElect(ctx context.Context) bool {
	if err := e.refresh(ctx); err != nil {
		klogv2.Infof("[shouldElect] get cross dc lease fail %v", err)
	}

	if e.lease() == nil {
		now := e.now()
		// the seed expires immediately so it never reads as a leadership claim
		seed := e.buildLease(now, now)
		if err := e.store.Insert(ctx, seed, now, seedLeaseNote); err != nil {
			klogv2.Infof("[shouldElect] create cross dc lease fail %v", err)
		}
		if err := e.refresh(ctx); err != nil {
			klogv2.Infof("[shouldElect] get cross dc lease after create fail %v", err)
		}
	}

	should := e.lease().IsExpired(e.now())
	e.metrics.RecordCycle(e.ElectionName(), should)
	return should
}

func (e *CrossDcLeaderElection) BeforeElect(ctx context.Context) {
	delay := e.calculateElectDelay()
	e.metrics.RecordElectDelay(e.ElectionName(), delay)
	klogv2.V(4).Infof("[beforeElect] sleep for %v", delay)
	if delay <= 0 {
		return
	}
	if !e.sleep(ctx, delay) {
		klogv2.Infof("[beforeElect] wait for %v interrupted", delay)
	}
}

func (e *CrossDcLeaderElection) DoElect(ctx context.Context) {
	retry := 0
	for retry < e.cfg.MaxElectRetry {
		if ctx.Err() != nil {
			klogv2.Infof("[doElect] stopped after %d attempts: %v", retry, ctx.Err())
			return
		}
		retry++
		e.metrics.RecordElectAttempt(e.ElectionName())

		// the update races against what we saw before this attempt, not
		// against the refresh that follows it
		observed := e.lease()
		if observed == nil {
			klogv2.Infof("[doElect] no lease observed, skipping update on attempt %d", retry)
		} else {
			now := e.now()
			until := now.Add(e.cfg.ElectionInterval)
			klogv2.V(4).Infof("[doElect] dc %v try to elect self to cross dc leader", e.cfg.DataCenter)
			err := e.store.UpdateIdempotent(ctx, e.buildLease(now, until), until, observed.LastModified)
			if err != nil {
				conditionFailed := errors.Is(err, types.ErrConditionFailed)
				e.metrics.RecordUpdateFailure(e.ElectionName(), conditionFailed)
				klogv2.Infof("[doElect] elect self fail, %v", err)
			}
		}

		if err := e.refresh(ctx); err != nil {
			klogv2.Infof("[doElect] refresh lease fail, %v", err)
			continue
		}

		if l := e.lease(); l.IsActive(e.now()) {
			klogv2.Infof("[doElect] new lease take effect, cross dc leader %v", l.Value)
			return
		}
	}

	e.metrics.RecordElectExhausted(e.ElectionName())
	klogv2.Infof("[doElect][fail] retry %d times", retry)
}

func (e *CrossDcLeaderElection) AfterElect(ctx context.Context) {
	l := e.lease()
	now := e.now()
	klogv2.V(4).Infof("[afterElect] current lease %v", l)

	var remaining time.Duration
	if l != nil {
		remaining = l.Until.Sub(now)
	}
	state := l.State(now)
	e.metrics.RecordLeaseState(e.ElectionName(), state, remaining)

	switch state {
	case types.ActiveLease:
		e.notifyObservers(e.ElectionName(), l.Value)
	case types.ExpiredLease:
		e.notifyObservers(e.ElectionName(), "")
	}
}

func (e *CrossDcLeaderElection) NextInterval() time.Duration {
	l := e.lease()
	now := e.now()
	switch {
	case l.IsActive(now):
		return l.Until.Sub(now)
	case l.IsExpired(now):
		return 0
	default:
		return e.cfg.ElectionInterval
	}
}

// CurrentLease returns a copy of the last observed lease, nil when unknown.
func (e *CrossDcLeaderElection) CurrentLease() *types.LeaseRecord {
	return e.lease()
}

func (e *CrossDcLeaderElection) buildLease(now time.Time, until time.Time) *types.LeaseRecord {
	return &types.LeaseRecord{
		Key:          LeaseKey,
		SubKey:       LeaseSubKey,
		Value:        e.cfg.DataCenter,
		UpdateIP:     e.cfg.LocalIP,
		UpdateUser:   e.cfg.DataCenter + "-DcLeader",
		LastModified: now,
		Until:        until,
	}
}

func (e *CrossDcLeaderElection) calculateElectDelay() time.Duration {
	var topology *types.Topology
	if e.topology != nil {
		topology = e.topology.Snapshot()
	}
	return electDelay(activeClusterRatio(topology, e.cfg.DataCenter), e.cfg.MaxElectionDelay)
}

// refresh never keeps a stale lease around: on failure the snapshot is dropped.
func (e *CrossDcLeaderElection) refresh(ctx context.Context) error {
	l, err := e.store.Get(ctx, LeaseKey, LeaseSubKey)
	if err != nil {
		l = nil
		if !errors.Is(err, types.ErrLeaseNotFound) {
			e.metrics.RecordRefreshFailure(e.ElectionName())
		}
	}

	e.lock.Lock()
	e.currentLease = l
	e.lock.Unlock()
	return err
}

func (e *CrossDcLeaderElection) lease() *types.LeaseRecord {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.currentLease.Copy()
}
