package election

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	klogv2 "k8s.io/klog/v2"
)

// Elector is a periodic election. The driver calls the hooks of one elector
// sequentially, never overlapping two cycles.
type Elector interface {
	ElectionName() string
	ShouldElect(ctx context.Context) bool
	BeforeElect(ctx context.Context)
	DoElect(ctx context.Context)
	AfterElect(ctx context.Context)
	// NextInterval is how long to wait before the next ShouldElect.
	NextInterval() time.Duration
}

// Driver runs electors until its context is done. Each elector gets its own
// loop; a panicking hook is logged and the loop carries on.
type Driver struct {
	electors    []Elector
	minInterval time.Duration

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewDriver(minInterval time.Duration, electors ...Elector) *Driver {
	return &Driver{
		electors:    electors,
		minInterval: minInterval,
		sleep:       sleepWithContext,
	}
}

func (d *Driver) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range d.electors {
		wg.Add(1)
		go func(e Elector) {
			defer wg.Done()
			d.runElector(ctx, e)
		}(e)
	}
	wg.Wait()
}

func (d *Driver) runElector(ctx context.Context, e Elector) {
	klogv2.Infof("election:%v starting", e.ElectionName())
	for {
		if ctx.Err() != nil {
			klogv2.Infof("election:%v stopped", e.ElectionName())
			return
		}

		next := RunCycle(ctx, e)
		if next < d.minInterval {
			next = d.minInterval
		}
		klogv2.V(4).Infof("election:%v next cycle in %v", e.ElectionName(), next)

		if !d.sleep(ctx, next) {
			klogv2.Infof("election:%v stopped", e.ElectionName())
			return
		}
	}
}

// RunCycle performs one election cycle and returns the interval the elector
// asked for. A panic in any hook ends the cycle early and yields zero.
func RunCycle(ctx context.Context, e Elector) (next time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			klogv2.Errorf("election:%v cycle panicked: %v\n%s", e.ElectionName(), r, debug.Stack())
			next = 0
		}
	}()

	if e.ShouldElect(ctx) {
		e.BeforeElect(ctx)
		e.DoElect(ctx)
	}
	e.AfterElect(ctx)

	return e.NextInterval()
}

func sleepWithContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Driver) String() string {
	names := make([]string, 0, len(d.electors))
	for _, e := range d.electors {
		names = append(names, e.ElectionName())
	}
	return fmt.Sprintf("driver%v", names)
}
