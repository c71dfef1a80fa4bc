package utils

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/khenidak/crossdc/pkg/election"
	"github.com/khenidak/crossdc/pkg/types"
)

var letterRunes = []rune("abcdefghijklmnopqrstuvwxyz0123456789")

var randLock sync.Mutex
var random = rand.New(rand.NewSource(time.Now().UnixNano()))

// TestElection is an engine running under its own driver
type TestElection struct {
	Engine *election.CrossDcLeaderElection
	Holder *election.LeaderHolder

	cancel func()
	done   chan struct{}
}

// Stop stops the driver and waits for it to return
func (te *TestElection) Stop() {
	te.cancel()
	<-te.done
}

// StartTestElection runs a cross dc election for cfg.DataCenter until the
// returned election is stopped or the test ends.
func StartTestElection(t testing.TB, cfg election.Config, store types.LeaseStore, topology types.TopologyCache, minInterval time.Duration) *TestElection {
	t.Helper()

	engine := election.NewCrossDcLeaderElection(cfg, store, topology)
	holder := election.NewLeaderHolder()
	engine.AddObserver(holder)

	ctx, cancel := context.WithCancel(context.Background())
	te := &TestElection{
		Engine: engine,
		Holder: holder,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	driver := election.NewDriver(minInterval, engine)
	go func() {
		defer close(te.done)
		driver.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-te.done
	})
	return te
}

// WaitFor polls cond until it is true or timeout passes
func WaitFor(t testing.TB, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for %s", timeout, what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func RandStringRunes(n int) string {
	randLock.Lock()
	defer randLock.Unlock()

	b := make([]rune, n)
	for i := range b {
		b[i] = letterRunes[random.Intn(len(letterRunes))]
	}
	return string(b)
}

func RandObjectName(n int) string {
	return fmt.Sprintf("%s%s", "k", RandStringRunes(n))
}
