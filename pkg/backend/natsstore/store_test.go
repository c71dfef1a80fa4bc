package natsstore

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/khenidak/crossdc/pkg/backend/storetest"
	"github.com/khenidak/crossdc/pkg/config"
	"github.com/khenidak/crossdc/pkg/types"
)

// in process server with jetstream, cleaned up with the test
func startEmbeddedNATS(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("failed to create embedded nats server:%v", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatalf("embedded nats server not ready in time")
	}

	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func TestConformance(t *testing.T) {
	ns := startEmbeddedNATS(t)
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("failed to connect:%v", err)
	}
	defer nc.Close()

	s, err := NewStoreWithConn(context.Background(), nc, "crossdc-test")
	if err != nil {
		t.Fatalf("failed to create store:%v", err)
	}

	storetest.Run(t, func(t *testing.T) types.LeaseStore {
		return s
	})
}

func TestNewStoreFromConfig(t *testing.T) {
	ns := startEmbeddedNATS(t)

	c := config.NewConfig()
	c.DataCenter = "dc1"
	c.StoreType = config.StoreTypeNATS
	c.NATS.URL = ns.ClientURL()
	c.NATS.Bucket = "crossdc-config"

	s, err := NewStore(context.Background(), c)
	if err != nil {
		t.Fatalf("failed to create store:%v", err)
	}
	defer s.Close()

	// a second store binds the bucket the first one created
	again, err := NewStore(context.Background(), c)
	if err != nil {
		t.Fatalf("failed to bind existing bucket:%v", err)
	}
	defer again.Close()

	ctx := context.Background()
	r := &types.LeaseRecord{Key: "LEASE", SubKey: "CROSS_DC_LEADER", Value: "dc1", Until: time.Now()}
	if err := s.Insert(ctx, r, time.Now(), "seed"); err != nil {
		t.Fatalf("failed to insert:%v", err)
	}
	got, err := again.Get(ctx, "LEASE", "CROSS_DC_LEADER")
	if err != nil || got.Value != "dc1" {
		t.Fatalf("expected second store to see the lease got %v err:%v", got, err)
	}
}
