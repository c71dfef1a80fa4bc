package frontend

import (
	"context"
	"io/ioutil"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	grpchealthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/khenidak/crossdc/pkg/config"
)

func newTestConfig(t *testing.T) (*config.Config, context.CancelFunc) {
	t.Helper()
	c := config.NewConfig()
	c.DataCenter = "dc-east"
	c.ListenAddress = "tcp://127.0.0.1:0"
	c.MetricsAddress = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	c.Runtime.Context = ctx
	c.Runtime.Done = make(chan struct{})
	return c, cancel
}

func dialHealth(t *testing.T, fe Frontend) grpchealthpb.HealthClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, fe.GRPCAddr().String(), grpc.WithInsecure(), grpc.WithBlock())
	if err != nil {
		t.Fatalf("failed to dial:%v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return grpchealthpb.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client grpchealthpb.HealthClient, service string) grpchealthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.Check(ctx, &grpchealthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("failed to check %q:%v", service, err)
	}
	return res.Status
}

func TestHealthReflectsLeader(t *testing.T) {
	c, cancel := newTestConfig(t)
	defer cancel()

	fe, err := NewFrontend(c, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to create frontend:%v", err)
	}
	if err := fe.StartListening(); err != nil {
		t.Fatalf("failed to start:%v", err)
	}
	client := dialHealth(t, fe)

	if got := checkStatus(t, client, ""); got != grpchealthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected overall status serving got %v", got)
	}

	fe.Observe("crossdc", "")
	if got := checkStatus(t, client, "crossdc"); got != grpchealthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected not serving with no leader got %v", got)
	}

	fe.Observe("crossdc", "dc-west")
	if got := checkStatus(t, client, "crossdc"); got != grpchealthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected serving with a known leader got %v", got)
	}
	if got := checkStatus(t, client, "crossdc/leader"); got != grpchealthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected leader service not serving in a follower dc got %v", got)
	}

	fe.Observe("crossdc", "DC-EAST")
	if got := checkStatus(t, client, "crossdc/leader"); got != grpchealthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected leader service serving in the leader dc got %v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	c, cancel := newTestConfig(t)
	defer cancel()
	c.ListenAddress = ""

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "crossdc_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	fe, err := NewFrontend(c, reg)
	if err != nil {
		t.Fatalf("failed to create frontend:%v", err)
	}
	if err := fe.StartListening(); err != nil {
		t.Fatalf("failed to start:%v", err)
	}
	if fe.GRPCAddr() != nil {
		t.Fatalf("expected no grpc listener without a listen address")
	}

	res, err := http.Get("http://" + fe.MetricsAddr().String() + "/metrics")
	if err != nil {
		t.Fatalf("failed to scrape:%v", err)
	}
	defer res.Body.Close()
	body, _ := ioutil.ReadAll(res.Body)
	if !strings.Contains(string(body), "crossdc_test_total 1") {
		t.Fatalf("expected counter in scrape got:\n%s", body)
	}
}

func TestStopSignalsDone(t *testing.T) {
	c, cancel := newTestConfig(t)
	c.MetricsAddress = ""

	fe, err := NewFrontend(c, nil)
	if err != nil {
		t.Fatalf("failed to create frontend:%v", err)
	}
	if err := fe.StartListening(); err != nil {
		t.Fatalf("failed to start:%v", err)
	}

	cancel()
	select {
	case <-c.Runtime.Done:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected done after stop")
	}
}

func TestBadConfig(t *testing.T) {
	c, cancel := newTestConfig(t)
	defer cancel()

	if _, err := NewFrontend(c, nil); err == nil {
		t.Fatalf("expected metrics address without gatherer to fail")
	}

	c.MetricsAddress = ""
	c.ListenAddress = "127.0.0.1:0"
	fe, err := NewFrontend(c, nil)
	if err != nil {
		t.Fatalf("failed to create frontend:%v", err)
	}
	if err := fe.StartListening(); err == nil {
		t.Fatalf("expected listen address without network to fail")
	}
}
