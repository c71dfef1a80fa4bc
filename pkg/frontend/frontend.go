package frontend

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	grpchealth "google.golang.org/grpc/health"
	grpchealthpb "google.golang.org/grpc/health/grpc_health_v1"

	klogv2 "k8s.io/klog/v2"

	"github.com/khenidak/crossdc/pkg/config"
	"github.com/khenidak/crossdc/pkg/types"
)

const (
	// appended to an election name. SERVING only in the dc holding the lease
	leaderServiceSuffix = "/leader"

	metricsShutdownTimeout = 5 * time.Second
)

// Frontend exposes election outcomes over grpc health checks and election
// metrics over http. It is an election observer: per election name the
// "<name>" service is SERVING while a leader is known and "<name>/leader"
// is SERVING only while this dc is the leader.
type Frontend interface {
	types.Observer
	StartListening() error
	GRPCAddr() net.Addr
	MetricsAddr() net.Addr
}

type frontend struct {
	config   *config.Config
	gatherer prometheus.Gatherer

	healthServer *grpchealth.Server

	lock            sync.Mutex
	grpcListener    net.Listener
	metricsListener net.Listener
	doneOnce        sync.Once
}

// NewFrontend creates the frontend. gatherer may be nil when no metrics
// address is configured.
func NewFrontend(config *config.Config, gatherer prometheus.Gatherer) (Frontend, error) {
	if len(config.MetricsAddress) != 0 && gatherer == nil {
		return nil, fmt.Errorf("metrics address is set but no metrics gatherer was provided")
	}

	fe := &frontend{
		config:       config,
		gatherer:     gatherer,
		healthServer: grpchealth.NewServer(),
	}
	fe.healthServer.SetServingStatus("", grpchealthpb.HealthCheckResponse_SERVING)
	return fe, nil
}

func (fe *frontend) Observe(electionName string, leader string) {
	known := grpchealthpb.HealthCheckResponse_NOT_SERVING
	if leader != "" {
		known = grpchealthpb.HealthCheckResponse_SERVING
	}
	isLeader := grpchealthpb.HealthCheckResponse_NOT_SERVING
	if leader != "" && strings.EqualFold(leader, fe.config.DataCenter) {
		isLeader = grpchealthpb.HealthCheckResponse_SERVING
	}

	fe.healthServer.SetServingStatus(electionName, known)
	fe.healthServer.SetServingStatus(electionName+leaderServiceSuffix, isLeader)
}

func (fe *frontend) StartListening() error {
	if len(fe.config.ListenAddress) != 0 {
		if err := fe.startGRPC(); err != nil {
			return err
		}
	}

	if len(fe.config.MetricsAddress) != 0 {
		if err := fe.startMetrics(); err != nil {
			return err
		}
	}
	return nil
}

func (fe *frontend) startGRPC() error {
	var grpcServer *grpc.Server
	if fe.config.UseTlS {
		// tls
		cert, err := tls.LoadX509KeyPair(fe.config.TLSConfig.CertFilePath, fe.config.TLSConfig.KeyFilePath)
		if err != nil {
			return err
		}

		certPool := x509.NewCertPool()
		bs, err := ioutil.ReadFile(fe.config.TLSConfig.TrustedCAFile)
		if err != nil {
			return err
		}

		ok := certPool.AppendCertsFromPEM(bs)
		if !ok {
			return fmt.Errorf("failed to append client certs")
		}

		tlsConfig := &tls.Config{
			ClientAuth:   tls.RequireAndVerifyClientCert,
			Certificates: []tls.Certificate{cert},
			ClientCAs:    certPool,
		}

		opts := grpc.Creds(credentials.NewTLS(tlsConfig))
		grpcServer = grpc.NewServer(opts)

	} else {
		grpcServer = grpc.NewServer()
	}

	grpchealthpb.RegisterHealthServer(grpcServer, fe.healthServer)

	listener, err := fe.createAndStartListener()
	if err != nil {
		return err
	}
	fe.lock.Lock()
	fe.grpcListener = listener
	fe.lock.Unlock()

	go func() {
		// stop
		<-fe.config.Runtime.Context.Done()
		klogv2.Infof("grpc health server received a stop signal.. stopping")
		fe.healthServer.Shutdown()
		grpcServer.Stop()
		_ = listener.Close()
		fe.signalDone()
	}()

	go func() {
		err := grpcServer.Serve(listener)
		if err != nil {
			klogv2.Errorf("grpc health server failed to serve with err:%v", err)
			_ = listener.Close()
			fe.signalDone()
		}
	}()

	return nil
}

func (fe *frontend) startMetrics() error {
	listener, err := net.Listen("tcp", fe.config.MetricsAddress)
	if err != nil {
		return err
	}
	fe.lock.Lock()
	fe.metricsListener = listener
	fe.lock.Unlock()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(fe.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	server := &http.Server{Handler: mux}

	go func() {
		<-fe.config.Runtime.Context.Done()
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	go func() {
		klogv2.Infof("metrics server is listening on %s", listener.Addr())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			klogv2.Errorf("metrics server failed to serve with err:%v", err)
		}
	}()
	return nil
}

func (fe *frontend) GRPCAddr() net.Addr {
	fe.lock.Lock()
	defer fe.lock.Unlock()
	if fe.grpcListener == nil {
		return nil
	}
	return fe.grpcListener.Addr()
}

func (fe *frontend) MetricsAddr() net.Addr {
	fe.lock.Lock()
	defer fe.lock.Unlock()
	if fe.metricsListener == nil {
		return nil
	}
	return fe.metricsListener.Addr()
}

// Done is closed once, whichever way the grpc server ends
func (fe *frontend) signalDone() {
	fe.doneOnce.Do(func() {
		if fe.config.Runtime.Done != nil {
			close(fe.config.Runtime.Done)
		}
	})
}

func (fe *frontend) createAndStartListener() (net.Listener, error) {
	parts := strings.SplitN(fe.config.ListenAddress, "://", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("listen address %q is expected as <network>://<address>", fe.config.ListenAddress)
	}
	netType := parts[0]
	address := parts[1]
	if netType == "unix" {
		// remove socket
		err := os.Remove(address)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	klogv2.Infof("grpc health server is listening on %s://%s", netType, address)
	return net.Listen(netType, address)
}
