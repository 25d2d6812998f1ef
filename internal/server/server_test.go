package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

type blockingServer struct {
	name     string
	startErr error
	stopCh   chan struct{}
	stopped  atomic.Bool
}

func newBlocking(name string, startErr error) *blockingServer {
	return &blockingServer{name: name, startErr: startErr, stopCh: make(chan struct{})}
}

func (s *blockingServer) Name() string { return s.name }

func (s *blockingServer) Start() error {
	if s.startErr != nil {
		return s.startErr
	}
	<-s.stopCh
	return nil
}

func (s *blockingServer) Stop() error {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	return nil
}

func TestServerManagerStopsOnCancel(t *testing.T) {
	a, b := newBlocking("a", nil), newBlocking("b", nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewServerManager(logging.Discard(), a, b).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("manager did not return")
	}
	assert.True(t, a.stopped.Load())
	assert.True(t, b.stopped.Load())
}

func TestServerManagerFailureStopsOthers(t *testing.T) {
	ok := newBlocking("ok", nil)
	broken := newBlocking("broken", errors.New("address already in use"))

	err := NewServerManager(logging.Discard(), ok, broken).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken server")
	assert.True(t, ok.stopped.Load())
}

func TestGRPCHealthFollowsTopology(t *testing.T) {
	s := NewGRPCServer("127.0.0.1:0", logging.Discard())
	ctx := context.Background()

	status := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(HealthService))

	s.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(HealthService))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(""))

	s.SetServing(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(HealthService))
}
