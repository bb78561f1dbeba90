package maintenance

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

type countingRelay struct {
	heartbeats atomic.Int32
	sweeps     atomic.Int32
	threshold  atomic.Int64
}

func (c *countingRelay) Heartbeat() int {
	c.heartbeats.Add(1)
	return 0
}

func (c *countingRelay) SweepIdle(threshold time.Duration) []string {
	c.sweeps.Add(1)
	c.threshold.Store(int64(threshold))
	return []string{"ghost"}
}

type countingPruner struct {
	calls  atomic.Int32
	maxAge atomic.Int64
	err    error
}

func (p *countingPruner) Prune(maxAge time.Duration) (int, error) {
	p.calls.Add(1)
	p.maxAge.Store(int64(maxAge))
	return 1, p.err
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestServicesImplementSutureService(t *testing.T) {
	var _ suture.Service = (*TickerService)(nil)
	var _ suture.Service = (*ServerService)(nil)
}

func TestTickerServiceStopsOnCancel(t *testing.T) {
	relay := &countingRelay{}
	svc := NewHeartbeatService(relay, 5*time.Millisecond, nopLogger())
	if svc.String() != "heartbeat" {
		t.Fatalf("unexpected name %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	waitFor(t, func() bool { return relay.heartbeats.Load() >= 2 })
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("service did not stop")
	}
}

func TestSupervisorRunsAllServices(t *testing.T) {
	relay := &countingRelay{}
	pruner := &countingPruner{err: errors.New("permission denied")}
	cfg := Config{
		HeartbeatInterval: 5 * time.Millisecond,
		IdleSweepInterval: 5 * time.Millisecond,
		IdleThreshold:     42 * time.Minute,
		PruneInterval:     5 * time.Millisecond,
		VoiceRetention:    48 * time.Hour,
	}
	sup := NewSupervisor(cfg, relay, relay, pruner, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := sup.ServeBackground(ctx)

	waitFor(t, func() bool {
		return relay.heartbeats.Load() > 0 && relay.sweeps.Load() > 0 && pruner.calls.Load() > 0
	})
	cancel()
	<-done

	if got := time.Duration(relay.threshold.Load()); got != 42*time.Minute {
		t.Fatalf("idle threshold not passed through: %v", got)
	}
	if got := time.Duration(pruner.maxAge.Load()); got != 48*time.Hour {
		t.Fatalf("retention not passed through: %v", got)
	}
}

type fakeServer struct {
	mu       sync.Mutex
	stop     chan struct{}
	startErr error
	shutdown bool
}

func (f *fakeServer) ListenAndServe() error {
	if f.startErr != nil {
		return f.startErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdown = true
	f.mu.Unlock()
	close(f.stop)
	return nil
}

func TestServerServiceGracefulShutdown(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{})}
	svc := NewServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.shutdown {
		t.Fatalf("shutdown not called")
	}
}

func TestServerServiceStartFailure(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{}), startErr: errors.New("address in use")}
	svc := NewServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || err.Error() != "http server: address in use" {
		t.Fatalf("unexpected error %v", err)
	}
}
