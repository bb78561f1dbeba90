package core

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vovakirdan/localchat/internal/metrics"
)

func TestRelayKeepsGaugesInSync(t *testing.T) {
	r, clock := newTestRelay(nil)
	alice := newPeer(r, "c1")
	bob := newPeer(r, "c2")

	mustJoin(t, r, alice, JoinRequest{UserID: "alice", Latitude: 10, Longitude: 10})
	mustJoin(t, r, bob, JoinRequest{UserID: "bob", Latitude: -10, Longitude: -10})

	if got := testutil.ToFloat64(metrics.Connections); got != 2 {
		t.Fatalf("connections gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.Rooms); got != 2 {
		t.Fatalf("rooms gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.Sessions); got != 2 {
		t.Fatalf("sessions gauge = %v, want 2", got)
	}

	evictionsBefore := testutil.ToFloat64(metrics.IdleEvictions)
	bob.tr.close()
	r.Disconnect(bob.conn)
	clock.Advance(4 * time.Hour)
	r.SweepIdle(3 * time.Hour)

	if got := testutil.ToFloat64(metrics.IdleEvictions) - evictionsBefore; got != 1 {
		t.Fatalf("idle evictions delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Rooms); got != 1 {
		t.Fatalf("rooms gauge after sweep = %v, want 1", got)
	}

	if err := r.Leave(alice.conn); err != nil {
		t.Fatalf("leave: %v", err)
	}
	r.Disconnect(alice.conn)
	if got := testutil.ToFloat64(metrics.Sessions); got != 0 {
		t.Fatalf("sessions gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.Connections); got != 0 {
		t.Fatalf("connections gauge = %v, want 0", got)
	}
}
