package core

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func chatTexts(t *testing.T, p peer) []string {
	t.Helper()
	return messages(p.tr.drain(t), "chat")
}

func isSubsequence(sub, seq []string) bool {
	i := 0
	for _, s := range seq {
		if i < len(sub) && sub[i] == s {
			i++
		}
	}
	return i == len(sub)
}

func TestRelayConcurrentChatKeepsOneOrder(t *testing.T) {
	const (
		senders   = 3
		perSender = 200
	)
	r, _ := newTestRelay(nil)
	join := JoinRequest{Latitude: 12.90, Longitude: 77.60}

	members := make([]peer, 0, senders+1)
	for i := 0; i < senders; i++ {
		p := newPeer(r, fmt.Sprintf("sender-%d", i))
		req := join
		req.UserID = fmt.Sprintf("user-%d", i)
		mustJoin(t, r, p, req)
		members = append(members, p)
	}
	watcher := newPeer(r, "watcher")
	req := join
	req.UserID = "watcher"
	mustJoin(t, r, watcher, req)
	members = append(members, watcher)
	for _, p := range members {
		p.tr.drain(t)
	}

	churn := newPeer(r, "churn")
	late := newPeer(r, "late")

	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, senders*perSender+100)

	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			for n := 0; n < perSender; n++ {
				msg := map[string]any{"message": fmt.Sprintf("%d-%d", i, n)}
				if err := r.Chat(members[i].conn, msg); err != nil {
					errs <- err
				}
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		req := join
		req.UserID = "churn"
		for n := 0; n < 50; n++ {
			if err := r.Join(churn.conn, req); err != nil {
				errs <- err
			}
			if err := r.Leave(churn.conn); err != nil {
				errs <- err
			}
			r.SweepIdle(time.Hour)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		time.Sleep(time.Millisecond)
		req := join
		req.UserID = "late"
		if err := r.Join(late.conn, req); err != nil {
			errs <- err
		}
	}()

	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent operation failed: %v", err)
	}

	reference := chatTexts(t, members[0])
	if len(reference) != senders*perSender {
		t.Fatalf("expected %d chat frames, got %d", senders*perSender, len(reference))
	}
	seen := make(map[string]bool, len(reference))
	for _, m := range reference {
		if seen[m] {
			t.Fatalf("duplicate delivery of %q", m)
		}
		seen[m] = true
	}
	for i := 0; i < senders; i++ {
		var own []string
		for n := 0; n < perSender; n++ {
			own = append(own, fmt.Sprintf("%d-%d", i, n))
		}
		if !isSubsequence(own, reference) {
			t.Fatalf("messages of sender %d arrived out of order", i)
		}
	}

	for idx, p := range members[1:] {
		got := chatTexts(t, p)
		if len(got) != len(reference) {
			t.Fatalf("member %d got %d frames, want %d", idx+1, len(got), len(reference))
		}
		for n := range got {
			if got[n] != reference[n] {
				t.Fatalf("member %d diverges at %d: %q vs %q", idx+1, n, got[n], reference[n])
			}
		}
	}
	for name, p := range map[string]peer{"churn": churn, "late": late} {
		if got := chatTexts(t, p); !isSubsequence(got, reference) {
			t.Fatalf("%s saw frames in a different order", name)
		}
	}
	if n := r.Rooms().Size("12.9,77.6"); n != senders+2 {
		t.Fatalf("expected %d members after churn, got %d", senders+2, n)
	}
}
