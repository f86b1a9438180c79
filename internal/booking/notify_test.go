package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingNotifier struct {
	mu   sync.Mutex
	got  []Intent
	fail bool
}

func (r *recordingNotifier) Notify(_ context.Context, in Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, in)
	if r.fail {
		return errors.New("broker unavailable")
	}
	return nil
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	n := &recordingNotifier{fail: true}
	d := NewDispatcher(n, 8)
	d.Enqueue(Intent{Kind: KindBookingConfirmedFree}, Intent{Kind: KindOrganizerFreeBooking})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, 2)
		close(done)
	}()
	cancel()
	<-done

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.got) != 2 {
		t.Fatalf("delivered %d intents, want 2", len(n.got))
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDispatcher(n, 1)
	d.Enqueue(Intent{Kind: "a"}, Intent{Kind: "b"}, Intent{Kind: "c"})
	if got := len(d.queue); got != 1 {
		t.Fatalf("queued = %d, want 1", got)
	}
}
