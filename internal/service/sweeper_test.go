package service

import (
    "context"
    "errors"
    "testing"

    "github.com/iliyamo/event-booking/internal/booking"
)

type fakeExpirer struct {
    res booking.SweepResult
    err error
}

func (f fakeExpirer) ExpireAbandoned(context.Context) (booking.SweepResult, error) {
    return f.res, f.err
}

func TestSweepForwardsIntentsAndEvents(t *testing.T) {
    var sent []booking.Intent
    var touched []uint64
    s := &Sweeper{
        Engine: fakeExpirer{res: booking.SweepResult{
            Expired: 2,
            Intents: []booking.Intent{
                {Kind: booking.KindBookingExpired, EventID: 1},
                {Kind: booking.KindWaitlistSlotOpen, EventID: 1},
                {Kind: booking.KindBookingExpired, EventID: 2},
            },
        }},
        Notify:  func(in ...booking.Intent) { sent = append(sent, in...) },
        OnEvent: func(_ context.Context, id uint64) { touched = append(touched, id) },
    }
    res := s.Sweep(context.Background())
    if res.Expired != 2 || len(sent) != 3 {
        t.Fatalf("expired=%d sent=%d", res.Expired, len(sent))
    }
    if len(touched) != 2 || touched[0] != 1 || touched[1] != 2 {
        t.Fatalf("touched = %v", touched)
    }
}

func TestSweepErrorSendsNothing(t *testing.T) {
    called := false
    s := &Sweeper{
        Engine: fakeExpirer{err: errors.New("db down")},
        Notify: func(...booking.Intent) { called = true },
    }
    s.Sweep(context.Background())
    if called {
        t.Fatal("no intents expected after a failed sweep")
    }
}

func TestRunStopsWithContext(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    done := make(chan struct{})
    go func() {
        (&Sweeper{Engine: fakeExpirer{}}).Run(ctx)
        close(done)
    }()
    <-done
}
