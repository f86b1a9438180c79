package service

import (
    "context"
    "log"
    "time"

    "github.com/iliyamo/event-booking/internal/booking"
)

// Expirer is the sweep entry point of the booking engine.
type Expirer interface {
    ExpireAbandoned(ctx context.Context) (booking.SweepResult, error)
}

// Sweeper periodically rejects bookings abandoned while awaiting payment.
// Intents are handed to Notify; OnEvent is called for every event whose
// availability changed.
type Sweeper struct {
    Engine   Expirer
    Notify   func(intents ...booking.Intent)
    OnEvent  func(ctx context.Context, eventID uint64)
    Interval time.Duration
}

// Run sweeps once per interval until ctx is done.  A failed sweep is
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
    interval := s.Interval
    if interval <= 0 {
        interval = time.Minute
    }
    t := time.NewTicker(interval)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-t.C:
            s.Sweep(ctx)
        }
    }
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) booking.SweepResult {
    res, err := s.Engine.ExpireAbandoned(ctx)
    if err != nil {
        log.Printf("sweeper: %v", err)
        return res
    }
    if res.Expired > 0 || res.Confirmed > 0 {
        log.Printf("sweeper: expired=%d confirmed=%d", res.Expired, res.Confirmed)
    }
    if s.Notify != nil && len(res.Intents) > 0 {
        s.Notify(res.Intents...)
    }
    if s.OnEvent != nil {
        seen := map[uint64]bool{}
        for _, in := range res.Intents {
            if in.EventID != 0 && !seen[in.EventID] {
                seen[in.EventID] = true
                s.OnEvent(ctx, in.EventID)
            }
        }
    }
    return res
}
