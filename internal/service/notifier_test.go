package service

import (
    "context"
    "testing"
    "time"

    "github.com/oklog/ulid/v2"

    "github.com/iliyamo/event-booking/internal/booking"
)

func TestNewMessageCarriesIntent(t *testing.T) {
    at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
    in := booking.Intent{
        Audience:  booking.AudienceHolder,
        Email:     "a@b.io",
        Kind:      booking.KindBookingConfirmedFree,
        EventID:   7,
        BookingID: 42,
        Payload:   map[string]any{"ticket_number": "TKT-1"},
    }
    m := NewMessage(in, at)
    if m.Kind != in.Kind || m.Audience != "holder" || m.EventID != 7 || m.BookingID != 42 {
        t.Fatalf("unexpected message %+v", m)
    }
    if m.CreatedAt != "2026-03-01T10:00:00Z" {
        t.Fatalf("created_at = %q", m.CreatedAt)
    }
    id, err := ulid.ParseStrict(m.ID)
    if err != nil {
        t.Fatalf("id %q is not a ULID: %v", m.ID, err)
    }
    if !ulid.Time(id.Time()).Equal(at) {
        t.Fatalf("ULID time = %v, want %v", ulid.Time(id.Time()), at)
    }
}

func TestNewMessageIDsAreUnique(t *testing.T) {
    at := time.Now()
    seen := map[string]bool{}
    for i := 0; i < 1000; i++ {
        id := NewMessage(booking.Intent{Kind: "k"}, at).ID
        if seen[id] {
            t.Fatalf("duplicate id %s", id)
        }
        seen[id] = true
    }
}

func TestRedisLockerWithoutClientGrants(t *testing.T) {
    l := NewRedisLocker(nil, "")
    release, ok, err := l.Acquire(context.Background(), "reconcile:x", time.Second)
    if err != nil || !ok {
        t.Fatalf("ok=%v err=%v", ok, err)
    }
    release()
}
