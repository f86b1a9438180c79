package config

import (
    "time"
)

// BookingConfig tunes the booking engine, the ticket issuer and the
// background sweeper.
//
// Fee settings: PLATFORM_FEE_TIERS wins over the flat settings when set.
// Tiers are written "upto:bps:fixed" separated by commas, the last upto must
// be "*".
type BookingConfig struct {
    FeeBasisPoints     int64
    FeeFixedCents      int64
    FeeTiers           string
    GatewayTimeout     time.Duration
    AwaitingWindow     time.Duration
    SweepInterval      time.Duration
    SweepBatch         int
    ReconcileLockTTL   time.Duration
    NotifyBuffer       int
    NotifyWorkers      int
    TicketNodeID       int64
    TicketSecret       string
    CallerEmailLookups bool
}

// LoadBookingConfig reads booking settings.  TICKET_NODE_ID and
// TICKET_SECRET are required.
func LoadBookingConfig() BookingConfig {
    return BookingConfig{
        FeeBasisPoints:     int64(envInt("PLATFORM_FEE_BPS", 0)),
        FeeFixedCents:      int64(envInt("PLATFORM_FEE_FIXED_CENTS", 0)),
        FeeTiers:           envStr("PLATFORM_FEE_TIERS", ""),
        GatewayTimeout:     envDur("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
        AwaitingWindow:     envDur("AWAITING_PAYMENT_WINDOW", 30*time.Minute),
        SweepInterval:      envDur("EXPIRY_SWEEP_INTERVAL", time.Minute),
        SweepBatch:         envInt("EXPIRY_SWEEP_BATCH", 100),
        ReconcileLockTTL:   envDur("RECONCILE_LOCK_TTL", 30*time.Second),
        NotifyBuffer:       envInt("NOTIFY_BUFFER", 256),
        NotifyWorkers:      envInt("NOTIFY_WORKERS", 2),
        TicketNodeID:       int64(mustInt("TICKET_NODE_ID")),
        TicketSecret:       must("TICKET_SECRET"),
        CallerEmailLookups: envBool("CALLER_EMAIL_LOOKUP", true),
    }
}
