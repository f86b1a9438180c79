package model

import "time"

// GatewayStatus is the settlement status reported by a payment gateway.
type GatewayStatus string

const (
    GatewaySucceeded GatewayStatus = "succeeded"
    GatewayPending   GatewayStatus = "pending"
    GatewayFailed    GatewayStatus = "failed"
    GatewayCancelled GatewayStatus = "cancelled"
)

// Payment mirrors a gateway payment attempt.  It is keyed by the gateway
// reference and recorded even when no transaction could be created for
// it, so reconciliation can always see what the gateway reported.
type Payment struct {
    ID               uint64        // payments.id
    BookingID        *uint64       // payments.booking_id (nullable)
    EventID          uint64        // payments.event_id
    GatewayReference string        // payments.gateway_reference (unique)
    Method           string        // payments.method
    Status           GatewayStatus // payments.status
    AmountCents      int64         // payments.amount_cents
    CreatedAt        time.Time     // payments.created_at
    UpdatedAt        time.Time     // payments.updated_at
}

// PaymentCheck is what a gateway reports for a payment reference.
type PaymentCheck struct {
    Status GatewayStatus
    Method string
}
