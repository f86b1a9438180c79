package booking

import "strings"

// PaymentPath says how a booking will be paid.  It is one of FreePath,
// GatewayPath or ManualPath and is consumed by a single type switch.
type PaymentPath interface {
	paymentPath()
}

// FreePath needs no payment: the event is free or fully discounted.
type FreePath struct{}

// GatewayPath is paid through the payment gateway under Reference.
type GatewayPath struct {
	Reference string
}

// ManualPath is paid offline; Proof points at the receipt a reviewer checks.
type ManualPath struct {
	Proof string
}

func (FreePath) paymentPath()    {}
func (GatewayPath) paymentPath() {}
func (ManualPath) paymentPath()  {}

// choosePath picks the payment path for a quote.  A gateway reference wins
// over a manual proof.  A paid quote with neither is rejected.
func choosePath(q Quote, gatewayRef, manualProof string) (PaymentPath, Reason) {
	if q.FinalCents <= 0 {
		return FreePath{}, ""
	}
	if ref := strings.TrimSpace(gatewayRef); ref != "" {
		return GatewayPath{Reference: ref}, ""
	}
	if proof := strings.TrimSpace(manualProof); proof != "" {
		return ManualPath{Proof: proof}, ""
	}
	return nil, ReasonPaymentRequired
}
