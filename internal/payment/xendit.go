// Package payment adapts the Xendit Payment Requests API to the booking
// engine's gateway contract.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xendit/xendit-go/v6"

	"github.com/iliyamo/event-booking/internal/model"
)

// ErrNotConfigured is returned when no secret key was provided.
var ErrNotConfigured = errors.New("payment: gateway not configured")

// lookupFunc fetches the raw status and payment method type of a payment
// request.
type lookupFunc func(ctx context.Context, id string) (status, method string, err error)

// XenditGateway verifies payment request ids against Xendit.
type XenditGateway struct {
	lookup lookupFunc
}

// NewXenditGateway builds a gateway backed by the Xendit API client.  An
// empty secret key yields a gateway that always fails verification, which
// the engine treats as "payment pending".
func NewXenditGateway(secretKey string) *XenditGateway {
	if strings.TrimSpace(secretKey) == "" {
		return &XenditGateway{lookup: func(context.Context, string) (string, string, error) {
			return "", "", ErrNotConfigured
		}}
	}
	client := xendit.NewClient(secretKey)
	return &XenditGateway{lookup: func(ctx context.Context, id string) (string, string, error) {
		pr, _, xerr := client.PaymentRequestApi.GetPaymentRequestByID(ctx, id).Execute()
		if xerr != nil {
			return "", "", fmt.Errorf("xendit: get payment request %s: %s", id, xerr.Error())
		}
		method := pr.GetPaymentMethod()
		return string(pr.GetStatus()), string(method.GetType()), nil
	}}
}

// VerifyPaymentReference reads the current status of payment request ref.
func (g *XenditGateway) VerifyPaymentReference(ctx context.Context, ref string) (model.PaymentCheck, error) {
	status, method, err := g.lookup(ctx, ref)
	if err != nil {
		return model.PaymentCheck{}, err
	}
	return model.PaymentCheck{Status: MapStatus(status), Method: method}, nil
}

// MapStatus folds Xendit payment request statuses into gateway statuses.
// Anything not known to be final counts as pending.
func MapStatus(s string) model.GatewayStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUCCEEDED":
		return model.GatewaySucceeded
	case "FAILED":
		return model.GatewayFailed
	case "CANCELED", "CANCELLED", "VOIDED":
		return model.GatewayCancelled
	default:
		return model.GatewayPending
	}
}
