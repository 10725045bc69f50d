package gatewaywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type guardStore interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	WebhookGuardKey(gatewayPaymentID string) string
}

// DeliveryGuard short-circuits duplicate gateway deliveries before they hit
// the database. The unique index on gateway_payment_id remains the durable
// dedup; this is only the fast path.
type DeliveryGuard struct {
	store guardStore
	ttl   time.Duration
}

func NewDeliveryGuard(store guardStore, ttl time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("guard store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &DeliveryGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the delivery was already seen, marking it as
// in flight otherwise.
func (g *DeliveryGuard) CheckAndMark(ctx context.Context, gatewayPaymentID string) (bool, error) {
	if gatewayPaymentID == "" {
		return false, errors.New("gateway payment id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookGuardKey(gatewayPaymentID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook guard: %w", err)
	}
	return !set, nil
}

// Release drops the guard so a retry of a failed delivery can run.
func (g *DeliveryGuard) Release(ctx context.Context, gatewayPaymentID string) error {
	if gatewayPaymentID == "" {
		return errors.New("gateway payment id is required")
	}
	return g.store.Del(ctx, g.store.WebhookGuardKey(gatewayPaymentID))
}
