package effects

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/internal/bills"
	"github.com/tablyhq/tably-backend/internal/revenueshare"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/outbox"
	"github.com/tablyhq/tably-backend/pkg/outbox/payloads"
	"github.com/tablyhq/tably-backend/pkg/outbox/registry"
)

const effectsConsumerName = "effects"

type billCreator interface {
	CreateFromOrder(ctx context.Context, restaurantID, orderID uuid.UUID) (*bills.CreateBillResult, error)
}

type commissionDeriver interface {
	Derive(ctx context.Context, input revenueshare.DeriveInput) (*revenueshare.DeriveResult, error)
}

type restaurantDirectory interface {
	FindRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer runs the follow-up effects of order lifecycle events. The effects
// are decoupled from the transition that emitted them: a failure here is
// retried by the subscription, never rolled into the original transaction.
type Consumer struct {
	bills       billCreator
	shares      commissionDeriver
	restaurants restaurantDirectory
	manager     idempotencyChecker
	logg        *logger.Logger
	decoders    *registry.DecoderRegistry
	eventFilter map[enums.OutboxEventType]struct{}
}

// NewConsumer builds the effects consumer.
func NewConsumer(billsSvc billCreator, shares commissionDeriver, restaurants restaurantDirectory, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if billsSvc == nil {
		return nil, fmt.Errorf("bills service required")
	}
	if shares == nil {
		return nil, fmt.Errorf("revenue share service required")
	}
	if restaurants == nil {
		return nil, fmt.Errorf("restaurant directory required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventOrderServed, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.OrderServedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return &event, nil
	})
	return &Consumer{
		bills:       billsSvc,
		shares:      shares,
		restaurants: restaurants,
		manager:     manager,
		logg:        logg,
		decoders:    decoders,
		eventFilter: map[enums.OutboxEventType]struct{}{
			enums.EventOrderServed: {},
		},
	}, nil
}

// Process opens a bill and derives the district commission for a served
// order. Replays collapse twice over: the Redis guard short-circuits
// redeliveries, and the unique bill-per-order and invoice-per-district keys
// absorb anything that slips through.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if _, ok := c.eventFilter[eventType]; !ok {
		c.logg.Info(logCtx, "event not handled by effects consumer")
		return nil
	}

	if envelope.EventID == "" {
		return fmt.Errorf("event id missing")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		return fmt.Errorf("decode order served payload: %w", err)
	}
	served, ok := decoded.(*payloads.OrderServedEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", decoded)
	}
	if served.OrderID == uuid.Nil {
		return fmt.Errorf("order id missing")
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, effectsConsumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	result, err := c.bills.CreateFromOrder(ctx, served.RestaurantID, served.OrderID)
	if err != nil {
		c.logg.Error(logCtx, "failed to open bill for served order", err)
		_ = c.manager.Delete(ctx, effectsConsumerName, eventID)
		return err
	}
	if result.Reused {
		c.logg.Info(logCtx, "bill already open for order")
	} else {
		c.logg.Info(c.logg.WithBillID(logCtx, result.Bill.ID.String()), "bill opened for served order")
	}

	// Commission runs even when the bill was reused; a redelivery that
	// opened the bill but died before deriving must still derive.
	if err := c.deriveCommission(ctx, logCtx, served); err != nil {
		_ = c.manager.Delete(ctx, effectsConsumerName, eventID)
		return err
	}
	return nil
}

// deriveCommission records the district's cut of a served order. Restaurants
// without a district owe nothing; replays collapse on the order-scoped
// invoice ref.
func (c *Consumer) deriveCommission(ctx, logCtx context.Context, served *payloads.OrderServedEvent) error {
	if served.SubtotalCents <= 0 {
		return nil
	}
	restaurant, err := c.restaurants.FindRestaurant(ctx, served.RestaurantID)
	if err != nil {
		c.logg.Error(logCtx, "failed to load restaurant for commission", err)
		return fmt.Errorf("load restaurant: %w", err)
	}
	if restaurant.DistrictID == nil {
		return nil
	}

	ref := orderInvoiceRef(served.OrderID)
	result, err := c.shares.Derive(ctx, revenueshare.DeriveInput{
		DistrictID:  *restaurant.DistrictID,
		InvoiceRef:  ref,
		PaymentRef:  ref,
		AmountCents: served.SubtotalCents,
	})
	if err != nil {
		c.logg.Error(logCtx, "failed to derive commission for served order", err)
		return err
	}
	if result.Skipped {
		c.logg.Info(logCtx, "commission already derived for order")
	}
	return nil
}

func orderInvoiceRef(orderID uuid.UUID) string {
	return "order-" + orderID.String()
}
