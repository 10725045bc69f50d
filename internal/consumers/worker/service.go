package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/tablyhq/tably-backend/pkg/enums"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/outbox"
)

// Dispatcher routes one decoded domain event to its consumer.
type Dispatcher interface {
	Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error
}

// Service pulls domain events off the Pub/Sub subscription and hands them to
// the dispatcher. Dedup lives with the consumers; a dispatch error nacks the
// message so the subscription redelivers it.
type Service struct {
	subscription *gcppubsub.Subscriber
	dispatcher   Dispatcher
	logg         *logger.Logger
}

// NewService builds a consumer worker around one subscription.
func NewService(subscription *gcppubsub.Subscriber, dispatcher Dispatcher, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, dispatcher: dispatcher, logg: logg}, nil
}

// Run consumes messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) bool {
	fields := map[string]any{
		"message_id":   msg.ID,
		"publish_time": msg.PublishTime.Format(time.RFC3339Nano),
	}
	for key, value := range msg.Attributes {
		fields[key] = value
	}
	logCtx := s.logg.WithFields(ctx, fields)

	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	if eventType == "" {
		// Malformed messages are acked; redelivery cannot fix them.
		s.logg.Warn(logCtx, "message missing event_type attribute")
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "invalid event envelope")
		return true
	}

	if err := s.dispatcher.Process(logCtx, eventType, envelope); err != nil {
		s.logg.Error(logCtx, "event dispatch failed", err)
		return false
	}
	return true
}
