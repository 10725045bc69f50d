package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/outbox"
	"github.com/tablyhq/tably-backend/pkg/outbox/payloads"
	"github.com/tablyhq/tably-backend/pkg/outbox/registry"
)

type repoSpy struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (r *repoSpy) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return r.events, nil
}

func (r *repoSpy) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *repoSpy) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	r.failed = append(r.failed, id)
	return nil
}

func (r *repoSpy) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	r.failed = append(r.failed, id)
	return nil
}

type noopDB struct{}

func (noopDB) Ping(context.Context) error { return nil }

func (noopDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type noopPubSub struct{}

func (noopPubSub) Ping(context.Context) error                { return nil }
func (noopPubSub) DomainPublisher() *gcppubsub.Publisher     { return nil }
func (noopPubSub) Publisher(name string) *gcppubsub.Publisher { return nil }

// scriptedPublisher hands out one queued result per Publish call.
type scriptedPublisher struct {
	results []publishResult
}

func (p *scriptedPublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	if len(p.results) == 0 {
		return nil
	}
	next := p.results[0]
	p.results = p.results[1:]
	return next
}

type scriptedResult struct {
	err error
}

func (r scriptedResult) Get(context.Context) (string, error) { return "", r.err }

type resolverStub struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (s *resolverStub) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if s.resolved == nil {
		return nil, s.err
	}
	resolved := *s.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, s.err
}

type dlqSpy struct {
	entries []models.OutboxDLQ
}

func (d *dlqSpy) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	d.entries = append(d.entries, entry)
	return nil
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, outboxCfg *config.OutboxConfig) *Service {
	t.Helper()
	cfg := &config.Config{
		Outbox: config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5},
	}
	if outboxCfg != nil {
		cfg.Outbox = *outboxCfg
	}
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               noopDB{},
		PubSub:           noopPubSub{},
		Repository:       repo,
		Registry:         resolver,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func envelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

func orderCreatedRow(t *testing.T, tag string) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopePayload(t, tag),
	}
}

func resolvedOrderCreated(topic string) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         topic,
			AggregateType: enums.AggregateOrder,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.OrderCreatedEvent{},
	}
}

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &repoSpy{
		events: []models.OutboxEvent{
			orderCreatedRow(t, "event-one"),
			orderCreatedRow(t, "event-two"),
		},
	}
	pub := &scriptedPublisher{
		results: []publishResult{
			scriptedResult{err: errors.New("transient")},
			scriptedResult{},
		},
	}
	dlq := &dlqSpy{}
	service := newTestService(t, repo, pub, &resolverStub{resolved: resolvedOrderCreated("orders-topic")}, dlq, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed rows = %v, want first event only", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("published rows = %v, want second event only", repo.published)
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("transient failure must not reach the dlq, got %d entries", len(dlq.entries))
	}
}

func TestServiceProcessBatchPublishesBillClosed(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventBillClosed,
		AggregateType: enums.AggregateBill,
		AggregateID:   uuid.New(),
		Payload:       envelopePayload(t, "closed"),
	}
	repo := &repoSpy{events: []models.OutboxEvent{event}}
	pub := &scriptedPublisher{results: []publishResult{scriptedResult{}}}
	resolver := &resolverStub{
		resolved: &registry.ResolvedEvent{
			Descriptor: registry.EventDescriptor{
				Topic:         "domain-topic",
				AggregateType: enums.AggregateBill,
			},
			Envelope: outbox.PayloadEnvelope{
				EventID:    event.ID.String(),
				OccurredAt: time.Now(),
			},
			Payload: &payloads.BillClosedEvent{},
		},
	}
	service := newTestService(t, repo, pub, resolver, &dlqSpy{}, nil)
	service.publisherFactory = func(topic string) publisher {
		if topic != "domain-topic" {
			t.Fatalf("unexpected topic %q", topic)
		}
		return pub
	}

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(pub.results) != 0 {
		t.Fatalf("expected all publish results consumed, got %d", len(pub.results))
	}
	if len(repo.published) != 1 {
		t.Fatalf("expected published row recorded once, got %d", len(repo.published))
	}
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := orderCreatedRow(t, "nonretryable")
	repo := &repoSpy{events: []models.OutboxEvent{event}}
	resolver := &resolverStub{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	dlq := &dlqSpy{}
	service := newTestService(t, repo, &scriptedPublisher{}, resolver, dlq, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatal("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := orderCreatedRow(t, "max-attempts")
	event.AttemptCount = 1
	repo := &repoSpy{events: []models.OutboxEvent{event}}
	pub := &scriptedPublisher{results: []publishResult{scriptedResult{err: errors.New("transient")}}}
	dlq := &dlqSpy{}
	service := newTestService(t, repo, pub, &resolverStub{resolved: resolvedOrderCreated("orders-topic")}, dlq, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
}
