package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type storeSpy struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (s *storeSpy) Get(context.Context, string) (string, error) {
	return "", nil
}

func (s *storeSpy) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.lastKey = key
	s.lastTTL = ttl
	return s.setNXResult, s.setNXError
}

func (s *storeSpy) IdempotencyKey(scope, id string) string {
	return "tably:idempotency:" + scope + ":" + id
}

func (s *storeSpy) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		s.lastDeleted = keys[0]
	}
	return nil
}

func newTestManager(t *testing.T, store *storeSpy, ttl time.Duration) *Manager {
	t.Helper()
	manager, err := NewManager(store, ttl)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager
}

func TestCheckAndMarkProcessedFirstDelivery(t *testing.T) {
	store := &storeSpy{setNXResult: true}
	manager := newTestManager(t, store, 24*time.Hour)

	eventID := uuid.New()
	already, err := manager.CheckAndMarkProcessed(context.Background(), "orders-worker", eventID)
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if already {
		t.Fatal("first delivery reported as already processed")
	}
	wantKey := "tably:idempotency:evt:processed:orders-worker:" + eventID.String()
	if store.lastKey != wantKey {
		t.Fatalf("key = %q, want %q", store.lastKey, wantKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("ttl = %v, want 24h", store.lastTTL)
	}
}

func TestCheckAndMarkProcessedRedelivery(t *testing.T) {
	manager := newTestManager(t, &storeSpy{setNXResult: false}, 12*time.Hour)

	already, err := manager.CheckAndMarkProcessed(context.Background(), "orders-worker", uuid.New())
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if !already {
		t.Fatal("redelivery not detected")
	}
}

func TestCheckAndMarkProcessedStoreError(t *testing.T) {
	manager := newTestManager(t, &storeSpy{setNXError: errors.New("boom")}, time.Hour)

	if _, err := manager.CheckAndMarkProcessed(context.Background(), "orders-worker", uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCheckAndMarkProcessedRejectsBadInput(t *testing.T) {
	manager := newTestManager(t, &storeSpy{}, time.Hour)

	if _, err := manager.CheckAndMarkProcessed(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected error for empty consumer name")
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "orders-worker", uuid.Nil); err == nil {
		t.Fatal("expected error for nil event id")
	}
}

func TestDeleteClearsProcessedMark(t *testing.T) {
	store := &storeSpy{}
	manager := newTestManager(t, store, time.Hour)

	eventID := uuid.New()
	if err := manager.Delete(context.Background(), "orders-worker", eventID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	want := "tably:idempotency:evt:processed:orders-worker:" + eventID.String()
	if store.lastDeleted != want {
		t.Fatalf("deleted key = %q, want %q", store.lastDeleted, want)
	}
}
