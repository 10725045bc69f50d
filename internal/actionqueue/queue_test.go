package actionqueue

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablyhq/tably-backend/pkg/enums"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

type stubSubmitter struct {
	mu       sync.Mutex
	submits  []uuid.UUID
	keys     []string
	failWith error
	started  chan struct{}
	release  chan struct{}
}

func (s *stubSubmitter) Ping(ctx context.Context) error { return nil }

func (s *stubSubmitter) Submit(ctx context.Context, action *QueuedAction) error {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.submits = append(s.submits, action.ID)
	s.keys = append(s.keys, action.IdempotencyKey)
	return nil
}

func (s *stubSubmitter) submitted() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.submits...)
}

func newTestQueue(t *testing.T, client submitter, opts Options) (*Queue, *Store) {
	t.Helper()
	store := newTestStore(t)
	queue, err := NewQueue(store, client, logger.New(logger.Options{
		ServiceName: "queue-test",
		Output:      io.Discard,
	}), opts)
	require.NoError(t, err)
	return queue, store
}

func TestEnqueueAlwaysSucceedsLocally(t *testing.T) {
	client := &stubSubmitter{failWith: errors.New("network down")}
	queue, store := newTestQueue(t, client, Options{})
	ctx := context.Background()

	action, err := queue.Enqueue(ctx, enums.QueuedActionPlaceOrder, PlaceOrderPayload{
		TableID: uuid.New(),
		Items:   []PlaceOrderItem{{MenuItemID: uuid.New(), Qty: 2}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, action.IdempotencyKey)
	assert.Equal(t, enums.QueuedActionStatusPending, action.Status)

	count, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestEnqueueRejectsUnknownActionType(t *testing.T) {
	queue, _ := newTestQueue(t, &stubSubmitter{}, Options{})

	_, err := queue.Enqueue(context.Background(), enums.QueuedActionType("drop_table"), nil)
	require.Error(t, err)
}

func TestSyncDrainsInEnqueueOrderAndDeletes(t *testing.T) {
	client := &stubSubmitter{}
	queue, store := newTestQueue(t, client, Options{})
	ctx := context.Background()

	first, err := queue.Enqueue(ctx, enums.QueuedActionPlaceOrder, PlaceOrderPayload{TableID: uuid.New()})
	require.NoError(t, err)
	second, err := queue.Enqueue(ctx, enums.QueuedActionAddPayment, AddPaymentPayload{
		BillID: uuid.New(), Method: enums.PaymentMethodCash, AmountCents: 500,
	})
	require.NoError(t, err)

	result, err := queue.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, client.submitted())

	count, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncReplayCarriesSameIdempotencyKey(t *testing.T) {
	client := &stubSubmitter{failWith: errors.New("timeout")}
	queue, _ := newTestQueue(t, client, Options{})
	ctx := context.Background()

	action, err := queue.Enqueue(ctx, enums.QueuedActionAddPayment, AddPaymentPayload{
		BillID: uuid.New(), Method: enums.PaymentMethodUPI, AmountCents: 295, Reference: ptr("upi-1"),
	})
	require.NoError(t, err)

	result, err := queue.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Requeued)

	client.mu.Lock()
	client.failWith = nil
	client.mu.Unlock()

	result, err = queue.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, []string{action.IdempotencyKey}, client.keys)
}

func TestSyncFailurePastCeilingMarksFailed(t *testing.T) {
	client := &stubSubmitter{failWith: errors.New("422 validation")}
	queue, store := newTestQueue(t, client, Options{MaxAttempts: 2})
	ctx := context.Background()

	action, err := queue.Enqueue(ctx, enums.QueuedActionCloseBill, CloseBillPayload{BillID: uuid.New()})
	require.NoError(t, err)

	result, err := queue.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Requeued)

	result, err = queue.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	count, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	failed, err := queue.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, action.ID, failed[0].ID)
	assert.Equal(t, 2, failed[0].Attempts)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "422 validation", *failed[0].LastError)
}

func TestSyncReplaysActionInterruptedMidFlight(t *testing.T) {
	client := &stubSubmitter{}
	queue, store := newTestQueue(t, client, Options{})
	ctx := context.Background()

	action, err := queue.Enqueue(ctx, enums.QueuedActionAddPayment, AddPaymentPayload{
		BillID: uuid.New(), Method: enums.PaymentMethodUPI, AmountCents: 295, Reference: ptr("upi-2"),
	})
	require.NoError(t, err)
	// A crash between claiming the action and recording the outcome leaves
	// it SYNCING. The next pass must requeue and replay it.
	require.NoError(t, store.MarkSyncing(ctx, action.ID))

	count, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	result, err := queue.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, []uuid.UUID{action.ID}, client.submitted())
	assert.Equal(t, []string{action.IdempotencyKey}, client.keys)

	count, err = store.CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSyncIsSingleFlight(t *testing.T) {
	client := &stubSubmitter{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	queue, _ := newTestQueue(t, client, Options{})
	ctx := context.Background()

	_, err := queue.Enqueue(ctx, enums.QueuedActionAddPayment, AddPaymentPayload{
		BillID: uuid.New(), Method: enums.PaymentMethodCash, AmountCents: 100,
	})
	require.NoError(t, err)

	done := make(chan SyncResult, 1)
	go func() {
		result, _ := queue.Sync(ctx)
		done <- result
	}()

	select {
	case <-client.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first sync never reached the server")
	}

	overlapping, err := queue.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, overlapping.Skipped)

	close(client.release)
	first := <-done
	assert.Equal(t, 1, first.Synced)
	assert.Len(t, client.submitted(), 1, "exactly one submission despite two sync calls")
}

func ptr(s string) *string { return &s }
