package actionqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tablyhq/tably-backend/pkg/enums"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

const (
	defaultMaxAttempts  = 5
	defaultSyncInterval = 30 * time.Second
)

type actionStore interface {
	Insert(ctx context.Context, action *QueuedAction) error
	ListPending(ctx context.Context) ([]QueuedAction, error)
	ListFailed(ctx context.Context) ([]QueuedAction, error)
	RecoverSyncing(ctx context.Context) (int64, error)
	MarkSyncing(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	RevertToPending(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
	CountPending(ctx context.Context) (int64, error)
}

type submitter interface {
	Ping(ctx context.Context) error
	Submit(ctx context.Context, action *QueuedAction) error
}

// Options tunes queue behavior; zero values fall back to defaults.
type Options struct {
	MaxAttempts  int
	SyncInterval time.Duration
}

// Queue is the durable offline action queue. Enqueue always succeeds locally;
// Sync drains PENDING actions against the server and is single-flight, since
// two concurrent passes could reorder or double-submit actions.
type Queue struct {
	store        actionStore
	client       submitter
	logg         *logger.Logger
	maxAttempts  int
	syncInterval time.Duration

	mu       sync.Mutex
	inFlight bool
	kick     chan struct{}
}

// NewQueue builds an action queue.
func NewQueue(store actionStore, client submitter, logg *logger.Logger, opts Options) (*Queue, error) {
	if store == nil {
		return nil, fmt.Errorf("action store required")
	}
	if client == nil {
		return nil, fmt.Errorf("api client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = defaultSyncInterval
	}
	return &Queue{
		store:        store,
		client:       client,
		logg:         logg,
		maxAttempts:  opts.MaxAttempts,
		syncInterval: opts.SyncInterval,
		kick:         make(chan struct{}, 1),
	}, nil
}

// Enqueue durably records a mutation and nudges the sync loop. The
// idempotency key is minted here, at enqueue time, so every replay of this
// action carries the same key and collapses server-side.
func (q *Queue) Enqueue(ctx context.Context, actionType enums.QueuedActionType, payload any) (*QueuedAction, error) {
	if !actionType.IsValid() {
		return nil, fmt.Errorf("invalid action type %q", actionType)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	action := &QueuedAction{
		ID:             uuid.New(),
		ActionType:     actionType,
		Payload:        data,
		IdempotencyKey: uuid.NewString(),
		Status:         enums.QueuedActionStatusPending,
		EnqueuedAt:     time.Now().UTC(),
	}
	if err := q.store.Insert(ctx, action); err != nil {
		return nil, fmt.Errorf("persist action: %w", err)
	}

	q.TriggerSync()
	return action, nil
}

// TriggerSync requests a sync pass without blocking. Used on enqueue and by
// the reconnect probe.
func (q *Queue) TriggerSync() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

// Sync drains PENDING actions in enqueue order. Only one pass runs at a time;
// a pass that finds another in flight returns immediately with Skipped set.
func (q *Queue) Sync(ctx context.Context) (SyncResult, error) {
	q.mu.Lock()
	if q.inFlight {
		q.mu.Unlock()
		return SyncResult{Skipped: true}, nil
	}
	q.inFlight = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.inFlight = false
		q.mu.Unlock()
	}()

	// Only one pass runs at a time, so any SYNCING row here is a claim from
	// an interrupted earlier pass. Requeue it before draining.
	recovered, err := q.store.RecoverSyncing(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("recover in-flight actions: %w", err)
	}
	if recovered > 0 {
		q.logg.Warn(ctx, fmt.Sprintf("requeued %d actions left in flight by an interrupted sync", recovered))
	}

	pending, err := q.store.ListPending(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list pending actions: %w", err)
	}

	var result SyncResult
	for i := range pending {
		action := pending[i]
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := q.store.MarkSyncing(ctx, action.ID); err != nil {
			return result, fmt.Errorf("claim action %s: %w", action.ID, err)
		}

		submitErr := q.client.Submit(ctx, &action)
		if submitErr == nil {
			if err := q.store.Delete(ctx, action.ID); err != nil {
				return result, fmt.Errorf("delete synced action %s: %w", action.ID, err)
			}
			result.Synced++
			continue
		}

		attempts := action.Attempts + 1
		if attempts >= q.maxAttempts {
			q.logg.Error(ctx, fmt.Sprintf("action %s failed permanently after %d attempts", action.ID, attempts), submitErr)
			if err := q.store.MarkFailed(ctx, action.ID, attempts, submitErr.Error()); err != nil {
				return result, fmt.Errorf("mark action %s failed: %w", action.ID, err)
			}
			result.Failed++
			continue
		}

		q.logg.Warn(ctx, fmt.Sprintf("action %s attempt %d failed, will retry: %v", action.ID, attempts, submitErr))
		if err := q.store.RevertToPending(ctx, action.ID, attempts, submitErr.Error()); err != nil {
			return result, fmt.Errorf("requeue action %s: %w", action.ID, err)
		}
		result.Requeued++
	}
	return result, nil
}

// Failed lists actions that exhausted their retries, for operator review.
func (q *Queue) Failed(ctx context.Context) ([]QueuedAction, error) {
	return q.store.ListFailed(ctx)
}

// Run drives sync passes on a timer plus enqueue kicks until the context is
// cancelled. When the backlog is non-empty and the server is unreachable the
// pass is skipped; the next tick acts as the reconnect probe.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-q.kick:
		}

		count, err := q.store.CountPending(ctx)
		if err != nil {
			q.logg.Error(ctx, "count pending actions", err)
			continue
		}
		if count == 0 {
			continue
		}
		if err := q.client.Ping(ctx); err != nil {
			q.logg.Info(ctx, fmt.Sprintf("server unreachable, %d actions waiting", count))
			continue
		}

		result, err := q.Sync(ctx)
		if err != nil {
			q.logg.Error(ctx, "sync pass failed", err)
			continue
		}
		if !result.Skipped {
			q.logg.Info(ctx, fmt.Sprintf("sync pass done: %d synced, %d requeued, %d failed",
				result.Synced, result.Requeued, result.Failed))
		}
	}
}
