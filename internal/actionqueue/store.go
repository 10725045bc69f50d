package actionqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tablyhq/tably-backend/pkg/enums"
)

// QueuedAction is one durable, not-yet-confirmed client mutation. Rows live
// only in the posagent's local SQLite file; the server never sees them.
type QueuedAction struct {
	ID             uuid.UUID                `gorm:"type:uuid;primaryKey"`
	ActionType     enums.QueuedActionType   `gorm:"not null"`
	Payload        []byte                   `gorm:"not null"`
	IdempotencyKey string                   `gorm:"not null;uniqueIndex:idx_queued_actions_key"`
	Status         enums.QueuedActionStatus `gorm:"not null;index"`
	Attempts       int                      `gorm:"not null;default:0"`
	LastError      *string
	EnqueuedAt     time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time
}

// TableName maps the model to its table.
func (QueuedAction) TableName() string {
	return "queued_actions"
}

// Store is the durable local queue. The schema is auto-migrated on open; the
// posagent owns this file end to end, so versioned migrations buy nothing.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (and if needed creates) the queue database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("queue store path required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	if err := db.AutoMigrate(&QueuedAction{}); err != nil {
		return nil, fmt.Errorf("migrate queue store: %w", err)
	}
	store := &Store{db: db}
	// One process owns this file, so a SYNCING row at open is a claim left
	// behind by a crash mid-sync. Put it back in line; the idempotency key
	// minted at enqueue absorbs the replay server-side.
	if _, err := store.RecoverSyncing(context.Background()); err != nil {
		return nil, fmt.Errorf("recover in-flight actions: %w", err)
	}
	return store, nil
}

// Insert persists a new action.
func (s *Store) Insert(ctx context.Context, action *QueuedAction) error {
	return s.db.WithContext(ctx).Create(action).Error
}

// ListPending returns PENDING actions in enqueue order.
func (s *Store) ListPending(ctx context.Context) ([]QueuedAction, error) {
	var actions []QueuedAction
	err := s.db.WithContext(ctx).
		Where("status = ?", enums.QueuedActionStatusPending).
		Order("enqueued_at ASC, id ASC").
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// ListFailed returns actions that exhausted their retries, oldest first.
func (s *Store) ListFailed(ctx context.Context) ([]QueuedAction, error) {
	var actions []QueuedAction
	err := s.db.WithContext(ctx).
		Where("status = ?", enums.QueuedActionStatusFailed).
		Order("enqueued_at ASC, id ASC").
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// RecoverSyncing reverts SYNCING claims back to PENDING. A claim only
// outlives its sync pass when the process died between claiming the action
// and recording the outcome.
func (s *Store) RecoverSyncing(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&QueuedAction{}).
		Where("status = ?", enums.QueuedActionStatusSyncing).
		Updates(map[string]any{
			"status":     enums.QueuedActionStatusPending,
			"updated_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

// MarkSyncing claims a PENDING action for the current sync pass.
func (s *Store) MarkSyncing(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Model(&QueuedAction{}).
		Where("id = ? AND status = ?", id, enums.QueuedActionStatusPending).
		Updates(map[string]any{
			"status":     enums.QueuedActionStatusSyncing,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("action %s is not pending", id)
	}
	return nil
}

// Delete removes an action once the server has durably accepted it.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&QueuedAction{}).Error
}

// RevertToPending puts a failed attempt back in line with its error recorded.
func (s *Store) RevertToPending(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	return s.db.WithContext(ctx).
		Model(&QueuedAction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.QueuedActionStatusPending,
			"attempts":   attempts,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkFailed parks an action that exhausted the retry ceiling. Failed actions
// are surfaced to the operator instead of retried forever.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	return s.db.WithContext(ctx).
		Model(&QueuedAction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.QueuedActionStatusFailed,
			"attempts":   attempts,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
}

// CountPending reports how many actions still wait for the server. A claim
// left behind by an interrupted pass counts too; the next pass requeues and
// replays it.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&QueuedAction{}).
		Where("status IN ?", []enums.QueuedActionStatus{
			enums.QueuedActionStatusPending,
			enums.QueuedActionStatusSyncing,
		}).
		Count(&count).Error
	return count, err
}
