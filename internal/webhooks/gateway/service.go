package gatewaywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablyhq/tably-backend/internal/revenueshare"
	"github.com/tablyhq/tably-backend/pkg/db/models"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

// EventTypePaymentSucceeded is the only gateway event type that carries side
// effects; everything else is recorded and acknowledged.
const EventTypePaymentSucceeded = "payment.succeeded"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type shareDeriver interface {
	DeriveTx(ctx context.Context, tx *gorm.DB, input revenueshare.DeriveInput) (*revenueshare.DeriveResult, error)
}

// GatewayEvent is the decoded body of one gateway delivery.
type GatewayEvent struct {
	EventType        string    `json:"event_type"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	RestaurantID     uuid.UUID `json:"restaurant_id"`
	InvoiceRef       string    `json:"invoice_ref"`
	AmountCents      int       `json:"amount_cents"`
}

// ServiceParams groups dependencies for the webhook service.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	RevenueShares     shareDeriver
	Logger            *logger.Logger
}

// Service reconciles gateway deliveries into subscription state and the
// revenue share ledger.
type Service struct {
	repo   Repository
	tx     txRunner
	shares shareDeriver
	logg   *logger.Logger
}

// NewService builds a webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("webhook repository required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.RevenueShares == nil {
		return nil, fmt.Errorf("revenue share deriver required")
	}
	return &Service{
		repo:   params.Repo,
		tx:     params.TransactionRunner,
		shares: params.RevenueShares,
		logg:   params.Logger,
	}, nil
}

// Process applies one delivery. The returned status is what the audit row
// records: PROCESSED when side effects ran, SKIPPED for duplicates and
// no-effect event types, FAILED (plus the error) when a step broke. A FAILED
// row does not block a retry; the next identical delivery runs the steps
// again and the upserted audit row moves forward.
func (s *Service) Process(ctx context.Context, event *GatewayEvent, rawPayload []byte) (enums.WebhookEventStatus, error) {
	if event == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "gateway event required")
	}
	if event.GatewayPaymentID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "gateway payment id required")
	}

	existing, err := s.repo.FindByGatewayPaymentID(ctx, event.GatewayPaymentID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check audit record")
	}
	if existing != nil && existing.Status != enums.WebhookEventStatusFailed {
		// Duplicate delivery of a finished event; acknowledge without
		// re-applying anything.
		return enums.WebhookEventStatusSkipped, nil
	}

	if event.EventType != EventTypePaymentSucceeded || event.AmountCents <= 0 {
		if _, err := s.writeAudit(ctx, s.repo, event, rawPayload, enums.WebhookEventStatusSkipped, nil); err != nil {
			return "", err
		}
		return enums.WebhookEventStatusSkipped, nil
	}

	processErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		restaurant, err := repo.FindRestaurant(ctx, event.RestaurantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "restaurant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load restaurant")
		}

		err = repo.UpdateRestaurant(ctx, restaurant.ID, map[string]any{
			"subscription_status": enums.SubscriptionStatusActive,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription status")
		}

		if _, err := s.writeAudit(ctx, repo, event, rawPayload, enums.WebhookEventStatusProcessed, nil); err != nil {
			return err
		}

		if restaurant.DistrictID != nil {
			result, err := s.shares.DeriveTx(ctx, tx, revenueshare.DeriveInput{
				DistrictID:  *restaurant.DistrictID,
				InvoiceRef:  event.InvoiceRef,
				PaymentRef:  event.GatewayPaymentID,
				AmountCents: event.AmountCents,
			})
			if err != nil {
				return err
			}
			if result.Skipped && s.logg != nil {
				s.logg.Info(ctx, fmt.Sprintf("revenue share for invoice %s already derived", event.InvoiceRef))
			}
		}
		return nil
	})
	if processErr != nil {
		if s.logg != nil {
			s.logg.Error(ctx, fmt.Sprintf("gateway event %s failed", event.GatewayPaymentID), processErr)
		}
		message := processErr.Error()
		if _, auditErr := s.writeAudit(ctx, s.repo, event, rawPayload, enums.WebhookEventStatusFailed, &message); auditErr != nil && s.logg != nil {
			s.logg.Error(ctx, "write failed audit record", auditErr)
		}
		return enums.WebhookEventStatusFailed, processErr
	}

	return enums.WebhookEventStatusProcessed, nil
}

func (s *Service) writeAudit(ctx context.Context, repo Repository, event *GatewayEvent, rawPayload []byte, status enums.WebhookEventStatus, errMessage *string) (*models.WebhookEvent, error) {
	record := &models.WebhookEvent{
		GatewayPaymentID: event.GatewayPaymentID,
		EventType:        event.EventType,
		AmountCents:      event.AmountCents,
		Status:           status,
		Error:            errMessage,
		Payload:          json.RawMessage(rawPayload),
	}
	stored, err := repo.UpsertWebhookEvent(ctx, record)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit record")
	}
	return stored, nil
}
