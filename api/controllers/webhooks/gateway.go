package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tablyhq/tably-backend/api/responses"
	gatewaywebhook "github.com/tablyhq/tably-backend/internal/webhooks/gateway"
	"github.com/tablyhq/tably-backend/pkg/enums"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
	"github.com/tablyhq/tably-backend/pkg/metrics"
)

const gatewaySignatureHeader = "X-Gateway-Signature"

type GatewayWebhookService interface {
	Process(ctx context.Context, event *gatewaywebhook.GatewayEvent, rawPayload []byte) (enums.WebhookEventStatus, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, gatewayPaymentID string) (bool, error)
	Release(ctx context.Context, gatewayPaymentID string) error
}

// GatewayWebhook ingests payment gateway deliveries. Signature first, then
// the redis guard, then the reconciliation service.
func GatewayWebhook(svc GatewayWebhookService, secret string, guard deliveryGuard, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		started := time.Now()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "delivery guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(gatewaySignatureHeader)
		if !validateGatewaySignature(payload, secret, sigHeader) {
			wm.Observe(metrics.WebhookOutcomeBadSignature, time.Since(started))
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid gateway signature"))
			return
		}

		var event gatewaywebhook.GatewayEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		paymentID := strings.TrimSpace(event.GatewayPaymentID)
		if paymentID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gateway payment id required"))
			return
		}

		alreadySeen, err := guard.CheckAndMark(ctx, paymentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check delivery guard"))
			return
		}
		if alreadySeen {
			wm.Observe(metrics.WebhookOutcomeDuplicate, time.Since(started))
			responses.WriteSuccess(w, map[string]string{"status": string(enums.WebhookEventStatusSkipped)})
			return
		}

		status, err := svc.Process(ctx, &event, payload)
		if err != nil {
			// Release the guard so the gateway's retry can complete the
			// skipped steps.
			_ = guard.Release(ctx, paymentID)
			wm.Observe(metrics.WebhookOutcomeFailed, time.Since(started))
			responses.WriteError(ctx, logg, w, err)
			return
		}

		switch status {
		case enums.WebhookEventStatusSkipped:
			wm.Observe(metrics.WebhookOutcomeDuplicate, time.Since(started))
		default:
			wm.Observe(metrics.WebhookOutcomeProcessed, time.Since(started))
		}
		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("gateway delivery %s %s", paymentID, strings.ToLower(string(status))))
		}
		responses.WriteSuccess(w, map[string]string{"status": string(status)})
	}
}

func validateGatewaySignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(header)))
}
