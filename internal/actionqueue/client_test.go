package actionqueue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/enums"
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

func newRecordingServer(t *testing.T, status int) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			header: r.Header.Clone(),
			body:   body,
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(config.QueueConfig{
		APIBaseURL:  baseURL,
		APIToken:    "agent-token",
		HTTPTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestClientSubmitPlaceOrder(t *testing.T) {
	server, requests := newRecordingServer(t, http.StatusCreated)
	client := newTestClient(t, server.URL)

	payload, err := json.Marshal(PlaceOrderPayload{
		TableID: uuid.New(),
		Items:   []PlaceOrderItem{{MenuItemID: uuid.New(), Qty: 1}},
	})
	require.NoError(t, err)

	action := &QueuedAction{
		ID:             uuid.New(),
		ActionType:     enums.QueuedActionPlaceOrder,
		Payload:        payload,
		IdempotencyKey: "key-1",
	}
	require.NoError(t, client.Submit(context.Background(), action))

	require.Len(t, *requests, 1)
	got := (*requests)[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/v1/orders", got.path)
	assert.Equal(t, "key-1", got.header.Get("Idempotency-Key"))
	assert.Equal(t, "Bearer agent-token", got.header.Get("Authorization"))
	assert.JSONEq(t, string(payload), string(got.body))
}

func TestClientSubmitAddPaymentTargetsBill(t *testing.T) {
	server, requests := newRecordingServer(t, http.StatusCreated)
	client := newTestClient(t, server.URL)

	billID := uuid.New()
	payload, err := json.Marshal(AddPaymentPayload{
		BillID: billID, Method: enums.PaymentMethodUPI, AmountCents: 295, Reference: ptr("upi-9"),
	})
	require.NoError(t, err)

	action := &QueuedAction{
		ID:             uuid.New(),
		ActionType:     enums.QueuedActionAddPayment,
		Payload:        payload,
		IdempotencyKey: "key-2",
	}
	require.NoError(t, client.Submit(context.Background(), action))

	require.Len(t, *requests, 1)
	got := (*requests)[0]
	assert.Equal(t, "/api/v1/bills/"+billID.String()+"/payments", got.path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(got.body, &body))
	assert.Equal(t, "upi", body["method"])
	assert.Equal(t, float64(295), body["amount_cents"])
	assert.Equal(t, "upi-9", body["reference"])
	assert.NotContains(t, body, "bill_id")
}

func TestClientSubmitCloseBill(t *testing.T) {
	server, requests := newRecordingServer(t, http.StatusOK)
	client := newTestClient(t, server.URL)

	billID := uuid.New()
	payload, err := json.Marshal(CloseBillPayload{BillID: billID})
	require.NoError(t, err)

	action := &QueuedAction{
		ID:             uuid.New(),
		ActionType:     enums.QueuedActionCloseBill,
		Payload:        payload,
		IdempotencyKey: "key-3",
	}
	require.NoError(t, client.Submit(context.Background(), action))

	require.Len(t, *requests, 1)
	assert.Equal(t, "/api/v1/bills/"+billID.String()+"/close", (*requests)[0].path)
}

func TestClientSubmitNonSuccessIsError(t *testing.T) {
	server, _ := newRecordingServer(t, http.StatusConflict)
	client := newTestClient(t, server.URL)

	payload, err := json.Marshal(CloseBillPayload{BillID: uuid.New()})
	require.NoError(t, err)

	err = client.Submit(context.Background(), &QueuedAction{
		ID:         uuid.New(),
		ActionType: enums.QueuedActionCloseBill,
		Payload:    payload,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestClientPing(t *testing.T) {
	server, requests := newRecordingServer(t, http.StatusOK)
	client := newTestClient(t, server.URL)

	require.NoError(t, client.Ping(context.Background()))
	require.Len(t, *requests, 1)
	assert.Equal(t, "/health/live", (*requests)[0].path)
}
