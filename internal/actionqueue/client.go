package actionqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tablyhq/tably-backend/pkg/config"
	"github.com/tablyhq/tably-backend/pkg/enums"
)

// Client replays queued actions against the server's idempotent endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient builds an API client from the queue configuration.
func NewClient(cfg config.QueueConfig) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("queue api base url required")
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		token:      cfg.APIToken,
	}, nil
}

// Ping probes server reachability before a sync pass.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server unavailable: %s", resp.Status)
	}
	return nil
}

// Submit replays one action. The action's idempotency key travels with the
// request, so a crash between server accept and local delete only produces a
// deduplicated replay, never a second order or payment.
func (c *Client) Submit(ctx context.Context, action *QueuedAction) error {
	path, body, err := c.resolve(action)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", action.IdempotencyKey)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: %s: %s", http.MethodPost, path, resp.Status, strings.TrimSpace(string(snippet)))
}

func (c *Client) resolve(action *QueuedAction) (string, []byte, error) {
	switch action.ActionType {
	case enums.QueuedActionPlaceOrder:
		return "/api/v1/orders", action.Payload, nil

	case enums.QueuedActionAddPayment:
		var payload AddPaymentPayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return "", nil, fmt.Errorf("decode add_payment payload: %w", err)
		}
		body, err := json.Marshal(map[string]any{
			"method":       payload.Method,
			"amount_cents": payload.AmountCents,
			"reference":    payload.Reference,
		})
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("/api/v1/bills/%s/payments", payload.BillID), body, nil

	case enums.QueuedActionCloseBill:
		var payload CloseBillPayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return "", nil, fmt.Errorf("decode close_bill payload: %w", err)
		}
		return fmt.Sprintf("/api/v1/bills/%s/close", payload.BillID), nil, nil

	default:
		return "", nil, fmt.Errorf("unknown action type %q", action.ActionType)
	}
}
