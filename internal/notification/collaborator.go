package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type EventKind string

const (
	EventPaymentCompleted EventKind = "payment.completed"
	EventPaymentFailed    EventKind = "payment.failed"
	EventPaymentRefunded  EventKind = "payment.refunded"
	EventPaymentCancelled EventKind = "payment.cancelled"
)

type SendResult int

const (
	// SendOk means the collaborator accepted the notification.
	SendOk SendResult = iota
	// SendUnreachable is retryable: the collaborator could not be reached
	// or answered with a server-side failure.
	SendUnreachable
	// SendRejected is terminal for the attempt sequence: the collaborator
	// answered but refused the notification.
	SendRejected
)

func (r SendResult) String() string {
	switch r {
	case SendOk:
		return "ok"
	case SendUnreachable:
		return "unreachable"
	case SendRejected:
		return "rejected"
	}
	return "unknown"
}

// Collaborator is the uniform contract to a downstream service.
type Collaborator interface {
	Name() string
	Send(ctx context.Context, eventKind EventKind, payload json.RawMessage) (SendResult, error)
}

// HTTPCollaborator posts status-update events to a downstream service.
type HTTPCollaborator struct {
	name    string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPCollaborator(name, baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPCollaborator {
	return &HTTPCollaborator{
		name:    name,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *HTTPCollaborator) Name() string {
	return c.name
}

func (c *HTTPCollaborator) Send(ctx context.Context, eventKind EventKind, payload json.RawMessage) (SendResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"event":   string(eventKind),
		"payload": payload,
	})
	if err != nil {
		return SendRejected, fmt.Errorf("failed to marshal notification body: %w", err)
	}

	url := fmt.Sprintf("%s/v1/events", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return SendRejected, fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return SendUnreachable, fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return SendOk, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return SendUnreachable, fmt.Errorf("%s answered status %d", c.name, resp.StatusCode)
	default:
		return SendRejected, fmt.Errorf("%s rejected notification with status %d", c.name, resp.StatusCode)
	}
}
