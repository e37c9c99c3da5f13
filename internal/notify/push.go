package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// WebhookPushSender posts push notifications to a delivery gateway (the
// service that knows each user's device tokens). The gateway URL is the only
// coupling; this process never talks to device platforms directly.
type WebhookPushSender struct {
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewWebhookPushSender(client *http.Client, endpoint string, logger zerolog.Logger) *WebhookPushSender {
	return &WebhookPushSender{
		endpoint:   endpoint,
		httpClient: client,
		logger:     logger,
	}
}

type pushPayload struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func (p *WebhookPushSender) SendPush(ctx context.Context, userID, title, body string) error {
	if p.endpoint == "" {
		p.logger.Debug().Str("user_id", userID).Str("title", title).Msg("push endpoint not configured, skipping push")
		return nil
	}

	data, err := json.Marshal(pushPayload{UserID: userID, Title: title, Body: body})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
