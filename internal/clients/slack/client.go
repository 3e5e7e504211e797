package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
)

// Client posts messages to a Slack incoming webhook.
type Client interface {
	Post(ctx context.Context, text string) error
}

type client struct {
	log        *logger.Logger
	webhookURL string
	httpClient *http.Client
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	url := strings.TrimSpace(os.Getenv("SLACK_WEBHOOK_URL"))
	if url == "" {
		return nil, fmt.Errorf("missing SLACK_WEBHOOK_URL")
	}
	return &client{
		log:        log.With("client", "SlackClient"),
		webhookURL: url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type webhookPayload struct {
	Text string `json:"text"`
}

func (c *client) Post(ctx context.Context, text string) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(webhookPayload{Text: text}); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook http %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}
