package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/glyhealth/diabetes-insights-backend/internal/logger"
	"github.com/glyhealth/diabetes-insights-backend/internal/utils"
)

// Client is the text-generation provider boundary. Complete sends one user
// prompt and returns the raw completion text.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing LLM_API_KEY")
	}

	baseURL := utils.GetEnv("LLM_BASE_URL", "https://api.openai.com", log)
	model := utils.GetEnv("LLM_MODEL", "gpt-4o-mini", log)
	timeoutSec := utils.GetEnvAsInt("LLM_TIMEOUT_SECONDS", 30, log)
	maxRetries := utils.GetEnvAsInt("LLM_MAX_RETRIES", 3, log)
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &client{
		log:        log.With("client", "LLMClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var hErr *httpError
	if errors.As(err, &hErr) {
		return isRetryableHTTP(hErr.StatusCode)
	}
	return false
}

// jitterSleep widens the backoff by +/- 20% so retries from concurrent
// callers don't line up.
func jitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	v := low + rand.Float64()*2*delta
	return time.Duration(v * float64(time.Second))
}

func (c *client) Complete(ctx context.Context, prompt string) (string, error) {
	body := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}

	backoff := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		raw, err := c.doOnce(ctx, body)
		if err == nil {
			var parsed chatResponse
			if uErr := json.Unmarshal(raw, &parsed); uErr != nil {
				return "", fmt.Errorf("llm decode error: %w", uErr)
			}
			if len(parsed.Choices) == 0 {
				return "", fmt.Errorf("llm returned no choices")
			}
			return parsed.Choices[0].Message.Content, nil
		}

		lastErr = err
		if !isRetryableErr(err) || attempt == c.maxRetries {
			return "", err
		}

		c.log.Warn("LLM call failed, retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(jitterSleep(backoff)):
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return "", lastErr
}

func (c *client) doOnce(ctx context.Context, body chatRequest) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
