// Package telegram is the thin bot-layer collaborator: webhook registration
// and the /start greeting that opens the mini app.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/glamlab/stylist-gateway/internal/logging"
)

const defaultBaseURL = "https://api.telegram.org"

// Config configures the bot client.
type Config struct {
	BotToken string
	// WebhookURL is the public callback URL registered with the platform.
	WebhookURL string
	// AppURL is the mini-app frontend opened by the /start button.
	AppURL string
	Timeout time.Duration
	// MaxAttempts bounds webhook registration retries.
	MaxAttempts int
	// InitialBackoff is the delay before the second registration attempt,
	// doubling on each subsequent one.
	InitialBackoff time.Duration
	BaseURL        string
}

// Client calls the bot API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *logging.Logger
}

// New creates a bot client.
func New(cfg Config, logger *logging.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

// apiResponse is the envelope every bot API method returns.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// call posts a JSON body to a bot API method.
func (c *Client) call(ctx context.Context, method string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.cfg.BaseURL, c.cfg.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !apiResp.OK {
		return fmt.Errorf("%s failed: %s", method, apiResp.Description)
	}
	return nil
}

// RegisterWebhook registers the callback URL with the platform. Registration
// is idempotent, so it is retried with exponential backoff up to the attempt
// ceiling. Callers treat exhaustion as non-fatal.
func (c *Client) RegisterWebhook(ctx context.Context) error {
	if c.cfg.WebhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := c.call(ctx, "setWebhook", map[string]string{"url": c.cfg.WebhookURL})
		if err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"attempt": attempt,
			}).Warn("webhook registration attempt failed")
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	if err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx)); err != nil {
		return fmt.Errorf("register webhook after %d attempts: %w", attempt, err)
	}

	c.logger.Info("webhook registered")
	return nil
}
