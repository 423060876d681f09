// internal/notifications/evolution.go - Message gateway client
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"solarwatch/internal/config"
)

const userAgent = "solarwatch/1.0"

// Client posts plain-text messages to an Evolution-style gateway:
// POST {base}/message/sendText/{instance} with an apikey header. Any 2xx
// response counts as delivered; there is no retry and no receipt.
type Client struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
}

type sendTextRequest struct {
	Number  string         `json:"number"`
	Text    string         `json:"text"`
	Options messageOptions `json:"options"`
}

type messageOptions struct {
	Delay       int    `json:"delay"`
	Presence    string `json:"presence"`
	LinkPreview bool   `json:"linkPreview"`
}

func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// SendText submits one message to the configured recipient.
func (c *Client) SendText(ctx context.Context, text string) error {
	apiKey := os.Getenv(c.cfg.APIKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("gateway API key env %s is not set", c.cfg.APIKeyEnv)
	}

	endpoint := fmt.Sprintf("%s/message/sendText/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Instance)

	payload := sendTextRequest{
		Number: c.cfg.Number,
		Text:   text,
		Options: messageOptions{
			Delay:       c.cfg.DelayMS,
			Presence:    "composing",
			LinkPreview: false,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", apiKey)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}

	return nil
}
