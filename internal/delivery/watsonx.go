// Package delivery ships classification results to a Watsonx ingestion
// endpoint. Delivery happens after a run completes; the classification
// core never blocks on it.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/config"
)

// ErrNotConfigured is returned when credentials or project id are absent.
var ErrNotConfigured = fmt.Errorf("watsonx delivery not configured")

// Client posts payloads to the Watsonx project ingestion endpoint.
type Client struct {
	cfg        config.DeliveryConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a delivery client. The API key is read from the
// configured env var at send time, never stored.
func NewClient(cfg config.DeliveryConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Configured reports whether delivery can be attempted.
func (c *Client) Configured() bool {
	return c.cfg.Enabled && c.cfg.ProjectID != "" && os.Getenv(c.cfg.APIKeyEnv) != ""
}

// Deliver posts the payload as JSON to the project ingestion endpoint.
func (c *Client) Deliver(ctx context.Context, payload any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding delivery payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/ingest",
		strings.TrimSuffix(c.cfg.BaseURL, "/"), c.cfg.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating delivery request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+os.Getenv(c.cfg.APIKeyEnv))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "StageZero/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delivering to watsonx: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("watsonx returned %d: %s", resp.StatusCode, string(respBody))
	}

	c.logger.Info("delivered classification results",
		zap.String("project_id", c.cfg.ProjectID),
		zap.Int("bytes", len(body)),
	)
	return nil
}
