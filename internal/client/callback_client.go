package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stemsplit/api/internal/config"
	"github.com/stemsplit/api/internal/model"
)

// maxErrorBody bounds how much of a failed callback response is kept
const maxErrorBody = 1024

// CallbackDeliverer posts job outcomes to submitter-provided URLs
type CallbackDeliverer interface {
	Deliver(ctx context.Context, url string, payload *model.CallbackPayload) error
}

// CallbackClient implements CallbackDeliverer over HTTP
type CallbackClient struct {
	httpClient *http.Client
}

func NewCallbackClient(cfg *config.CallbackConfig) *CallbackClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CallbackClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Deliver sends the payload as JSON; any non-2xx status is an error
func (c *CallbackClient) Deliver(ctx context.Context, url string, payload *model.CallbackPayload) error {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("callback error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
