// Package voiceflow is a client for the Voiceflow general-runtime interact API.
package voiceflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vfrelay/pkg/config"
	"vfrelay/pkg/logger"
)

const maxErrorBody = 4096

// APIError is a non-2xx response from the runtime.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("voiceflow returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("voiceflow returned status %d: %s", e.StatusCode, e.Body)
}

// Client calls the interact endpoint for one Voiceflow project version.
type Client struct {
	baseURL    string
	apiKey     string
	versionID  string
	httpClient *http.Client
	log        *slog.Logger
}

// New builds a client from runtime config.
func New(cfg config.VoiceflowConfig, log *slog.Logger) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("runtime.voiceflow.base_url is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("runtime.voiceflow.api_key is required")
	}

	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		versionID: strings.TrimSpace(cfg.VersionID),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		log: logger.Component(log, "dialogue.voiceflow"),
	}, nil
}

// Interact sends one action for userID and returns the reply traces verbatim.
// Transport failures and non-2xx statuses are returned; nothing is retried.
func (c *Client) Interact(ctx context.Context, userID string, action Action) ([]Trace, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	body, err := json.Marshal(InteractRequest{Action: action})
	if err != nil {
		return nil, fmt.Errorf("marshal interact request: %w", err)
	}

	endpoint := c.baseURL + "/state/user/" + url.PathEscape(userID) + "/interact"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create interact request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.apiKey)
	if c.versionID != "" {
		req.Header.Set("versionID", c.versionID)
	}

	startedAt := time.Now()
	c.log.Debug("runtime request started", "user_id", userID, "action", action.Type)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("runtime request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, fmt.Errorf("call interact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		c.log.Debug("runtime request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "status", resp.StatusCode)
		return nil, apiErr
	}

	var traces []Trace
	if err := json.NewDecoder(resp.Body).Decode(&traces); err != nil {
		return nil, fmt.Errorf("decode interact response: %w", err)
	}
	c.log.Debug("runtime request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "traces", len(traces))

	return traces, nil
}
