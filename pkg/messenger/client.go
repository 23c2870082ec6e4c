// Package messenger holds the Messenger Platform wire types and a Send API client.
package messenger

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

// APIError is a non-2xx response from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("graph api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("graph api returned status %d: %s", e.StatusCode, e.Body)
}

// Client posts messages to the Send API for one page.
type Client struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	log         *slog.Logger
}

// NewClient builds a Send API client from channel config.
func NewClient(cfg config.MessengerConfig, log *slog.Logger) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.GraphBaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("channels.messenger.graph_base_url is required")
	}
	token := strings.TrimSpace(cfg.PageAccessToken)
	if token == "" {
		return nil, errors.New("channels.messenger.page_access_token is required")
	}

	endpoint := baseURL
	if version := strings.Trim(strings.TrimSpace(cfg.APIVersion), "/"); version != "" {
		endpoint += "/" + version
	}
	endpoint += "/me/messages"

	return &Client{
		endpoint:    endpoint,
		accessToken: token,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		log: logger.Component(log, "messenger.send"),
	}, nil
}

// Send posts one message to recipientID. The access token travels as a
// query parameter, as the Send API expects.
func (c *Client) Send(ctx context.Context, recipientID string, message Message) error {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return errors.New("recipient id is required")
	}

	body, err := json.Marshal(SendRequest{
		Recipient:     Party{ID: recipientID},
		MessagingType: MessagingResponse,
		Message:       message,
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	endpoint := c.endpoint + "?" + url.Values{"access_token": {c.accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	startedAt := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the full URL, token included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("call send api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.Debug("message sent", "recipient_id", recipientID, "duration_ms", time.Since(startedAt).Milliseconds())
	return nil
}
