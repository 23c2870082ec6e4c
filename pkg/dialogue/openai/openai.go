// Package openai runs relay sessions against the OpenAI Responses API. Each
// session key owns one server-side conversation, created on first use.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"vfrelay/pkg/config"
	"vfrelay/pkg/logger"
	"vfrelay/pkg/voiceflow"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/conversations"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

type Client struct {
	client         osdk.Client
	model          string
	requestTimeout time.Duration
	log            *slog.Logger

	mu            sync.Mutex
	conversations map[string]string
}

func New(cfg config.OpenAIProviderConfig, log *slog.Logger) (*Client, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, errors.New("runtime.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}

	return &Client{
		client:         osdk.NewClient(opts...),
		model:          model,
		requestTimeout: requestTimeout,
		log:            logger.Component(log, "dialogue.openai"),
		conversations:  make(map[string]string),
	}, nil
}

// Interact sends input on the session's conversation and wraps the reply as a
// single text trace.
func (c *Client) Interact(ctx context.Context, sessionKey string, input string) ([]voiceflow.Trace, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, errors.New("session key is required")
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("input is required")
	}

	conversationID, err := c.conversation(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := c.log.With("operation", "interact", "session_key", sessionKey)
	startedAt := time.Now()
	log.Debug("Runtime request started", "model", c.model, "input_length", len(input))

	response, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(input)},
		Conversation: responses.ResponseNewParamsConversationUnion{
			OfConversationObject: &responses.ResponseConversationParam{ID: conversationID},
		},
	})
	if err != nil {
		log.Debug("Runtime request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return nil, fmt.Errorf("interact failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	log.Debug("Runtime request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))
	if text == "" {
		return nil, nil
	}

	return []voiceflow.Trace{voiceflow.NewTextTrace(text)}, nil
}

// conversation returns the conversation bound to sessionKey, creating it on
// first use. Callers serialize turns per session, so two creations for the
// same key never race.
func (c *Client) conversation(ctx context.Context, sessionKey string) (string, error) {
	c.mu.Lock()
	id, ok := c.conversations[sessionKey]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	log := c.log.With("operation", "create_conversation", "session_key", sessionKey)
	startedAt := time.Now()

	conversation, err := c.client.Conversations.New(ctx, conversations.ConversationNewParams{})
	if err != nil {
		log.Debug("Runtime request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("create conversation failed: %w", err)
	}
	if conversation == nil || strings.TrimSpace(conversation.ID) == "" {
		return "", errors.New("create conversation returned empty id")
	}
	id = strings.TrimSpace(conversation.ID)
	log.Debug("Runtime request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "conversation_id", id)

	c.mu.Lock()
	c.conversations[sessionKey] = id
	c.mu.Unlock()

	return id, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIProviderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("runtime.openai.model is required")
	}

	providerID, modelID, found := strings.Cut(model, "/")
	if !found {
		return model, nil
	}

	providerID = strings.TrimSpace(providerID)
	modelID = strings.TrimSpace(modelID)
	if providerID == "" || modelID == "" {
		return "", errors.New("runtime.openai.model is invalid")
	}
	if providerID != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by the openai runtime", providerID)
	}

	return modelID, nil
}
