// Package dialogue selects the conversational runtime the relay talks to.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"

	"vfrelay/pkg/config"
	dialogueopenai "vfrelay/pkg/dialogue/openai"
	"vfrelay/pkg/logger"
	"vfrelay/pkg/voiceflow"
)

// Client sends one user turn for a session and returns the reply traces in order.
type Client interface {
	Interact(ctx context.Context, sessionKey string, input string) ([]voiceflow.Trace, error)
}

// New builds the runtime client named by runtime.provider.
func New(cfg *config.Config, log *slog.Logger) (Client, error) {
	providerID := cfg.Runtime.Provider
	if providerID == "" {
		providerID = config.ProviderVoiceflow
	}

	logger.Component(log, "dialogue.factory").Debug("Resolving dialogue runtime", "provider", providerID)

	switch providerID {
	case config.ProviderVoiceflow:
		client, err := voiceflow.New(cfg.Runtime.Voiceflow, log)
		if err != nil {
			return nil, err
		}
		return &voiceflowRuntime{client: client}, nil
	case config.ProviderOpenAI:
		return dialogueopenai.New(cfg.Runtime.OpenAI, log)
	default:
		return nil, fmt.Errorf("unsupported dialogue runtime: %s", providerID)
	}
}

// voiceflowRuntime uses the session key as the Voiceflow user id.
type voiceflowRuntime struct {
	client *voiceflow.Client
}

func (r *voiceflowRuntime) Interact(ctx context.Context, sessionKey string, input string) ([]voiceflow.Trace, error) {
	return r.client.Interact(ctx, sessionKey, voiceflow.TextAction(input))
}
