package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that the configuration is complete for the enabled components.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.DrainTimeoutSeconds < 0 {
		return errors.New("server.drain_timeout_seconds must be non-negative")
	}

	switch strings.TrimSpace(c.Runtime.Provider) {
	case ProviderVoiceflow:
		if strings.TrimSpace(c.Runtime.Voiceflow.BaseURL) == "" {
			return errors.New("runtime.voiceflow.base_url is required")
		}
		if strings.TrimSpace(c.Runtime.Voiceflow.APIKey) == "" {
			return fmt.Errorf("runtime.voiceflow.api_key is required (or set %s)", envVoiceflowAPIKey)
		}
	case ProviderOpenAI:
		if strings.TrimSpace(c.Runtime.OpenAI.Model) == "" {
			return errors.New("runtime.openai.model is required")
		}
	default:
		return fmt.Errorf("invalid runtime.provider %q: must be one of %s, %s", c.Runtime.Provider, ProviderVoiceflow, ProviderOpenAI)
	}

	switch c.Runtime.Session.Mode {
	case SessionPerSender:
	case SessionShared:
		if strings.TrimSpace(c.Runtime.Session.SharedID) == "" {
			return errors.New("runtime.session.shared_id is required in shared mode")
		}
	default:
		return fmt.Errorf("invalid runtime.session.mode %q: must be one of %s, %s", c.Runtime.Session.Mode, SessionPerSender, SessionShared)
	}

	if c.Channels.Messenger.Enabled {
		if strings.TrimSpace(c.Channels.Messenger.VerifyToken) == "" {
			return fmt.Errorf("channels.messenger.verify_token is required (or set %s)", envVerifyToken)
		}
		if strings.TrimSpace(c.Channels.Messenger.PageAccessToken) == "" {
			return fmt.Errorf("channels.messenger.page_access_token is required (or set %s)", envPageAccessToken)
		}
		if strings.TrimSpace(c.Channels.Messenger.GraphBaseURL) == "" {
			return errors.New("channels.messenger.graph_base_url is required")
		}
	}

	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return fmt.Errorf("channels.telegram.token is required (or set %s)", envTelegramBotToken)
	}

	if c.Relay.MaxButtons < 1 || c.Relay.MaxButtons > MessengerMaxButtons {
		return fmt.Errorf("relay.max_buttons must be between 1 and %d, got %d", MessengerMaxButtons, c.Relay.MaxButtons)
	}
	switch c.Relay.ShortChoice {
	case ShortChoiceTruncate, ShortChoiceError:
	default:
		return fmt.Errorf("invalid relay.short_choice %q: must be one of %s, %s", c.Relay.ShortChoice, ShortChoiceTruncate, ShortChoiceError)
	}

	return nil
}

// Redacted returns a copy with secrets masked, safe to print or log.
func (c Config) Redacted() Config {
	c.Runtime.Voiceflow.APIKey = mask(c.Runtime.Voiceflow.APIKey)
	c.Channels.Messenger.VerifyToken = mask(c.Channels.Messenger.VerifyToken)
	c.Channels.Messenger.PageAccessToken = mask(c.Channels.Messenger.PageAccessToken)
	c.Channels.Telegram.Token = mask(c.Channels.Telegram.Token)
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
