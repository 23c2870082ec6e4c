package config

const (
	ProviderVoiceflow = "voiceflow"
	ProviderOpenAI    = "openai"

	SessionPerSender = "per_sender"
	SessionShared    = "shared"

	ShortChoiceTruncate = "truncate"
	ShortChoiceError    = "error"

	// MessengerMaxButtons is the Send API limit for buttons on one template element.
	MessengerMaxButtons = 3
)

// DefaultConfig returns the configuration used when no file or env override
// sets a value. Values mirror the original Messenger/Voiceflow deployment.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                1337,
			DrainTimeoutSeconds: 10,
		},
		Runtime: RuntimeConfig{
			Provider: ProviderVoiceflow,
			Voiceflow: VoiceflowConfig{
				BaseURL:               "https://general-runtime.voiceflow.com",
				VersionID:             "development",
				RequestTimeoutSeconds: 30,
			},
			OpenAI: OpenAIProviderConfig{
				Model:                 "gpt-5-mini",
				RequestTimeoutSeconds: 60,
			},
			Session: SessionConfig{
				Mode:     SessionPerSender,
				SharedID: "test_id",
			},
		},
		Channels: ChannelsConfig{
			Messenger: MessengerConfig{
				Enabled:               true,
				GraphBaseURL:          "https://graph.facebook.com",
				APIVersion:            "v2.6",
				RequestTimeoutSeconds: 30,
			},
		},
		Relay: RelayConfig{
			MaxButtons:   MessengerMaxButtons,
			ShortChoice:  ShortChoiceTruncate,
			CardTitle:    "How can we help you?",
			CardSubtitle: "Tap a button to answer.",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}
