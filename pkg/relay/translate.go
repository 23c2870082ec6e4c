package relay

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"vfrelay/pkg/bus"
	"vfrelay/pkg/config"
	"vfrelay/pkg/logger"
	"vfrelay/pkg/voiceflow"
)

var (
	// ErrNoButtons reports a choice trace without any buttons.
	ErrNoButtons = errors.New("choice trace has no buttons")
	// ErrShortChoice reports a choice trace with fewer buttons than max_buttons
	// under the error policy.
	ErrShortChoice = errors.New("choice trace has fewer buttons than required")
)

// Options controls how traces become outbound messages.
type Options struct {
	MaxButtons   int
	ShortChoice  string
	CardTitle    string
	CardSubtitle string
}

// OptionsFromConfig copies the relay section of the config.
func OptionsFromConfig(cfg config.RelayConfig) Options {
	return Options{
		MaxButtons:   cfg.MaxButtons,
		ShortChoice:  cfg.ShortChoice,
		CardTitle:    cfg.CardTitle,
		CardSubtitle: cfg.CardSubtitle,
	}
}

// Translate walks traces in order and yields zero or one outbound message per
// trace. Messages carry no addressing; the caller fills channel and chat.
// Iteration stops at the first error.
func Translate(traces []voiceflow.Trace, opts Options, log *slog.Logger) iter.Seq2[bus.OutboundMessage, error] {
	log = logger.Component(log, "relay.translate")
	maxButtons := opts.MaxButtons
	if maxButtons <= 0 || maxButtons > config.MessengerMaxButtons {
		maxButtons = config.MessengerMaxButtons
	}

	return func(yield func(bus.OutboundMessage, error) bool) {
		for i, trace := range traces {
			switch trace.Type {
			case voiceflow.TraceText:
				payload, err := trace.Text()
				if err != nil {
					yield(bus.OutboundMessage{}, fmt.Errorf("trace %d: %w", i, err))
					return
				}
				if strings.TrimSpace(payload.Message) == "" {
					log.Warn("Skipping empty text trace", "index", i)
					continue
				}
				if !yield(bus.OutboundMessage{Kind: bus.OutboundText, Content: payload.Message}, nil) {
					return
				}

			case voiceflow.TraceChoice:
				payload, err := trace.Choice()
				if err != nil {
					yield(bus.OutboundMessage{}, fmt.Errorf("trace %d: %w", i, err))
					return
				}

				choices, err := applyButtonPolicy(payload.Buttons, maxButtons, opts.ShortChoice, log.With("index", i))
				if err != nil {
					yield(bus.OutboundMessage{}, fmt.Errorf("trace %d: %w", i, err))
					return
				}
				if len(choices) == 0 {
					continue
				}

				if !yield(bus.OutboundMessage{
					Kind:     bus.OutboundChoice,
					Title:    opts.CardTitle,
					Subtitle: opts.CardSubtitle,
					Choices:  choices,
				}, nil) {
					return
				}

			default:
				log.Debug("Ignoring trace", "index", i, "type", trace.Type)
			}
		}
	}
}

// applyButtonPolicy returns the button names to render for one choice trace.
func applyButtonPolicy(buttons []voiceflow.Button, maxButtons int, policy string, log *slog.Logger) ([]string, error) {
	if len(buttons) == 0 {
		if policy == config.ShortChoiceError {
			return nil, ErrNoButtons
		}
		log.Warn("Skipping choice trace without buttons")
		return nil, nil
	}

	if len(buttons) > maxButtons {
		log.Warn("Truncating choice buttons", "buttons", len(buttons), "max_buttons", maxButtons)
		buttons = buttons[:maxButtons]
	}

	if len(buttons) < maxButtons {
		if policy == config.ShortChoiceError {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrShortChoice, len(buttons), maxButtons)
		}
		log.Warn("Choice trace has fewer buttons than max_buttons", "buttons", len(buttons), "max_buttons", maxButtons)
	}

	choices := make([]string, 0, len(buttons))
	for _, button := range buttons {
		choices = append(choices, button.Name)
	}

	return choices, nil
}
