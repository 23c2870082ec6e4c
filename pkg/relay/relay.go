// Package relay turns one inbound chat event into runtime turns and ordered
// outbound replies.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"vfrelay/pkg/bus"
	"vfrelay/pkg/channel"
	"vfrelay/pkg/config"
	"vfrelay/pkg/dialogue"
	"vfrelay/pkg/logger"
)

// Relay is the channel.Handler shared by every adapter.
type Relay struct {
	runtime  dialogue.Client
	sessions *SessionMapper
	locks    *sessionLocks
	opts     Options
	bus      *bus.MessageBus
	log      *slog.Logger
}

// New wires a relay around a dialogue runtime. mb may be nil.
func New(runtime dialogue.Client, cfg *config.Config, mb *bus.MessageBus, log *slog.Logger) (*Relay, error) {
	if runtime == nil {
		return nil, errors.New("dialogue runtime is required")
	}
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	return &Relay{
		runtime:  runtime,
		sessions: NewSessionMapper(cfg.Runtime.Session),
		locks:    newSessionLocks(),
		opts:     OptionsFromConfig(cfg.Relay),
		bus:      mb,
		log:      logger.Component(log, "relay"),
	}, nil
}

// Handle sends the inbound text or postback payload to the runtime and
// dispatches each translated reply through send before producing the next.
// Send failures are logged and do not stop later replies.
func (r *Relay) Handle(ctx context.Context, inbound bus.InboundMessage, send channel.Sender) error {
	if send == nil {
		return errors.New("sender is required")
	}

	content := strings.TrimSpace(inbound.Content)
	if content == "" {
		return errors.New("inbound content is required")
	}

	inbound.SessionKey = r.sessions.Key(inbound.Channel, inbound.SenderID)
	log := r.log.With(
		"event_id", inbound.EventID,
		"channel", inbound.Channel,
		"session_key", inbound.SessionKey,
	)
	r.publish(ctx, inbound, bus.Event{
		Type:    bus.EventInboundReceived,
		Payload: map[string]string{"kind": string(inbound.Kind)},
	})

	unlock := r.locks.lock(inbound.SessionKey)
	defer unlock()

	log.Debug("Starting interaction", "kind", inbound.Kind, "content", logger.Preview(content))
	traces, err := r.runtime.Interact(ctx, inbound.SessionKey, content)
	if err != nil {
		r.publish(ctx, inbound, bus.Event{Type: bus.EventHandlingFailed, Error: err.Error()})
		return fmt.Errorf("interact for %s: %w", inbound.SessionKey, err)
	}
	r.publish(ctx, inbound, bus.Event{
		Type:    bus.EventTracesReceived,
		Payload: map[string]string{"count": strconv.Itoa(len(traces))},
	})
	log.Debug("Received traces", "count", len(traces))

	sent := 0
	for outbound, err := range Translate(traces, r.opts, log) {
		if err != nil {
			r.publish(ctx, inbound, bus.Event{Type: bus.EventHandlingFailed, Error: err.Error()})
			return fmt.Errorf("translate traces: %w", err)
		}

		outbound.Channel = inbound.Channel
		outbound.ChatID = inbound.ChatID
		outbound.SessionKey = inbound.SessionKey

		if err := send(ctx, outbound); err != nil {
			log.Error("Failed to send message", "kind", outbound.Kind, "error", err)
			r.publish(ctx, inbound, bus.Event{
				Type:    bus.EventMessageFailed,
				Payload: map[string]string{"kind": string(outbound.Kind)},
				Error:   err.Error(),
			})
			continue
		}

		sent++
		r.publish(ctx, inbound, bus.Event{
			Type:    bus.EventMessageSent,
			Payload: map[string]string{"kind": string(outbound.Kind)},
		})
	}

	log.Info("Relayed event", "traces", len(traces), "sent", sent)
	return nil
}

func (r *Relay) publish(ctx context.Context, inbound bus.InboundMessage, event bus.Event) {
	event.Channel = inbound.Channel
	event.ChatID = inbound.ChatID
	event.SessionKey = inbound.SessionKey
	event.EventID = inbound.EventID
	r.bus.PublishEvent(ctx, event)
}
