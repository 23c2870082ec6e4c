// Package messenger receives Messenger Platform webhooks on the gateway router
// and sends replies through the Send API.
package messenger

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"vfrelay/pkg/bus"
	"vfrelay/pkg/channel"
	"vfrelay/pkg/config"
	"vfrelay/pkg/logger"
	fb "vfrelay/pkg/messenger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	channelName         = "messenger"
	webhookPath         = "/webhook"
	modeSubscribe       = "subscribe"
	eventReceived       = "EVENT_RECEIVED"
	maxWebhookBodyBytes = 1 << 20
	defaultDrainTimeout = 10 * time.Second
)

// messageSender is the part of the Send API client the adapter needs.
type messageSender interface {
	Send(ctx context.Context, recipientID string, message fb.Message) error
}

// Adapter serves GET/POST /webhook and relays each entry in the background.
// Events from different senders run concurrently; one sender's events run
// one at a time in arrival order.
type Adapter struct {
	verifyToken  string
	client       messageSender
	drainTimeout time.Duration
	log          *slog.Logger

	mu      sync.RWMutex
	handler channel.Handler
	taskCtx context.Context
	tasks   sync.WaitGroup

	// queues holds pending events per sender; a key is present while its
	// worker runs.
	queueMu sync.Mutex
	queues  map[string][]queuedEvent
}

type queuedEvent struct {
	ctx     context.Context
	handler channel.Handler
	inbound bus.InboundMessage
}

// NewAdapter validates Messenger configuration and builds the Send API client.
func NewAdapter(cfg config.MessengerConfig, drainTimeout time.Duration, log *slog.Logger) (*Adapter, error) {
	verifyToken := strings.TrimSpace(cfg.VerifyToken)
	if verifyToken == "" {
		return nil, errors.New("channels.messenger.verify_token is required")
	}

	client, err := fb.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}

	return newAdapter(verifyToken, client, drainTimeout, log), nil
}

func newAdapter(verifyToken string, client messageSender, drainTimeout time.Duration, log *slog.Logger) *Adapter {
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}

	return &Adapter{
		verifyToken:  verifyToken,
		client:       client,
		drainTimeout: drainTimeout,
		log:          logger.Component(log, "channel.messenger"),
		queues:       make(map[string][]queuedEvent),
	}
}

// Name returns the channel identifier used in session keys and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Mount registers the webhook routes.
func (a *Adapter) Mount(r chi.Router) {
	r.Get(webhookPath, a.handleVerify)
	r.Post(webhookPath, a.handleEvents)
}

// Run accepts webhook events until ctx ends, then waits up to the drain
// timeout for in-flight events.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	a.mu.Lock()
	a.handler = handler
	a.taskCtx = context.WithoutCancel(ctx)
	a.mu.Unlock()

	a.log.Info("Messenger channel started", "path", webhookPath)
	<-ctx.Done()

	a.mu.Lock()
	a.handler = nil
	a.mu.Unlock()

	a.drain()
	return nil
}

func (a *Adapter) handleVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode == "" || token == "" {
		a.log.Debug("Rejecting verification without mode or token")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if mode != modeSubscribe || subtle.ConstantTimeCompare([]byte(token), []byte(a.verifyToken)) != 1 {
		a.log.Warn("Webhook verification failed", "mode", mode)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	a.log.Info("Webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (a *Adapter) handleEvents(w http.ResponseWriter, r *http.Request) {
	var payload fb.WebhookPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&payload); err != nil {
		a.log.Debug("Rejecting undecodable webhook body", "error", err)
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if payload.Object != fb.ObjectPage {
		a.log.Debug("Ignoring webhook for non-page object", "object", payload.Object)
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	a.mu.RLock()
	handler, taskCtx := a.handler, a.taskCtx
	if handler == nil {
		a.mu.RUnlock()
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}

	dispatched := 0
	for _, entry := range payload.Entry {
		if len(entry.Messaging) == 0 {
			continue
		}

		inbound, ok := a.inboundFromEvent(entry.Messaging[0])
		if !ok {
			continue
		}
		inbound.EventID = uuid.NewString()
		inbound.Metadata = map[string]string{"page_id": entry.ID}

		a.enqueue(queuedEvent{ctx: taskCtx, handler: handler, inbound: inbound})
		dispatched++
	}
	a.mu.RUnlock()

	a.log.Debug("Webhook received", "entries", len(payload.Entry), "dispatched", dispatched)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, eventReceived)
}

// inboundFromEvent extracts the sender and text or postback payload. Echoes
// and messages without text are skipped.
func (a *Adapter) inboundFromEvent(event fb.MessagingEvent) (bus.InboundMessage, bool) {
	senderID := strings.TrimSpace(event.Sender.ID)
	if senderID == "" {
		a.log.Debug("Ignoring event without sender")
		return bus.InboundMessage{}, false
	}

	inbound := bus.InboundMessage{
		Channel:  channelName,
		SenderID: senderID,
		ChatID:   senderID,
	}

	switch {
	case event.Message != nil:
		if event.Message.IsEcho {
			a.log.Debug("Ignoring echo message", "sender_id", senderID)
			return bus.InboundMessage{}, false
		}
		if strings.TrimSpace(event.Message.Text) == "" {
			a.log.Debug("Ignoring message without text", "sender_id", senderID)
			return bus.InboundMessage{}, false
		}
		inbound.Kind = bus.InboundMessageKind
		inbound.Content = event.Message.Text
	case event.Postback != nil:
		if strings.TrimSpace(event.Postback.Payload) == "" {
			a.log.Debug("Ignoring postback without payload", "sender_id", senderID)
			return bus.InboundMessage{}, false
		}
		inbound.Kind = bus.InboundPostbackKind
		inbound.Content = event.Postback.Payload
	default:
		a.log.Debug("Ignoring unsupported messaging event", "sender_id", senderID)
		return bus.InboundMessage{}, false
	}

	return inbound, true
}

// enqueue appends an event to its sender's queue and starts a worker when the
// sender has none, so one sender's events are handled in arrival order.
func (a *Adapter) enqueue(event queuedEvent) {
	a.tasks.Add(1)

	senderID := event.inbound.SenderID
	a.queueMu.Lock()
	pending, active := a.queues[senderID]
	a.queues[senderID] = append(pending, event)
	a.queueMu.Unlock()

	if !active {
		go a.work(senderID)
	}
}

// work handles queued events for one sender until the queue is empty.
func (a *Adapter) work(senderID string) {
	for {
		a.queueMu.Lock()
		pending := a.queues[senderID]
		if len(pending) == 0 {
			delete(a.queues, senderID)
			a.queueMu.Unlock()
			return
		}
		event := pending[0]
		pending[0] = queuedEvent{}
		a.queues[senderID] = pending[1:]
		a.queueMu.Unlock()

		a.runTask(event.ctx, event.handler, event.inbound)
	}
}

func (a *Adapter) runTask(ctx context.Context, handler channel.Handler, inbound bus.InboundMessage) {
	defer a.tasks.Done()

	log := a.log.With("event_id", inbound.EventID, "sender_id", inbound.SenderID)
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Error("Recovered from panic while handling event", "panic", recovered, "stack", string(debug.Stack()))
		}
	}()

	log.Info("Received event", "kind", inbound.Kind, "content", logger.Preview(inbound.Content))
	if err := handler(ctx, inbound, a.send); err != nil {
		log.Error("Failed to handle event", "error", err)
	}
}

// send renders one outbound message and posts it to the recipient.
func (a *Adapter) send(ctx context.Context, outbound bus.OutboundMessage) error {
	message, err := fb.Render(outbound)
	if err != nil {
		return err
	}
	for _, choice := range outbound.Choices {
		if title, cut := fb.ButtonTitle(choice); cut {
			a.log.Warn("Button title exceeds Messenger limit, truncating", "choice", choice, "title", title, "limit", fb.MaxButtonTitleRunes)
		}
	}

	a.log.Debug("Sending message", "recipient_id", outbound.ChatID, "kind", outbound.Kind, "content", logger.Preview(outbound.Content))
	if err := a.client.Send(ctx, outbound.ChatID, message); err != nil {
		return fmt.Errorf("send to %s: %w", outbound.ChatID, err)
	}
	return nil
}

func (a *Adapter) drain() {
	done := make(chan struct{})
	go func() {
		a.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.log.Info("Messenger channel stopped")
	case <-time.After(a.drainTimeout):
		a.log.Warn("Timed out waiting for in-flight events", "timeout", a.drainTimeout)
	}
}

// running reports whether Run is accepting events.
func (a *Adapter) running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.handler != nil
}
