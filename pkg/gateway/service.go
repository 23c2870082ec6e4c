package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"vfrelay/pkg/bus"
	"vfrelay/pkg/channel"
	"vfrelay/pkg/config"
	"vfrelay/pkg/dialogue"
	"vfrelay/pkg/logger"
	"vfrelay/pkg/relay"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	defaultHost         = "0.0.0.0"
	defaultPort         = 1337
	eventBufferSize     = 256
	serverShutdownGrace = 5 * time.Second
)

// Service owns the HTTP server, the relay and the lifecycle of every channel.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *bus.MessageBus
	relay    *relay.Relay
	channels []channel.Adapter
	router   chi.Router

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
	counters      relayCounters
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type relayCounters struct {
	EventsReceived int64  `json:"events_received"`
	MessagesSent   int64  `json:"messages_sent"`
	MessagesFailed int64  `json:"messages_failed"`
	HandlingFailed int64  `json:"handling_failed"`
	LastEventAt    string `json:"last_event_at,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Channels      map[string]channelState `json:"channels"`
	Relay         relayCounters           `json:"relay"`
}

// NewService wires the relay around runtime and mounts every webhook channel
// on a shared router.
func NewService(cfg *config.Config, runtime dialogue.Client, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}

	mb := bus.NewMessageBus()
	handler, err := relay.New(runtime, cfg, mb, log)
	if err != nil {
		mb.Close()
		return nil, fmt.Errorf("initialize relay: %w", err)
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	s := &Service{
		cfg:           cfg,
		log:           logger.Component(log, "gateway.service"),
		bus:           mb,
		relay:         handler,
		channels:      adapters,
		channelStates: channelStates,
	}
	s.router = s.newRouter()

	return s, nil
}

func (s *Service) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	for _, adapter := range s.channels {
		if mounter, ok := adapter.(channel.Mounter); ok {
			mounter.Mount(r)
		}
	}

	return r
}

// Handler exposes the router for tests and embedding.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Run serves HTTP and runs every channel until ctx ends or one of them fails.
// It returns after all channels have stopped.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.bus.Close()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	events, unsubscribe := s.bus.SubscribeEvents(ctx, eventBufferSize)
	defer unsubscribe()
	go s.countEvents(events)

	listener, err := net.Listen("tcp", s.address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address(), err)
	}

	serverErrors := make(chan error, 1)
	go s.serve(ctx, listener, serverErrors)

	var running sync.WaitGroup
	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		running.Add(1)
		go func() {
			defer running.Done()
			err := adapter.Run(ctx, s.relay.Handle)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErrors:
	case runErr = <-errCh:
	}

	cancel()
	running.Wait()
	s.log.Info("Gateway stopped")

	return runErr
}

func (s *Service) address() string {
	host := strings.TrimSpace(s.cfg.Server.Host)
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.Server.Port
	if port <= 0 {
		port = defaultPort
	}

	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (s *Service) serve(ctx context.Context, listener net.Listener, errCh chan<- error) {
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway server started", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("serve http: %w", err)
	}
}

// countEvents folds relay events into the status counters.
func (s *Service) countEvents(events <-chan bus.Event) {
	for event := range events {
		s.mu.Lock()
		switch event.Type {
		case bus.EventInboundReceived:
			s.counters.EventsReceived++
			s.counters.LastEventAt = event.At.Format(time.RFC3339)
		case bus.EventMessageSent:
			s.counters.MessagesSent++
		case bus.EventMessageFailed:
			s.counters.MessagesFailed++
		case bus.EventHandlingFailed:
			s.counters.HandlingFailed++
		}
		s.mu.Unlock()
	}
}

func (s *Service) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Hello World")
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Channels:      channels,
		Relay:         s.counters,
	}
}

// isReady reports whether at least one channel is running.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
