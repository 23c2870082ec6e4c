package relay

import (
	"strings"
	"sync"

	"vfrelay/pkg/config"
)

// SessionMapper maps a chat sender to the runtime user id that holds its
// conversation state.
type SessionMapper struct {
	mode     string
	sharedID string
}

// NewSessionMapper builds a mapper for the configured session mode.
func NewSessionMapper(cfg config.SessionConfig) *SessionMapper {
	mode := strings.TrimSpace(cfg.Mode)
	if mode == "" {
		mode = config.SessionPerSender
	}

	return &SessionMapper{
		mode:     mode,
		sharedID: strings.TrimSpace(cfg.SharedID),
	}
}

// Key returns the session key for one sender. In shared mode every sender
// maps to the same id.
func (m *SessionMapper) Key(channelName string, senderID string) string {
	if m.mode == config.SessionShared {
		return m.sharedID
	}

	return strings.TrimSpace(channelName) + ":" + strings.TrimSpace(senderID)
}

// sessionLocks serializes turns per session key. Entries are dropped once no
// caller holds or waits on them.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[string]*sessionLock)}
}

// lock blocks until key is free and returns the matching unlock.
func (l *sessionLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &sessionLock{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

// size reports how many session keys are tracked.
func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
