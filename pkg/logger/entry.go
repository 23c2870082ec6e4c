package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Attribute keys lifted out of Attrs into fixed LogEntry fields.
const (
	KeyComponent  = "component"
	KeyEventID    = "event_id"
	KeySessionKey = "session_key"
	KeyChannel    = "channel"
)

// LogEntry is one line of the json format. Relay correlation keys get their
// own fields so events can be followed across components.
type LogEntry struct {
	Time       string         `json:"time"`
	Level      string         `json:"level"`
	Component  string         `json:"component,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	EventID    string         `json:"event_id,omitempty"`
	SessionKey string         `json:"session_key,omitempty"`
	Message    string         `json:"msg"`
	Attrs      map[string]any `json:"attrs,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// set routes one attribute to its fixed field or to Attrs.
func (e *LogEntry) set(key string, value slog.Value) {
	if value.Kind() == slog.KindString {
		switch key {
		case KeyComponent:
			e.Component = value.String()
			return
		case KeyChannel:
			e.Channel = value.String()
			return
		case KeyEventID:
			e.EventID = value.String()
			return
		case KeySessionKey:
			e.SessionKey = value.String()
			return
		}
	}

	if e.Attrs == nil {
		e.Attrs = make(map[string]any)
	}
	e.Attrs[key] = jsonValue(value)
}

// clone copies the entry so With-derived handlers never share Attrs.
func (e LogEntry) clone() LogEntry {
	if e.Attrs != nil {
		attrs := make(map[string]any, len(e.Attrs))
		for key, value := range e.Attrs {
			attrs[key] = value
		}
		e.Attrs = attrs
	}
	return e
}

// entryHandler writes LogEntry lines. Attributes bound with With are folded
// into base once instead of on every record.
type entryHandler struct {
	out       *lockedWriter
	level     slog.Level
	addSource bool
	prefix    string
	base      LogEntry
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newEntryHandler(w io.Writer, level slog.Level, addSource bool) *entryHandler {
	return &entryHandler{
		out:       &lockedWriter{w: w},
		level:     level,
		addSource: addSource,
	}
}

func (h *entryHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *entryHandler) Handle(_ context.Context, record slog.Record) error {
	entry := h.base.clone()
	entry.Level = strings.ToLower(record.Level.String())
	entry.Message = record.Message

	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}
	entry.Time = at.UTC().Format(time.RFC3339Nano)

	record.Attrs(func(attr slog.Attr) bool {
		h.apply(&entry, attr)
		return true
	})

	if h.addSource {
		entry.Source = sourceOf(record.PC)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err = h.out.w.Write(append(line, '\n'))
	return err
}

func (h *entryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.base = h.base.clone()
	for _, attr := range attrs {
		h.apply(&next.base, attr)
	}
	return &next
}

func (h *entryHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *entryHandler) apply(entry *LogEntry, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	// Correlation keys stay fixed only at the top level.
	if h.prefix == "" {
		entry.set(attr.Key, attr.Value)
		return
	}
	if entry.Attrs == nil {
		entry.Attrs = make(map[string]any)
	}
	entry.Attrs[h.prefix+attr.Key] = jsonValue(attr.Value)
}

func jsonValue(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := make(map[string]any, len(value.Group()))
		for _, attr := range value.Group() {
			group[attr.Key] = jsonValue(attr.Value.Resolve())
		}
		return group
	case slog.KindAny:
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
		return value.Any()
	default:
		return value.Any()
	}
}

func sourceOf(pc uintptr) string {
	if pc == 0 {
		return ""
	}

	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}
