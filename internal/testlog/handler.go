// Package testlog provides a slog.Handler that records log output for
// assertions. Records are kept without timestamps so they compare
// deterministically.
package testlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Etesie/fauna-typed/pkg/logger"
)

// Entry is one recorded log line.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

func (e Entry) String() string {
	keys := make([]string, 0, len(e.Attrs))
	for k, v := range e.Attrs {
		keys = append(keys, k+"="+v)
	}
	return fmt.Sprintf("%s: %s %s", e.Level, e.Message, strings.Join(keys, ", "))
}

type sink struct {
	mu      sync.Mutex
	entries []Entry
}

// Handler records every record it handles. Handlers derived through
// WithAttrs and WithGroup share the same record list.
type Handler struct {
	sink   *sink
	attrs  []slog.Attr
	groups []string
	level  slog.Level
}

type Option func(h *Handler)

// WithLevel drops records below level. The default keeps debug output.
func WithLevel(level slog.Level) Option {
	return func(h *Handler) { h.level = level }
}

func New(opts ...Option) *Handler {
	h := &Handler{sink: &sink{}, level: slog.LevelDebug}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Logger returns a logger.Logger writing to h.
func (h *Handler) Logger() logger.Logger {
	return logger.New(h)
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

//nolint:gocritic
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{Level: r.Level, Message: r.Message, Attrs: map[string]string{}}
	prefix := h.prefix()
	for _, a := range h.attrs {
		addAttr(e.Attrs, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(e.Attrs, prefix, a)
		return true
	})

	h.sink.mu.Lock()
	h.sink.entries = append(h.sink.entries, e)
	h.sink.mu.Unlock()
	return nil
}

func addAttr(dst map[string]string, prefix string, a slog.Attr) {
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(dst, prefix+a.Key+".", ga)
		}
		return
	}
	dst[prefix+a.Key] = a.Value.String()
}

func (h *Handler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := h.prefix()
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	for _, a := range attrs {
		a.Key = prefix + a.Key
		next = append(next, a)
	}
	return &Handler{sink: h.sink, attrs: next, groups: h.groups, level: h.level}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{
		sink:   h.sink,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
		level:  h.level,
	}
}

// Entries returns a copy of everything recorded so far.
func (h *Handler) Entries() []Entry {
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	out := make([]Entry, len(h.sink.entries))
	copy(out, h.sink.entries)
	return out
}

// Count returns how many records at level contain substr in their message.
func (h *Handler) Count(level slog.Level, substr string) int {
	n := 0
	for _, e := range h.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

func (h *Handler) Reset() {
	h.sink.mu.Lock()
	h.sink.entries = nil
	h.sink.mu.Unlock()
}
