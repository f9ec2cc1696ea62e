package testlog

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// CapturedRecord is a log record with the attributes inherited from the logger that emitted it.
type CapturedRecord struct {
	slog.Record
	inherited []slog.Attr
}

// AttrValue returns the value of the named attribute, searching the record first.
func (r *CapturedRecord) AttrValue(name string) (v any) {
	found := false
	r.Record.Attrs(func(a slog.Attr) bool {
		if a.Key == name {
			v, found = a.Value.Any(), true
			return false
		}
		return true
	})
	if found {
		return v
	}
	for _, a := range r.inherited {
		if a.Key == name {
			return a.Value.Any()
		}
	}
	return nil
}

type recordStore struct {
	mu   sync.Mutex
	logs []*CapturedRecord
}

// CapturingHandler captures all log records and forwards them to a delegate.
type CapturingHandler struct {
	handler slog.Handler
	store   *recordStore // shared among derived handlers
	attrs   []slog.Attr
}

func (c *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.handler.Enabled(ctx, level)
}

func (c *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	c.store.mu.Lock()
	c.store.logs = append(c.store.logs, &CapturedRecord{Record: r.Clone(), inherited: c.attrs})
	c.store.mu.Unlock()
	return c.handler.Handle(ctx, r)
}

func (c *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(c.attrs)+len(attrs))
	merged = append(merged, attrs...)
	merged = append(merged, c.attrs...)
	return &CapturingHandler{handler: c.handler.WithAttrs(attrs), store: c.store, attrs: merged}
}

func (c *CapturingHandler) WithGroup(name string) slog.Handler {
	return &CapturingHandler{handler: c.handler.WithGroup(name), store: c.store, attrs: c.attrs}
}

// Clear drops all captured records.
func (c *CapturingHandler) Clear() {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.logs = nil
}

// FindLog returns the first record at the given level whose message contains msg, or nil.
func (c *CapturingHandler) FindLog(level slog.Level, msg string) *CapturedRecord {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	for _, r := range c.store.logs {
		if r.Level == level && strings.Contains(r.Message, msg) {
			return r
		}
	}
	return nil
}

// FindLogs returns all records whose message contains msg.
func (c *CapturingHandler) FindLogs(msg string) []*CapturedRecord {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	var out []*CapturedRecord
	for _, r := range c.store.logs {
		if strings.Contains(r.Message, msg) {
			out = append(out, r)
		}
	}
	return out
}
