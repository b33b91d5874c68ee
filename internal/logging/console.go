package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one line per record:
//
//	2026-01-02T03:04:05Z INFO [0a1b2c3d] workflow: message key=value
//
// The job id and component are lifted out of the attributes into the prefix.
// Handlers derived through WithAttrs/WithGroup share the writer lock.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     slog.Leveler
	addSource bool

	group     string
	component string
	jobID     string
	preset    []byte
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = bytes.Clone(h.preset)
	for _, attr := range attrs {
		for _, f := range flatten(nil, h.group, attr) {
			if next.hoist(f) {
				continue
			}
			next.preset = appendField(next.preset, f)
		}
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.group + name + "."
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	component, jobID := h.component, h.jobID
	var fields []field
	record.Attrs(func(attr slog.Attr) bool {
		for _, f := range flatten(nil, h.group, attr) {
			switch {
			case f.key == FieldComponent && component == "":
				component = plain(f.value)
			case f.key == FieldJobID && jobID == "":
				jobID = plain(f.value)
			case f.key == FieldComponent || f.key == FieldJobID:
			default:
				fields = append(fields, f)
			}
		}
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	buf := make([]byte, 0, 160+len(h.preset))
	buf = ts.UTC().AppendFormat(buf, time.RFC3339)
	buf = append(buf, ' ')
	buf = append(buf, levelLabel(record.Level)...)
	buf = append(buf, ' ')
	if jobID != "" {
		buf = append(buf, '[')
		buf = append(buf, ShortJobID(jobID)...)
		buf = append(buf, "] "...)
	}
	if component != "" {
		buf = append(buf, component...)
		buf = append(buf, ": "...)
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf = append(buf, msg...)
	} else {
		buf = append(buf, "(no message)"...)
	}
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			buf = fmt.Appendf(buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	buf = append(buf, h.preset...)
	for _, f := range fields {
		buf = appendField(buf, f)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// hoist records component and job id attributes bound with WithAttrs.
func (h *consoleHandler) hoist(f field) bool {
	switch f.key {
	case FieldComponent:
		if h.component == "" {
			h.component = plain(f.value)
		}
		return true
	case FieldJobID:
		if h.jobID == "" {
			h.jobID = plain(f.value)
		}
		return true
	}
	return false
}

type field struct {
	key   string
	value slog.Value
}

// flatten expands groups into dotted keys.
func flatten(dst []field, prefix string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix += attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			dst = flatten(dst, prefix, member)
		}
		return dst
	}
	return append(dst, field{key: prefix + attr.Key, value: attr.Value})
}

func appendField(buf []byte, f field) []byte {
	if f.key == "" {
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, f.key...)
	buf = append(buf, '=')
	s := plain(f.value)
	if needsQuotes(s) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

// plain renders a value without quoting.
func plain(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	return strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// ShortJobID trims UUID job identifiers to their first block for console output.
func ShortJobID(id string) string {
	if idx := strings.IndexByte(id, '-'); idx > 0 {
		return id[:idx]
	}
	return id
}
