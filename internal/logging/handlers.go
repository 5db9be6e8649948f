package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

const journalIdentifier = "ezvizbridge"

// outputHandler delivers each record to the daemon's sinks: stdout through a
// stock slog handler, the systemd journal, and the ring buffer with its
// callback. Attributes are flattened once per record and shared by the
// journal and the buffer.
type outputHandler struct {
	level   slog.Leveler
	stdout  slog.Handler
	journal bool
	fields  map[string]any
	groups  []string
}

func newOutputHandler(level slog.Leveler, stdout slog.Handler, toJournal bool) *outputHandler {
	return &outputHandler{level: level, stdout: stdout, journal: toJournal}
}

func (h *outputHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *outputHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.stdout != nil {
		_ = h.stdout.Handle(ctx, r.Clone())
	}

	mutex.RLock()
	buffer, callback := logBuffer, logCallback
	mutex.RUnlock()

	if !h.journal && buffer == nil && callback == nil {
		return nil
	}

	fields := maps.Clone(h.fields)
	if fields == nil {
		fields = make(map[string]any)
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(fields, h.groups, a)
		return true
	})

	if h.journal {
		_ = journalSend(r.Message, journalPriority(r.Level), journalFields(fields))
	}

	if buffer == nil && callback == nil {
		return nil
	}

	module := "app"
	if m, ok := fields["module"].(string); ok {
		module = m
		delete(fields, "module")
	}
	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     module,
		Message:    r.Message,
		Attributes: fields,
	}
	if buffer != nil {
		buffer.Write(entry)
	}
	if callback != nil {
		callback(entry)
	}
	return nil
}

func (h *outputHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = maps.Clone(h.fields)
	if next.fields == nil {
		next.fields = make(map[string]any)
	}
	for _, a := range attrs {
		flatten(next.fields, h.groups, a)
	}
	if h.stdout != nil {
		next.stdout = h.stdout.WithAttrs(attrs)
	}
	return &next
}

func (h *outputHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(slices.Clone(h.groups), name)
	if h.stdout != nil {
		next.stdout = h.stdout.WithGroup(name)
	}
	return &next
}

// flatten stores a under its dotted group path.
func flatten(fields map[string]any, groups []string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		nested := append(slices.Clone(groups), a.Key)
		for _, ga := range v.Group() {
			flatten(fields, nested, ga)
		}
	case slog.KindTime:
		fields[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		fields[key] = v.Duration().String()
	case slog.KindString:
		fields[key] = v.String()
	default:
		if err, ok := v.Any().(error); ok {
			fields[key] = err.Error()
		} else {
			fields[key] = v.Any()
		}
	}
}

// journalFields maps flattened attributes to journal field names, e.g.
// "poll.serial" becomes POLL_SERIAL.
func journalFields(fields map[string]any) map[string]string {
	out := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		out[strings.ToUpper(strings.ReplaceAll(k, ".", "_"))] = fmt.Sprint(v)
	}
	out["SYSLOG_IDENTIFIER"] = journalIdentifier
	return out
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
