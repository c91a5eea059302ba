package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const consoleTime = "2006-01-02 15:04:05"

// fieldRank orders well-known keys ahead of the rest in console output.
var fieldRank = map[string]int{
	FieldEventType: 1,
	FieldTaskID:    2,
	FieldProgress:  3,
	FieldErrorKind: 4,
	FieldErrorHint: 5,
	"error":        6,
	"status":       7,
	"artifact_id":  8,
	"duration":     9,
}

type field struct {
	key   string
	value slog.Value
}

type consoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// prettyHandler prints one headline per record followed by an indented
// "- Label: value" line per attribute. Component, document and stage are
// lifted into the headline.
type prettyHandler struct {
	sink      *consoleSink
	level     *slog.LevelVar
	addSource bool
	preset    []field
	group     string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{sink: &consoleSink{w: w}, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = slices.Clone(h.preset)
	for _, a := range attrs {
		next.preset = appendField(next.preset, h.group, a)
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	fields := slices.Clone(h.preset)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendField(fields, h.group, a)
		return true
	})
	fields = lastWins(fields)

	var component, documentID, stage string
	body := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = plain(f.value)
		case FieldDocumentID:
			documentID = plain(f.value)
		case FieldStage:
			stage = plain(f.value)
		default:
			body = append(body, f)
		}
	}
	slices.SortStableFunc(body, func(a, b field) int {
		return rank(a.key) - rank(b.key)
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var sb strings.Builder
	sb.WriteString(ts.Local().Format(consoleTime))
	sb.WriteString(" " + levelLabel(r.Level))
	if component != "" {
		sb.WriteString(" [" + component + "]")
	}
	if subject := FormatSubject(documentID, stage); subject != "" {
		sb.WriteString(" " + subject)
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	sb.WriteString(" – " + msg)
	if h.addSource {
		if src := r.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&sb, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	sb.WriteByte('\n')
	for _, f := range body {
		fmt.Fprintf(&sb, "    - %s: %s\n", label(f.key), render(f.key, f.value))
	}

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	_, err := io.WriteString(h.sink.w, sb.String())
	return err
}

// FormatSubject builds the "Document <id> (stage)" subject used in console
// output. UUIDs are shortened to their first block.
func FormatSubject(documentID, stage string) string {
	documentID, stage = strings.TrimSpace(documentID), strings.TrimSpace(stage)
	if documentID == "" {
		return stage
	}
	if len(documentID) > 8 && strings.Count(documentID, "-") == 4 {
		documentID = documentID[:8]
	}
	if stage == "" {
		return "Document " + documentID
	}
	return "Document " + documentID + " (" + stage + ")"
}

func rank(key string) int {
	if r, ok := fieldRank[key]; ok {
		return r
	}
	return len(fieldRank) + 1
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

func appendField(dst []field, group string, a slog.Attr) []field {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := group
		if a.Key != "" {
			inner = joinKey(group, a.Key)
		}
		for _, member := range a.Value.Group() {
			dst = appendField(dst, inner, member)
		}
		return dst
	}
	if a.Key == "" {
		return dst
	}
	return append(dst, field{key: joinKey(group, a.Key), value: a.Value})
}

// lastWins keeps the first position of each key with its latest value.
func lastWins(fields []field) []field {
	index := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func label(key string) string {
	words := strings.NewReplacer("_", " ", ".", " ").Replace(key)
	if words == "" {
		return key
	}
	return strings.ToUpper(words[:1]) + words[1:]
}

// render formats a field value, with byte counts humanized for *_bytes keys
// and a percent sign on progress.
func render(key string, v slog.Value) string {
	switch v.Kind() {
	case slog.KindInt64:
		n := v.Int64()
		if strings.HasSuffix(key, "_bytes") && n >= 0 {
			return humanize.Bytes(uint64(n))
		}
		if key == FieldProgress {
			return strconv.FormatInt(n, 10) + "%"
		}
	case slog.KindUint64:
		if strings.HasSuffix(key, "_bytes") {
			return humanize.Bytes(v.Uint64())
		}
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	}
	if s := plain(v); s != "" {
		return s
	}
	return `""`
}

func plain(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Local().Format(consoleTime)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
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
