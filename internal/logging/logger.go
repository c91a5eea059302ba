package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"slidewright/internal/config"
)

// Options describes logger construction parameters. OutputPaths accepts
// "stdout", "stderr" or file paths; files are appended to.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
}

// New builds a logger writing to every output in opts. Format is one of
// console, json or auto; auto means console on an interactive stdout and
// JSON otherwise.
func New(opts Options) (*slog.Logger, error) {
	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	w, err := openOutputs(outputs)
	if err != nil {
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	withSource := opts.Development || level.Level() <= slog.LevelDebug

	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		return slog.New(newPrettyHandler(w, level, withSource)), nil
	case "json":
		return slog.New(newJSONHandler(w, level, withSource)), nil
	case "auto":
		if slices.Contains(outputs, "stdout") && interactive(os.Stdout) {
			return slog.New(newPrettyHandler(w, level, withSource)), nil
		}
		return slog.New(newJSONHandler(w, level, withSource)), nil
	default:
		return nil, fmt.Errorf("log format %q: want console, json or auto", opts.Format)
	}
}

// NewFromConfig logs to stdout and, when a log directory is configured, to
// slidewright.log inside it.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{})
	}
	outputs := []string{"stdout"}
	if cfg.Paths.LogDir != "" {
		outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, "slidewright.log"))
	}
	return New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, OutputPaths: outputs})
}

func interactive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	}
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func openOutputs(paths []string) (io.Writer, error) {
	var writers []io.Writer
	opened := map[string]bool{}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || opened[p] {
			continue
		}
		opened[p] = true
		switch p {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, fmt.Errorf("open log file: %w", err)
			}
			writers = append(writers, f)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	if len(writers) == 0 {
		return os.Stdout, nil
	}
	return io.MultiWriter(writers...), nil
}

// newJSONHandler emits one object per line with short keys: ts (UTC
// RFC3339), level (lowercase), msg and source as file:line.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	rename := map[string]string{slog.TimeKey: "ts", slog.LevelKey: "level", slog.MessageKey: "msg"}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			if short, ok := rename[a.Key]; ok {
				a.Key = short
			}
			switch v := a.Value.Any().(type) {
			case time.Time:
				a.Value = slog.StringValue(v.UTC().Format(time.RFC3339Nano))
			case slog.Level:
				a.Value = slog.StringValue(strings.ToLower(v.String()))
			case *slog.Source:
				if v != nil {
					a.Value = slog.StringValue(filepath.Base(v.File) + ":" + strconv.Itoa(v.Line))
				}
			}
			return a
		},
	})
}
