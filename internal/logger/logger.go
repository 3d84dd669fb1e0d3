// Package logger adapts log/slog for rixrun's RIX_VERBOSE convention.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler is a slog.Handler that always writes to an optional log file and
// additionally echoes to stderr once the record's level clears the
// configured verbosity. RIX_VERBOSE 0 shows warnings/errors only, 1 adds
// syscall-level info, 2 adds per-instruction SWI trace lines.
type Handler struct {
	out     io.Writer
	h       slog.Handler
	mu      *sync.Mutex
	verbose int
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithAttrs(attrs), mu: h.mu, verbose: h.verbose}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{out: h.out, h: h.h.WithGroup(name), mu: h.mu, verbose: h.verbose}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	formattedTime := r.Time.Format("2006/01/02 15:04:05")

	strs := []string{formattedTime, level, r.Message}

	if r.NumAttrs() != 0 {
		r.Attrs(func(a slog.Attr) bool {
			strs = append(strs, a.Value.String())
			return true
		})
	}
	result := strings.Join(strs, " ") + "\n"
	b := []byte(result)

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.out != nil {
		_, err = h.out.Write(b)
	}

	if h.shouldEcho(r.Level) {
		_, err = os.Stderr.Write(b)
	}
	return err
}

func (h *Handler) shouldEcho(level slog.Level) bool {
	switch {
	case level >= slog.LevelWarn:
		return true
	case level >= slog.LevelInfo:
		return h.verbose >= 1
	default:
		return h.verbose >= 2
	}
}

// SetVerbose adjusts the stderr echo threshold at runtime.
func (h *Handler) SetVerbose(verbose int) {
	h.verbose = verbose
}

// NewHandler builds a Handler writing a text-formatted record to file (which
// may be nil) and echoing to stderr per verbose's threshold.
func NewHandler(file io.Writer, opts *slog.HandlerOptions, verbose int) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &Handler{
		out: file,
		h: slog.NewTextHandler(file, &slog.HandlerOptions{
			Level:       opts.Level,
			AddSource:   opts.AddSource,
			ReplaceAttr: nil,
		}),
		mu:      &sync.Mutex{},
		verbose: verbose,
	}
}
