// Package logger builds the zerolog logger used across the service and carries
// per-request fields through context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	Service   string
	Component string
}

type ctxKey string

// context keys double as the emitted field names
const (
	ctxReqIDKey    ctxKey = "request_id"
	ctxFunction    ctxKey = "function"
	ctxComponent   ctxKey = "component"
	ctxGeohashCell ctxKey = "cell"
)

// output order of the context fields
var ctxFields = [...]ctxKey{ctxReqIDKey, ctxFunction, ctxComponent, ctxGeohashCell}

// WithRequestID stores reqID, generating one when it is empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return context.WithValue(ctx, ctxReqIDKey, reqID)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxReqIDKey).(string)
	return s
}

// WithFunction tags log lines with the bound function name, e.g. "geohash".
func WithFunction(ctx context.Context, name string) context.Context {
	return withField(ctx, ctxFunction, name)
}

func WithCell(ctx context.Context, cell string) context.Context {
	return withField(ctx, ctxGeohashCell, cell)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return withField(ctx, ctxComponent, component)
}

func withField(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// NewID returns 16 random hex characters.
func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Build configures zerolog's global field names and level and returns the
// root logger. Unknown levels fall back to info.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zc := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		zc = zc.Str("service", cfg.Service)
	}
	if cfg.Component != "" {
		zc = zc.Str("component", cfg.Component)
	}
	return zc.Logger()
}

// FromContext returns a child of parent carrying the context fields. A nil
// parent yields a discarding logger.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.New(io.Discard)
	if parent != nil {
		base = *parent
	}
	w := base.With()
	for _, k := range ctxFields {
		if s, ok := ctx.Value(k).(string); ok && s != "" {
			w = w.Str(string(k), s)
		}
	}
	l := w.Logger()
	return &l
}
