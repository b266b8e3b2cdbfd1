// Package logging defines the Logger interface used throughout arbmon,
// and provides zap-backed implementations of it.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a logger with a name tag. Components obtain one via New and log
// with printf-style methods; structured key-value pairs go through the *w
// variants (zap's SugaredLogger "With" semantics).
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)

	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)

	// With returns a child logger carrying the given key-value pairs.
	With(keysAndValues ...any) Logger

	Sync() error
}

var (
	mut   sync.Mutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// SetLogLevel sets the global log level. Accepts debug, info, warn, and error.
func SetLogLevel(levelStr string) {
	mut.Lock()
	defer mut.Unlock()

	switch strings.ToLower(levelStr) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "info":
		level.SetLevel(zapcore.InfoLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	}
}

func init() {
	if lv, ok := os.LookupEnv("ARBMON_LOG"); ok {
		SetLogLevel(lv)
	}
}

type wrapper struct {
	inner *zap.SugaredLogger
}

// New returns a new logger with the given name tag, writing to stderr.
func New(tag string) Logger {
	return NewWithDest(os.Stderr, tag)
}

// NewWithDest returns a new logger with the given name tag that writes to dest.
func NewWithDest(dest io.Writer, tag string) Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if f, ok := dest.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(dest), level)
	l := zap.New(core).Named(tag).Sugar()
	return &wrapper{inner: l}
}

func (l *wrapper) Debugf(format string, args ...any) { l.inner.Debugf(format, args...) }
func (l *wrapper) Infof(format string, args ...any)  { l.inner.Infof(format, args...) }
func (l *wrapper) Warnf(format string, args ...any)  { l.inner.Warnf(format, args...) }
func (l *wrapper) Errorf(format string, args ...any) { l.inner.Errorf(format, args...) }
func (l *wrapper) Fatalf(format string, args ...any) { l.inner.Fatalf(format, args...) }

func (l *wrapper) Debugw(msg string, keysAndValues ...any) { l.inner.Debugw(msg, keysAndValues...) }
func (l *wrapper) Infow(msg string, keysAndValues ...any)  { l.inner.Infow(msg, keysAndValues...) }
func (l *wrapper) Warnw(msg string, keysAndValues ...any)  { l.inner.Warnw(msg, keysAndValues...) }
func (l *wrapper) Errorw(msg string, keysAndValues ...any) { l.inner.Errorw(msg, keysAndValues...) }

func (l *wrapper) With(keysAndValues ...any) Logger {
	return &wrapper{inner: l.inner.With(keysAndValues...)}
}

func (l *wrapper) Sync() error { return l.inner.Sync() }
