// Package logging provides the process-wide structured logger used by
// every component of the server.
package logging

import (
	"strings"
	"sync"

	"github.com/DeRuina/timberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l
}

// Init (re)configures the process-wide logger. When json is false a
// human-readable console encoder is used; otherwise a JSON encoder
// suitable for log aggregation is installed.
func Init(json bool, level zap.AtomicLevel) error {
	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	old := logger
	logger = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// Log returns the process-wide logger, namespaced under the given
// component name (e.g. "reactor", "server", "table", "cgi").
func Log(component string) *zap.SugaredLogger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return l.Named(component).Sugar()
}

// Sync flushes any buffered log entries. Should be called before
// process exit.
func Sync() {
	mu.RLock()
	l := logger
	mu.RUnlock()
	_ = l.Sync()
}

// parseLevel maps a virtual host's log_level directive value to a zap
// level, defaulting to Info for an empty or unrecognized value.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// AccessLogger builds a per-virtual-host access logger (SPEC_FULL.md
// §4.13/§4.14's "a zap logger is derived per host" promise). When path
// is non-empty, entries are written to a rotating file via timberjack
// instead of the process-wide sink, so one virtual host's access log
// can grow and roll over independently of another's — grounded on the
// teacher's go.mod dependency on github.com/DeRuina/timberjack for log
// rotation. vhostName tags every entry so log aggregation can still
// tell hosts apart when they share a file or the process-wide sink.
func AccessLogger(vhostName, path, level string) *zap.SugaredLogger {
	if path == "" {
		mu.RLock()
		l := logger
		mu.RUnlock()
		return l.Named("access").Sugar().With("vhost", vhostName)
	}

	lvl := parseLevel(level)
	rotator := &timberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(rotator), lvl)
	return zap.New(core).Named("access").Sugar().With("vhost", vhostName)
}
