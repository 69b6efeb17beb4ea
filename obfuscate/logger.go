package obfuscate

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/muddy/obfuscate/internal/engine"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package logger. It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger sets the logger of this package and of the rewriting engine.
func SetLogger(l *zap.Logger) {
	logger = l
	engine.SetLogger(l)
}
