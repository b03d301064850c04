// Package zlog provides the package-level structured logger used for
// construction and lifecycle events across zeroipc. Hot-path CAS
// operations never log.
// Author: momentics <momentics@gmail.com>
package zlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// L returns the shared logger, lazily building a production encoder the
// first time it's needed.
func L() *zap.Logger {
	once.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
	return logger
}

// Sync flushes the logger's buffered entries; callers invoke this from
// their own Shutdown path.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// SetLogger overrides the shared logger, mainly for tests that want a
// zaptest.NewLogger or an observed core.
func SetLogger(l *zap.Logger) {
	logger = l
}
