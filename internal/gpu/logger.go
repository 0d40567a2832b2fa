//go:build !nogpu

package gpu

import (
	"log/slog"
	"sync/atomic"
)

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	setLogger(nil)
}

// slogger returns the package logger.
func slogger() *slog.Logger { return loggerPtr.Load() }

// setLogger installs l, tagged with the backend name, as the package logger.
// nil silences the package. Called from Accelerator.SetLogger when
// centerline.SetLogger propagates.
func setLogger(l *slog.Logger) {
	if l == nil {
		loggerPtr.Store(slog.New(slog.DiscardHandler))
		return
	}
	loggerPtr.Store(l.With("backend", "wgpu"))
}
