// Package async wraps the host's long-lived background goroutines with panic
// recovery and structured error logging. Use Go instead of a bare go func()
// so a crashing background task cannot take the runtime down silently.
package async

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// Go runs fn on its own goroutine. A panic is recovered and logged with its
// stack; a returned error is logged. The context is passed through so the
// task stops with the host.
func Go(ctx context.Context, log *logrus.Logger, taskName string, fn func(context.Context) error) {
	if log == nil {
		log = logrus.New()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()
		if err := fn(ctx); err != nil && err != context.Canceled {
			log.WithField("task", taskName).WithError(err).Warn("background task stopped with error")
		}
	}()
}
