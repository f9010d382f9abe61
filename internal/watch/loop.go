package watch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/g960059/presencewatch/internal/locksource"
	"github.com/g960059/presencewatch/internal/presence"
)

const DefaultRestartDelay = 5 * time.Second

// StatusSetter is the slice of the presence client the loop needs.
type StatusSetter interface {
	SetStatus(ctx context.Context, status string) error
}

// Loop translates lock transitions into presence updates. It owns the
// monitor lifecycle: when the monitor process exits it waits a fixed
// delay and starts a fresh one, forever. Updates are unconditional per
// event; setting away while already away is harmless, so the loop
// never tracks current state.
type Loop struct {
	source       locksource.Source
	setter       StatusSetter
	logger       *zap.Logger
	restartDelay time.Duration
}

func New(source locksource.Source, setter StatusSetter, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		source:       source,
		setter:       setter,
		logger:       logger,
		restartDelay: DefaultRestartDelay,
	}
}

// WithRestartDelay overrides the monitor restart delay; tests use this
// to exercise the restart policy quickly.
func (l *Loop) WithRestartDelay(delay time.Duration) *Loop {
	if l == nil {
		return nil
	}
	clone := *l
	clone.restartDelay = delay
	return &clone
}

// Run blocks until ctx is cancelled. Monitor exits and presence API
// failures never terminate it; the watcher is meant to run unattended
// indefinitely.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stream, err := l.source.Start(ctx)
		if err != nil {
			l.logger.Warn("monitor start failed", zap.Error(err))
		} else {
			l.logger.Info("monitor started")
			l.consume(ctx, stream)
			l.logger.Info("monitor exited", zap.Duration("restart_delay", l.restartDelay))
		}
		if err := sleepWithContext(ctx, l.restartDelay); err != nil {
			return err
		}
	}
}

func (l *Loop) consume(ctx context.Context, stream locksource.LineStream) {
	defer stream.Close() //nolint:errcheck
	filter := locksource.NewFilter(stream)
	for {
		locked, ok := filter.Next()
		if !ok {
			return
		}
		status := presence.StatusOnline
		if locked {
			status = presence.StatusAway
		}
		l.logger.Info("lock transition",
			zap.Bool("locked", locked),
			zap.String("status", status),
		)
		if err := l.setter.SetStatus(ctx, status); err != nil {
			// a transient API failure must not kill the watcher
			l.logger.Warn("status update failed",
				zap.String("status", status),
				zap.Error(err),
			)
		}
	}
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
