// Package guard bounds the time a unit of work may take.
//
// An expired deadline is fatal: the expiry callback runs and the process
// exits with status 1. Exit is pluggable so the behavior can be tested
// without terminating the test binary.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/CZERTAINLY/wait-for-it/internal/model"
)

const ExitTimeout = 1

type Guard struct {
	exit func(code int)
}

func New() Guard {
	return Guard{exit: os.Exit}
}

// WithExit replaces os.Exit called on expiry.
func (g Guard) WithExit(exit func(code int)) Guard {
	g.exit = exit
	return g
}

// Run calls work and waits for it. A zero timeout means no deadline.
//
// If the deadline expires first, onExpire is called, then the exit function.
// When exit returns, Run waits for work to honor the cancelled context and
// returns an error wrapping model.ErrTimeout. The deadline is disarmed on
// every return path.
func (g Guard) Run(ctx context.Context, timeout time.Duration, work func(context.Context) error, onExpire func()) error {
	if timeout <= 0 {
		return work(ctx)
	}

	ctx, cancel := context.WithTimeoutCause(ctx, timeout, model.ErrTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- work(ctx)
	}()

	select {
	case err := <-done:
		if err == nil || !expired(ctx) {
			return err
		}
	case <-ctx.Done():
		if !expired(ctx) {
			return <-done
		}
		defer func() {
			<-done
		}()
	}

	slog.DebugContext(ctx, "deadline expired", "timeout", timeout)
	if onExpire != nil {
		onExpire()
	}
	g.exit(ExitTimeout)
	return fmt.Errorf("%w after %s", model.ErrTimeout, timeout)
}

func expired(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), model.ErrTimeout)
}
