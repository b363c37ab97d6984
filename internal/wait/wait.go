package wait

import (
	"context"
	"log/slog"
	"time"

	"github.com/CZERTAINLY/wait-for-it/internal/address"
	"github.com/CZERTAINLY/wait-for-it/internal/guard"
	"github.com/CZERTAINLY/wait-for-it/internal/log"
	"github.com/CZERTAINLY/wait-for-it/internal/model"
	"github.com/CZERTAINLY/wait-for-it/internal/report"

	"golang.org/x/sync/errgroup"
)

// Prober polls a target until it is reachable or ctx is done.
type Prober interface {
	Until(ctx context.Context, target model.Target) error
}

type Waiter struct {
	prober   Prober
	reporter *report.Reporter
	guard    guard.Guard
	timeout  int
}

// New returns a Waiter. The timeout is in seconds, 0 waits forever.
func New(prober Prober, reporter *report.Reporter, g guard.Guard, timeout int) *Waiter {
	return &Waiter{
		prober:   prober,
		reporter: reporter,
		guard:    g,
		timeout:  timeout,
	}
}

// Run waits for all services. It returns nil once every service is
// reachable, an error wrapping model.ErrMalformedAddress for bad input or
// model.ErrTimeout when the guard's exit function returns.
func (w *Waiter) Run(ctx context.Context, services []string, mode model.Mode) error {
	slog.DebugContext(ctx, "waiting for services", "services", services, "mode", mode.String(), "timeout", w.timeout)
	switch mode {
	case model.ModeParallel:
		return w.parallel(ctx, services)
	default:
		return w.serial(ctx, services)
	}
}

func (w *Waiter) serial(ctx context.Context, services []string) error {
	for _, service := range services {
		target, err := address.Resolve(service)
		if err != nil {
			return err
		}
		job := report.NewJob(target, w.timeout)
		err = w.guard.Run(
			ctx,
			w.deadline(),
			func(ctx context.Context) error {
				return w.wait(ctx, job)
			},
			func() {
				w.reporter.Timeout(job)
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Waiter) parallel(ctx context.Context, services []string) error {
	targets, err := address.ResolveAll(services)
	if err != nil {
		return err
	}

	batch := make(report.Batch, 0, len(targets))
	for _, target := range targets {
		batch = append(batch, report.NewJob(target, w.timeout))
	}

	return w.guard.Run(
		ctx,
		w.deadline(),
		func(ctx context.Context) error {
			g, gctx := errgroup.WithContext(ctx)
			for _, job := range batch {
				g.Go(func() error {
					return w.wait(gctx, job)
				})
			}
			return g.Wait()
		},
		func() {
			for _, job := range batch.Pending() {
				w.reporter.Timeout(job)
			}
		},
	)
}

func (w *Waiter) wait(ctx context.Context, job *report.Job) error {
	ctx = log.ContextAttrs(ctx, slog.String("service", job.Target.String()))
	w.reporter.Start(job)
	if err := w.prober.Until(ctx, job.Target); err != nil {
		return err
	}
	w.reporter.Success(job)
	slog.DebugContext(ctx, "service available", "elapsed", time.Since(job.StartedAt()))
	return nil
}

func (w *Waiter) deadline() time.Duration {
	return time.Duration(w.timeout) * time.Second
}
