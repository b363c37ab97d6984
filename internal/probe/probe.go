package probe

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/CZERTAINLY/wait-for-it/internal/model"
)

const (
	DefaultInterval    = 1 * time.Second
	DefaultDialTimeout = 1 * time.Second
)

// Dialer is satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober checks TCP reachability of a target. The zero value is not usable,
// use New.
type Prober struct {
	dialer      Dialer
	interval    time.Duration
	dialTimeout time.Duration
}

func New() Prober {
	return Prober{
		dialer:      &net.Dialer{},
		interval:    DefaultInterval,
		dialTimeout: DefaultDialTimeout,
	}
}

// WithInterval returns a prober waiting d between two failed attempts.
func (p Prober) WithInterval(d time.Duration) Prober {
	p.interval = d
	return p
}

// WithDialTimeout bounds every single connection attempt.
func (p Prober) WithDialTimeout(d time.Duration) Prober {
	p.dialTimeout = d
	return p
}

func (p Prober) WithDialer(d Dialer) Prober {
	p.dialer = d
	return p
}

// Once makes exactly one connection attempt. Resolution and connection
// errors are reported as false.
func (p Prober) Once(ctx context.Context, target model.Target) bool {
	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	conn, err := p.dialer.DialContext(dialCtx, "tcp", target.Addr())
	if err != nil {
		slog.DebugContext(ctx, "connection failed", "error", err)
		return false
	}
	if err := conn.Close(); err != nil {
		slog.DebugContext(ctx, "closing probe connection", "error", err)
	}
	return true
}

// Until probes target every interval until it succeeds. It has no deadline
// of its own and returns only on success (nil) or when ctx is done.
func (p Prober) Until(ctx context.Context, target model.Target) error {
	for attempt := 1; ; attempt++ {
		if p.Once(ctx, target) {
			slog.DebugContext(ctx, "target reachable", "attempts", attempt)
			return nil
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
