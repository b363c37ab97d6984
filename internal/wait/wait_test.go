package wait_test

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/wait-for-it/internal/guard"
	"github.com/CZERTAINLY/wait-for-it/internal/model"
	"github.com/CZERTAINLY/wait-for-it/internal/probe"
	"github.com/CZERTAINLY/wait-for-it/internal/report"
	"github.com/CZERTAINLY/wait-for-it/internal/wait"

	"github.com/stretchr/testify/require"
)

// never marks a service which never becomes reachable
const never = time.Duration(-1)

// fakeProber makes each host reachable after a configured delay
type fakeProber struct {
	mx     sync.Mutex
	delays map[string]time.Duration
	probed []string
}

func (p *fakeProber) Until(ctx context.Context, target model.Target) error {
	p.mx.Lock()
	p.probed = append(p.probed, target.Host)
	d, ok := p.delays[target.Host]
	p.mx.Unlock()
	if !ok || d == never {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (p *fakeProber) Probed() []string {
	p.mx.Lock()
	defer p.mx.Unlock()
	return append([]string(nil), p.probed...)
}

type exitRecorder struct {
	mx    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) Codes() []int {
	e.mx.Lock()
	defer e.mx.Unlock()
	return append([]int(nil), e.codes...)
}

type given struct {
	services []string
	delays   map[string]time.Duration
	timeout  int
	mode     model.Mode
}

type then struct {
	err      error
	exits    []int
	probed   []string
	elapsed  time.Duration
	messages []string
}

func TestWaiter(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    given
		then     then
	}{
		{
			scenario: "serial: all available",
			given: given{
				services: []string{"a:1", "b:2"},
				delays:   map[string]time.Duration{"a": 2 * time.Second, "b": 3 * time.Second},
				timeout:  15,
				mode:     model.ModeSerial,
			},
			then: then{
				probed:  []string{"a", "b"},
				elapsed: 5 * time.Second,
				messages: []string{
					"[*] waiting 15 seconds for a:1",
					"[+] a:1 is available after 2 seconds",
					"[*] waiting 15 seconds for b:2",
					"[+] b:2 is available after 3 seconds",
				},
			},
		},
		{
			scenario: "serial: first timeout stops",
			given: given{
				services: []string{"a:1", "b:2"},
				delays:   map[string]time.Duration{"a": never, "b": 0},
				timeout:  1,
				mode:     model.ModeSerial,
			},
			then: then{
				err:     model.ErrTimeout,
				exits:   []int{1},
				probed:  []string{"a"},
				elapsed: 1 * time.Second,
				messages: []string{
					"[*] waiting 1 seconds for a:1",
					"[-] timeout occurred after waiting 1 seconds for a:1",
				},
			},
		},
		{
			scenario: "serial: per service deadline",
			given: given{
				services: []string{"a:1", "b:2"},
				delays:   map[string]time.Duration{"a": 4 * time.Second, "b": 4 * time.Second},
				timeout:  5,
				mode:     model.ModeSerial,
			},
			then: then{
				probed:  []string{"a", "b"},
				elapsed: 8 * time.Second,
				messages: []string{
					"[*] waiting 5 seconds for a:1",
					"[+] a:1 is available after 4 seconds",
					"[*] waiting 5 seconds for b:2",
					"[+] b:2 is available after 4 seconds",
				},
			},
		},
		{
			scenario: "serial: no timeout",
			given: given{
				services: []string{"a:1"},
				delays:   map[string]time.Duration{"a": time.Hour},
				timeout:  0,
				mode:     model.ModeSerial,
			},
			then: then{
				probed:  []string{"a"},
				elapsed: time.Hour,
				messages: []string{
					"[*] waiting for a:1 without a timeout",
					"[+] a:1 is available after 3600 seconds",
				},
			},
		},
		{
			scenario: "serial: malformed address stops before probing it",
			given: given{
				services: []string{"a:1", "b:65536", "c:3"},
				delays:   map[string]time.Duration{"a": 0, "c": 0},
				timeout:  1,
				mode:     model.ModeSerial,
			},
			then: then{
				err:    model.ErrMalformedAddress,
				probed: []string{"a"},
				messages: []string{
					"[*] waiting 1 seconds for a:1",
					"[+] a:1 is available after 0 seconds",
				},
			},
		},
		{
			scenario: "parallel: all available",
			given: given{
				services: []string{"a:1", "b:2"},
				delays:   map[string]time.Duration{"a": 2 * time.Second, "b": 3 * time.Second},
				timeout:  5,
				mode:     model.ModeParallel,
			},
			then: then{
				probed:  []string{"a", "b"},
				elapsed: 3 * time.Second,
				messages: []string{
					"[*] waiting 5 seconds for a:1",
					"[*] waiting 5 seconds for b:2",
					"[+] a:1 is available after 2 seconds",
					"[+] b:2 is available after 3 seconds",
				},
			},
		},
		{
			scenario: "parallel: every pending job times out",
			given: given{
				services: []string{"a:1", "b:2"},
				delays:   map[string]time.Duration{"a": never, "b": never},
				timeout:  1,
				mode:     model.ModeParallel,
			},
			then: then{
				err:     model.ErrTimeout,
				exits:   []int{1},
				probed:  []string{"a", "b"},
				elapsed: 1 * time.Second,
				messages: []string{
					"[*] waiting 1 seconds for a:1",
					"[*] waiting 1 seconds for b:2",
					"[-] timeout occurred after waiting 1 seconds for a:1",
					"[-] timeout occurred after waiting 1 seconds for b:2",
				},
			},
		},
		{
			scenario: "parallel: succeeded job is not reported again",
			given: given{
				services: []string{"a:1", "b:2", "c:3"},
				delays:   map[string]time.Duration{"a": never, "b": time.Second, "c": never},
				timeout:  2,
				mode:     model.ModeParallel,
			},
			then: then{
				err:     model.ErrTimeout,
				exits:   []int{1},
				probed:  []string{"a", "b", "c"},
				elapsed: 2 * time.Second,
				messages: []string{
					"[*] waiting 2 seconds for a:1",
					"[*] waiting 2 seconds for b:2",
					"[*] waiting 2 seconds for c:3",
					"[+] b:2 is available after 1 seconds",
					"[-] timeout occurred after waiting 2 seconds for a:1",
					"[-] timeout occurred after waiting 2 seconds for c:3",
				},
			},
		},
		{
			scenario: "parallel: malformed address stops everything",
			given: given{
				services: []string{"a:1", "::1"},
				delays:   map[string]time.Duration{"a": 0},
				timeout:  1,
				mode:     model.ModeParallel,
			},
			then: then{
				err: model.ErrMalformedAddress,
			},
		},
		{
			scenario: "no services",
			given: given{
				timeout: 1,
				mode:    model.ModeParallel,
			},
			then: then{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			synctest.Test(t, func(t *testing.T) {
				var out bytes.Buffer
				var rec exitRecorder
				prober := &fakeProber{delays: tc.given.delays}
				w := wait.New(
					prober,
					report.New(&out),
					guard.New().WithExit(rec.exit),
					tc.given.timeout,
				)

				start := time.Now()
				err := w.Run(t.Context(), tc.given.services, tc.given.mode)
				require.Equal(t, tc.then.elapsed, time.Since(start))

				if tc.then.err != nil {
					require.ErrorIs(t, err, tc.then.err)
				} else {
					require.NoError(t, err)
				}
				require.Equal(t, tc.then.exits, rec.Codes())
				require.ElementsMatch(t, tc.then.probed, prober.Probed())
				if tc.given.mode == model.ModeParallel {
					require.ElementsMatch(t, tc.then.messages, lines(out.String()))
				} else {
					require.Equal(t, tc.then.messages, lines(out.String()))
				}
			})
		})
	}
}

// TestWaiter_Network uses real sockets and real time
func TestWaiter_Network(t *testing.T) {
	t.Parallel()

	reachable := listen(t)
	unreachable1 := closedPort(t)
	unreachable2 := closedPort(t)

	t.Run("reachable", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		var rec exitRecorder
		w := wait.New(probe.New(), report.New(&out), guard.New().WithExit(rec.exit), 5)
		err := w.Run(t.Context(), []string{reachable}, model.ModeSerial)
		require.NoError(t, err)
		require.Empty(t, rec.Codes())
		require.Equal(t, 1, strings.Count(out.String(), "is available after"))
		require.Contains(t, out.String(), reachable+" is available after 0 seconds")
	})

	for _, mode := range []model.Mode{model.ModeSerial, model.ModeParallel} {
		t.Run(mode.String()+" timeout", func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			var rec exitRecorder
			w := wait.New(probe.New(), report.New(&out), guard.New().WithExit(rec.exit), 1)
			err := w.Run(t.Context(), []string{unreachable1, unreachable2}, mode)
			require.ErrorIs(t, err, model.ErrTimeout)
			require.Equal(t, []int{1}, rec.Codes())

			expected := 1
			if mode == model.ModeParallel {
				expected = 2
			}
			require.Equal(t, expected, strings.Count(out.String(), "timeout occurred"))
		})
	}
}

func listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ln.Close()
	})
	return netip.MustParseAddrPort(ln.Addr().String()).String()
}

func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := netip.MustParseAddrPort(ln.Addr().String()).String()
	require.NoError(t, ln.Close())
	return addr
}

func lines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
