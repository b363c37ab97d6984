// Package report writes the user facing progress messages of wait jobs.
//
// Every message starts with a tag telling its kind: [+] success, [-] failure
// and [*] for neutral progress. The reporter is the only component writing to
// the output, quiet mode is io.Discard passed to New.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/CZERTAINLY/wait-for-it/internal/model"
)

type kind int

const (
	neutral kind = iota
	success
	failure
)

func (k kind) tag() string {
	switch k {
	case success:
		return "[+] "
	case failure:
		return "[-] "
	default:
		return "[*] "
	}
}

type Reporter struct {
	mx   sync.Mutex
	w    io.Writer
	tags bool
}

func New(w io.Writer) *Reporter {
	return &Reporter{
		w:    w,
		tags: true,
	}
}

// WithTags enables or disables the message prefix tags.
func (r *Reporter) WithTags(tags bool) *Reporter {
	r.tags = tags
	return r
}

// Start reports a job is about to wait and records its start time.
func (r *Reporter) Start(j *Job) {
	j.startedAt = time.Now()
	if j.Timeout > 0 {
		r.printf(neutral, "waiting %d seconds for %s", j.Timeout, j.Target)
	} else {
		r.printf(neutral, "waiting for %s without a timeout", j.Target)
	}
}

// Success reports the target of j is reachable.
func (r *Reporter) Success(j *Job) {
	seconds := int(math.Round(time.Since(j.startedAt).Seconds()))
	if !j.finish(model.OutcomeSuccess) {
		slog.Debug("job already finished", "service", j.Target.String(), "outcome", j.Outcome().String())
		return
	}
	r.printf(success, "%s is available after %d seconds", j.Target, seconds)
}

// Timeout reports the deadline of j has expired. A job which has finished
// already is not reported again.
func (r *Reporter) Timeout(j *Job) {
	if !j.finish(model.OutcomeTimedOut) {
		slog.Debug("job already finished", "service", j.Target.String(), "outcome", j.Outcome().String())
		return
	}
	r.printf(failure, "timeout occurred after waiting %d seconds for %s", j.Timeout, j.Target)
}

func (r *Reporter) printf(k kind, format string, args ...any) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.tags {
		if _, err := io.WriteString(r.w, k.tag()); err != nil {
			return
		}
	}
	_, _ = fmt.Fprintf(r.w, format+"\n", args...)
}
