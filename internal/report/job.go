package report

import (
	"sync/atomic"
	"time"

	"github.com/CZERTAINLY/wait-for-it/internal/model"
)

// Job tracks waiting for a single service.
type Job struct {
	Target  model.Target
	Timeout int // seconds, 0 means no timeout

	startedAt time.Time
	outcome   atomic.Int32
}

func NewJob(target model.Target, timeout int) *Job {
	return &Job{
		Target:  target,
		Timeout: timeout,
	}
}

func (j *Job) Outcome() model.Outcome {
	return model.Outcome(j.outcome.Load())
}

func (j *Job) StartedAt() time.Time {
	return j.startedAt
}

// finish moves a pending job to o. It returns false if the job has
// finished already, the outcome never changes once set.
func (j *Job) finish(o model.Outcome) bool {
	return j.outcome.CompareAndSwap(int32(model.OutcomePending), int32(o))
}

// Batch is the set of jobs waited for in parallel.
type Batch []*Job

// Pending returns the jobs which have not finished yet. The result is a
// snapshot, a job may finish right after it was read.
func (b Batch) Pending() []*Job {
	var ret []*Job
	for _, j := range b {
		if j.Outcome() == model.OutcomePending {
			ret = append(ret, j)
		}
	}
	return ret
}
