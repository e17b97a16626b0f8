package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Comcast/voodoo/core"
	"github.com/Comcast/voodoo/observe"
	"github.com/Comcast/voodoo/store"
)

// Runner invokes jobs and keeps what happened.
type Runner struct {
	Engine *core.Engine

	// Store defaults to a NoopStore.
	Store store.Store

	// Sinks get every event.
	Sinks []observe.Sink

	Timeout time.Duration
	Wait    time.Duration
}

// runId makes ids that sort chronologically.
func runId(invocation string) string {
	return time.Now().UTC().Format("20060102T150405.000000000") + "-" + invocation
}

// Run invokes the binding against a record made from the given
// fields (or the job's record) and waits for its continuations.
func (r *Runner) Run(ctx context.Context, job *Job, b *core.Binding, fields map[string]interface{}) (*store.Run, error) {
	rec := job.NewRecord(fields)
	// Copied deeply since the invocation can change nested data.
	initial := store.Safe(core.Clone(rec.Snapshot()))

	recorder := &observe.Recorder{}
	sinks := append([]observe.Sink{recorder}, r.Sinks...)
	hooks := observe.Labeled(job.Name, sinks...)

	started := time.Now().UTC()

	invokeCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	v, err := r.Engine.Invoke(invokeCtx, b, rec, hooks)
	cancel()
	if err != nil {
		return nil, err
	}

	wait := job.Wait
	if wait == 0 {
		wait = r.Wait
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	err = v.Wait(waitCtx)
	cancel()
	switch err {
	case nil:
	case context.DeadlineExceeded:
		// The View's snapshot is taken between continuations,
		// so the Run is consistent anyway.
		log.Printf("invocation %s still has %d pending continuations", v.Id(), v.Pending())
	default:
		return nil, err
	}

	run := store.NewRun(runId(v.Id()), job.Source, initial, v, recorder.Events())
	run.Job = job.Name
	run.Started = started

	logf("run %s: %d events, %d errors", run.Id, len(run.Events), len(run.Errors))

	s := r.Store
	if s == nil {
		s = &store.NoopStore{}
	}
	if err = s.WriteRun(ctx, run); err != nil {
		return run, fmt.Errorf("couldn't store run %s: %w", run.Id, err)
	}

	return run, nil
}
