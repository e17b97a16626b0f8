/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package loop provides a cooperative, single-goroutine scheduler
// that owns a Goja runtime.
//
// Every job and every timer callback runs on the goroutine executing
// Run, one at a time, so nothing that touches the runtime needs a
// lock.  Timers are kept in a single backlog ordered by due time
// (and then by scheduling order), and one time.Timer at a time is
// used to wake the loop when the head of that backlog is due.
//
// Script code gets the usual host functions: setTimeout,
// setInterval, setImmediate, clearTimeout, clearInterval, and
// queueMicrotask.
//
// A promise rejection that is still unhandled when the job or timer
// that caused it finishes is reported like an error thrown by a
// timer callback.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
)

var (
	// NotRunning is returned when work is submitted to a loop
	// that was never started.
	NotRunning = errors.New("not running")

	// AlreadyRunning is returned by Run if the loop is already
	// running.
	AlreadyRunning = errors.New("already running")

	// Stopped is returned to anybody still waiting when the loop
	// terminates.
	Stopped = errors.New("loop stopped")
)

const (
	notRunning = int64(iota)
	running
	stopped
)

// Job is work to be performed on the loop's goroutine.
type Job func(rt *goja.Runtime) error

type job struct {
	group *Group
	f     Job
	res   chan error
}

// Loop is a cooperative scheduler for one Goja runtime.
//
// You need to Run the Loop before calling Do.
type Loop struct {
	// Debug turns on some logging.
	Debug bool

	// OnError, if not nil, is called (on the loop goroutine) with
	// errors thrown by deferred continuations.  The error is also
	// recorded on the continuation's Group.
	OnError func(g *Group, err error)

	// Classify, if not nil, is called (on the loop goroutine) to
	// transform an error from a deferred continuation before it's
	// recorded or reported.
	Classify func(err error) error

	rt      *goja.Runtime
	jobs    chan *job
	ready   chan bool
	done    chan struct{}
	state   int64
	current *Group

	// Only touched on the loop goroutine.
	backlog  []*timer
	timers   map[int64]*timer
	seq      int64
	rejected []*rejection
}

// Rejection is a promise rejection that nothing handled by the time
// the job or timer that caused it finished.
type Rejection struct {
	// Reason is the rejection value as a string.
	Reason string

	// Value is the rejection value.  Only touch it on the loop
	// goroutine.
	Value goja.Value
}

func (e *Rejection) Error() string {
	return "unhandled promise rejection: " + e.Reason
}

type rejection struct {
	p     *goja.Promise
	group *Group
}

// New makes a Loop with a fresh runtime that has the timer functions
// installed.
func New() *Loop {
	l := &Loop{
		rt:      goja.New(),
		jobs:    make(chan *job, 32),
		ready:   make(chan bool, 1),
		done:    make(chan struct{}),
		backlog: make([]*timer, 0, 8),
		timers:  make(map[int64]*timer),
	}
	l.install()
	l.rt.SetPromiseRejectionTracker(l.track)
	return l
}

// Runtime gives access to the loop's runtime.
//
// Only use the runtime before calling Run or from within a Job.
func (l *Loop) Runtime() *goja.Runtime {
	return l.rt
}

// Current returns the group of the job or timer that is executing
// now.  Only meaningful on the loop goroutine.
func (l *Loop) Current() *Group {
	return l.current
}

// IsRunning tries to report whether the Run method is currently
// executing.
func (l *Loop) IsRunning() bool {
	return atomic.LoadInt64(&l.state) == running
}

// Wait waits for Run to get going.
func (l *Loop) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-l.ready:
		l.ready <- true
		return true
	}
}

// Run processes jobs and timers in the current goroutine until the
// context is done.
//
// A Loop can only be run once.  Pending timers are discarded when
// Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt64(&l.state, notRunning, running) {
		return AlreadyRunning
	}
	l.ready <- true

LOOP:
	for {
		var (
			wake  <-chan time.Time
			timer *time.Timer
		)
		if 0 < len(l.backlog) {
			d := time.Until(l.backlog[0].at)
			l.debugf("next timer %d in %s", l.backlog[0].id, d)
			timer = time.NewTimer(d)
			wake = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			break LOOP
		case j := <-l.jobs:
			if timer != nil {
				timer.Stop()
			}
			j.res <- l.run(j.group, j.f)
		case <-wake:
			l.fire(time.Now())
		}
	}

	atomic.StoreInt64(&l.state, stopped)
	close(l.done)

	// Try to avoid leaks.
	for _, t := range l.backlog {
		t.group.release()
	}
	l.backlog = nil
	l.timers = nil

	return nil
}

// Do runs the job on the loop's goroutine and waits for it to
// finish.
//
// The job counts as pending work of the given group (which may be
// nil) while it runs, and anything it schedules is attributed to that
// group.
//
// The context only guards the submission.  Once the job has started,
// Do waits for it; a job that wants to be interruptible has to watch
// the context itself.
func (l *Loop) Do(ctx context.Context, g *Group, f Job) error {
	switch atomic.LoadInt64(&l.state) {
	case notRunning:
		if !l.Wait(time.Second) {
			return NotRunning
		}
	case stopped:
		return Stopped
	}

	j := &job{
		group: g,
		f:     f,
		res:   make(chan error, 1),
	}
	g.hold()

	select {
	case <-ctx.Done():
		g.release()
		return ctx.Err()
	case <-l.done:
		g.release()
		return Stopped
	case l.jobs <- j:
	}

	select {
	case err := <-j.res:
		return err
	case <-l.done:
		return Stopped
	}
}

// run executes f with g as the current group.  Panics are turned into
// errors so that a misbehaving job can't take down the loop.
func (l *Loop) run(g *Group, f func(rt *goja.Runtime) error) (err error) {
	prev := l.current
	l.current = g
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
		// Goja has drained its job queue by now, so whatever
		// is still rejected is unhandled.
		l.settle()
		l.current = prev
		g.release()
	}()
	return f(l.rt)
}

// report handles an error from a deferred continuation.
func (l *Loop) report(g *Group, err error) {
	if l.Classify != nil {
		err = l.Classify(err)
	}
	g.fail(err)
	if l.OnError != nil {
		l.OnError(g, err)
		return
	}
	id := ""
	if g != nil {
		id = g.Id
	}
	log.Printf("loop: continuation error (group %q): %s", id, err)
}

// track is the runtime's promise rejection tracker.
func (l *Loop) track(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		l.rejected = append(l.rejected, &rejection{
			p:     p,
			group: l.current,
		})
	case goja.PromiseRejectionHandle:
		for i, r := range l.rejected {
			if r.p == p {
				l.rejected = append(l.rejected[:i], l.rejected[i+1:]...)
				break
			}
		}
	}
}

// settle reports the rejections that are still unhandled.
func (l *Loop) settle() {
	if len(l.rejected) == 0 {
		return
	}
	rs := l.rejected
	l.rejected = nil
	for _, r := range rs {
		v := r.p.Result()
		l.report(r.group, &Rejection{
			Reason: reasonOf(v),
			Value:  v,
		})
	}
}

// reasonOf renders a rejection value, which might not cooperate.
func reasonOf(v goja.Value) (reason string) {
	if v == nil {
		return "undefined"
	}
	defer func() {
		if r := recover(); r != nil {
			reason = fmt.Sprintf("%T", v)
		}
	}()
	return v.String()
}

func (l *Loop) debugf(format string, args ...interface{}) {
	if l.Debug {
		log.Printf("loop debug "+format, args...)
	}
}
