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

package loop

import (
	"context"
	"sync"
)

// Group tracks the outstanding work that belongs to one unit of
// execution: the synchronous job that started it and every timer
// scheduled (directly or transitively) from that job.
//
// Errors thrown by the group's deferred continuations are collected
// here instead of being returned to anybody.
type Group struct {
	Id string

	sync.Mutex
	pending int
	errs    []error
	waiters []chan struct{}
	stopped <-chan struct{}
}

// NewGroup makes a group attached to the given loop.  A nil loop is
// fine for a group that will never see timers.
func NewGroup(l *Loop, id string) *Group {
	g := &Group{
		Id: id,
	}
	if l != nil {
		g.stopped = l.done
	}
	return g
}

func (g *Group) hold() {
	if g == nil {
		return
	}
	g.Lock()
	g.pending++
	g.Unlock()
}

func (g *Group) release() {
	if g == nil {
		return
	}
	g.Lock()
	if 0 < g.pending {
		g.pending--
	}
	if g.pending == 0 {
		for _, c := range g.waiters {
			close(c)
		}
		g.waiters = nil
	}
	g.Unlock()
}

func (g *Group) fail(err error) {
	if g == nil {
		return
	}
	g.Lock()
	g.errs = append(g.errs, err)
	g.Unlock()
}

// Pending reports the number of outstanding jobs and timers.
func (g *Group) Pending() int {
	g.Lock()
	defer g.Unlock()
	return g.pending
}

// Errors returns a copy of the errors reported by the group's
// deferred continuations so far.
func (g *Group) Errors() []error {
	g.Lock()
	defer g.Unlock()
	acc := make([]error, len(g.errs))
	copy(acc, g.errs)
	return acc
}

// Wait blocks until the group has no pending work, the context is
// done, or the loop stops.
//
// An interval that is never cleared keeps its group pending forever,
// so give the context a deadline in that case.
func (g *Group) Wait(ctx context.Context) error {
	g.Lock()
	if g.pending == 0 {
		g.Unlock()
		return nil
	}
	c := make(chan struct{})
	g.waiters = append(g.waiters, c)
	g.Unlock()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.stopped:
		return Stopped
	}
}
