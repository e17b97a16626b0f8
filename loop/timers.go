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
	"sort"
	"time"

	"github.com/dop251/goja"
)

// timer represents a continuation to be run in the future.
type timer struct {
	id    int64
	at    time.Time
	every time.Duration
	f     goja.Callable
	args  []goja.Value
	group *Group
}

// microtasks uses the runtime's own job queue, which Goja drains
// whenever the call stack becomes empty.
const microtasks = `
globalThis.queueMicrotask = function(f) {
  if (typeof f !== "function") {
    throw new TypeError("queueMicrotask: callback is not a function");
  }
  Promise.resolve().then(function() { f(); });
};
`

func (l *Loop) install() {
	l.rt.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return l.schedule(call, false)
	})
	l.rt.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return l.schedule(call, true)
	})
	l.rt.Set("setImmediate", func(call goja.FunctionCall) goja.Value {
		args := make([]goja.Value, 0, len(call.Arguments)+1)
		args = append(args, call.Argument(0), l.rt.ToValue(0))
		if 1 < len(call.Arguments) {
			args = append(args, call.Arguments[1:]...)
		}
		call.Arguments = args
		return l.schedule(call, false)
	})
	clearTimer := func(call goja.FunctionCall) goja.Value {
		l.clear(call.Argument(0).ToInteger())
		return goja.Undefined()
	}
	l.rt.Set("clearTimeout", clearTimer)
	l.rt.Set("clearInterval", clearTimer)
	l.rt.Set("clearImmediate", clearTimer)

	if _, err := l.rt.RunString(microtasks); err != nil {
		// Only a broken runtime could get us here.
		panic(err)
	}
}

// schedule implements setTimeout and setInterval.
func (l *Loop) schedule(call goja.FunctionCall, repeat bool) goja.Value {
	f, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(l.rt.NewTypeError("callback is not a function"))
	}

	ms := call.Argument(1).ToInteger()
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms) * time.Millisecond

	var args []goja.Value
	if 2 < len(call.Arguments) {
		args = append(args, call.Arguments[2:]...)
	}

	l.seq++
	t := &timer{
		id:    l.seq,
		at:    time.Now().Add(d),
		f:     f,
		args:  args,
		group: l.current,
	}
	if repeat {
		if d == 0 {
			d = time.Millisecond
		}
		t.every = d
	}

	t.group.hold()
	l.timers[t.id] = t
	l.add(t)

	l.debugf("scheduled %d in %s", t.id, d)

	return l.rt.ToValue(t.id)
}

// add inserts the timer into the backlog, which is ordered by
// ascending due time.  Timers with the same due time stay in the
// order they were added.
func (l *Loop) add(t *timer) {
	n := len(l.backlog)
	i := sort.Search(n, func(i int) bool {
		return l.backlog[i].at.After(t.at)
	})
	switch i {
	case n:
		l.backlog = append(l.backlog, t)
	default:
		l.backlog = append(l.backlog, nil)
		copy(l.backlog[i+1:], l.backlog[i:])
		l.backlog[i] = t
	}
}

// rem removes the timer from the backlog if it's there.
func (l *Loop) rem(t *timer) bool {
	for i, x := range l.backlog {
		if x == t {
			copy(l.backlog[i:], l.backlog[i+1:])
			l.backlog[len(l.backlog)-1] = nil
			l.backlog = l.backlog[:len(l.backlog)-1]
			return true
		}
	}
	return false
}

// clear cancels the timer with the given id.  Unknown ids are
// ignored.
func (l *Loop) clear(id int64) {
	t, have := l.timers[id]
	if !have {
		return
	}
	l.debugf("clear %d", id)
	delete(l.timers, id)
	if l.rem(t) {
		t.group.release()
	}
}

// fire runs every timer that is due at the given time.
func (l *Loop) fire(now time.Time) {
	for 0 < len(l.backlog) && !l.backlog[0].at.After(now) {
		t := l.backlog[0]
		l.backlog[0] = nil
		l.backlog = l.backlog[1:]

		l.debugf("firing %d (late: %s)", t.id, now.Sub(t.at))

		if 0 < t.every {
			t.at = t.at.Add(t.every)
			if t.at.Before(now) {
				t.at = now.Add(t.every)
			}
			// The timer keeps its own hold while it's in the
			// backlog, and run releases the one we add here.
			t.group.hold()
			l.add(t)
		} else {
			delete(l.timers, t.id)
		}

		// Report from within the job so the error is recorded
		// before the group can become idle.
		err := l.run(t.group, func(rt *goja.Runtime) error {
			if _, err := t.f(goja.Undefined(), t.args...); err != nil {
				l.report(t.group, err)
			}
			return nil
		})
		if err != nil {
			l.report(t.group, err)
		}
	}
}
