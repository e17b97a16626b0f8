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

// Package observe turns hook calls into Events and sends them
// places.
//
// Sinks are called on an Engine's loop, so a Sink shouldn't block.
package observe

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Comcast/voodoo/core"
)

// Op names the kind of field access.
type Op string

const (
	Get    Op = "get"
	Set    Op = "set"
	Delete Op = "delete"
)

// Event reports one field access by a fragment.
type Event struct {
	// Label is an optional name for the source of the event (see
	// Labeled).
	Label string `json:"label,omitempty" yaml:",omitempty"`

	// Seq orders the events from one set of Hooks.  The first
	// event is 1.
	Seq int64 `json:"seq" yaml:"seq"`

	Op    Op     `json:"op" yaml:"op"`
	Field string `json:"field" yaml:"field"`

	// Value is the value read or assigned.  Not used for Delete.
	Value interface{} `json:"value,omitempty" yaml:",omitempty"`

	// Prev is the value before an assignment or a deletion.
	Prev interface{} `json:"prev,omitempty" yaml:",omitempty"`

	At time.Time `json:"at" yaml:"at"`
}

func (e *Event) String() string {
	switch e.Op {
	case Set:
		return fmt.Sprintf("%d %s %s %v (was %v)", e.Seq, e.Op, e.Field, e.Value, e.Prev)
	case Delete:
		return fmt.Sprintf("%d %s %s (was %v)", e.Seq, e.Op, e.Field, e.Prev)
	default:
		return fmt.Sprintf("%d %s %s %v", e.Seq, e.Op, e.Field, e.Value)
	}
}

// JSON renders the event.  A value that can't be rendered as JSON
// (like a function) is rendered as a string instead.
func (e *Event) JSON() []byte {
	js, err := json.Marshal(e)
	if err == nil {
		return js
	}
	safe := *e
	safe.Value = fmt.Sprintf("%v", e.Value)
	safe.Prev = fmt.Sprintf("%v", e.Prev)
	if js, err = json.Marshal(&safe); err != nil {
		// Shouldn't happen.
		return []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return js
}

// Sink receives Events.
type Sink interface {
	Observe(e *Event)
}

// SinkFunc is a function that's a Sink.
type SinkFunc func(e *Event)

func (f SinkFunc) Observe(e *Event) {
	f(e)
}

// Tee sends each Event to every Sink in order.
type Tee []Sink

func (t Tee) Observe(e *Event) {
	for _, s := range t {
		if s != nil {
			s.Observe(e)
		}
	}
}

// Hooks makes core.Hooks that report to the given sinks.
func Hooks(sinks ...Sink) *core.Hooks {
	return Labeled("", sinks...)
}

// Labeled makes core.Hooks that report to the given sinks with each
// Event's Label set to the given label.
//
// The Hooks number their events, so use a new set of Hooks for each
// invocation to get per-invocation sequence numbers.
func Labeled(label string, sinks ...Sink) *core.Hooks {
	var (
		seq  int64
		sink = Tee(sinks)
		emit = func(op Op, field string, value, prev interface{}) {
			sink.Observe(&Event{
				Label: label,
				Seq:   atomic.AddInt64(&seq, 1),
				Op:    op,
				Field: field,
				Value: value,
				Prev:  prev,
				At:    time.Now().UTC(),
			})
		}
	)
	return &core.Hooks{
		Get: func(field string, value interface{}) {
			emit(Get, field, value, nil)
		},
		Set: func(field string, value, prev interface{}) {
			emit(Set, field, value, prev)
		},
		Delete: func(field string, prev interface{}) {
			emit(Delete, field, nil, prev)
		},
	}
}

// Recorder is a Sink that remembers what it hears.
type Recorder struct {
	sync.Mutex
	events []*Event
}

func (r *Recorder) Observe(e *Event) {
	r.Lock()
	r.events = append(r.events, e)
	r.Unlock()
}

// Events returns a copy of what's been heard so far.
func (r *Recorder) Events() []*Event {
	r.Lock()
	defer r.Unlock()
	acc := make([]*Event, len(r.events))
	copy(acc, r.events)
	return acc
}

// Len reports how many events have been heard.
func (r *Recorder) Len() int {
	r.Lock()
	defer r.Unlock()
	return len(r.events)
}

// Logger is a Sink that writes each Event as a line of JSON.
type Logger struct {
	// Logger defaults to the standard logger.
	Logger *log.Logger

	// Ops, if not empty, limits what's logged.
	Ops []Op
}

func (l *Logger) Observe(e *Event) {
	if 0 < len(l.Ops) {
		wanted := false
		for _, op := range l.Ops {
			if op == e.Op {
				wanted = true
				break
			}
		}
		if !wanted {
			return
		}
	}
	if l.Logger == nil {
		log.Printf("%s", e.JSON())
		return
	}
	l.Logger.Printf("%s", e.JSON())
}
