// Package store persists the results of invocations.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Comcast/voodoo/core"
	"github.com/Comcast/voodoo/observe"
)

// Run is a presentation of an invocation as stored in a Store.
type Run struct {
	// Id is the id for the run.
	Id string `json:"id,omitempty"`

	// Job is an optional name for what ran.
	Job string `json:"job,omitempty" yaml:"job,omitempty"`

	Source *core.Source `json:"source,omitempty" yaml:"source,omitempty"`

	// Initial and Final are the record's fields before and after
	// the invocation (and its continuations).
	Initial map[string]interface{} `json:"initial,omitempty" yaml:"initial,omitempty"`
	Final   map[string]interface{} `json:"final" yaml:"final"`

	Events []*observe.Event `json:"events,omitempty" yaml:"events,omitempty"`

	// Errors are the errors thrown by the invocation's
	// continuations.
	Errors []string `json:"errors,omitempty" yaml:"errors,omitempty"`

	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
}

// NewRun gathers what happened in an invocation.
//
// Values that can't be rendered as JSON (like Go functions) are
// replaced by strings.  The View's snapshot is taken on the Engine,
// so this works even if the invocation still has pending
// continuations.
func NewRun(id string, src *core.Source, initial map[string]interface{}, v *core.View, events []*observe.Event) *Run {
	r := &Run{
		Id:       id,
		Source:   src,
		Initial:  Safe(initial),
		Final:    Safe(v.Snapshot()),
		Finished: time.Now().UTC(),
	}
	for _, err := range v.Errors() {
		r.Errors = append(r.Errors, err.Error())
	}
	for _, e := range events {
		var safe observe.Event
		if err := json.Unmarshal(e.JSON(), &safe); err != nil {
			safe = observe.Event{Seq: e.Seq, Op: e.Op, Field: e.Field, At: e.At}
		}
		r.Events = append(r.Events, &safe)
	}
	if 0 < len(r.Events) {
		r.Started = r.Events[0].At
	} else {
		r.Started = r.Finished
	}
	return r
}

// Safe makes a deep copy of the map with values that can't be
// rendered as JSON replaced by strings.
func Safe(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	acc := make(map[string]interface{}, len(m))
	for k, v := range m {
		acc[k] = safe(v)
	}
	return acc
}

func safe(x interface{}) interface{} {
	switch vv := x.(type) {
	case map[string]interface{}:
		return Safe(vv)
	case []interface{}:
		acc := make([]interface{}, len(vv))
		for i, v := range vv {
			acc[i] = safe(v)
		}
		return acc
	}
	if _, err := json.Marshal(x); err != nil {
		return fmt.Sprintf("%v", x)
	}
	return x
}

// Fields returns the names of the final fields in lexical order.
func (r *Run) Fields() []string {
	acc := make([]string, 0, len(r.Final))
	for k := range r.Final {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}

// Store is a persistence interface for Runs.
type Store interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	WriteRun(ctx context.Context, r *Run) error

	// GetRun returns nil if there's no run with that id.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the ids of the stored runs in lexical
	// order.
	ListRuns(ctx context.Context) ([]string, error)

	RemRun(ctx context.Context, id string) error
}
