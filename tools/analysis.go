/* Copyright 2018 Comcast Cable Communications Management, LLC
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

// Package tools has utilities for looking at runs.
package tools

import (
	"sort"

	"github.com/Comcast/voodoo/observe"
	"github.com/Comcast/voodoo/store"
)

// Debug turns on some logging.
var Debug = false

// FieldStats counts the accesses to one field.
type FieldStats struct {
	Gets    int `json:"gets" yaml:"gets"`
	Sets    int `json:"sets" yaml:"sets"`
	Deletes int `json:"deletes" yaml:"deletes"`
}

// RunAnalysis summarizes how a run used its record.
type RunAnalysis struct {
	Events int                    `json:"events" yaml:"events"`
	Errors int                    `json:"errors" yaml:"errors"`
	Fields map[string]*FieldStats `json:"fields" yaml:"fields"`

	// ReadOnly fields were read but never assigned or deleted.
	ReadOnly []string `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`

	// Written fields were assigned but never read.
	Written []string `json:"written,omitempty" yaml:"written,omitempty"`

	// Untouched fields were in the initial record but never
	// accessed.
	Untouched []string `json:"untouched,omitempty" yaml:"untouched,omitempty"`

	// Removed fields were in the initial record but not in the
	// final one.
	Removed []string `json:"removed,omitempty" yaml:"removed,omitempty"`
}

// Analyze counts the accesses in the run's events.
func Analyze(r *store.Run) *RunAnalysis {
	a := &RunAnalysis{
		Events: len(r.Events),
		Errors: len(r.Errors),
		Fields: make(map[string]*FieldStats),
	}

	for _, e := range r.Events {
		fs, have := a.Fields[e.Field]
		if !have {
			fs = &FieldStats{}
			a.Fields[e.Field] = fs
		}
		switch e.Op {
		case observe.Get:
			fs.Gets++
		case observe.Set:
			fs.Sets++
		case observe.Delete:
			fs.Deletes++
		}
	}

	readOnly, written := make(map[string]bool), make(map[string]bool)
	for name, fs := range a.Fields {
		mutated := 0 < fs.Sets+fs.Deletes
		if 0 < fs.Gets && !mutated {
			readOnly[name] = true
		}
		if fs.Gets == 0 && 0 < fs.Sets {
			written[name] = true
		}
	}
	a.ReadOnly = keysToStringSlice(readOnly)
	a.Written = keysToStringSlice(written)

	untouched, removed := make(map[string]bool), make(map[string]bool)
	for name := range r.Initial {
		if _, have := a.Fields[name]; !have {
			untouched[name] = true
		}
		if _, have := r.Final[name]; !have {
			removed[name] = true
		}
	}
	a.Untouched = keysToStringSlice(untouched)
	a.Removed = keysToStringSlice(removed)

	return a
}

// keysToStringSlice returns the map's keys in lexical order.
func keysToStringSlice(m map[string]bool) []string {
	var list []string
	for key := range m {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}
