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

package core

import (
	"sort"
	"sync"
)

// Attrs are per-field constraints.
type Attrs uint8

const (
	// Fixed fields can't be deleted.
	Fixed Attrs = 1 << iota

	// ReadOnly fields can't be assigned.
	ReadOnly

	// Unscopable fields don't take part in identifier resolution.
	// A fragment can still get at them via "this".
	Unscopable
)

// Record is the data that a fragment's free identifiers resolve
// against.
//
// The field map given to NewRecord is used directly, so mutations
// made by an invocation show up in that map.  Since those mutations
// happen on an Engine's goroutine, concurrent readers should use a
// View instead of reading that map.
//
// A field that a fragment holds as an object (including arrays,
// dates, functions, and Go maps, slices, and structs it has read) is
// stored as a goja.Value so that it keeps its identity.  Such values
// are only safe to touch on the Engine's goroutine, which is why the
// Record's Get and Snapshot return stored values as they are while a
// View's return detached Go values.
type Record struct {
	sync.RWMutex
	fields map[string]interface{}
	attrs  map[string]Attrs
}

// NewRecord makes a Record around the given fields, which may be nil.
func NewRecord(fields map[string]interface{}) *Record {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	return &Record{
		fields: fields,
		attrs:  make(map[string]Attrs),
	}
}

// Define sets the field's value and attributes without any checks.
func (r *Record) Define(field string, value interface{}, attrs Attrs) *Record {
	r.Lock()
	r.fields[field] = value
	if attrs == 0 {
		delete(r.attrs, field)
	} else {
		r.attrs[field] = attrs
	}
	r.Unlock()
	return r
}

// Attrs returns the field's attributes.
func (r *Record) Attrs(field string) Attrs {
	r.RLock()
	defer r.RUnlock()
	return r.attrs[field]
}

// Get returns the field's stored value.
func (r *Record) Get(field string) (interface{}, bool) {
	r.RLock()
	x, have := r.fields[field]
	r.RUnlock()
	return x, have
}

// Has reports whether the field is present.
func (r *Record) Has(field string) bool {
	_, have := r.Get(field)
	return have
}

// Keys returns the field names in lexical order.
func (r *Record) Keys() []string {
	r.RLock()
	acc := make([]string, 0, len(r.fields))
	for k := range r.fields {
		acc = append(acc, k)
	}
	r.RUnlock()
	sort.Strings(acc)
	return acc
}

// Len returns the number of fields.
func (r *Record) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.fields)
}

// Snapshot makes a shallow copy of the stored fields.
func (r *Record) Snapshot() map[string]interface{} {
	r.RLock()
	acc := make(map[string]interface{}, len(r.fields))
	for k, v := range r.fields {
		acc[k] = v
	}
	r.RUnlock()
	return acc
}

// lookup is Get for the Engine.  The adopt function can replace the
// stored value, for example with the object the runtime presents for
// it.
func (r *Record) lookup(field string, adopt func(interface{}) (interface{}, bool)) (interface{}, bool) {
	r.Lock()
	defer r.Unlock()
	x, have := r.fields[field]
	if !have {
		return nil, false
	}
	if y, changed := adopt(x); changed {
		r.fields[field] = y
		x = y
	}
	return x, true
}

// Clone copies the maps and slices (of interface{}) in the given
// fields deeply.  Use it to give each invocation its own copy of
// nested data.  The fields shouldn't contain script values.
func Clone(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}
	acc := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		acc[k] = cloneValue(v)
	}
	return acc
}

func cloneValue(x interface{}) interface{} {
	switch vv := x.(type) {
	case map[string]interface{}:
		return Clone(vv)
	case []interface{}:
		acc := make([]interface{}, len(vv))
		for i, v := range vv {
			acc[i] = cloneValue(v)
		}
		return acc
	}
	return x
}

// Set assigns the field unless it's ReadOnly.  The previous value is
// returned.
func (r *Record) Set(field string, value interface{}) (interface{}, error) {
	r.Lock()
	defer r.Unlock()
	if r.attrs[field]&ReadOnly != 0 {
		return nil, &MutationRejected{Field: field, Op: "set"}
	}
	prev := r.fields[field]
	r.fields[field] = value
	return prev, nil
}

// Delete removes the field unless it's Fixed.  The previous value is
// returned along with whether the field was actually present.
func (r *Record) Delete(field string) (interface{}, bool, error) {
	r.Lock()
	defer r.Unlock()
	prev, have := r.fields[field]
	if !have {
		return nil, false, nil
	}
	if r.attrs[field]&Fixed != 0 {
		return prev, true, &MutationRejected{Field: field, Op: "delete"}
	}
	delete(r.fields, field)
	delete(r.attrs, field)
	return prev, true, nil
}

// resolvable reports whether an identifier should resolve to the
// field.
func (r *Record) resolvable(field string) bool {
	r.RLock()
	defer r.RUnlock()
	if _, have := r.fields[field]; !have {
		return false
	}
	return r.attrs[field]&Unscopable == 0
}
