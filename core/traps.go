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
	"fmt"
	"reflect"

	"github.com/dop251/goja"
)

// traps is the per-invocation interception context behind a scope
// proxy.
//
// The proxy's target is an empty object.  Every string-keyed
// operation is answered from the Record, so the record is the only
// state, and it's the same record the caller holds.  Symbol-keyed
// operations (notably Symbol.unscopables, which "with" consults) fall
// through to the target and never reach the hooks.
type traps struct {
	rt    *goja.Runtime
	rec   *Record
	hooks *Hooks
}

func newScope(rt *goja.Runtime, rec *Record, hooks *Hooks) *goja.Object {
	t := &traps{
		rt:    rt,
		rec:   rec,
		hooks: hooks,
	}
	p := rt.NewProxy(rt.NewObject(), &goja.ProxyTrapConfig{
		Has:                      t.has,
		Get:                      t.get,
		Set:                      t.set,
		DeleteProperty:           t.deleteProperty,
		OwnKeys:                  t.ownKeys,
		GetOwnPropertyDescriptor: t.getOwnPropertyDescriptor,
	})
	return rt.ToValue(p).(*goja.Object)
}

// call runs a hook.  A panic becomes a script exception at the point
// of access.
func (t *traps) call(f func()) {
	defer func() {
		if r := recover(); r != nil {
			if v, is := r.(goja.Value); is {
				panic(v)
			}
			panic(t.rt.NewGoError(fmt.Errorf("hook: %v", r)))
		}
	}()
	f()
}

// has decides identifier resolution: only present, scopable fields
// shadow the static environment.
func (t *traps) has(target *goja.Object, field string) bool {
	return t.rec.resolvable(field)
}

func (t *traps) get(target *goja.Object, field string, receiver goja.Value) goja.Value {
	x, have := t.rec.lookup(field, t.adopt)
	if t.rec.Attrs(field)&Unscopable == 0 && t.hooks != nil {
		t.call(func() {
			t.hooks.get(field, export(x))
		})
	}
	if !have {
		return goja.Undefined()
	}
	return t.rt.ToValue(x)
}

func (t *traps) set(target *goja.Object, field string, value goja.Value, receiver goja.Value) bool {
	x := stored(value)
	prev, err := t.rec.Set(field, x)
	if err != nil {
		return false
	}
	if t.hooks != nil {
		t.call(func() {
			t.hooks.set(field, export(x), export(prev))
		})
	}
	return true
}

func (t *traps) deleteProperty(target *goja.Object, field string) bool {
	prev, had, err := t.rec.Delete(field)
	if err != nil {
		return false
	}
	if had && t.hooks != nil {
		t.call(func() {
			t.hooks.delete(field, export(prev))
		})
	}
	return true
}

func (t *traps) ownKeys(target *goja.Object) *goja.Object {
	keys := t.rec.Keys()
	acc := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		acc = append(acc, k)
	}
	return t.rt.NewArray(acc...)
}

func (t *traps) getOwnPropertyDescriptor(target *goja.Object, field string) goja.PropertyDescriptor {
	x, have := t.rec.lookup(field, t.adopt)
	if !have {
		return goja.PropertyDescriptor{}
	}
	writable := goja.FLAG_TRUE
	if t.rec.Attrs(field)&ReadOnly != 0 {
		writable = goja.FLAG_FALSE
	}
	// Always configurable: a proxy can't claim otherwise for a
	// property its target doesn't have.
	return goja.PropertyDescriptor{
		Value:        t.rt.ToValue(x),
		Writable:     writable,
		Enumerable:   goja.FLAG_TRUE,
		Configurable: goja.FLAG_TRUE,
	}
}

// stored converts a script value into what the record stores.
// Objects (including functions, arrays, and dates) are kept as script
// values so that their identity and behavior survive.  Primitives are
// stored as Go values.
func stored(v goja.Value) interface{} {
	if v == nil {
		return nil
	}
	if obj, is := v.(*goja.Object); is {
		return obj
	}
	return v.Export()
}

// adopt replaces a Go value that the runtime would present as an
// object with that object, so that every read sees the same object
// and mutations through it stick.
func (t *traps) adopt(x interface{}) (interface{}, bool) {
	if _, is := x.(goja.Value); is {
		return x, false
	}
	switch reflect.ValueOf(x).Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Struct:
		return t.rt.ToValue(x), true
	}
	return x, false
}

// export makes a Go value, detached from the runtime, from what the
// record stores.  Script functions become their source text as a
// Func.  Maps and slices are copied deeply.
//
// Must be called on the Engine's goroutine.
func export(x interface{}) interface{} {
	switch vv := x.(type) {
	case goja.Value:
		if _, is := goja.AssertFunction(vv); is {
			return Func(vv.String())
		}
		return export(vv.Export())
	case map[string]interface{}:
		acc := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			acc[k] = export(v)
		}
		return acc
	case []interface{}:
		acc := make([]interface{}, len(vv))
		for i, v := range vv {
			acc[i] = export(v)
		}
		return acc
	}
	return x
}
