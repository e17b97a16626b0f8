package core

import (
	"context"
	"encoding/json"

	"github.com/Comcast/voodoo/loop"

	"github.com/dop251/goja"
)

// View is the live record returned by Invoke.
//
// Reading a View is transparent: it reports the record's current
// state, which continuations scheduled by the invocation keep
// updating after Invoke returns.  Writing through a View is also
// transparent in the sense that hooks don't fire; hooks only observe
// what the fragment itself does.
//
// Get, Snapshot, and MarshalJSON run on the Engine, between
// continuations, and return values detached from the runtime, so the
// caller always sees a consistent record.  Don't call them from a
// hook: hooks already run on the Engine, and they get detached values
// anyway.
type View struct {
	rec   *Record
	group *loop.Group
	loop  *loop.Loop
}

// detached runs f on the Engine.  Once the Engine has stopped,
// nothing else touches the record, so f just runs here.
func (v *View) detached(f func()) {
	err := v.loop.Do(context.Background(), nil, func(rt *goja.Runtime) error {
		f()
		return nil
	})
	if err != nil {
		f()
	}
}

// Id is a name for the invocation, unique for its Engine.
func (v *View) Id() string {
	return v.group.Id
}

// Record returns the underlying record.
func (v *View) Record() *Record {
	return v.rec
}

// Get returns the field's current value.
func (v *View) Get(field string) (x interface{}, have bool) {
	v.detached(func() {
		x, have = v.rec.Get(field)
		x = export(x)
	})
	return x, have
}

// Has reports whether the field is currently present.
func (v *View) Has(field string) bool {
	return v.rec.Has(field)
}

// Keys returns the current field names in lexical order.
func (v *View) Keys() []string {
	return v.rec.Keys()
}

// Len returns the current number of fields.
func (v *View) Len() int {
	return v.rec.Len()
}

// Snapshot makes a deep copy of the current fields.
func (v *View) Snapshot() map[string]interface{} {
	var acc map[string]interface{}
	v.detached(func() {
		acc = v.rec.Snapshot()
		for k, x := range acc {
			acc[k] = export(x)
		}
	})
	return acc
}

// MarshalJSON renders the current fields.
func (v *View) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Snapshot())
}

// Set assigns a field, subject to the field's attributes.
func (v *View) Set(field string, value interface{}) error {
	_, err := v.rec.Set(field, value)
	return err
}

// Delete removes a field, subject to the field's attributes.
// Deleting an absent field is fine.
func (v *View) Delete(field string) error {
	_, _, err := v.rec.Delete(field)
	return err
}

// Pending reports how many continuations scheduled by the invocation
// haven't run yet.  An uncleared interval stays pending.
func (v *View) Pending() int {
	return v.group.Pending()
}

// Wait blocks until the invocation has no pending continuations.
func (v *View) Wait(ctx context.Context) error {
	return v.group.Wait(ctx)
}

// Errors returns the errors thrown by the invocation's deferred
// continuations so far.
func (v *View) Errors() []error {
	return v.group.Errors()
}
