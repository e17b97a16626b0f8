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
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/Comcast/voodoo/libs"
	"github.com/Comcast/voodoo/loop"

	"github.com/dop251/goja"
)

// Engine runs Bindings.
//
// An Engine owns one Goja runtime, which is driven by one
// cooperative loop.  Every invocation, and every continuation an
// invocation schedules, runs on that loop, one at a time.
// Invocations share the runtime's global object (as scripts in one
// realm do) but nothing else.  In particular, assigning to an
// identifier that is neither a field nor an existing global creates
// a global (the fragment isn't strict), and later invocations see
// it.  Records are isolated from each other; implicit globals are
// not.
//
// Set the exported fields before calling Start.
type Engine struct {
	// Extended adds some additional globals (see
	// libs.InstallExtended).
	Extended bool

	// Testing exposes some capabilities only useful for tests
	// (see libs.InstallTesting).
	Testing bool

	// Debug turns on some logging.
	Debug bool

	// OnError, if not nil, gets errors thrown by deferred
	// continuations.  Those errors are also available from the
	// invocation's View.
	OnError func(invocation string, err error)

	loop    *loop.Loop
	cancel  context.CancelFunc
	started int32
	count   int64
}

// NewEngine makes a new Engine, which needs to be Started.
func NewEngine() *Engine {
	return &Engine{
		loop: loop.New(),
	}
}

// Start launches the Engine's loop in a new goroutine.  The loop
// stops when the given context is done or when Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&e.started, 0, 1) {
		return loop.AlreadyRunning
	}

	rt := e.loop.Runtime()
	if e.Extended {
		libs.InstallExtended(rt)
	}
	if e.Testing {
		libs.InstallTesting(rt)
	}

	e.loop.Debug = e.Debug
	e.loop.Classify = classifyContinuation
	e.loop.OnError = func(g *loop.Group, err error) {
		id := ""
		if g != nil {
			id = g.Id
		}
		if e.OnError != nil {
			e.OnError(id, err)
			return
		}
		log.Printf("invocation %s continuation error: %s", id, err)
	}

	ctx, e.cancel = context.WithCancel(ctx)
	go func() {
		if err := e.loop.Run(ctx); err != nil {
			log.Printf("engine loop error: %s", err)
		}
	}()

	return nil
}

// Stop terminates the Engine's loop.  Pending continuations are
// discarded.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) debugf(format string, args ...interface{}) {
	if e.Debug {
		log.Printf("engine debug "+format, args...)
	}
}

// function gets the binding's wrapper function for this Engine.
// The Binding holds the cache, so it goes away with the Binding.
func (e *Engine) function(rt *goja.Runtime, b *Binding) (goja.Callable, error) {
	if f, have := b.fns.Load(e); have {
		return f.(goja.Callable), nil
	}
	v, err := rt.RunProgram(b.program)
	if err != nil {
		return nil, err
	}
	f, is := goja.AssertFunction(v)
	if !is {
		return nil, fmt.Errorf("internal error: binding program gave a %T", v.Export())
	}
	b.fns.Store(e, f)
	return f, nil
}

// Invoke runs the binding's fragment with the given record as the
// scope for its free identifiers.
//
// A new scope proxy is made for each call.  The hooks (which can be
// nil) see every get, set, and delete of a record field that the
// fragment performs, including those performed later by
// continuations the fragment schedules.
//
// The returned View stays live: those continuations keep mutating
// the record after Invoke returns.  Use View.Wait to wait for them.
//
// If the context is done before the synchronous part of the
// fragment finishes, the fragment is interrupted and Invoke returns
// Interrupted.  Continuations are not affected by the context.
func (e *Engine) Invoke(ctx context.Context, b *Binding, rec *Record, hooks *Hooks) (*View, error) {
	if b == nil {
		return nil, fmt.Errorf("nil binding")
	}
	if rec == nil {
		rec = NewRecord(nil)
	}

	id := fmt.Sprintf("%d", atomic.AddInt64(&e.count, 1))
	v := &View{
		rec:   rec,
		group: loop.NewGroup(e.loop, id),
		loop:  e.loop,
	}

	e.debugf("invoke %s", id)

	err := e.loop.Do(ctx, v.group, func(rt *goja.Runtime) error {
		f, err := e.function(rt, b)
		if err != nil {
			return err
		}

		scope := newScope(rt, rec, hooks)

		// Interrupt the runtime if the context is done while
		// we're still running, and make sure the interrupt
		// can't leak into anything that runs later.
		var (
			finished    = make(chan struct{})
			interrupter sync.WaitGroup
		)
		interrupter.Add(1)
		go func() {
			defer interrupter.Done()
			select {
			case <-ctx.Done():
				rt.Interrupt(InterruptedMessage)
			case <-finished:
			}
		}()

		_, err = f(scope)

		close(finished)
		interrupter.Wait()
		rt.ClearInterrupt()

		return classify(err)
	})
	if err != nil {
		return nil, err
	}

	return v, nil
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// DefaultEngine returns an Engine, started on first use, that runs
// until the process exits.
func DefaultEngine() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = NewEngine()
		if err := defaultEngine.Start(context.Background()); err != nil {
			panic(err)
		}
	})
	return defaultEngine
}

// Invoke uses the DefaultEngine.
func Invoke(ctx context.Context, b *Binding, rec *Record, hooks *Hooks) (*View, error) {
	return DefaultEngine().Invoke(ctx, b, rec, hooks)
}
