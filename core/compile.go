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
	"sync"

	"github.com/Comcast/voodoo/libs"

	"github.com/dop251/goja"
)

// Compiler turns sources into Bindings.
type Compiler struct {
	// Provider resolves the libraries that a Source requires.  If
	// nil, a Source with requirements can't be compiled.
	Provider libs.Provider
}

// DefaultCompiler is used by Compile.  It can't resolve libraries.
var DefaultCompiler = &Compiler{}

// Binding is a compiled fragment.
//
// A Binding is immutable and holds no reference to any record, so it
// can be invoked any number of times, concurrently, by any number of
// Engines.
type Binding struct {
	src     *Source
	body    string
	program *goja.Program

	// fns caches the wrapper function per Engine.
	fns sync.Map
}

// Body returns the fragment, which is the body of the callable if
// the source was a callable.
func (b *Binding) Body() string {
	return b.body
}

// Requires returns the names of the libraries that were compiled
// into the binding.
func (b *Binding) Requires() []string {
	acc := make([]string, len(b.src.Requires))
	copy(acc, b.src.Requires)
	return acc
}

// Compile uses the DefaultCompiler.
func Compile(ctx context.Context, src interface{}) (*Binding, error) {
	return DefaultCompiler.Compile(ctx, src)
}

// wrapSrc generates a function whose "this" is the scope for every
// free identifier in the fragment.  Library code is outside the
// "with" block, so record fields take precedence over library
// definitions.
func wrapSrc(libsSrc, body string) string {
	return fmt.Sprintf("(function() {\n%s\nwith (this) {\n%s\n}\n})", libsSrc, body)
}

// Compile makes a Binding from the given source, which can be a
// string (a fragment), a Func, a Source, or a map with "code" (or
// "func") and "requires" properties.
//
// This method can block if the Provider blocks in order to obtain
// external libraries.
func (c *Compiler) Compile(ctx context.Context, x interface{}) (*Binding, error) {
	src, err := AsSource(x)
	if err != nil {
		return nil, &CompileError{Err: err}
	}

	body := src.Code
	if src.Func {
		if body, err = FuncBody(src.Code); err != nil {
			return nil, &CompileError{Source: src.Code, Err: err}
		}
	}

	var libsSrc string
	for _, lib := range src.Requires {
		if c.Provider == nil {
			return nil, &CompileError{Source: src.Code, Err: NoLibraryProvider}
		}
		libSrc, err := c.Provider(ctx, lib)
		if err != nil {
			return nil, &CompileError{Source: src.Code, Err: err}
		}
		libsSrc += libSrc + "\n"
	}

	code := wrapSrc(libsSrc, body)

	// "with" isn't allowed in strict mode.
	p, err := goja.Compile("", code, false)
	if err != nil {
		return nil, &CompileError{Source: code, Err: err}
	}

	copied := *src
	copied.Requires = append([]string(nil), src.Requires...)

	return &Binding{
		src:     &copied,
		body:    body,
		program: p,
	}, nil
}
