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

// Package core runs fragments of ECMAScript whose free identifiers
// resolve against the fields of a Record, and reports every read,
// assignment, and deletion of those fields to Hooks.
//
// A fragment is compiled once into a Binding:
//
//	b, err := core.Compile(ctx, `total = price * qty; delete draft;`)
//
// and then invoked any number of times against different Records:
//
//	rec := core.NewRecord(map[string]interface{}{
//		"price": 3, "qty": 2, "draft": true,
//	})
//	v, err := engine.Invoke(ctx, b, rec, &core.Hooks{
//		Set: func(field string, value, prev interface{}) { ... },
//	})
//
// The fragment runs inside a "with" statement whose object is a
// proxy for the Record, so an identifier that names a field is that
// field, and anything else falls back to the static environment
// (globals and any required libraries).  The proxy applies each
// mutation to the Record before calling the corresponding hook.
//
// A fragment can schedule continuations (setTimeout, setInterval,
// promises, queueMicrotask).  Those run later on the same Engine,
// against the same proxy, and their accesses are reported just like
// the synchronous ones.  The View that Invoke returns therefore
// keeps changing after Invoke returns.
//
// Each assignment produces exactly one Set hook call, which gets both
// the new and the previous value.  A compound assignment like
// "n += 1" also reads the field, so it produces a Get first.
package core
