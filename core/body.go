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
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// FuncBody extracts the body of the callable whose source is given.
//
// The callable can be a function expression, a function declaration,
// or an arrow function.  Its parameters are ignored.  An arrow
// function with an expression body yields that expression as a
// statement.
//
// This function works on offsets reported by the parser rather than
// on a rewritten syntax tree since Goja can't (easily) print an AST.
func FuncBody(src string) (string, error) {
	// Parenthesize so that an anonymous function expression is
	// acceptable as a statement.
	wrapped := "(" + src + "\n)"

	p, err := parser.ParseFile(nil, "", wrapped, 0)
	if err != nil {
		// Maybe it's a named function declaration, which can't
		// be parenthesized if it's followed by anything.
		if p, err = parser.ParseFile(nil, "", src, 0); err != nil {
			return "", err
		}
		wrapped = src
	}

	if len(p.Body) != 1 {
		return "", fmt.Errorf("source has %d statements, not one callable", len(p.Body))
	}

	var fn ast.Node
	switch vv := p.Body[0].(type) {
	case *ast.ExpressionStatement:
		fn = vv.Expression
	case *ast.FunctionDeclaration:
		fn = vv.Function
	default:
		return "", fmt.Errorf("source is a %T, not a callable", vv)
	}

	// Offsets are 1-based.
	slice := func(from, to int) string {
		return wrapped[from-1 : to-1]
	}

	switch vv := fn.(type) {
	case *ast.FunctionLiteral:
		b := vv.Body
		return slice(int(b.LeftBrace)+1, int(b.RightBrace)), nil
	case *ast.ArrowFunctionLiteral:
		switch body := vv.Body.(type) {
		case *ast.BlockStatement:
			return slice(int(body.LeftBrace)+1, int(body.RightBrace)), nil
		case *ast.ExpressionBody:
			e := body.Expression
			return strings.TrimSpace(slice(int(e.Idx0()), int(e.Idx1()))) + ";", nil
		default:
			return "", fmt.Errorf("unsupported arrow function body %T", body)
		}
	default:
		return "", fmt.Errorf("source is a %T, not a callable", vv)
	}
}
