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
	"errors"
	"fmt"
)

// Func is the source text of a callable.  Only its body is used when
// it's compiled.
type Func string

// Source is the general form of what Compile accepts.
type Source struct {
	// Code is either a fragment or, if Func is true, the text of a
	// callable.
	Code string `json:"code" yaml:"code"`

	// Func indicates that Code is a callable.
	Func bool `json:"func,omitempty" yaml:",omitempty"`

	// Requires names libraries that a libs.Provider can resolve.
	Requires []string `json:"requires,omitempty" yaml:",omitempty"`
}

// parseSource looks into the given map to try to find "code" (or
// "func") and "requires" properties.
func parseSource(vv map[string]interface{}) (*Source, error) {
	src := &Source{}

	code, haveCode := vv["code"]
	fn, haveFunc := vv["func"]
	switch {
	case haveCode && haveFunc:
		return nil, errors.New(`source has both "code" and "func"`)
	case haveFunc:
		code = fn
		src.Func = true
	case !haveCode:
		code = ""
	}
	s, is := code.(string)
	if !is {
		return nil, fmt.Errorf("bad source code (%T)", code)
	}
	src.Code = s

	switch vv := vv["requires"].(type) {
	case nil:
	case string:
		src.Requires = []string{vv}
	case []string:
		src.Requires = vv
	case []interface{}:
		src.Requires = make([]string, 0, len(vv))
		for _, x := range vv {
			s, is := x.(string)
			if !is {
				return nil, fmt.Errorf("bad library (%T)", x)
			}
			src.Requires = append(src.Requires, s)
		}
	default:
		return nil, fmt.Errorf("bad requires (%T)", vv)
	}

	return src, nil
}

// AsSource normalizes what Compile accepts.
//
// A YAML parser like gopkg.in/yaml.v2 will return
// map[interface{}]interface{}, which is correct but inconvenient, so
// that form is supported along with map[string]interface{}.
func AsSource(x interface{}) (*Source, error) {
	switch vv := x.(type) {
	case string:
		return &Source{Code: vv}, nil
	case Func:
		return &Source{Code: string(vv), Func: true}, nil
	case Source:
		return &vv, nil
	case *Source:
		if vv == nil {
			return nil, errors.New("nil source")
		}
		return vv, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			s, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("bad source key (%T)", k)
			}
			m[s] = v
		}
		return parseSource(m)
	case map[string]interface{}:
		return parseSource(vv)
	default:
		return nil, fmt.Errorf("bad source (%T)", x)
	}
}
