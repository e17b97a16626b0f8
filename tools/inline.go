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

package tools

import (
	"bytes"
	"io/ioutil"
	"log"
	"path/filepath"
	"regexp"
)

var inlinePattern = regexp.MustCompile(`%inline *\("([^"]*)"\)`)

// Inline replaces '%inline("NAME")' with f(NAME).
//
// Lines of the replacement after the first are indented to the
// column of the directive, so a fragment can be inlined into a YAML
// block scalar:
//
//	code: |
//	  %inline("fragment.js")
func Inline(bs []byte, f func(string) ([]byte, error)) ([]byte, error) {
	acc := make([]byte, 0, len(bs))
	i := 0
	for _, m := range inlinePattern.FindAllSubmatchIndex(bs, -1) {
		start, end := m[0], m[1]
		name := string(bs[m[2]:m[3]])

		replacement, err := f(name)
		if err != nil {
			return nil, err
		}

		lineStart := bytes.LastIndexByte(bs[:start], '\n') + 1
		indent := leadingSpace(bs[lineStart:start])
		replacement = bytes.TrimRight(replacement, "\n")
		replacement = bytes.ReplaceAll(replacement, []byte("\n"), append([]byte("\n"), indent...))

		if Debug {
			log.Printf("tools debug inlining %s (%d bytes)", name, len(replacement))
		}

		acc = append(acc, bs[i:start]...)
		acc = append(acc, replacement...)
		i = end
	}
	acc = append(acc, bs[i:]...)

	return acc, nil
}

// leadingSpace returns the prefix of spaces and tabs.
func leadingSpace(bs []byte) []byte {
	n := 0
	for n < len(bs) && (bs[n] == ' ' || bs[n] == '\t') {
		n++
	}
	return bs[:n]
}

// ReadFileWithInlines is a replacement for ioutil.ReadFile that
// Inline()s files relative to the filename's directory.
func ReadFileWithInlines(filename string) ([]byte, error) {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(filename)
	f := func(name string) ([]byte, error) {
		return ioutil.ReadFile(filepath.Join(dir, name))
	}

	return Inline(bs, f)
}
