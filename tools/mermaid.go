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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/voodoo/observe"
	"github.com/Comcast/voodoo/store"
)

type MermaidOpts struct {
	// ShowValues will add the values to each message.
	ShowValues bool `json:"showValues"`

	// MaxValue limits the length of a rendered value.
	MaxValue int `json:"maxValue,omitempty"`

	// Fragment and Record are the names of the two participants.
	Fragment string `json:"fragment,omitempty"`
	Record   string `json:"record,omitempty"`
}

var DefaultMermaidOpts = &MermaidOpts{
	ShowValues: true,
	MaxValue:   40,
	Fragment:   "fragment",
	Record:     "record",
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) sequence
// diagram for the run's events.
func Mermaid(r *store.Run, w io.Writer, opts *MermaidOpts) error {
	if opts == nil {
		opts = DefaultMermaidOpts
	}

	value := func(x interface{}) string {
		bs, err := json.Marshal(x)
		if err != nil {
			bs = []byte(fmt.Sprintf("%v", x))
		}
		s := string(bs)
		if 0 < opts.MaxValue && opts.MaxValue < len(s) {
			s = s[:opts.MaxValue] + "..."
		}
		// Mermaid doesn't like these in messages.
		s = strings.NewReplacer(`"`, `'`, ";", ",", "#", "").Replace(s)
		return s
	}

	if _, err := fmt.Fprintf(w, "sequenceDiagram\n  participant F as %s\n  participant R as %s\n",
		opts.Fragment, opts.Record); err != nil {
		return err
	}

	for _, e := range r.Events {
		var line string
		switch e.Op {
		case observe.Get:
			line = fmt.Sprintf("  F->>R: get %s", e.Field)
			if opts.ShowValues {
				line = fmt.Sprintf("  R-->>F: %s = %s", e.Field, value(e.Value))
			}
		case observe.Set:
			line = fmt.Sprintf("  F->>R: set %s", e.Field)
			if opts.ShowValues {
				line += fmt.Sprintf(" = %s (was %s)", value(e.Value), value(e.Prev))
			}
		case observe.Delete:
			line = fmt.Sprintf("  F-xR: delete %s", e.Field)
			if opts.ShowValues {
				line += fmt.Sprintf(" (was %s)", value(e.Prev))
			}
		default:
			continue
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	for _, msg := range r.Errors {
		if _, err := fmt.Fprintf(w, "  Note over F: %s\n", value(msg)); err != nil {
			return err
		}
	}

	return nil
}
