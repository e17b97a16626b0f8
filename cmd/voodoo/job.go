package main

import (
	"fmt"
	"time"

	"github.com/Comcast/voodoo/core"

	"github.com/jsccast/yaml"
)

// Job is what to run: a source, a record, and the record's field
// attributes.
//
// In a job file, the source is either a "source" property or
// "code"/"func" and "requires" properties at the top level.
//
//	name: likes
//	code: |
//	  likes = likes.toUpperCase();
//	record:
//	  likes: tacos
//	readOnly: [name]
//	wait: 1s
type Job struct {
	Name   string
	Source *core.Source
	Record map[string]interface{}

	Fixed      []string
	ReadOnly   []string
	Unscopable []string

	// Wait is how long to wait for continuations.  Zero means
	// use the default.
	Wait time.Duration
}

// ParseJob reads a job from YAML (or JSON).
func ParseJob(bs []byte) (*Job, error) {
	var m map[string]interface{}
	if err := yaml.Unmarshal(bs, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("empty job")
	}

	j := &Job{}

	if x, have := m["name"]; have {
		s, is := x.(string)
		if !is {
			return nil, fmt.Errorf("bad name (%T)", x)
		}
		j.Name = s
	}

	var err error
	if x, have := m["source"]; have {
		j.Source, err = core.AsSource(x)
	} else {
		j.Source, err = core.AsSource(m)
	}
	if err != nil {
		return nil, err
	}

	switch vv := m["record"].(type) {
	case nil:
	case map[string]interface{}:
		j.Record = vv
	default:
		return nil, fmt.Errorf("bad record (%T)", vv)
	}

	lists := []struct {
		key string
		acc *[]string
	}{
		{"fixed", &j.Fixed},
		{"readOnly", &j.ReadOnly},
		{"unscopable", &j.Unscopable},
	}
	for _, l := range lists {
		if *l.acc, err = stringList(m[l.key]); err != nil {
			return nil, fmt.Errorf("bad %s: %w", l.key, err)
		}
		for _, field := range *l.acc {
			if _, have := j.Record[field]; !have {
				return nil, fmt.Errorf("%s field %q isn't in the record", l.key, field)
			}
		}
	}

	switch vv := m["wait"].(type) {
	case nil:
	case string:
		if j.Wait, err = time.ParseDuration(vv); err != nil {
			return nil, err
		}
	case int:
		j.Wait = time.Duration(vv) * time.Millisecond
	default:
		return nil, fmt.Errorf("bad wait (%T)", vv)
	}

	return j, nil
}

func stringList(x interface{}) ([]string, error) {
	switch vv := x.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{vv}, nil
	case []interface{}:
		acc := make([]string, 0, len(vv))
		for _, y := range vv {
			s, is := y.(string)
			if !is {
				return nil, fmt.Errorf("%T isn't a string", y)
			}
			acc = append(acc, s)
		}
		return acc, nil
	default:
		return nil, fmt.Errorf("%T isn't a list", x)
	}
}

// NewRecord makes a record from the given fields with the job's
// attributes.  The fields default to a deep copy of the job's
// record.
func (j *Job) NewRecord(fields map[string]interface{}) *core.Record {
	if fields == nil {
		fields = core.Clone(j.Record)
		if fields == nil {
			fields = make(map[string]interface{})
		}
	}

	attrs := make(map[string]core.Attrs)
	for _, f := range j.Fixed {
		attrs[f] |= core.Fixed
	}
	for _, f := range j.ReadOnly {
		attrs[f] |= core.ReadOnly
	}
	for _, f := range j.Unscopable {
		attrs[f] |= core.Unscopable
	}

	rec := core.NewRecord(fields)
	for f, a := range attrs {
		if v, have := fields[f]; have {
			rec.Define(f, v, a)
		}
	}
	return rec
}
