package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/voodoo/core"
	"github.com/Comcast/voodoo/observe"
	"github.com/Comcast/voodoo/store/bolt"
)

func TestParseJob(t *testing.T) {
	job, err := ParseJob([]byte(`
name: likes
code: |
  likes = likes.toUpperCase();
requires: [util.js]
record:
  likes: tacos
  name: homer
  secret: 42
readOnly: name
fixed: [likes, name]
unscopable: [secret]
wait: 250ms
`))
	if err != nil {
		t.Fatal(err)
	}

	if job.Name != "likes" || job.Wait != 250*time.Millisecond {
		t.Fatalf("didn't want %#v", job)
	}
	if job.Source.Func || len(job.Source.Requires) != 1 || !strings.Contains(job.Source.Code, "toUpperCase") {
		t.Fatalf("didn't want %#v", job.Source)
	}

	rec := job.NewRecord(nil)
	if got, want := rec.Attrs("name"), core.Fixed|core.ReadOnly; got != want {
		t.Fatalf("name has %v", got)
	}
	if got := rec.Attrs("secret"); got != core.Unscopable {
		t.Fatalf("secret has %v", got)
	}

	// The job's record isn't touched.
	rec.Set("likes", "queso")
	if job.Record["likes"] != "tacos" {
		t.Fatal("job record changed")
	}
}

func TestParseJobErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ``},
		{"bad record", `{"code": "x", "record": [1]}`},
		{"missing fixed", `{"code": "x", "record": {}, "fixed": ["a"]}`},
		{"bad list", `{"code": "x", "readOnly": 3}`},
		{"bad wait", `{"code": "x", "wait": "soon"}`},
		{"code and func", `{"code": "x", "func": "y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJob([]byte(tt.src)); err == nil {
				t.Fatal("didn't protest")
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	c, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Timeout != DefaultConfig.Timeout {
		t.Fatalf("didn't want %s", c.Timeout)
	}

	filename := filepath.Join(t.TempDir(), "voodoo.yaml")
	src := `
extended: false
timeout: 2s
wait: 100ms
mqtt:
  broker: tcp://example.com
  port: 8883
  topic: runs:1
`
	if err = os.WriteFile(filename, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	if c, err = LoadConfig(filename); err != nil {
		t.Fatal(err)
	}
	if c.Extended || c.Timeout != 2*time.Second || c.Wait != 100*time.Millisecond {
		t.Fatalf("didn't want %#v", c)
	}
	if c.MQTT == nil || c.MQTT.Port != 8883 || c.MQTT.Topic != "runs:1" {
		t.Fatalf("didn't want %#v", c.MQTT)
	}
	// Unspecified properties keep their defaults.
	if c.LibDir != "." {
		t.Fatalf("didn't want %q", c.LibDir)
	}

	if err = os.WriteFile(filename, []byte("tacos: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err = LoadConfig(filename); err == nil {
		t.Fatal("didn't protest about an unknown property")
	}
}

func runner(t *testing.T) (*Runner, *bolt.Store, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	e := core.NewEngine()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	s, err := bolt.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err = s.Open(ctx); err != nil {
		t.Fatal(err)
	}

	r := &Runner{
		Engine:  e,
		Store:   s,
		Timeout: time.Second,
		Wait:    time.Second,
	}
	return r, s, func() {
		s.Close(ctx)
		cancel()
	}
}

func TestRunner(t *testing.T) {
	r, s, done := runner(t)
	defer done()

	heard := &observe.Recorder{}
	r.Sinks = []observe.Sink{heard}

	job, err := ParseJob([]byte(`
name: count
code: |
  n = n + 1;
  setTimeout(() => { n = n * 10; delete m; }, 10);
record:
  n: 1
  m: x
  k: 0
readOnly: [k]
`))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	b, err := core.Compile(ctx, job.Source)
	if err != nil {
		t.Fatal(err)
	}

	run, err := r.Run(ctx, job, b, nil)
	if err != nil {
		t.Fatal(err)
	}

	if run.Final["n"] != int64(20) {
		t.Fatalf("didn't want %#v", run.Final)
	}
	if _, have := run.Final["m"]; have {
		t.Fatal("m is still there")
	}
	if run.Initial["n"] != 1 {
		t.Fatalf("didn't want %#v", run.Initial)
	}
	if len(run.Events) != 5 || heard.Len() != 5 {
		t.Fatalf("wanted 5 events, not %d (%d)", len(run.Events), heard.Len())
	}
	if run.Events[0].Label != "count" {
		t.Fatalf("didn't want %s", run.Events[0].Label)
	}

	stored, err := s.GetRun(ctx, run.Id)
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil || stored.Job != "count" {
		t.Fatalf("didn't want %#v", stored)
	}

	var out bytes.Buffer
	if err = browse(ctx, s, "", &out); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != run.Id {
		t.Fatalf("didn't want %q", out.String())
	}

	out.Reset()
	if err = browse(ctx, s, run.Id, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "# Run count") {
		t.Fatalf("didn't want %q", out.String())
	}

	if err = browse(ctx, s, "nope", &out); err == nil {
		t.Fatal("didn't protest")
	}
}

func TestRunLines(t *testing.T) {
	r, s, done := runner(t)
	defer done()

	job, err := ParseJob([]byte(`{"code": "total = price * qty;"}`))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	b, err := core.Compile(ctx, job.Source)
	if err != nil {
		t.Fatal(err)
	}

	in := strings.NewReader(`{"price": 3, "qty": 2, "total": 0}
not json
{"price": 5, "qty": 5, "total": 0}
`)
	last, err := runLines(ctx, r, job, b, in)
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.Final["total"] != int64(25) {
		t.Fatalf("didn't want %#v", last)
	}

	ids, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("didn't want %v", ids)
	}
}

func TestWriteReports(t *testing.T) {
	r, _, done := runner(t)
	defer done()

	job, err := ParseJob([]byte(`{"code": "likes = 'queso';", "record": {"likes": "tacos"}}`))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	b, err := core.Compile(ctx, job.Source)
	if err != nil {
		t.Fatal(err)
	}
	run, err := r.Run(ctx, job, b, nil)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	var (
		htmlFile    = filepath.Join(dir, "run.html")
		yamlFile    = filepath.Join(dir, "run.yaml")
		mermaidFile = filepath.Join(dir, "run.mermaid")
	)
	if err = writeReports(run, htmlFile, yamlFile, mermaidFile, nil); err != nil {
		t.Fatal(err)
	}
	for _, filename := range []string{htmlFile, yamlFile, mermaidFile} {
		bs, err := os.ReadFile(filename)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Contains(bs, []byte("queso")) {
			t.Fatalf("%s: didn't want %s", filename, bs)
		}
	}
}

func TestRunnerWithLiveInterval(t *testing.T) {
	r, _, done := runner(t)
	defer done()
	r.Wait = 20 * time.Millisecond

	job, err := ParseJob([]byte(`
name: ticker
code: |
  setInterval(function() { n = n + 1; o.count = n; o.f = function() {}; }, 1);
record:
  n: 0
  o: {}
`))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	b, err := core.Compile(ctx, job.Source)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		run, err := r.Run(ctx, job, b, nil)
		if err != nil {
			t.Fatal(err)
		}
		o, is := run.Final["o"].(map[string]interface{})
		if !is {
			t.Fatalf("didn't want %#v", run.Final["o"])
		}
		if _, have := o["count"]; !have {
			continue
		}
		if o["count"] != run.Final["n"] {
			t.Fatalf("inconsistent %#v", run.Final)
		}
		if _, is := o["f"].(string); !is {
			t.Fatalf("didn't want %#v", o["f"])
		}
	}

	// Each run got its own copy of the job's record.
	if o := job.Record["o"].(map[string]interface{}); len(o) != 0 {
		t.Fatalf("job record changed: %#v", o)
	}
}
