package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/voodoo/core"
	"github.com/Comcast/voodoo/observe"
)

func TestNewRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	src := &core.Source{Code: `n = n + 1; f = () => 1; setTimeout(() => { nope; }, 1);`}
	b, err := core.Compile(ctx, src)
	if err != nil {
		t.Fatal(err)
	}

	initial := map[string]interface{}{"n": 1, "f": 0}
	fields := map[string]interface{}{"n": 1, "f": 0}

	r := &observe.Recorder{}
	v, err := core.Invoke(ctx, b, core.NewRecord(fields), observe.Hooks(r))
	if err != nil {
		t.Fatal(err)
	}
	if err = v.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	run := NewRun("1", src, initial, v, r.Events())

	if run.Final["n"] != int64(2) {
		t.Fatalf("didn't want %#v", run.Final["n"])
	}
	if f, is := run.Final["f"].(core.Func); !is || !strings.Contains(string(f), "=> 1") {
		t.Fatalf("didn't want %#v", run.Final["f"])
	}
	if len(run.Events) != 3 {
		t.Fatalf("wanted 3 events, not %d", len(run.Events))
	}
	if len(run.Errors) != 1 || !strings.Contains(run.Errors[0], "nope") {
		t.Fatalf("didn't want %#v", run.Errors)
	}
	if got := run.Fields(); len(got) != 2 || got[0] != "f" || got[1] != "n" {
		t.Fatalf("didn't want %v", got)
	}
	if run.Started.After(run.Finished) {
		t.Fatal("finished before starting")
	}
}

func TestSafe(t *testing.T) {
	m := Safe(map[string]interface{}{
		"n": 1,
		"o": map[string]interface{}{
			"f":  func() {},
			"xs": []interface{}{1, make(chan int)},
		},
	})
	o := m["o"].(map[string]interface{})
	if _, is := o["f"].(string); !is {
		t.Fatalf("didn't want %#v", o["f"])
	}
	xs := o["xs"].([]interface{})
	if xs[0] != 1 {
		t.Fatalf("didn't want %#v", xs[0])
	}
	if _, is := xs[1].(string); !is {
		t.Fatalf("didn't want %#v", xs[1])
	}
	if Safe(nil) != nil {
		t.Fatal("didn't want a map")
	}
}
