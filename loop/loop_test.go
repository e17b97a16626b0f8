package loop

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
)

func start(t *testing.T) (*Loop, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New()
	go func() {
		if err := l.Run(ctx); err != nil {
			t.Error(err)
		}
	}()
	if !l.Wait(time.Second) {
		cancel()
		t.Fatal("loop didn't start running")
	}
	return l, cancel
}

// trace runs the given code in a job attributed to a new group, waits
// for everything the code scheduled, and returns the global "heard"
// array joined with spaces.
func trace(t *testing.T, l *Loop, code string) (string, *Group) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	g := NewGroup(l, "trace")
	err := l.Do(ctx, g, func(rt *goja.Runtime) error {
		_, err := rt.RunString("var heard = [];\n" + code)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err = g.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	var heard string
	err = l.Do(ctx, nil, func(rt *goja.Runtime) error {
		v, err := rt.RunString(`heard.join(" ")`)
		if err != nil {
			return err
		}
		heard = v.String()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return heard, g
}

func TestDoRunsOnLoop(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	var got int64
	err := l.Do(context.Background(), nil, func(rt *goja.Runtime) error {
		v, err := rt.RunString("6 * 7")
		if err != nil {
			return err
		}
		got = v.ToInteger()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Fatalf("didn't want %d", got)
	}
}

func TestDoNotRunning(t *testing.T) {
	l := New()
	err := l.Do(context.Background(), nil, func(rt *goja.Runtime) error { return nil })
	if err != NotRunning {
		t.Fatalf("surprised by %v", err)
	}
}

func TestRunTwice(t *testing.T) {
	l, cancel := start(t)
	defer cancel()
	if err := l.Run(context.Background()); err != AlreadyRunning {
		t.Fatalf("surprised by %v", err)
	}
}

func TestDoPanic(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	err := l.Do(context.Background(), nil, func(rt *goja.Runtime) error {
		panic("tacos")
	})
	if err == nil || err.Error() != "tacos" {
		t.Fatalf("surprised by %v", err)
	}

	// The loop should still be usable.
	if err = l.Do(context.Background(), nil, func(rt *goja.Runtime) error { return nil }); err != nil {
		t.Fatal(err)
	}
}

func TestTimersOrder(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	heard, _ := trace(t, l, `
setTimeout(function() { heard.push("3"); }, 60);
setTimeout(function() { heard.push("1"); }, 10);
setTimeout(function() { heard.push("2a"); }, 30);
setTimeout(function() { heard.push("2b"); }, 30);
heard.push("0");
`)
	if heard != "0 1 2a 2b 3" {
		t.Fatalf("didn't want %q", heard)
	}
}

func TestTimersArgs(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	heard, _ := trace(t, l, `
setTimeout(function(a, b) { heard.push(a + b); }, 1, "chips", "dip");
`)
	if heard != "chipsdip" {
		t.Fatalf("didn't want %q", heard)
	}
}

func TestClearTimeout(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	heard, g := trace(t, l, `
var id = setTimeout(function() { heard.push("no"); }, 10);
setTimeout(function() { heard.push("yes"); }, 20);
clearTimeout(id);
clearTimeout(12345);
`)
	if heard != "yes" {
		t.Fatalf("didn't want %q", heard)
	}
	if n := g.Pending(); n != 0 {
		t.Fatalf("pending %d", n)
	}
}

func TestInterval(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	heard, _ := trace(t, l, `
var n = 0;
var id = setInterval(function() {
  n++;
  heard.push("" + n);
  if (n == 3) {
    clearInterval(id);
  }
}, 5);
`)
	if heard != "1 2 3" {
		t.Fatalf("didn't want %q", heard)
	}
}

func TestMicrotasksBeforeTimers(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	heard, _ := trace(t, l, `
setImmediate(function() { heard.push("immediate"); });
queueMicrotask(function() { heard.push("micro"); });
Promise.resolve().then(function() { heard.push("promise"); });
heard.push("sync");
`)
	if heard != "sync micro promise immediate" {
		t.Fatalf("didn't want %q", heard)
	}
}

func TestNestedTimersStayInGroup(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	heard, g := trace(t, l, `
setTimeout(function() {
  heard.push("outer");
  setTimeout(function() { heard.push("inner"); }, 10);
}, 10);
`)
	if heard != "outer inner" {
		t.Fatalf("didn't want %q", heard)
	}
	if n := g.Pending(); n != 0 {
		t.Fatalf("pending %d", n)
	}
}

func TestContinuationErrors(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	reported := make(chan error, 1)
	l.OnError = func(g *Group, err error) {
		reported <- err
	}

	_, g := trace(t, l, `
setTimeout(function() { likes + tacos; }, 1);
`)

	errs := g.Errors()
	if len(errs) != 1 {
		t.Fatalf("wanted one error, not %d", len(errs))
	}
	if !strings.Contains(errs[0].Error(), "likes") {
		t.Fatalf("surprised by %s", errs[0])
	}

	select {
	case <-reported:
	case <-time.After(time.Second):
		t.Fatal("OnError wasn't called")
	}
}

func TestGroupWaitStopped(t *testing.T) {
	l, cancel := start(t)

	g := NewGroup(l, "forever")
	err := l.Do(context.Background(), g, func(rt *goja.Runtime) error {
		_, err := rt.RunString(`setInterval(function() {}, 1000);`)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := g.Wait(context.Background()); err != Stopped && err != nil {
		t.Fatalf("surprised by %v", err)
	}
}

func TestGroupWaitTimeout(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	g := NewGroup(l, "forever")
	err := l.Do(context.Background(), g, func(rt *goja.Runtime) error {
		_, err := rt.RunString(`setInterval(function() {}, 1000);`)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancelWait := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelWait()
	if err := g.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("surprised by %v", err)
	}
	if n := g.Pending(); n != 1 {
		t.Fatalf("pending %d", n)
	}
}

func TestUnhandledRejections(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	_, g := trace(t, l, `
queueMicrotask(function() { throw new Error("boom"); });
Promise.reject(new Error("rej"));
Promise.reject(new Error("handled")).catch(function(e) { heard.push(e.message); });
`)

	errs := g.Errors()
	if len(errs) != 2 {
		t.Fatalf("wanted two errors, not %v", errs)
	}
	var reasons []string
	for _, err := range errs {
		r, is := err.(*Rejection)
		if !is {
			t.Fatalf("surprised by %T", err)
		}
		reasons = append(reasons, r.Reason)
	}
	got := strings.Join(reasons, " ")
	if !strings.Contains(got, "boom") || !strings.Contains(got, "rej") || strings.Contains(got, "handled") {
		t.Fatalf("didn't want %q", got)
	}
}

func TestRejectionInTimer(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	_, g := trace(t, l, `
setTimeout(function() { Promise.reject("later"); }, 1);
`)

	errs := g.Errors()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "later") {
		t.Fatalf("didn't want %v", errs)
	}
}

func TestClassify(t *testing.T) {
	l, cancel := start(t)
	defer cancel()

	classified := errors.New("classified")
	l.Classify = func(err error) error {
		return classified
	}

	_, g := trace(t, l, `
setTimeout(function() { nope; }, 1);
`)

	errs := g.Errors()
	if len(errs) != 1 || errs[0] != classified {
		t.Fatalf("didn't want %v", errs)
	}
}
