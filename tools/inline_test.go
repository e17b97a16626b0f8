package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInline(t *testing.T) {
	input := `
I like %inline("tacos"), and
I also like %inline ("queso").
Both are delicious.
`
	want := `
I like TACOS, and
I also like QUESO.
Both are delicious.
`

	find := func(name string) ([]byte, error) {
		return []byte(strings.ToUpper(name)), nil
	}

	got, err := Inline([]byte(input), find)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Fatalf("got %s", got)
	}
}

func TestInlineIndents(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.js"), []byte("a = 1;\nb = 2;\n"), 0644); err != nil {
		t.Fatal(err)
	}
	job := filepath.Join(dir, "job.yaml")
	if err := os.WriteFile(job, []byte("code: |\n  %inline(\"f.js\")\nrecord: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFileWithInlines(job)
	if err != nil {
		t.Fatal(err)
	}
	if want := "code: |\n  a = 1;\n  b = 2;\nrecord: {}\n"; string(got) != want {
		t.Fatalf("got %q", got)
	}

	if _, err = Inline([]byte(`%inline("nope")`), func(string) ([]byte, error) {
		return nil, os.ErrNotExist
	}); err == nil {
		t.Fatal("didn't protest")
	}
}
