package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"io/ioutil"
	"strings"

	"github.com/Comcast/voodoo/store"

	"github.com/jsccast/yaml"
	md "github.com/russross/blackfriday/v2"
	yaml2 "gopkg.in/yaml.v2"
)

// RenderRunMarkdown writes a Markdown report for the run.
func RenderRunMarkdown(r *store.Run, out io.Writer) error {
	var buf bytes.Buffer
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(&buf, format+"\n", args...)
	}

	title := r.Id
	if r.Job != "" {
		title = r.Job + " " + r.Id
	}
	f("# Run %s\n", title)

	if !r.Started.IsZero() {
		f("Started %s, finished %s.\n", r.Started.Format("2006-01-02T15:04:05.000Z07:00"),
			r.Finished.Format("2006-01-02T15:04:05.000Z07:00"))
	}

	if r.Source != nil {
		f("## Source\n")
		if 0 < len(r.Source.Requires) {
			f("Requires %s.\n", strings.Join(r.Source.Requires, ", "))
		}
		f("```javascript\n%s\n```\n", strings.TrimSpace(r.Source.Code))
	}

	if 0 < len(r.Events) {
		f("## Events\n")
		f("| seq | op | field | value | previous |")
		f("|---:|---|---|---|---|")
		for _, e := range r.Events {
			f("| %d | %s | `%s` | %s | %s |", e.Seq, e.Op, e.Field, cell(e.Value), cell(e.Prev))
		}
		f("")
	}

	a := Analyze(r)
	if 0 < len(a.Fields) {
		f("## Fields\n")
		f("| field | gets | sets | deletes |")
		f("|---|---:|---:|---:|")
		for _, name := range keys(a.Fields) {
			fs := a.Fields[name]
			f("| `%s` | %d | %d | %d |", name, fs.Gets, fs.Sets, fs.Deletes)
		}
		f("")
	}

	f("## Record\n")
	js, err := json.MarshalIndent(r.Final, "", "  ")
	if err != nil {
		return err
	}
	f("```json\n%s\n```\n", js)

	if 0 < len(r.Errors) {
		f("## Errors\n")
		for _, msg := range r.Errors {
			f("1. `%s`", strings.Replace(msg, "`", "'", -1))
		}
		f("")
	}

	_, err = out.Write(buf.Bytes())
	return err
}

// cell renders a value for a Markdown table.
func cell(x interface{}) string {
	if x == nil {
		return ""
	}
	js, err := json.Marshal(x)
	if err != nil {
		js = []byte(fmt.Sprintf("%v", x))
	}
	s := strings.NewReplacer("|", `\|`, "`", "'").Replace(string(js))
	return "`" + s + "`"
}

func keys(m map[string]*FieldStats) []string {
	acc := make(map[string]bool, len(m))
	for k := range m {
		acc[k] = true
	}
	return keysToStringSlice(acc)
}

// RenderRunHTML writes the run's Markdown report as HTML.
func RenderRunHTML(r *store.Run, out io.Writer) error {
	var buf bytes.Buffer
	if err := RenderRunMarkdown(r, &buf); err != nil {
		return err
	}
	_, err := out.Write(md.Run(buf.Bytes()))
	return err
}

// RenderRunPage writes a complete HTML page for the run.
func RenderRunPage(r *store.Run, out io.Writer, cssFiles []string) error {
	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>Run %s</title>
`, html.EscapeString(r.Id))

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
`)

	if err := RenderRunHTML(r, out); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, `
  </body>
</html>
`)

	return err
}

// RenderRunYAML writes the run as YAML.
func RenderRunYAML(r *store.Run, out io.Writer) error {
	bs, err := yaml2.Marshal(r)
	if err != nil {
		return err
	}
	_, err = out.Write(bs)
	return err
}

// ReadRun reads a run from a file that's either JSON or YAML.
//
// The data goes through JSON so that the Run's JSON field names
// apply.
func ReadRun(filename string) (*store.Run, error) {
	bs, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var x interface{}
	if err = yaml.Unmarshal(bs, &x); err != nil {
		return nil, err
	}
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var r store.Run
	if err = json.Unmarshal(js, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ReadAndRenderRunPage reads a run and then writes it as an HTML page.
func ReadAndRenderRunPage(filename string, cssFiles []string, out io.Writer) error {
	r, err := ReadRun(filename)
	if err != nil {
		return err
	}
	return RenderRunPage(r, out, cssFiles)
}
