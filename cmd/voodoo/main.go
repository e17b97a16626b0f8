// Command voodoo runs a fragment against a record and reports every
// field access.
//
//	voodoo [flags] JOBFILE
//
// Events are printed to stdout as JSON lines.  They can also be
// published to an MQTT broker (-mqtt) and streamed to WebSocket
// clients (-ws).  Each run can be stored in a bolt file (-db) and
// rendered as HTML (-html), YAML (-yaml), or a Mermaid sequence
// diagram (-mermaid).
//
// With -stdin, the job's fragment runs once for each record (a JSON
// object per line) read from stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/Comcast/voodoo/core"
	"github.com/Comcast/voodoo/libs"
	"github.com/Comcast/voodoo/observe"
	"github.com/Comcast/voodoo/store"
	"github.com/Comcast/voodoo/store/bolt"
	"github.com/Comcast/voodoo/tools"
)

var verbose = false

func logf(format string, args ...interface{}) {
	if verbose {
		log.Printf(format, args...)
	}
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.LUTC)
}

func main() {

	var (
		configFile  = flag.String("c", "", "optional configuration filename (YAML)")
		libDir      = flag.String("i", "", "directory containing libraries (overrides the configuration)")
		useMQTT     = flag.Bool("mqtt", false, "publish events to the configured MQTT broker")
		wsAddr      = flag.String("ws", "", "serve events to WebSocket clients at this address (path /events)")
		linger      = flag.Duration("linger", 0, "keep serving WebSocket clients this long after running")
		dbFile      = flag.String("db", "", "optional bolt filename for runs")
		htmlFile    = flag.String("html", "", "write an HTML report of the (last) run to this file")
		yamlFile    = flag.String("yaml", "", "write the (last) run as YAML to this file")
		mermaidFile = flag.String("mermaid", "", "write a Mermaid diagram of the (last) run to this file")
		stdin       = flag.Bool("stdin", false, "read records (JSON, one per line) from stdin")
		quiet       = flag.Bool("q", false, "don't print events")
		list        = flag.Bool("list", false, "list stored runs and exit")
		show        = flag.String("show", "", "print a stored run as Markdown and exit")
	)

	flag.BoolVar(&verbose, "v", false, "verbose")

	flag.Parse()

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if *libDir != "" {
		cfg.LibDir = *libDir
	}
	if *dbFile != "" {
		cfg.DB = *dbFile
	}
	if *wsAddr != "" {
		cfg.WS = *wsAddr
	}
	verbose = verbose || cfg.Debug
	tools.Debug = cfg.Debug

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var s store.Store = &store.NoopStore{}
	if cfg.DB != "" {
		bs, err := bolt.NewStore(cfg.DB)
		if err != nil {
			log.Fatal(err)
		}
		bs.Debug = cfg.Debug
		s = bs
	}
	if err = s.Open(ctx); err != nil {
		log.Fatal(err)
	}
	defer s.Close(ctx)

	if *list || *show != "" {
		if err = browse(ctx, s, *show, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] JOBFILE\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	bs, err := tools.ReadFileWithInlines(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	job, err := ParseJob(bs)
	if err != nil {
		log.Fatalf("bad job %s: %s", flag.Arg(0), err)
	}

	compiler := &core.Compiler{
		Provider: libs.MakeFileProvider(cfg.LibDir),
	}
	b, err := compiler.Compile(ctx, job.Source)
	if err != nil {
		log.Fatal(err)
	}

	engine := core.NewEngine()
	engine.Extended = cfg.Extended
	engine.Testing = cfg.Testing
	engine.Debug = cfg.Debug
	if err = engine.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer engine.Stop()

	var sinks []observe.Sink
	if !*quiet {
		sinks = append(sinks, &observe.Logger{
			Logger: log.New(os.Stdout, "", 0),
		})
	}

	if *useMQTT {
		mc := cfg.MQTT
		if mc == nil {
			c := observe.DefaultMQTTConfig
			mc = &c
		}
		sink, disconnect, err := observe.NewMQTTSink(mc)
		if err != nil {
			log.Fatal(err)
		}
		defer disconnect()
		sinks = append(sinks, sink)
	}

	if cfg.WS != "" {
		hub := NewHubServer(ctx, cfg.WS)
		defer hub.Close()
		sinks = append(sinks, hub)
	}

	r := &Runner{
		Engine:  engine,
		Store:   s,
		Sinks:   sinks,
		Timeout: cfg.Timeout,
		Wait:    cfg.Wait,
	}

	var last *store.Run
	if *stdin {
		last, err = runLines(ctx, r, job, b, os.Stdin)
	} else {
		last, err = r.Run(ctx, job, b, nil)
	}
	if err != nil {
		log.Fatal(err)
	}

	if last != nil {
		if err = writeReports(last, *htmlFile, *yamlFile, *mermaidFile, cfg.CSS); err != nil {
			log.Fatal(err)
		}
		if !*quiet {
			js, err := json.Marshal(last.Final)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("%s\n", js)
		}
	}

	if cfg.WS != "" && 0 < *linger {
		logf("lingering for %s", *linger)
		select {
		case <-ctx.Done():
		case <-time.After(*linger):
		}
	}
}

// runLines runs the job once for each line of JSON from the reader.
func runLines(ctx context.Context, r *Runner, job *Job, b *core.Binding, in io.Reader) (*store.Run, error) {
	var last *store.Run
	lines := bufio.NewReader(in)
	for {
		line, err := lines.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return last, err
		}
		var fields map[string]interface{}
		if err = json.Unmarshal(line, &fields); err != nil {
			log.Printf("error: %s", err)
			continue
		}
		run, err := r.Run(ctx, job, b, fields)
		if err != nil {
			log.Printf("error: %s", err)
			continue
		}
		last = run
	}
	return last, nil
}

func writeReports(run *store.Run, htmlFile, yamlFile, mermaidFile string, css []string) error {
	write := func(filename string, f func(io.Writer) error) error {
		if filename == "" {
			return nil
		}
		out, err := os.Create(filename)
		if err != nil {
			return err
		}
		if err = f(out); err != nil {
			out.Close()
			return err
		}
		logf("wrote %s", filename)
		return out.Close()
	}

	if err := write(htmlFile, func(w io.Writer) error {
		return tools.RenderRunPage(run, w, css)
	}); err != nil {
		return err
	}
	if err := write(yamlFile, func(w io.Writer) error {
		return tools.RenderRunYAML(run, w)
	}); err != nil {
		return err
	}
	return write(mermaidFile, func(w io.Writer) error {
		return tools.Mermaid(run, w, nil)
	})
}

// browse lists the stored runs or shows one.
func browse(ctx context.Context, s store.Store, id string, out io.Writer) error {
	if id == "" {
		ids, err := s.ListRuns(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no run %q", id)
	}
	return tools.RenderRunMarkdown(run, out)
}

// NewHubServer starts an HTTP server for an observe.Hub.
func NewHubServer(ctx context.Context, addr string) *observe.Hub {
	hub := observe.NewHub()
	mux := http.NewServeMux()
	mux.Handle("/events", hub)

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		log.Printf("serving events at ws://%s/events", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("event server error: %s", err)
		}
	}()

	return hub
}
