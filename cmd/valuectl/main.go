package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/primary"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/updates"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/valueindex"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/logger"
)

type env struct {
	cfg      *config.Config
	opts     valueindex.Options
	dumpPath string
	minExcl  bool
	maxExcl  bool
}

type command struct {
	args  string
	help  string
	nargs int
	run   func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"build":   {"", "build the index from the primary table", 0, runBuild},
	"lookup":  {"<value>", "print the positions holding value", 1, runLookup},
	"count":   {"<value>", "print the number of positions holding value", 1, runCount},
	"range":   {"<min> <max>", "print positions whose value is a number in [min, max]", 2, runRange},
	"srange":  {"<min> <max>", "print positions whose value lies between min and max", 2, runStringRange},
	"keys":    {"", "print every distinct value with its count", 0, runKeys},
	"stats":   {"", "print index statistics", 0, runStats},
	"drop":    {"", "remove the index files and catalog entry", 0, runDrop},
	"publish": {"<batch.json>", "publish an update batch to the update feed", 1, runPublish},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: valuectl <command> [flags] [args]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(os.Stderr, "  %-8s %-14s %s\n", name, c.args, c.help)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dumpPath := fs.String("dump", "", "node dump of the document; empty loads the nodes table from postgres")
	document := fs.String("document", "", "document name, overriding the config")
	indexType := fs.String("type", "", "index type (text or attribute), overriding the config")
	minExcl := fs.Bool("min-exclusive", false, "srange: exclude the lower bound")
	maxExcl := fs.Bool("max-exclusive", false, "srange: exclude the upper bound")
	fs.Parse(os.Args[2:])
	if fs.NArg() != cmd.nargs {
		fmt.Fprintf(os.Stderr, "usage: valuectl %s [flags] %s\n", name, cmd.args)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")
	if *document != "" {
		cfg.Index.Document = *document
	}
	if *indexType != "" {
		cfg.Index.Type = *indexType
	}
	opts, err := valueindex.OptionsFromConfig(cfg.Index)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid index options: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat, closeCatalog, err := catalog.FromConfig(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening catalog: %v\n", err)
		os.Exit(1)
	}
	opts.Catalog = cat

	e := &env{cfg: cfg, opts: opts, dumpPath: *dumpPath, minExcl: *minExcl, maxExcl: *maxExcl}
	err = cmd.run(ctx, e, fs.Args())
	closeCatalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "valuectl %s: %v\n", name, err)
		os.Exit(1)
	}
}

func (e *env) table(ctx context.Context) (*primary.MemTable, error) {
	return primary.Load(ctx, e.dumpPath, e.cfg.Postgres, e.opts.Document)
}

func (e *env) open(ctx context.Context) (*valueindex.Reader, error) {
	tbl, err := e.table(ctx)
	if err != nil {
		return nil, err
	}
	return valueindex.Open(tbl, e.opts)
}

func printPositions(it *valueindex.Iterator) {
	pos := it.Positions()
	out := make([]string, len(pos))
	for i, p := range pos {
		out[i] = strconv.Itoa(p)
	}
	fmt.Println(strings.Join(out, " "))
}

func runBuild(ctx context.Context, e *env, _ []string) error {
	tbl, err := e.table(ctx)
	if err != nil {
		return err
	}
	r, err := valueindex.Build(ctx, tbl, e.opts)
	if err != nil {
		return err
	}
	defer r.Close()
	st := r.Stats()
	fmt.Printf("built %s index of %s: %d keys, %d postings bytes\n", st.Type, e.opts.Document, st.Keys, st.PostingsBytes)
	return nil
}

func runLookup(ctx context.Context, e *env, args []string) error {
	r, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	it, err := r.Lookup([]byte(args[0]))
	if err != nil {
		return err
	}
	printPositions(it)
	return nil
}

func runCount(ctx context.Context, e *env, args []string) error {
	r, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	n, err := r.Count([]byte(args[0]))
	if err != nil {
		return err
	}
	if n == valueindex.Unbounded {
		fmt.Println("unbounded")
		return nil
	}
	fmt.Println(n)
	return nil
}

func runRange(ctx context.Context, e *env, args []string) error {
	min, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("lower bound: %w", err)
	}
	max, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("upper bound: %w", err)
	}
	r, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	it, err := r.NumericRange(min, max)
	if err != nil {
		return err
	}
	printPositions(it)
	return nil
}

func runStringRange(ctx context.Context, e *env, args []string) error {
	tbl, err := e.table(ctx)
	if err != nil {
		return err
	}
	// OpenUpdatable creates missing files, so confirm the index exists first.
	r, err := valueindex.Open(tbl, e.opts)
	if err != nil {
		return err
	}
	r.Close()
	u, err := valueindex.OpenUpdatable(tbl, e.opts)
	if err != nil {
		return err
	}
	defer u.Close()
	it, err := u.StringRange([]byte(args[0]), []byte(args[1]), !e.minExcl, !e.maxExcl)
	if err != nil {
		return err
	}
	printPositions(it)
	return nil
}

func runKeys(ctx context.Context, e *env, _ []string) error {
	r, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Keys(func(key []byte, count int) bool {
		fmt.Printf("%q\t%d\n", key, count)
		return true
	})
}

func runStats(ctx context.Context, e *env, _ []string) error {
	r, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Stats())
}

func runDrop(ctx context.Context, e *env, _ []string) error {
	if err := valueindex.Abort(ctx, e.opts); err != nil {
		return err
	}
	fmt.Printf("dropped %s index of %s\n", e.opts.Type, e.opts.Document)
	return nil
}

func runPublish(ctx context.Context, e *env, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	b, err := kafka.DecodeJSON[updates.Batch](data)
	if err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	p := kafka.NewProducer(e.cfg.Kafka, e.cfg.Kafka.UpdateTopic)
	defer p.Close()
	if err := p.Publish(ctx, kafka.Event{Key: e.opts.Document, Value: b}); err != nil {
		return err
	}
	fmt.Printf("published batch for %s to %s\n", e.opts.Document, e.cfg.Kafka.UpdateTopic)
	return nil
}
