package valueindex

import (
	"fmt"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/primary"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/metrics"
)

// Type selects which node values an index covers.
type Type uint8

const (
	Text Type = iota
	Attribute
)

func (t Type) String() string {
	if t == Attribute {
		return "attribute"
	}
	return "text"
}

// ParseType resolves "text" or "attribute".
func ParseType(s string) (Type, error) {
	switch s {
	case "text":
		return Text, nil
	case "attribute":
		return Attribute, nil
	}
	return 0, fmt.Errorf("unknown index type %q", s)
}

func (t Type) kind() primary.NodeKind {
	if t == Attribute {
		return primary.KindAttribute
	}
	return primary.KindText
}

func (t Type) text() bool { return t == Text }

// Options configure building and opening an index.
type Options struct {
	Dir      string
	Document string
	Type     Type
	// MaxLen is the longest indexed value in bytes.
	MaxLen int
	// SliceSize spills a run after this many staged entries; zero defers
	// to the MemoryThreshold probe.
	SliceSize       int
	MemoryThreshold int64
	CheckInterval   int
	// PersistentIDs stores record ids instead of structural positions.
	PersistentIDs bool
	// LookupCacheSize bounds the lookup cache; zero means unbounded and a
	// negative value disables it.
	LookupCacheSize int
	// CacheKeys keeps derived keys per reference slot for static readers.
	// Updatable indexes always do.
	CacheKeys    bool
	IntegerKeys  bool
	CompressRuns bool
	// Mmap opens static readers through memory-mapped files.
	Mmap bool

	Metrics *metrics.Metrics
	Catalog catalog.Catalog
}

// DefaultOptions returns options matching config.DefaultIndex.
func DefaultOptions(dir string) Options {
	opts, _ := OptionsFromConfig(config.DefaultIndex())
	opts.Dir = dir
	return opts
}

// OptionsFromConfig maps the index section of the configuration.
func OptionsFromConfig(cfg config.IndexConfig) (Options, error) {
	typ, err := ParseType(cfg.Type)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Dir:             cfg.DataDir,
		Document:        cfg.Document,
		Type:            typ,
		MaxLen:          cfg.MaxLen,
		SliceSize:       cfg.SliceSize,
		MemoryThreshold: cfg.MemoryThreshold,
		CheckInterval:   cfg.CheckInterval,
		PersistentIDs:   cfg.PersistentIDs,
		LookupCacheSize: cfg.LookupCacheSize,
		CacheKeys:       cfg.CacheKeys,
		IntegerKeys:     cfg.IntegerKeys,
		CompressRuns:    cfg.CompressRuns,
		Mmap:            cfg.Mmap,
	}, nil
}

func (o Options) norm() Options {
	if o.MaxLen < 1 {
		o.MaxLen = 96
	}
	if o.MemoryThreshold < 1 {
		o.MemoryThreshold = 64 << 20
	}
	if o.CheckInterval < 1 {
		o.CheckInterval = 4096
	}
	if o.Document == "" {
		o.Document = "default"
	}
	return o
}

func (o Options) listsPath() string {
	return filepath.Join(o.Dir, o.Type.String()+".lst")
}

func (o Options) refsPath() string {
	return filepath.Join(o.Dir, o.Type.String()+".ref")
}

func (o Options) runPaths(n int) (lists, keys string) {
	prefix := filepath.Join(o.Dir, fmt.Sprintf("%s.run%d", o.Type, n))
	return prefix + ".lst", prefix + ".key"
}

func (o Options) runGlob() string {
	return filepath.Join(o.Dir, o.Type.String()+".run*")
}
