package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// MetaFile is the catalog file name inside the data directory.
const MetaFile = "meta.yaml"

// File keeps the catalog as a YAML document in the data directory:
//
//	documents:
//	  books: [attribute, text]
type File struct {
	mu   sync.Mutex
	path string
}

type metaDoc struct {
	Documents map[string][]string `yaml:"documents"`
}

func NewFile(dir string) *File {
	return &File{path: filepath.Join(dir, MetaFile)}
}

func (f *File) MarkIndexed(_ context.Context, document, index string) error {
	return f.update(func(m *metaDoc) {
		idx := m.Documents[document]
		if i, found := slices.BinarySearch(idx, index); !found {
			m.Documents[document] = slices.Insert(idx, i, index)
		}
	})
}

func (f *File) ClearIndexed(_ context.Context, document, index string) error {
	return f.update(func(m *metaDoc) {
		idx := m.Documents[document]
		if i, found := slices.BinarySearch(idx, index); found {
			idx = slices.Delete(idx, i, i+1)
		}
		if len(idx) == 0 {
			delete(m.Documents, document)
		} else {
			m.Documents[document] = idx
		}
	})
}

func (f *File) IsIndexed(ctx context.Context, document, index string) (bool, error) {
	idx, err := f.Indexes(ctx, document)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(idx, index)
	return found, nil
}

func (f *File) Indexes(_ context.Context, document string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return nil, err
	}
	return m.Documents[document], nil
}

func (f *File) update(fn func(*metaDoc)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, err := f.load()
	if err != nil {
		return err
	}
	fn(m)
	return f.store(m)
}

func (f *File) load() (*metaDoc, error) {
	m := &metaDoc{Documents: make(map[string][]string)}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", f.path, err)
	}
	if m.Documents == nil {
		m.Documents = make(map[string][]string)
	}
	for _, idx := range m.Documents {
		slices.Sort(idx)
	}
	return m, nil
}

// store writes the catalog to a temporary file and renames it into place.
func (f *File) store(m *metaDoc) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating catalog directory: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing catalog: %w", err)
	}
	return nil
}
