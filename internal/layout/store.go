package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

type fileLayout struct {
	Fields []Field `toml:"fields"`
}

type fileData struct {
	Layouts map[string]fileLayout `toml:"layouts"`
}

// Store holds named layouts and mirrors every mutation to a TOML file.
// An empty path keeps the store in memory only.
type Store struct {
	mu      sync.RWMutex
	path    string
	layouts map[string][]Field
}

// NewMemoryStore returns an unpersisted store seeded with the default layout.
func NewMemoryStore() *Store {
	return &Store{layouts: seed()}
}

// Open loads path. A missing file is created with the default layout; an
// unreadable one is moved to path+".corrupt" and replaced the same way.
func Open(path string) (*Store, error) {
	if path == "" {
		return NewMemoryStore(), nil
	}
	s := &Store{path: path}

	layouts, err := load(path)
	switch {
	case err == nil:
		s.layouts = layouts
		log.Info().Str("path", path).Int("layouts", len(layouts)).Msg("layout.Open loaded")
		return s, nil
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", path).Msg("layout.Open seeding new store")
	default:
		aside := path + ".corrupt"
		if rerr := os.Rename(path, aside); rerr != nil {
			return nil, fmt.Errorf("layout: move corrupt store aside: %w", rerr)
		}
		log.Warn().Err(err).Str("path", path).Str("moved_to", aside).Msg("layout.Open reinitialized corrupt store")
	}

	s.layouts = seed()
	if err := s.flush(s.layouts); err != nil {
		return nil, err
	}
	return s, nil
}

func seed() map[string][]Field {
	def := DefaultLayout()
	return map[string][]Field{def.Name: def.Fields}
}

func load(path string) (map[string][]Field, error) {
	var raw fileData
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, err
	}
	out := make(map[string][]Field, len(raw.Layouts))
	for name, l := range raw.Layouts {
		n, err := normalizeName(name)
		if err != nil {
			return nil, err
		}
		fields, err := normalizeFields(l.Fields)
		if err != nil {
			return nil, fmt.Errorf("layout %q: %w", n, err)
		}
		out[n] = fields
	}
	return out, nil
}

// Validate parses path and checks every layout without modifying the file.
func Validate(path string) error {
	if _, err := load(path); err != nil {
		return fmt.Errorf("layout: validate %s: %w", path, err)
	}
	return nil
}

func (s *Store) Path() string {
	return s.path
}

// Names returns layout names in lexical order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.layouts))
	for name := range s.layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Get(name string) (Layout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.layouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrLayoutNotFound, name)
	}
	return Layout{Name: name, Fields: cloneFields(fields)}, nil
}

// All returns every layout ordered by name.
func (s *Store) All() []Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Layout, 0, len(s.layouts))
	for name, fields := range s.layouts {
		out = append(out, Layout{Name: name, Fields: cloneFields(fields)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save creates or replaces a layout.
func (s *Store) Save(name string, fields []Field) (Layout, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Layout{}, err
	}
	norm, err := normalizeFields(fields)
	if err != nil {
		return Layout{}, err
	}
	return s.mutate(func(next map[string][]Field) (Layout, error) {
		next[name] = norm
		return Layout{Name: name, Fields: cloneFields(norm)}, nil
	})
}

func (s *Store) Delete(name string) error {
	_, err := s.mutate(func(next map[string][]Field) (Layout, error) {
		if _, ok := next[name]; !ok {
			return Layout{}, fmt.Errorf("%w: %q", ErrLayoutNotFound, name)
		}
		delete(next, name)
		return Layout{}, nil
	})
	return err
}

// AddField inserts f at its position order.
func (s *Store) AddField(name string, f Field) (Layout, error) {
	return s.mutate(func(next map[string][]Field) (Layout, error) {
		fields, ok := next[name]
		if !ok {
			return Layout{}, fmt.Errorf("%w: %q", ErrLayoutNotFound, name)
		}
		norm, err := normalizeFields(append(cloneFields(fields), f))
		if err != nil {
			return Layout{}, err
		}
		next[name] = norm
		return Layout{Name: name, Fields: cloneFields(norm)}, nil
	})
}

// UpdateField replaces the field at index of the position-ordered list.
func (s *Store) UpdateField(name string, index int, f Field) (Layout, error) {
	return s.mutate(func(next map[string][]Field) (Layout, error) {
		fields, ok := next[name]
		if !ok {
			return Layout{}, fmt.Errorf("%w: %q", ErrLayoutNotFound, name)
		}
		if index < 0 || index >= len(fields) {
			return Layout{}, fmt.Errorf("%w: %d (fields=%d)", ErrFieldIndex, index, len(fields))
		}
		updated := cloneFields(fields)
		updated[index] = f
		norm, err := normalizeFields(updated)
		if err != nil {
			return Layout{}, err
		}
		next[name] = norm
		return Layout{Name: name, Fields: cloneFields(norm)}, nil
	})
}

func (s *Store) DeleteField(name string, index int) (Layout, error) {
	return s.mutate(func(next map[string][]Field) (Layout, error) {
		fields, ok := next[name]
		if !ok {
			return Layout{}, fmt.Errorf("%w: %q", ErrLayoutNotFound, name)
		}
		if index < 0 || index >= len(fields) {
			return Layout{}, fmt.Errorf("%w: %d (fields=%d)", ErrFieldIndex, index, len(fields))
		}
		updated := make([]Field, 0, len(fields)-1)
		updated = append(updated, fields[:index]...)
		updated = append(updated, fields[index+1:]...)
		next[name] = updated
		return Layout{Name: name, Fields: cloneFields(updated)}, nil
	})
}

// mutate applies fn to a copy of the layouts and commits it only after the
// copy is on disk.
func (s *Store) mutate(fn func(next map[string][]Field) (Layout, error)) (Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string][]Field, len(s.layouts))
	for name, fields := range s.layouts {
		next[name] = fields
	}
	out, err := fn(next)
	if err != nil {
		return Layout{}, err
	}
	if err := s.flush(next); err != nil {
		return Layout{}, err
	}
	s.layouts = next
	return out, nil
}

func (s *Store) flush(layouts map[string][]Field) error {
	if s.path == "" {
		return nil
	}
	raw := fileData{Layouts: make(map[string]fileLayout, len(layouts))}
	for name, fields := range layouts {
		raw.Layouts[name] = fileLayout{Fields: fields}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("layout: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("layout: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := toml.NewEncoder(tmp).Encode(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("layout: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("layout: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("layout: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("layout: replace store: %w", err)
	}
	log.Debug().Str("path", s.path).Int("layouts", len(layouts)).Msg("layout.Store.flush")
	return nil
}

func cloneFields(in []Field) []Field {
	out := make([]Field, len(in))
	copy(out, in)
	return out
}
