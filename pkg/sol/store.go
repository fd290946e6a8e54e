package sol

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mtrqq/amf/pkg/registry"
	"github.com/rs/zerolog/log"
)

const (
	Extension       = ".sol"
	DefaultCapacity = 16
)

var (
	ErrInvalidName = errors.New("invalid shared object name")
	ErrNoDocument  = errors.New("sol file has no lso tag")
)

type StoreOptions struct {
	// Capacity is the number of parsed files kept in memory.
	Capacity int
	Registry *registry.Registry
}

// Store keeps the shared objects of one directory. Names are slash
// separated paths relative to the directory, without the extension.
// Changes stay in memory until Sync or until the file is evicted, files
// whose encoding did not change are not rewritten.
type Store struct {
	dir      string
	registry *registry.Registry

	lock sync.Mutex
	pool *clockPool
}

func OpenStore(dir string, options StoreOptions) (*Store, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create store directory: %w", err)
	}

	if options.Capacity <= 0 {
		options.Capacity = DefaultCapacity
	}
	if options.Registry == nil {
		options.Registry = registry.New()
	}

	return &Store{
		dir:      dir,
		registry: options.Registry,
		pool:     newClockPool(options.Capacity),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// key returns the canonical form of name, so that aliases such as "a" and
// "./a" share one cache slot.
func key(name string) (string, error) {
	local := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	canonical := path.Clean(filepath.ToSlash(local))
	if canonical == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return canonical, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key)+Extension)
}

func (s *Store) flush(sl *slot) error {
	target := s.path(sl.name)

	data, err := sl.file.Marshal(s.registry)
	if err != nil {
		return fmt.Errorf("unable to marshal %q: %w", sl.name, err)
	}

	sum := digestOf(data)
	if sl.onDisk && sum == sl.digest {
		log.Debug().Str("name", sl.name).Msg("shared object unchanged, skipping write")
		sl.dirty = false
		return nil
	}

	if err := writeAtomic(target, data); err != nil {
		return err
	}

	log.Debug().Str("name", sl.name).Int("size", len(data)).Msg("flushed shared object")
	sl.digest = sum
	sl.onDisk = true
	sl.dirty = false
	return nil
}

// Fetch returns the document stored under name. The document is shared
// with the cache, changes to it are persisted once it is passed to Put.
func (s *Store) Fetch(name string) (*Document, error) {
	name, err := key(name)
	if err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if sl, ok := s.pool.get(name); ok {
		if sl.file.Document == nil {
			return nil, fmt.Errorf("%w: %q", ErrNoDocument, name)
		}
		return sl.file.Document, nil
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, err
	}

	file, err := Parse(data, s.registry)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %q: %w", name, err)
	}
	if file.Document == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoDocument, name)
	}

	sl, err := s.pool.allocate(name, s.flush)
	if err != nil {
		return nil, err
	}
	sl.file = file
	sl.digest = digestOf(data)
	sl.onDisk = true
	return file.Document, nil
}

// Put stores doc under name, keeping the file path tag of an already
// cached file.
func (s *Store) Put(name string, doc *Document) error {
	name, err := key(name)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	sl, err := s.pool.allocate(name, s.flush)
	if err != nil {
		return err
	}

	if sl.file == nil {
		sl.file = &File{}
	}
	sl.file.Document = doc
	sl.dirty = true
	return nil
}

// Delete drops name from the cache and the directory.
func (s *Store) Delete(name string) error {
	name, err := key(name)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.pool.remove(name)
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Names lists the shared objects on disk in lexical order. Pending
// changes are not included until Sync.
func (s *Store) Names() ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != Extension {
			return nil
		}

		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(strings.TrimSuffix(rel, Extension)))
		return nil
	})
	return names, err
}

// Sync writes every changed document to disk.
func (s *Store) Sync() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.pool.visit(func(sl *slot) error {
		if !sl.dirty {
			return nil
		}
		return s.flush(sl)
	})
}

func (s *Store) Close() error {
	return s.Sync()
}
