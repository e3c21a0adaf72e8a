// Package spool stages inbound audio clips on disk for the length of one turn.
package spool

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/voicerelay/internal/errors"
)

const filePattern = "clip-*"

// Store hands out uniquely named clip files in one directory.
type Store struct {
	dir   string
	inUse atomic.Int64
}

// New creates a store rooted at dir, or the system temp dir when dir is empty.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, errors.CodeSpoolFailed, "create spool directory").
			WithMetadata("dir", dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the spool directory.
func (s *Store) Dir() string { return s.dir }

// InUse returns the number of clips written and not yet closed.
func (s *Store) InUse() int64 { return s.inUse.Load() }

// Put writes data to a new file named with ext. The caller must Close the
// returned clip on every path; Close removes the file.
func (s *Store) Put(data []byte, ext string) (*Clip, error) {
	f, err := os.CreateTemp(s.dir, filePattern+ext)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSpoolFailed, "create clip file")
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.Wrap(err, errors.CodeSpoolFailed, "write clip file")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, errors.Wrap(err, errors.CodeSpoolFailed, "close clip file")
	}

	s.inUse.Add(1)
	return &Clip{path: path, size: len(data), store: s}, nil
}

// Clip is one staged file.
type Clip struct {
	path  string
	size  int
	store *Store
	once  sync.Once
	err   error
}

// Path returns the file location.
func (c *Clip) Path() string { return c.path }

// Size returns the number of bytes written.
func (c *Clip) Size() int { return c.size }

// Bytes reads the clip back.
func (c *Clip) Bytes() ([]byte, error) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSpoolFailed, "read clip file")
	}
	return b, nil
}

// Open returns a reader over the clip. The reader must be closed before the clip.
func (c *Clip) Open() (io.ReadCloser, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSpoolFailed, "open clip file")
	}
	return f, nil
}

// Close removes the file. It is safe to call more than once.
func (c *Clip) Close() error {
	c.once.Do(func() {
		c.store.inUse.Add(-1)
		if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
			c.err = errors.Wrap(err, errors.CodeSpoolFailed, "remove clip file")
		}
	})
	return c.err
}
