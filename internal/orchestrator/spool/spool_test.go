package spool

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestPutAndClose(t *testing.T) {
	s := newStore(t)

	clip, err := s.Put([]byte("RIFFdata"), ".wav")
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if !strings.HasSuffix(clip.Path(), ".wav") {
		t.Errorf("Path() = %q, want .wav suffix", clip.Path())
	}
	if filepath.Dir(clip.Path()) != s.Dir() {
		t.Errorf("clip written outside spool dir: %s", clip.Path())
	}
	if clip.Size() != 8 {
		t.Errorf("Size() = %d, want 8", clip.Size())
	}
	if s.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", s.InUse())
	}

	b, err := clip.Bytes()
	if err != nil || string(b) != "RIFFdata" {
		t.Errorf("Bytes() = (%q, %v), want RIFFdata", b, err)
	}

	r, err := clip.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, _ := io.ReadAll(r)
	r.Close()
	if string(got) != "RIFFdata" {
		t.Errorf("Open() read %q, want RIFFdata", got)
	}

	if err := clip.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(clip.Path()); !os.IsNotExist(err) {
		t.Errorf("clip file still exists after Close: %v", err)
	}
	if s.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", s.InUse())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := newStore(t)
	clip, err := s.Put([]byte("x"), "")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := clip.Close(); err != nil {
			t.Errorf("Close() #%d error = %v", i, err)
		}
	}
	if s.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", s.InUse())
	}
}

func TestCloseAfterExternalRemoval(t *testing.T) {
	s := newStore(t)
	clip, err := s.Put([]byte("x"), ".mp3")
	if err != nil {
		t.Fatal(err)
	}
	os.Remove(clip.Path())

	if err := clip.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil for missing file", err)
	}
}

func TestBytesAfterClose(t *testing.T) {
	s := newStore(t)
	clip, err := s.Put([]byte("x"), ".mp3")
	if err != nil {
		t.Fatal(err)
	}
	clip.Close()

	if _, err := clip.Bytes(); err == nil {
		t.Error("Bytes() after Close should fail")
	}
}

func TestConcurrentPutsUseDistinctFiles(t *testing.T) {
	s := newStore(t)

	const n = 20
	var wg sync.WaitGroup
	paths := make([]string, n)
	clips := make([]*Clip, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Put([]byte{byte(i)}, ".wav")
			if err != nil {
				t.Errorf("Put() error = %v", err)
				return
			}
			paths[i] = c.Path()
			clips[i] = c
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			t.Errorf("duplicate clip path %s", p)
		}
		seen[p] = true
	}
	if got := countFiles(t, s.Dir()); got != n {
		t.Errorf("files = %d, want %d", got, n)
	}

	for _, c := range clips {
		if c != nil {
			c.Close()
		}
	}
	if got := countFiles(t, s.Dir()); got != 0 {
		t.Errorf("files after close = %d, want 0", got)
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "spool")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", s.Dir(), dir)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("spool dir not created: %v", err)
	}
}

func TestNewDefaultsToTempDir(t *testing.T) {
	s, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Dir() != os.TempDir() {
		t.Errorf("Dir() = %q, want %q", s.Dir(), os.TempDir())
	}
}
