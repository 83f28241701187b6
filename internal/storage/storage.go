// Package storage keeps attachment bytes on the local file system.
//
// Files live under <root>/YYYY/MM/DD/<hash>.<ext>, where the date is the
// upload day (UTC) and hash is a random identifier that doubles as the
// public handle of the attachment.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyRoot is returned by New when no root directory is configured.
var ErrEmptyRoot = errors.New("storage: empty root directory")

// Store writes and removes attachment files below a root directory.
type Store struct {
	root string
	now  func() time.Time
}

// Saved describes a file written by Save.
type Saved struct {
	Folder   string // date-partitioned directory
	FullPath string // Folder + file name
	Size     int64
}

// New returns a Store rooted at root. The directory is created lazily.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrEmptyRoot
	}
	return &Store{root: filepath.Clean(root), now: time.Now}, nil
}

// Root returns the configured root directory.
func (s *Store) Root() string { return s.root }

// NewHash returns a fresh attachment hash: a random UUID without dashes.
func NewHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Extension returns the lower-cased extension of name without the dot, or ""
// when there is none.
func Extension(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FileName joins hash and ext the way Save names files.
func FileName(hash, ext string) string {
	if ext == "" {
		return hash
	}
	return hash + "." + ext
}

// Folder returns the partition directory for t.
func (s *Store) Folder(t time.Time) string {
	t = t.UTC()
	return filepath.Join(s.root,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()))
}

// Save copies r into today's partition as <hash>.<ext>. A partially written
// file is removed on failure.
func (s *Store) Save(hash, ext string, r io.Reader) (Saved, error) {
	folder := s.Folder(s.now())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return Saved{}, fmt.Errorf("create folder: %w", err)
	}
	full := filepath.Join(folder, FileName(hash, ext))

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Saved{}, fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return Saved{}, fmt.Errorf("write file: %w", err)
	}
	return Saved{Folder: folder, FullPath: full, Size: n}, nil
}

// Open opens a stored file for reading. Paths outside the root are refused.
func (s *Store) Open(fullPath string) (*os.File, error) {
	if !s.contains(fullPath) {
		return nil, fmt.Errorf("storage: %q is outside %q", fullPath, s.root)
	}
	return os.Open(fullPath)
}

// Remove deletes a stored file. A file that is already gone is not an error.
func (s *Store) Remove(fullPath string) error {
	if !s.contains(fullPath) {
		return fmt.Errorf("storage: %q is outside %q", fullPath, s.root)
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) contains(p string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}
