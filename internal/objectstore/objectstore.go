// Package objectstore implements the trusted, daemon-owned file tree
// that backs object catalog entries: path normalisation plus
// open-for-read, open-for-write, delete, and directory creation against
// a single root directory.
package objectstore

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/henfredemars/spmd/internal/spmerr"
)

// Normalize folds a working directory and a (possibly relative) local
// path into the canonical absolute catalog path, mirroring
// original_source/SPM/Util.py's expandPath called with root="/": an
// absolute local path discards cd entirely, a relative one is resolved
// against it.
func Normalize(cd, local string) string {
	if strings.HasPrefix(local, "/") {
		cd = ""
	} else {
		cd = strings.Trim(cd, "/")
	}
	local = strings.Trim(local, "/")
	return path.Clean("/" + path.Join(cd, local))
}

// Store is a root-anchored file tree. LocalPath values passed to its
// methods are catalog paths as produced by Normalize (always rooted at
// "/"); Store maps them onto files under Root.
type Store struct {
	Root string
}

// New returns a Store rooted at root, creating the directory if it does
// not already exist.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &spmerr.IoError{Detail: err.Error()}
	}
	return &Store{Root: root}, nil
}

// realPath maps a catalog path onto the underlying filesystem.
func (s *Store) realPath(localPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(strings.TrimPrefix(localPath, "/")))
}

// MakeDir creates the directory backing localPath.
func (s *Store) MakeDir(localPath string) error {
	if err := os.Mkdir(s.realPath(localPath), 0o755); err != nil {
		return &spmerr.IoError{Detail: err.Error()}
	}
	return nil
}

// OpenRead opens localPath for reading.
func (s *Store) OpenRead(localPath string) (*os.File, error) {
	f, err := os.Open(s.realPath(localPath))
	if err != nil {
		return nil, &spmerr.IoError{Detail: err.Error()}
	}
	return f, nil
}

// OpenWrite creates (or truncates) localPath for writing.
func (s *Store) OpenWrite(localPath string) (*os.File, error) {
	f, err := os.OpenFile(s.realPath(localPath), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, &spmerr.IoError{Detail: err.Error()}
	}
	return f, nil
}

// Exists reports whether localPath exists on the filesystem.
func (s *Store) Exists(localPath string) bool {
	_, err := os.Stat(s.realPath(localPath))
	return err == nil
}

// Delete removes localPath, recursing if it is a directory.
func (s *Store) Delete(localPath string) error {
	if err := os.RemoveAll(s.realPath(localPath)); err != nil {
		return &spmerr.IoError{Detail: err.Error()}
	}
	return nil
}

// List returns the immediate directory entry names under localPath.
func (s *Store) List(localPath string) ([]string, error) {
	entries, err := os.ReadDir(s.realPath(localPath))
	if err != nil {
		return nil, &spmerr.IoError{Detail: err.Error()}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
