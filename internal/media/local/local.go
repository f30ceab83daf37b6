// Package local keeps media on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ButyrinIA/blog/internal/media"
)

type Store struct {
	dir       string
	urlPrefix string
}

// New creates dir if needed. urlPrefix is the public path the files are
// served under, e.g. "/media/".
func New(dir, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir %s: %w", dir, err)
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &Store{dir: dir, urlPrefix: urlPrefix}, nil
}

func (s *Store) path(key string) (string, error) {
	if !media.ValidKey(key) {
		return "", fmt.Errorf("%w: %q", media.ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}

func (s *Store) Save(_ context.Context, _ string, data []byte, ext string) (string, error) {
	key := media.NewKey(ext)
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move %s into place: %w", key, err)
	}
	return key, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return s.urlPrefix + key
}

// Handler serves stored files; mount it with http.StripPrefix(urlPrefix).
// Directories are reported as missing, so uploads cannot be listed.
func (s *Store) Handler() http.Handler {
	return http.FileServer(filesOnly{http.Dir(s.dir)})
}

type filesOnly struct {
	root http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}
