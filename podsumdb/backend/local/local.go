package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/podsum/podsum/podsumdb/backend"
)

type readerWriter struct {
	cfg *Config
}

var (
	_ backend.RawReader = (*readerWriter)(nil)
	_ backend.RawWriter = (*readerWriter)(nil)
)

// New creates a local filesystem backend rooted at cfg.Path.
func New(cfg *Config) (backend.RawReader, backend.RawWriter, error) {
	if cfg.Path == "" {
		return nil, nil, errors.New("local backend requires a path")
	}

	err := os.MkdirAll(cfg.Path, os.ModePerm)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error creating directory %s", cfg.Path)
	}

	rw := &readerWriter{cfg: cfg}
	return rw, rw, nil
}

// Write implements backend.RawWriter. The object is staged next to its final
// location and renamed into place so readers never observe partial writes.
func (rw *readerWriter) Write(_ context.Context, name string, keypath backend.KeyPath, data io.Reader, size int64) (backend.ObjectInfo, error) {
	if name == "" {
		return backend.ObjectInfo{}, backend.ErrEmptyKey
	}

	dir := rw.rootPath(keypath)
	err := os.MkdirAll(dir, os.ModePerm)
	if err != nil {
		return backend.ObjectInfo{}, errors.Wrapf(err, "error creating directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return backend.ObjectInfo{}, errors.Wrap(err, "error staging object")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, data)
	if err != nil {
		tmp.Close()
		return backend.ObjectInfo{}, errors.Wrapf(err, "error writing object %s", name)
	}
	if err := tmp.Close(); err != nil {
		return backend.ObjectInfo{}, errors.Wrapf(err, "error closing object %s", name)
	}

	if size >= 0 && n != size {
		return backend.ObjectInfo{}, errors.Wrapf(backend.ErrSizeMismatch, "declared %d bytes, body was %d", size, n)
	}

	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return backend.ObjectInfo{}, errors.Wrapf(err, "error placing object %s", name)
	}

	fi, err := os.Stat(dst)
	if err != nil {
		return backend.ObjectInfo{}, errors.Wrapf(err, "error stating object %s", name)
	}

	return objectInfo(fi), nil
}

// List implements backend.RawReader. A missing directory lists as empty, not
// as an error: a show with no data yet is a valid state.
func (rw *readerWriter) List(_ context.Context, keypath backend.KeyPath) ([]string, error) {
	dir := rw.rootPath(keypath)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error listing %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Read implements backend.RawReader
func (rw *readerWriter) Read(_ context.Context, name string, keypath backend.KeyPath) (io.ReadCloser, backend.ObjectInfo, error) {
	if name == "" {
		return nil, backend.ObjectInfo{}, backend.ErrEmptyKey
	}

	filename := filepath.Join(rw.rootPath(keypath), name)

	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		return nil, backend.ObjectInfo{}, backend.ErrDoesNotExist
	}
	if err != nil {
		return nil, backend.ObjectInfo{}, errors.Wrapf(err, "error opening %s", filename)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, backend.ObjectInfo{}, errors.Wrapf(err, "error stating %s", filename)
	}

	return f, objectInfo(fi), nil
}

func (rw *readerWriter) rootPath(keypath backend.KeyPath) string {
	return filepath.Join(rw.cfg.Path, filepath.Join(keypath...))
}

// objectInfo derives a version marker from mtime and size. It is not a content
// hash, but it changes whenever the object is rewritten, which is all the
// sources map requires of an ETag.
func objectInfo(fi os.FileInfo) backend.ObjectInfo {
	return backend.ObjectInfo{
		ETag: fmt.Sprintf("%x-%x", fi.ModTime().UnixNano(), fi.Size()),
		Size: fi.Size(),
	}
}
