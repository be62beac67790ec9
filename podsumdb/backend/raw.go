package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	podsum_io "github.com/podsum/podsum/pkg/io"
)

// Reader is a collection of methods to read data from podsum backends. It
// layers text/JSON convenience over a RawReader.
type Reader struct {
	r RawReader
}

// NewReader creates a Reader wrapping the given RawReader.
func NewReader(r RawReader) *Reader {
	return &Reader{r: r}
}

// List returns all object names directly under keypath.
func (r *Reader) List(ctx context.Context, keypath KeyPath) ([]string, error) {
	return r.r.List(ctx, keypath)
}

// Read returns the entire object along with its metadata.
func (r *Reader) Read(ctx context.Context, name string, keypath KeyPath) ([]byte, ObjectInfo, error) {
	rc, info, err := r.r.Read(ctx, name, keypath)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	defer rc.Close()

	b, err := podsum_io.ReadAllWithEstimate(rc, info.Size)
	if err != nil {
		return nil, ObjectInfo{}, errors.Wrapf(err, "error reading %s", ObjectFileName(keypath, name))
	}
	return b, info, nil
}

// ReadJSON reads the object and unmarshals it into out.
func (r *Reader) ReadJSON(ctx context.Context, name string, keypath KeyPath, out interface{}) (ObjectInfo, error) {
	b, info, err := r.Read(ctx, name, keypath)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return ObjectInfo{}, errors.Wrapf(err, "error decoding %s", ObjectFileName(keypath, name))
	}
	return info, nil
}

// StreamReader returns a stream over the object. The caller owns the
// ReadCloser and must drain or close it to release the connection.
func (r *Reader) StreamReader(ctx context.Context, name string, keypath KeyPath) (io.ReadCloser, ObjectInfo, error) {
	return r.r.Read(ctx, name, keypath)
}

// Writer is a collection of methods to write data to podsum backends.
type Writer struct {
	w RawWriter
}

// NewWriter creates a Writer wrapping the given RawWriter.
func NewWriter(w RawWriter) *Writer {
	return &Writer{w: w}
}

// Write persists b under keypath, declaring its exact length to the backend.
func (w *Writer) Write(ctx context.Context, name string, keypath KeyPath, b []byte) (ObjectInfo, error) {
	return w.w.Write(ctx, name, keypath, bytes.NewReader(b), int64(len(b)))
}

// WriteJSON marshals v and persists it under keypath. Map keys serialize in
// ascending order at every level, which keeps persisted summaries stable.
func (w *Writer) WriteJSON(ctx context.Context, name string, keypath KeyPath, v interface{}) (ObjectInfo, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ObjectInfo{}, errors.Wrapf(err, "error encoding %s", ObjectFileName(keypath, name))
	}
	return w.Write(ctx, name, keypath, b)
}

// StreamWriter persists a stream of exactly size bytes under keypath. The
// backend rejects the write when the stream length differs.
func (w *Writer) StreamWriter(ctx context.Context, name string, keypath KeyPath, data io.Reader, size int64) (ObjectInfo, error) {
	return w.w.Write(ctx, name, keypath, data, size)
}
