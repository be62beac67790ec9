package gcs

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/cristalhq/hedgedhttp"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	google_http "google.golang.org/api/transport/http"

	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/backend/instrumentation"
)

type readerWriter struct {
	cfg          *Config
	bucket       *storage.BucketHandle
	hedgedBucket *storage.BucketHandle
}

var (
	_ backend.RawReader = (*readerWriter)(nil)
	_ backend.RawWriter = (*readerWriter)(nil)
)

// NewNoConfirm gets the GCS backend without testing it
func NewNoConfirm(cfg *Config) (backend.RawReader, backend.RawWriter, error) {
	rw, err := internalNew(cfg, false)
	return rw, rw, err
}

// New gets the GCS backend
func New(cfg *Config) (backend.RawReader, backend.RawWriter, error) {
	rw, err := internalNew(cfg, true)
	return rw, rw, err
}

func internalNew(cfg *Config, confirm bool) (*readerWriter, error) {
	ctx := context.Background()

	bucket, err := createBucket(ctx, cfg, false)
	if err != nil {
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	hedgedBucket, err := createBucket(ctx, cfg, true)
	if err != nil {
		return nil, fmt.Errorf("creating hedged bucket: %w", err)
	}

	// Check bucket exists by getting attrs
	if confirm {
		if _, err = bucket.Attrs(ctx); err != nil {
			return nil, fmt.Errorf("getting bucket attrs: %w", err)
		}
	}

	rw := &readerWriter{
		cfg:          cfg,
		bucket:       bucket,
		hedgedBucket: hedgedBucket,
	}

	return rw, nil
}

// Write implements backend.RawWriter
func (rw *readerWriter) Write(ctx context.Context, name string, keypath backend.KeyPath, data io.Reader, size int64) (backend.ObjectInfo, error) {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "gcs.Write")
	defer span.Finish()

	span.SetTag("object", name)

	objName := backend.ObjectFileName(keypath, name)
	w := rw.writer(derivedCtx, objName)

	var n int64
	var err error
	if size >= 0 {
		// copy exactly the declared length, then probe for a longer body.
		// abandoning the writer without Close aborts the upload.
		n, err = io.CopyN(w, data, size)
		if err == io.EOF || (err == nil && n < size) {
			span.SetTag("error", true)
			return backend.ObjectInfo{}, errors.Wrapf(backend.ErrSizeMismatch, "declared %d bytes, body was %d", size, n)
		}
		if err == nil {
			var excess [1]byte
			if en, _ := data.Read(excess[:]); en > 0 {
				span.SetTag("error", true)
				return backend.ObjectInfo{}, errors.Wrapf(backend.ErrSizeMismatch, "body exceeds declared %d bytes", size)
			}
		}
	} else {
		_, err = io.Copy(w, data)
	}
	if err != nil {
		w.Close()
		span.SetTag("error", true)
		return backend.ObjectInfo{}, errors.Wrap(writeError(err), "failed to write")
	}

	if err := w.Close(); err != nil {
		return backend.ObjectInfo{}, errors.Wrap(writeError(err), "failed to finish write")
	}

	attrs := w.Attrs()
	return backend.ObjectInfo{ETag: attrs.Etag, Size: attrs.Size}, nil
}

// List implements backend.RawReader. The iterator is drained so the caller can
// treat the result as a complete listing.
func (rw *readerWriter) List(ctx context.Context, keypath backend.KeyPath) ([]string, error) {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "gcs.List")
	defer span.Finish()

	prefix := path.Join(keypath...)
	if len(prefix) > 0 {
		prefix = prefix + "/"
	}

	iter := rw.bucket.Objects(derivedCtx, &storage.Query{
		Prefix:    prefix,
		Delimiter: "/",
		Versions:  false,
	})

	var objects []string
	for {
		attrs, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(readError(err), "iterating objects")
		}
		if attrs.Name == "" {
			// synthetic directory entry
			continue
		}

		objects = append(objects, strings.TrimPrefix(attrs.Name, prefix))
	}

	return objects, nil
}

// Read implements backend.RawReader
func (rw *readerWriter) Read(ctx context.Context, name string, keypath backend.KeyPath) (io.ReadCloser, backend.ObjectInfo, error) {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "gcs.Read")
	defer span.Finish()

	objName := backend.ObjectFileName(keypath, name)
	obj := rw.hedgedBucket.Object(objName)

	attrs, err := obj.Attrs(derivedCtx)
	if err != nil {
		span.SetTag("error", true)
		return nil, backend.ObjectInfo{}, readError(err)
	}

	r, err := obj.Generation(attrs.Generation).NewReader(derivedCtx)
	if err != nil {
		span.SetTag("error", true)
		return nil, backend.ObjectInfo{}, readError(err)
	}

	return r, backend.ObjectInfo{ETag: attrs.Etag, Size: attrs.Size}, nil
}

func (rw *readerWriter) writer(ctx context.Context, name string) *storage.Writer {
	w := rw.bucket.Object(name).NewWriter(ctx)
	if rw.cfg.ChunkBufferSize > 0 {
		w.ChunkSize = rw.cfg.ChunkBufferSize
	}
	return w
}

func createBucket(ctx context.Context, cfg *Config, hedge bool) (*storage.BucketHandle, error) {
	// start with default transport
	customTransport := http.DefaultTransport.(*http.Transport).Clone()

	if cfg.Insecure {
		customTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	// add instrumentation
	transport := instrumentation.NewTransport(customTransport)
	var stats *hedgedhttp.Stats

	// hedge if desired (0 means disabled)
	if hedge && cfg.HedgeRequestsAt != 0 {
		var err error
		transport, stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.HedgeRequestsAt, cfg.HedgeRequestsUpTo, transport)
		if err != nil {
			return nil, err
		}
		instrumentation.PublishHedgedMetrics(stats)
	}

	transportOptions := []option.ClientOption{option.WithoutAuthentication()}
	if !cfg.Insecure {
		transportOptions = nil
	}

	httpTransport, err := google_http.NewTransport(ctx, transport, transportOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "creating google http transport")
	}

	storageOptions := []option.ClientOption{
		option.WithHTTPClient(&http.Client{Transport: httpTransport}),
		option.WithScopes(storage.ScopeReadWrite),
	}
	if cfg.Endpoint != "" {
		storageOptions = append(storageOptions, option.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		storageOptions = append(storageOptions, option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, storageOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "creating storage client")
	}

	return client.Bucket(cfg.BucketName), nil
}

func readError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return backend.ErrDoesNotExist
	}
	return classifyError(err)
}

func writeError(err error) error {
	return classifyError(err)
}

// classifyError marks transient storage faults retryable. Durable faults
// (auth, not-found, precondition) pass through unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= http.StatusInternalServerError || apiErr.Code == http.StatusTooManyRequests {
			return backend.RetryableError(err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return backend.RetryableError(err)
	}

	return err
}
