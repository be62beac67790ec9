package s3

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"

	"github.com/cristalhq/hedgedhttp"
	gkLog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/podsum/podsum/pkg/util/log"
	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/backend/instrumentation"
)

// readerWriter can read/write from an s3 backend
type readerWriter struct {
	logger     gkLog.Logger
	cfg        *Config
	core       *minio.Core
	hedgedCore *minio.Core
}

var (
	_ backend.RawReader = (*readerWriter)(nil)
	_ backend.RawWriter = (*readerWriter)(nil)
)

type overrideSignatureVersion struct {
	upstream credentials.Provider
	useV2    bool
}

func (s *overrideSignatureVersion) Retrieve() (credentials.Value, error) {
	v, err := s.upstream.Retrieve()
	if err != nil {
		return v, err
	}

	if s.useV2 && !v.SignerType.IsAnonymous() {
		v.SignerType = credentials.SignatureV2
	}

	return v, nil
}

func (s *overrideSignatureVersion) RetrieveWithCredContext(cc *credentials.CredContext) (credentials.Value, error) {
	v, err := s.upstream.RetrieveWithCredContext(cc)
	if err != nil {
		return v, err
	}

	if s.useV2 && !v.SignerType.IsAnonymous() {
		v.SignerType = credentials.SignatureV2
	}

	return v, nil
}

func (s *overrideSignatureVersion) IsExpired() bool {
	return s.upstream.IsExpired()
}

// NewNoConfirm gets the S3 backend without testing it
func NewNoConfirm(cfg *Config) (backend.RawReader, backend.RawWriter, error) {
	return internalNew(cfg, false)
}

// New gets the S3 backend
func New(cfg *Config) (backend.RawReader, backend.RawWriter, error) {
	return internalNew(cfg, true)
}

func internalNew(cfg *Config, confirm bool) (backend.RawReader, backend.RawWriter, error) {
	l := log.Logger

	core, err := createCore(cfg, false)
	if err != nil {
		return nil, nil, fmt.Errorf("unexpected error creating core: %w", err)
	}

	hedgedCore, err := createCore(cfg, true)
	if err != nil {
		return nil, nil, fmt.Errorf("unexpected error creating hedgedCore: %w", err)
	}

	// try listing objects
	if confirm {
		_, err = core.ListObjects(cfg.Bucket, "", "", "/", 0)
		if err != nil {
			return nil, nil, fmt.Errorf("unexpected error from ListObjects on %s: %w", cfg.Bucket, err)
		}
	}

	rw := &readerWriter{
		logger:     l,
		cfg:        cfg,
		core:       core,
		hedgedCore: hedgedCore,
	}
	return rw, rw, nil
}

// Write implements backend.RawWriter
func (rw *readerWriter) Write(ctx context.Context, name string, keypath backend.KeyPath, data io.Reader, size int64) (backend.ObjectInfo, error) {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "s3.Write")
	defer span.Finish()

	span.SetTag("object", name)

	objName := backend.ObjectFileName(keypath, name)

	counted := &countingReader{r: data}
	info, err := rw.core.Client.PutObject(
		derivedCtx,
		rw.cfg.Bucket,
		objName,
		counted,
		size,
		minio.PutObjectOptions{PartSize: rw.cfg.PartSize},
	)
	if err != nil {
		span.SetTag("error", true)
		if size >= 0 && counted.n < size {
			// the body ran out before the declared length
			return backend.ObjectInfo{}, errors.Wrapf(backend.ErrSizeMismatch, "declared %d bytes, body was %d", size, counted.n)
		}
		return backend.ObjectInfo{}, errors.Wrapf(writeError(err), "error writing object to s3 backend, object %s", objName)
	}

	// the client stops at the declared length, so probe for a longer body
	if size >= 0 {
		var excess [1]byte
		if n, _ := counted.r.Read(excess[:]); n > 0 {
			return backend.ObjectInfo{}, errors.Wrapf(backend.ErrSizeMismatch, "body exceeds declared %d bytes", size)
		}
	}

	level.Debug(rw.logger).Log("msg", "object uploaded to s3", "objectName", objName, "size", info.Size)

	return backend.ObjectInfo{ETag: info.ETag, Size: info.Size}, nil
}

// List implements backend.RawReader. All pages are drained so the caller can
// treat the result as a complete listing.
func (rw *readerWriter) List(ctx context.Context, keypath backend.KeyPath) ([]string, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "s3.List")
	defer span.Finish()

	prefix := path.Join(keypath...)
	if len(prefix) > 0 {
		prefix = prefix + "/"
	}

	var objects []string
	nextMarker := ""
	isTruncated := true
	for isTruncated {
		res, err := rw.core.ListObjects(rw.cfg.Bucket, prefix, nextMarker, "", 0)
		if err != nil {
			return nil, errors.Wrapf(readError(err), "error listing objects in s3 bucket, bucket: %s", rw.cfg.Bucket)
		}
		isTruncated = res.IsTruncated
		nextMarker = res.NextMarker

		for _, c := range res.Contents {
			name := strings.TrimPrefix(c.Key, prefix)
			if strings.Contains(name, "/") {
				continue
			}
			objects = append(objects, name)
		}
	}

	level.Debug(rw.logger).Log("msg", "listed objects", "prefix", prefix, "found", len(objects))

	return objects, nil
}

// Read implements backend.RawReader
func (rw *readerWriter) Read(ctx context.Context, name string, keypath backend.KeyPath) (io.ReadCloser, backend.ObjectInfo, error) {
	span, derivedCtx := opentracing.StartSpanFromContext(ctx, "s3.Read")
	defer span.Finish()

	objName := backend.ObjectFileName(keypath, name)

	reader, info, _, err := rw.hedgedCore.GetObject(derivedCtx, rw.cfg.Bucket, objName, minio.GetObjectOptions{})
	if err != nil {
		span.SetTag("error", true)
		return nil, backend.ObjectInfo{}, readError(err)
	}

	return reader, backend.ObjectInfo{ETag: info.ETag, Size: info.Size}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func createCore(cfg *Config, hedge bool) (*minio.Core, error) {
	wrapCredentialsProvider := func(p credentials.Provider) credentials.Provider {
		if cfg.SignatureV2 {
			return &overrideSignatureVersion{useV2: cfg.SignatureV2, upstream: p}
		}
		return p
	}

	creds := credentials.NewChainCredentials([]credentials.Provider{
		wrapCredentialsProvider(&credentials.EnvAWS{}),
		wrapCredentialsProvider(&credentials.Static{
			Value: credentials.Value{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			},
		}),
		wrapCredentialsProvider(&credentials.EnvMinio{}),
		wrapCredentialsProvider(&credentials.FileAWSCredentials{}),
		wrapCredentialsProvider(&credentials.FileMinioClient{}),
		wrapCredentialsProvider(&credentials.IAM{
			Client: &http.Client{
				Transport: http.DefaultTransport,
			},
		}),
	})

	customTransport, err := minio.DefaultTransport(!cfg.Insecure)
	if err != nil {
		return nil, errors.Wrap(err, "create minio.DefaultTransport")
	}

	if cfg.InsecureSkipVerify {
		customTransport.TLSClientConfig.InsecureSkipVerify = true
	}

	// add instrumentation
	transport := instrumentation.NewTransport(customTransport)
	var stats *hedgedhttp.Stats

	if hedge && cfg.HedgeRequestsAt != 0 {
		transport, stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.HedgeRequestsAt, cfg.HedgeRequestsUpTo, transport)
		if err != nil {
			return nil, err
		}
		instrumentation.PublishHedgedMetrics(stats)
	}

	opts := &minio.Options{
		Region:    cfg.Region,
		Secure:    !cfg.Insecure,
		Creds:     creds,
		Transport: transport,
	}

	if cfg.ForcePathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	return minio.NewCore(cfg.Endpoint, opts)
}

func readError(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
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

	resp := minio.ToErrorResponse(err)
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return backend.RetryableError(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return backend.RetryableError(err)
	}

	return err
}
