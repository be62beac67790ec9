package main

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/podsum/podsum/pkg/util/log"
	"github.com/podsum/podsum/podsumdb"
	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/backend/gcs"
	"github.com/podsum/podsum/podsumdb/backend/local"
	"github.com/podsum/podsum/podsumdb/backend/s3"
	"github.com/podsum/podsum/podsumdb/recompute"
)

type backendOptions struct {
	Backend    string `help:"backend to connect to (local/s3/gcs)" enum:",local,s3,gcs" default:""`
	Bucket     string `help:"bucket (or path for local backend) to use"`
	S3Endpoint string `name:"s3-endpoint" help:"s3 endpoint"`
	S3User     string `name:"s3-user" help:"s3 access key"`
	S3Pass     string `name:"s3-pass" help:"s3 secret key"`
	Insecure   bool   `help:"disable TLS verification for object storage"`
}

// loadConfig merges the optional yaml config file with command line overrides.
func loadConfig(opts *backendOptions, g *globalOptions) (*podsumdb.Config, error) {
	cfg := &podsumdb.Config{
		Backend: podsumdb.BackendLocal,
		Local:   &local.Config{},
		GCS:     &gcs.Config{ChunkBufferSize: 10 * 1024 * 1024},
		S3:      &s3.Config{},
	}

	if g.ConfigFile != "" {
		b, err := os.ReadFile(g.ConfigFile)
		if err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, errors.Wrap(err, "parsing config file")
		}
	}

	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	switch cfg.Backend {
	case podsumdb.BackendLocal:
		if opts.Bucket != "" {
			cfg.Local.Path = opts.Bucket
		}
	case podsumdb.BackendS3:
		if opts.Bucket != "" {
			cfg.S3.Bucket = opts.Bucket
		}
		if opts.S3Endpoint != "" {
			cfg.S3.Endpoint = opts.S3Endpoint
		}
		if opts.S3User != "" {
			cfg.S3.AccessKey = opts.S3User
		}
		if opts.S3Pass != "" {
			cfg.S3.SecretKey = opts.S3Pass
		}
		cfg.S3.Insecure = cfg.S3.Insecure || opts.Insecure
	case podsumdb.BackendGCS:
		if opts.Bucket != "" {
			cfg.GCS.BucketName = opts.Bucket
		}
		cfg.GCS.Insecure = cfg.GCS.Insecure || opts.Insecure
	}

	return cfg, nil
}

func loadBackend(opts *backendOptions, g *globalOptions) (*backend.Reader, *recompute.Recomputer, error) {
	cfg, err := loadConfig(opts, g)
	if err != nil {
		return nil, nil, err
	}

	r, _, recomputer, err := podsumdb.New(cfg, log.Logger)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating backend")
	}

	return backend.NewReader(r), recomputer, nil
}
