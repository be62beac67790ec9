// Package podsumdb wires a storage backend to the recomputation engine.
package podsumdb

import (
	"flag"

	gkLog "github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/backend/gcs"
	"github.com/podsum/podsum/podsumdb/backend/local"
	"github.com/podsum/podsum/podsumdb/backend/s3"
	"github.com/podsum/podsum/podsumdb/recompute"
)

const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
	BackendS3    = "s3"
)

type Config struct {
	Backend string        `yaml:"backend"`
	Local   *local.Config `yaml:"local"`
	GCS     *gcs.Config   `yaml:"gcs"`
	S3      *s3.Config    `yaml:"s3"`

	Recompute recompute.Config `yaml:"recompute"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Local = &local.Config{}
	cfg.GCS = &gcs.Config{}
	cfg.S3 = &s3.Config{}

	f.StringVar(&cfg.Backend, prefix+"backend", BackendLocal, "backend to use (local, gcs, s3).")
	cfg.Local.RegisterFlagsAndApplyDefaults(prefix, f)
	cfg.Recompute.RegisterFlagsAndApplyDefaults(prefix, f)
}

// New creates the configured backend and a Recomputer on top of it.
func New(cfg *Config, logger gkLog.Logger) (backend.RawReader, backend.RawWriter, *recompute.Recomputer, error) {
	var (
		r   backend.RawReader
		w   backend.RawWriter
		err error
	)

	switch cfg.Backend {
	case BackendLocal:
		r, w, err = local.New(cfg.Local)
	case BackendGCS:
		r, w, err = gcs.New(cfg.GCS)
	case BackendS3:
		r, w, err = s3.New(cfg.S3)
	default:
		err = errors.Errorf("unknown backend %s", cfg.Backend)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	return r, w, recompute.New(cfg.Recompute, r, w, logger), nil
}
