// Package recompute derives daily, monthly and overall download summaries for
// a show from its raw per-day download logs in the object store.
package recompute

import (
	"flag"

	gkLog "github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/podsum/podsum/podsumdb/backend"
)

var (
	// ErrInvalidInput is returned for malformed job requests before any I/O.
	ErrInvalidInput = errors.New("invalid input")
	// ErrMissingInput is returned when a referenced daily blob does not exist.
	ErrMissingInput = errors.New("missing input")
	// ErrCorruptInput is returned when a daily row or a stored summary fails
	// its shape check.
	ErrCorruptInput = errors.New("corrupt input")
)

type Config struct {
	// Concurrency bounds the parallel fan-out over days in the dailies phase.
	Concurrency uint `yaml:"concurrency"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.UintVar(&cfg.Concurrency, prefix+"recompute.concurrency", 8, "number of days recomputed in parallel.")
}

// Recomputer runs the recomputation pipeline against one backend. All state
// lives in blobs; a Recomputer is safe for concurrent use.
type Recomputer struct {
	reader *backend.Reader
	writer *backend.Writer
	logger gkLog.Logger
	cfg    Config
}

func New(cfg Config, r backend.RawReader, w backend.RawWriter, logger gkLog.Logger) *Recomputer {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 8
	}
	return &Recomputer{
		reader: backend.NewReader(r),
		writer: backend.NewWriter(w),
		logger: logger,
		cfg:    cfg,
	}
}
