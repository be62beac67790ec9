package recompute

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"

	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/summary"
)

// audiencePutAttempts bounds the monthly audience blob write: one initial
// attempt plus two retries, transient faults only.
const audiencePutAttempts = 3

var audienceBackoffConfig = backoff.Config{
	MinBackoff: 100 * time.Millisecond,
	MaxBackoff: time.Second,
	MaxRetries: audiencePutAttempts,
}

// Part selects one shard of the audience-id hex-prefix space.
type Part struct {
	Num int
	Of  int
}

func (p Part) Label() string {
	return fmt.Sprintf("%dof%d", p.Num, p.Of)
}

// AudienceResult reports one (month, part) audience recomputation.
type AudienceResult struct {
	Audience      int    `json:"audience"`
	ContentLength int64  `json:"contentLength"`
	Part          string `json:"part"`
}

// RecomputeAudienceForMonth dedups the month's daily audience files into a
// fixed-length audience blob and an audience summary, written in parallel.
// With a part, only ids whose first hex digit falls in the shard are kept; the
// per-part blobs form a disjoint partition of the unsharded result.
func (r *Recomputer) RecomputeAudienceForMonth(ctx context.Context, show uuid.UUID, month string, part *Part) (*AudienceResult, error) {
	if part != nil && part.Of != 4 && part.Of != 8 {
		return nil, errors.Wrapf(ErrInvalidInput, "unsupported part count %d", part.Of)
	}

	keypath := backend.AudienceKeyPath(show)
	names, err := r.reader.List(ctx, keypath)
	if err != nil {
		return nil, errors.Wrap(err, "error listing daily audiences")
	}

	dailyPrefix := show.String() + "-" + month + "-"
	var dailies []string
	for _, name := range names {
		if strings.HasPrefix(name, dailyPrefix) {
			dailies = append(dailies, name)
		}
	}
	sort.Strings(dailies)

	audience := summary.NewAudience()
	found := map[string]int64{}

	for _, name := range dailies {
		if len(name) < len(dailyPrefix)+2 {
			continue
		}
		date := name[len(show.String())+1 : len(show.String())+1+len("2006-01-02")]
		if err := r.reduceDailyAudience(ctx, keypath, name, date, part, audience, found); err != nil {
			return nil, err
		}
	}

	partLabel := backend.AllPart
	if part != nil {
		partLabel = part.Label()
	}

	audienceSummary := &summary.AudienceSummary{
		ShowUUID:           show,
		Period:             month,
		DailyFoundAudience: found,
	}
	if part != nil {
		audienceSummary.Part = part.Label()
	}

	// the audience blob and its summary are independent outputs; issue both
	// writes concurrently and finish when both resolve
	var wg sync.WaitGroup
	var mtx sync.Mutex
	var errs []error

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := r.putAudienceBlob(ctx, show, month, partLabel, audience); err != nil {
			mtx.Lock()
			errs = append(errs, err)
			mtx.Unlock()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		name := backend.MonthlyAudienceSummaryFileName(show, month, partLabel)
		if _, err := r.writer.WriteJSON(ctx, name, backend.AudienceSummaryKeyPath(show), audienceSummary); err != nil {
			mtx.Lock()
			errs = append(errs, errors.Wrap(err, "error saving audience summary"))
			mtx.Unlock()
		}
	}()

	wg.Wait()
	if len(errs) > 0 {
		return nil, errs[0]
	}

	level.Info(r.logger).Log("msg", "recomputed monthly audience", "show", show, "month", month,
		"part", partLabel, "audience", audience.Len(), "contentLength", audience.ContentLength())

	return &AudienceResult{
		Audience:      audience.Len(),
		ContentLength: audience.ContentLength(),
		Part:          partLabel,
	}, nil
}

// reduceDailyAudience streams one daily audience file into the month's
// dedup state. found counts every accepted line per day, duplicates included;
// the audience set only grows on first sight of an id.
func (r *Recomputer) reduceDailyAudience(ctx context.Context, keypath backend.KeyPath, name, date string, part *Part, audience *summary.Audience, found map[string]int64) error {
	rc, _, err := r.reader.StreamReader(ctx, name, keypath)
	if err != nil {
		return errors.Wrapf(err, "error reading daily audience %s", name)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if len(line) < summary.AudienceLineLength-1 {
			return errors.Wrapf(ErrCorruptInput, "short audience line in %s", name)
		}

		if part != nil && partForHexDigit(line[0], part.Of) != part.Num {
			continue
		}

		summary.Increment(found, date)

		id := line[:summary.AudienceIDLength]
		timestamp := line[summary.AudienceIDLength+1 : summary.AudienceIDLength+1+summary.CompactTimestampLength]
		audience.Add(id, timestamp)
	}
	return errors.Wrapf(scanner.Err(), "error scanning daily audience %s", name)
}

// putAudienceBlob writes the fixed-length monthly blob, retrying transient
// storage faults up to the attempt bound.
func (r *Recomputer) putAudienceBlob(ctx context.Context, show uuid.UUID, month, partLabel string, audience *summary.Audience) error {
	name := backend.MonthlyAudienceFileName(show, month, partLabel)

	var lastErr error
	boff := backoff.New(ctx, audienceBackoffConfig)
	for boff.Ongoing() {
		if boff.NumRetries() > 0 {
			metricAudienceWriteRetries.Inc()
			level.Warn(r.logger).Log("msg", "retrying audience blob write", "name", name, "attempt", boff.NumRetries()+1, "err", lastErr)
		}

		_, lastErr = r.writer.StreamWriter(ctx, name, backend.AudienceKeyPath(show), audience.Reader(), audience.ContentLength())
		if lastErr == nil {
			return nil
		}
		if !backend.IsRetryable(lastErr) {
			return errors.Wrap(lastErr, "error saving audience blob")
		}

		boff.Wait()
	}

	return errors.Wrapf(lastErr, "audience blob write failed after %d attempts", audiencePutAttempts)
}

// partForHexDigit maps the first hex digit of an audience id onto a part
// number. Byte comparison is enough: '0'..'9' sort before 'a'..'f'.
func partForHexDigit(c byte, numParts int) int {
	switch numParts {
	case 4:
		switch {
		case c < '4':
			return 1
		case c < '8':
			return 2
		case c < 'c':
			return 3
		default:
			return 4
		}
	case 8:
		switch {
		case c < '2':
			return 1
		case c < '4':
			return 2
		case c < '6':
			return 3
		case c < '8':
			return 4
		case c < 'a':
			return 5
		case c < 'c':
			return 6
		case c < 'e':
			return 7
		default:
			return 8
		}
	}
	return 0
}
