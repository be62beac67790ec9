package recompute

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/summary"
)

// ComputeShowSummaryAggregate sums a set of stored summaries into one summary
// for outputPeriod, saves it, and folds its episodes into the show's overall
// summary. Missing input keys are skipped: a partial month is a valid state.
func (r *Recomputer) ComputeShowSummaryAggregate(ctx context.Context, show uuid.UUID, inputKeys []string, outputPeriod string) (*summary.ShowSummary, error) {
	agg := summary.New(show, outputPeriod)

	for _, key := range inputKeys {
		keypath, name := splitKey(key)

		var day summary.ShowSummary
		info, err := r.reader.ReadJSON(ctx, name, keypath, &day)
		if errors.Is(err, backend.ErrDoesNotExist) {
			continue
		}
		if isDecodeError(err) {
			return nil, errors.Wrapf(ErrCorruptInput, "summary %s: %s", key, err)
		}
		if err != nil {
			return nil, err
		}
		if err := day.Check(); err != nil {
			return nil, errors.Wrapf(ErrCorruptInput, "summary %s: %s", key, err)
		}

		agg.Accumulate(&day)
		agg.Sources[key] = info.ETag
	}

	if _, err := r.SaveShowSummary(ctx, agg); err != nil {
		return nil, errors.Wrapf(err, "error saving %s summary", outputPeriod)
	}

	changed, err := r.mergeOverall(ctx, show, agg)
	if err != nil {
		return nil, err
	}

	level.Info(r.logger).Log("msg", "aggregated show summary", "show", show, "period", outputPeriod,
		"inputs", len(agg.Sources), "downloads", summary.Total(agg.HourlyDownloads), "overallChanged", changed)

	return agg, nil
}

// mergeOverall folds the aggregate's episode first hours into the overall
// summary. The merge is monotone: first hours only move down, episodes are
// only added. Nothing is written when nothing changed, so concurrent merges
// converge regardless of write order. The overall summary carries no hourly or
// dimensional counts.
func (r *Recomputer) mergeOverall(ctx context.Context, show uuid.UUID, agg *summary.ShowSummary) (bool, error) {
	name := backend.OverallSummaryFileName(show)
	keypath := backend.SummaryKeyPath(show)

	overall := summary.New(show, backend.OverallPeriod)
	changed := false

	_, err := r.reader.ReadJSON(ctx, name, keypath, overall)
	if errors.Is(err, backend.ErrDoesNotExist) {
		// no overall yet: seed one and always write it
		changed = true
	} else if isDecodeError(err) {
		return false, errors.Wrapf(ErrCorruptInput, "overall summary for %s: %s", show, err)
	} else if err != nil {
		return false, err
	}

	for id, ep := range agg.Episodes {
		cur, ok := overall.Episodes[id]
		if !ok {
			overall.Episodes[id] = &summary.EpisodeSummary{FirstHour: ep.FirstHour}
			changed = true
			continue
		}
		if ep.FirstHour != "" && (cur.FirstHour == "" || ep.FirstHour < cur.FirstHour) {
			cur.FirstHour = ep.FirstHour
			changed = true
		}
	}

	if !changed {
		return false, nil
	}

	if _, err := r.writer.WriteJSON(ctx, name, keypath, overall); err != nil {
		return false, errors.Wrap(err, "error saving overall summary")
	}
	return true, nil
}

func splitKey(key string) (backend.KeyPath, string) {
	dir, name := path.Split(key)
	return backend.KeyPath(strings.FieldsFunc(dir, func(r rune) bool { return r == '/' })), name
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
