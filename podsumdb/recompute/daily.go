package recompute

import (
	"context"
	"io"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/summary"
	"github.com/podsum/podsum/podsumdb/tsv"
)

// hourLength is the prefix of an ISO-8601 timestamp naming its hour bucket
// (YYYY-MM-DDTHH).
const hourLength = 13

// DailyResult is one day's summary plus the audience ids first seen that day.
type DailyResult struct {
	Summary  *summary.ShowSummary
	Audience *summary.Audience
}

// ComputeShowSummaryForDate streams the raw daily object and accumulates it
// into a summary for (show, date). objectName is the listed object name under
// the show's daily prefix; names ending in .gz are decompressed transparently.
func (r *Recomputer) ComputeShowSummaryForDate(ctx context.Context, show uuid.UUID, date, objectName string) (*DailyResult, error) {
	keypath := backend.ShowDailyKeyPath(show)

	rc, info, err := r.reader.StreamReader(ctx, objectName, keypath)
	if errors.Is(err, backend.ErrDoesNotExist) {
		return nil, errors.Wrapf(ErrMissingInput, "no daily downloads at %s", backend.ObjectFileName(keypath, objectName))
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var body io.Reader = rc
	if strings.HasSuffix(objectName, ".gz") {
		gz, err := gzip.NewReader(rc)
		if err != nil {
			return nil, errors.Wrapf(ErrCorruptInput, "bad gzip header in %s: %s", objectName, err)
		}
		defer gz.Close()
		body = gz
	}

	s := summary.New(show, date)
	s.Sources[backend.ObjectFileName(keypath, objectName)] = info.ETag
	audience := summary.NewAudience()

	rows := tsv.NewReader(body)
	line := 1
	for {
		rec, err := rows.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error reading %s", objectName)
		}
		line++

		// bots are excluded from every output
		if rec["botType"] != "" {
			continue
		}

		t := rec["time"]
		if len(t) < hourLength {
			return nil, errors.Wrapf(ErrCorruptInput, "row %d of %s has no time", line, objectName)
		}
		hour := t[:hourLength]

		summary.Increment(s.HourlyDownloads, hour)

		if id := rec["audienceId"]; id != "" && !audience.Has(id) {
			audience.Add(id, summary.CompactTimestamp(t))
		}

		if id := rec["episodeId"]; id != "" {
			s.Episode(id).Observe(hour)
		}

		accumulateDimensions(s, rec)
	}

	level.Debug(r.logger).Log("msg", "computed daily summary", "show", show, "date", date,
		"downloads", summary.Total(s.HourlyDownloads), "audience", audience.Len())
	metricDailiesComputed.Inc()

	return &DailyResult{Summary: s, Audience: audience}, nil
}

// accumulateDimensions applies the per-row dimensional increments with their
// defaults. Dimension names double as the bucket namespace in the summary.
func accumulateDimensions(s *summary.ShowSummary, rec tsv.Record) {
	str := func(col, def string) string {
		if v := rec[col]; v != "" {
			return v
		}
		return def
	}

	countryCode := str("countryCode", "XX")
	continentCode := str("continentCode", "XX")
	regionName := str("regionName", "Unknown")
	agentType := str("agentType", "unknown")
	agentName := str("agentName", "Unknown")

	region := regionName + ", " + countryCode

	summary.Increment(s.Dimension("countryCode"), countryCode)

	if metro := rec["metroCode"]; metro != "" {
		summary.Increment(s.Dimension("metroCode"), metro)
	}

	switch continentCode {
	case "EU":
		summary.Increment(s.Dimension("euRegion"), region)
	case "AS":
		summary.Increment(s.Dimension("asRegion"), region)
	case "AF":
		summary.Increment(s.Dimension("afRegion"), region)
	}

	if countryCode == "AU" || countryCode == "NZ" {
		summary.Increment(s.Dimension("auRegion"), region)
	}
	if countryCode == "CA" {
		summary.Increment(s.Dimension("caRegion"), regionName)
	}
	if (continentCode == "NA" || continentCode == "SA") && countryCode != "US" && countryCode != "CA" {
		summary.Increment(s.Dimension("latamRegion"), region)
	}

	switch agentType {
	case "app":
		summary.Increment(s.Dimension("appName"), agentName)
	case "browser":
		summary.Increment(s.Dimension("browserName"), agentName)
		if refType := rec["referrerType"]; refType != "" {
			summary.Increment(s.Dimension("referrer"), refType+"."+str("referrerName", "Unknown"))
		}
	case "library":
		summary.Increment(s.Dimension("libraryName"), agentName)
	}

	summary.Increment(s.Dimension("deviceType"), str("deviceType", "unknown"))
	summary.Increment(s.Dimension("deviceName"), str("deviceName", "Unknown"))

	if tags := rec["tags"]; tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag == "" {
				continue
			}
			summary.Increment(s.Dimension("tag"), tag)
		}
	}
}

// SaveShowSummary persists a summary under the show's summary prefix.
func (r *Recomputer) SaveShowSummary(ctx context.Context, s *summary.ShowSummary) (backend.ObjectInfo, error) {
	return r.writer.WriteJSON(ctx, backend.SummaryFileName(s.ShowUUID, s.Period), backend.SummaryKeyPath(s.ShowUUID), s)
}

// SaveAudience persists one day's audience lines in insertion order.
func (r *Recomputer) SaveAudience(ctx context.Context, show uuid.UUID, date string, audience *summary.Audience) (backend.ObjectInfo, error) {
	return r.writer.StreamWriter(ctx,
		backend.DailyAudienceFileName(show, date),
		backend.AudienceKeyPath(show),
		audience.Reader(),
		audience.ContentLength(),
	)
}
