// Package summary holds the persisted roll-up model for one show and the
// counting helpers shared by the daily and monthly computations.
package summary

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ShowSummary is the roll-up for one (show, period). Period is a date
// (YYYY-MM-DD), a month (YYYY-MM) or the literal "overall". All maps serialize
// in ascending key order, so persisted summaries are byte-stable.
type ShowSummary struct {
	ShowUUID           uuid.UUID                   `json:"showUuid"`
	Period             string                      `json:"period"`
	HourlyDownloads    map[string]int64            `json:"hourlyDownloads"`
	Episodes           map[string]*EpisodeSummary  `json:"episodes"`
	DimensionDownloads map[string]map[string]int64 `json:"dimensionDownloads,omitempty"`
	// Sources records the ETag of every input blob observed at read time.
	Sources map[string]string `json:"sources"`
}

// EpisodeSummary tracks one episode within the encompassing period. FirstHour
// is the lexicographic minimum hour bucket ever observed, which under the
// fixed YYYY-MM-DDTHH format is also the chronological minimum.
type EpisodeSummary struct {
	HourlyDownloads map[string]int64 `json:"hourlyDownloads,omitempty"`
	FirstHour       string           `json:"firstHour"`
}

// AudienceSummary is the per-(month, part) audience roll-up.
type AudienceSummary struct {
	ShowUUID uuid.UUID `json:"showUuid"`
	Period   string    `json:"period"`
	Part     string    `json:"part,omitempty"`
	// DailyFoundAudience counts accepted audience lines per day, duplicates
	// included. The distinct count is the audience blob's line count.
	DailyFoundAudience map[string]int64 `json:"dailyFoundAudience"`
}

// New creates an empty summary for the given show and period.
func New(show uuid.UUID, period string) *ShowSummary {
	return &ShowSummary{
		ShowUUID:        show,
		Period:          period,
		HourlyDownloads: map[string]int64{},
		Episodes:        map[string]*EpisodeSummary{},
		Sources:         map[string]string{},
	}
}

// Episode locates or creates the summary for an episode id.
func (s *ShowSummary) Episode(id string) *EpisodeSummary {
	e, ok := s.Episodes[id]
	if !ok {
		e = &EpisodeSummary{HourlyDownloads: map[string]int64{}}
		s.Episodes[id] = e
	}
	return e
}

// Dimension locates or creates the bucket map for a dimension name.
func (s *ShowSummary) Dimension(name string) map[string]int64 {
	if s.DimensionDownloads == nil {
		s.DimensionDownloads = map[string]map[string]int64{}
	}
	d, ok := s.DimensionDownloads[name]
	if !ok {
		d = map[string]int64{}
		s.DimensionDownloads[name] = d
	}
	return d
}

// Observe counts a download for the hour bucket and keeps FirstHour at the
// minimum observed hour.
func (e *EpisodeSummary) Observe(hour string) {
	if e.HourlyDownloads == nil {
		e.HourlyDownloads = map[string]int64{}
	}
	Increment(e.HourlyDownloads, hour)
	e.ObserveFirstHour(hour)
}

// ObserveFirstHour lowers FirstHour to hour if hour sorts before it.
func (e *EpisodeSummary) ObserveFirstHour(hour string) {
	if hour == "" {
		return
	}
	if e.FirstHour == "" || hour < e.FirstHour {
		e.FirstHour = hour
	}
}

// Accumulate folds the counts of other into s: hourly totals, every dimension
// bucket and every episode. Order independent, so callers may fold a set of
// summaries in any order.
func (s *ShowSummary) Accumulate(other *ShowSummary) {
	IncrementAll(s.HourlyDownloads, other.HourlyDownloads)

	for name, buckets := range other.DimensionDownloads {
		IncrementAll(s.Dimension(name), buckets)
	}

	for id, ep := range other.Episodes {
		dst := s.Episode(id)
		IncrementAll(dst.HourlyDownloads, ep.HourlyDownloads)
		dst.ObserveFirstHour(ep.FirstHour)
	}
}

// Check validates the shape of a summary read back from storage.
func (s *ShowSummary) Check() error {
	if s.ShowUUID == uuid.Nil {
		return errors.New("summary has no show uuid")
	}
	if s.Period == "" {
		return errors.New("summary has no period")
	}
	return nil
}

// Increment adds one download to a bucket.
func Increment(m map[string]int64, key string) {
	m[key]++
}

// IncrementAll folds every bucket of src into dest.
func IncrementAll(dest, src map[string]int64) {
	for k, v := range src {
		dest[k] += v
	}
}

// Total sums the buckets of a count map.
func Total(m map[string]int64) int64 {
	var t int64
	for _, v := range m {
		t += v
	}
	return t
}
