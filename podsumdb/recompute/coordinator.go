package recompute

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/podsum/podsum/pkg/boundedwaitgroup"
	"github.com/podsum/podsum/podsumdb/backend"
)

// Result reports one coordinator run.
type Result struct {
	// Times holds elapsed milliseconds per named step.
	Times    map[string]int64 `json:"times"`
	Dailies  int              `json:"dailies"`
	Audience *AudienceResult  `json:"audience,omitempty"`
}

// RecomputeShowSummaries runs the requested phases for one (show, month):
// dailies fan out over the month's raw files, aggregates fold the daily
// summaries into the month and overall summaries, audience dedups the month's
// audience ids. Daily recomputation is idempotent, so a partially completed
// run leaves only outputs a later full run reproduces.
func (r *Recomputer) RecomputeShowSummaries(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, errors.Wrap(ErrInvalidInput, "nil request")
	}

	logger := r.logger
	if !req.Log {
		logger = discardLogger{}
	}

	res := &Result{Times: map[string]int64{}}

	wantDailies := hasPhase(req.Phases, PhaseDailies)
	wantAggregates := hasPhase(req.Phases, PhaseAggregates)

	var dates []dailyObject
	if wantDailies || wantAggregates {
		start := time.Now()
		var err error
		dates, err = r.listDailyObjects(ctx, req)
		res.Times["listDailies"] = time.Since(start).Milliseconds()
		if err != nil {
			return nil, err
		}
	}

	if wantDailies {
		selected := selectDays(dates, req.StartDay, req.MaxDays)
		start := time.Now()
		if err := r.runDailies(ctx, req, selected); err != nil {
			return nil, err
		}
		res.Times[PhaseDailies] = time.Since(start).Milliseconds()
		metricPhaseDuration.WithLabelValues(PhaseDailies).Observe(time.Since(start).Seconds())
		res.Dailies = len(selected)
		level.Info(logger).Log("msg", "dailies phase complete", "show", req.Show, "month", req.Month, "days", len(selected))
	}

	if wantAggregates {
		start := time.Now()
		inputKeys := make([]string, 0, len(dates))
		for _, d := range dates {
			inputKeys = append(inputKeys, backend.ObjectFileName(backend.SummaryKeyPath(req.Show), backend.SummaryFileName(req.Show, d.date)))
		}
		if _, err := r.ComputeShowSummaryAggregate(ctx, req.Show, inputKeys, req.Month); err != nil {
			return nil, err
		}
		res.Times[PhaseAggregates] = time.Since(start).Milliseconds()
		metricPhaseDuration.WithLabelValues(PhaseAggregates).Observe(time.Since(start).Seconds())
		level.Info(logger).Log("msg", "aggregates phase complete", "show", req.Show, "month", req.Month, "inputs", len(inputKeys))
	}

	if phase, ok := audiencePhase(req.Phases); ok {
		start := time.Now()
		audienceResult, err := r.RecomputeAudienceForMonth(ctx, req.Show, req.Month, AudiencePart(phase))
		if err != nil {
			return nil, err
		}
		res.Times[PhaseAudience] = time.Since(start).Milliseconds()
		metricPhaseDuration.WithLabelValues(PhaseAudience).Observe(time.Since(start).Seconds())
		res.Audience = audienceResult
		level.Info(logger).Log("msg", "audience phase complete", "show", req.Show, "month", req.Month,
			"part", audienceResult.Part, "audience", audienceResult.Audience)
	}

	return res, nil
}

type dailyObject struct {
	date string // YYYY-MM-DD
	name string // listed object name
}

// listDailyObjects returns the month's raw daily objects in date order.
func (r *Recomputer) listDailyObjects(ctx context.Context, req *Request) ([]dailyObject, error) {
	names, err := r.reader.List(ctx, backend.ShowDailyKeyPath(req.Show))
	if err != nil {
		return nil, errors.Wrap(err, "error listing show dailies")
	}

	prefix := req.Show.String() + "-" + req.Month + "-"
	var objects []dailyObject
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || len(name) < len(prefix)+2 {
			continue
		}
		objects = append(objects, dailyObject{
			date: name[len(req.Show.String())+1 : len(req.Show.String())+1+len("2006-01-02")],
			name: name,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].date < objects[j].date })
	return objects, nil
}

// selectDays applies the startDay/maxDays window. maxDays == 0 selects
// nothing; with startDay unset the window starts at the first of the month.
func selectDays(dates []dailyObject, startDay, maxDays int) []dailyObject {
	if maxDays == 0 {
		return nil
	}
	if startDay == 0 && maxDays < 0 {
		return dates
	}

	first := startDay
	if first == 0 {
		first = 1
	}
	last := 31
	if maxDays > 0 {
		last = first + maxDays - 1
	}

	var out []dailyObject
	for _, d := range dates {
		day, err := strconv.Atoi(d.date[len("2006-01-"):])
		if err != nil {
			continue
		}
		if day >= first && day <= last {
			out = append(out, d)
		}
	}
	return out
}

// runDailies computes and persists each selected day. Days run in parallel up
// to the configured bound unless the request asks for strict order; each
// day's summary and audience writes are issued concurrently. The first error
// aborts the run.
func (r *Recomputer) runDailies(ctx context.Context, req *Request, days []dailyObject) error {
	concurrency := r.cfg.Concurrency
	if req.Sequential {
		concurrency = 1
	}

	bwg := boundedwaitgroup.New(concurrency)
	var mtx sync.Mutex
	var errs []error
	failed := atomic.NewBool(false)

	for _, day := range days {
		bwg.Add(1)
		go func(day dailyObject) {
			defer bwg.Done()

			if failed.Load() {
				return
			}

			if err := r.recomputeDay(ctx, req, day); err != nil {
				failed.Store(true)
				mtx.Lock()
				errs = append(errs, err)
				mtx.Unlock()
			}
		}(day)

		if req.Sequential && failed.Load() {
			break
		}
	}
	bwg.Wait()

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (r *Recomputer) recomputeDay(ctx context.Context, req *Request, day dailyObject) error {
	result, err := r.ComputeShowSummaryForDate(ctx, req.Show, day.date, day.name)
	if err != nil {
		return err
	}

	// summary and audience are independent outputs; persist both concurrently
	var wg sync.WaitGroup
	var mtx sync.Mutex
	var errs []error

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := r.SaveShowSummary(ctx, result.Summary); err != nil {
			mtx.Lock()
			errs = append(errs, errors.Wrapf(err, "error saving summary for %s", day.date))
			mtx.Unlock()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := r.SaveAudience(ctx, req.Show, day.date, result.Audience); err != nil {
			mtx.Lock()
			errs = append(errs, errors.Wrapf(err, "error saving audience for %s", day.date))
			mtx.Unlock()
		}
	}()

	wg.Wait()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func hasPhase(phases []string, want string) bool {
	for _, p := range phases {
		if p == want {
			return true
		}
	}
	return false
}

// audiencePhase returns the first audience phase token, sharded or not.
func audiencePhase(phases []string) (string, bool) {
	for _, p := range phases {
		if strings.HasPrefix(p, PhaseAudience) {
			return p, true
		}
	}
	return "", false
}

type discardLogger struct{}

func (discardLogger) Log(...interface{}) error { return nil }
