package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/podsum/podsum/pkg/boundedwaitgroup"
	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/summary"
)

type listSummariesCmd struct {
	backendOptions

	Show        string `arg:"" help:"show uuid"`
	Concurrency uint   `help:"number of summaries to load in parallel" default:"8"`
}

type summaryRow struct {
	period  string
	summary *summary.ShowSummary
	size    int64
	loadErr error
}

func (cmd *listSummariesCmd) Run(g *globalOptions) error {
	show, err := uuid.Parse(cmd.Show)
	if err != nil {
		return errors.Wrapf(err, "bad show uuid %q", cmd.Show)
	}

	reader, _, err := loadBackend(&cmd.backendOptions, g)
	if err != nil {
		return err
	}

	ctx := context.Background()
	names, err := reader.List(ctx, backend.SummaryKeyPath(show))
	if err != nil {
		return errors.Wrap(err, "listing summaries")
	}

	prefix := show.String() + "-"
	const suffix = ".summary.json"
	var rows []*summaryRow
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		rows = append(rows, &summaryRow{period: strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].period < rows[j].period })

	bwg := boundedwaitgroup.New(cmd.Concurrency)
	var mtx sync.Mutex
	for _, row := range rows {
		bwg.Add(1)
		go func(row *summaryRow) {
			defer bwg.Done()

			s := &summary.ShowSummary{}
			info, err := reader.ReadJSON(ctx, backend.SummaryFileName(show, row.period), backend.SummaryKeyPath(show), s)
			mtx.Lock()
			defer mtx.Unlock()
			if err != nil {
				row.loadErr = err
				return
			}
			row.summary = s
			row.size = info.Size
		}(row)
	}
	bwg.Wait()

	w := tablewriter.NewWriter(os.Stdout)
	w.Header("period", "downloads", "episodes", "sources", "bytes")
	var totalDownloads, totalBytes int64
	for _, row := range rows {
		if row.loadErr != nil {
			return errors.Wrapf(row.loadErr, "loading summary for period %s", row.period)
		}
		s := row.summary
		downloads := summary.Total(s.HourlyDownloads)
		// overall carries no hourly breakdown, only per-episode first hours
		if s.Period != backend.OverallPeriod {
			totalDownloads += downloads
		}
		totalBytes += row.size
		_ = w.Append([]string{
			row.period,
			strconv.FormatInt(downloads, 10),
			strconv.Itoa(len(s.Episodes)),
			strconv.Itoa(len(s.Sources)),
			strconv.FormatInt(row.size, 10),
		})
	}
	w.Footer("total", strconv.FormatInt(totalDownloads, 10), "", "", strconv.FormatInt(totalBytes, 10))
	if err := w.Render(); err != nil {
		return err
	}

	fmt.Printf("%d summaries\n", len(rows))
	return nil
}
