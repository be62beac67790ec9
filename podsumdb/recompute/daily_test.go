package recompute

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/summary"
)

func testRecomputer(reader *backend.MockRawReader, writer *backend.MockRawWriter) *Recomputer {
	return New(Config{}, reader, writer, log.NewNopLogger())
}

func audienceID(first byte) string {
	return string(first) + strings.Repeat("0", summary.AudienceIDLength-1)
}

func tsvBody(rows ...string) []byte {
	header := "time\tbotType\taudienceId\tepisodeId\tcountryCode\tcontinentCode\tregionName\tmetroCode\tagentType\tagentName\treferrerType\treferrerName\tdeviceType\tdeviceName\ttags"
	return []byte(strings.Join(append([]string{header}, rows...), "\n") + "\n")
}

func row(cols map[string]string) string {
	order := []string{"time", "botType", "audienceId", "episodeId", "countryCode", "continentCode", "regionName", "metroCode", "agentType", "agentName", "referrerType", "referrerName", "deviceType", "deviceName", "tags"}
	fields := make([]string, len(order))
	for i, c := range order {
		fields[i] = cols[c]
	}
	return strings.Join(fields, "\t")
}

func TestComputeShowSummaryForDate(t *testing.T) {
	show := uuid.New()
	date := "2024-03-01"
	name := backend.DailyFileName(show, date)
	key := backend.ObjectFileName(backend.ShowDailyKeyPath(show), name)

	aid := audienceID('a')
	reader := &backend.MockRawReader{
		Objects: map[string][]byte{
			key: tsvBody(
				row(map[string]string{"time": "2024-03-01T10:15:00.000Z", "audienceId": aid, "episodeId": "ep1", "countryCode": "US", "continentCode": "NA", "regionName": "Oregon", "agentType": "app", "agentName": "Overcast", "deviceType": "phone", "deviceName": "iPhone"}),
				row(map[string]string{"time": "2024-03-01T10:45:00.000Z", "audienceId": aid, "episodeId": "ep1", "countryCode": "US", "continentCode": "NA", "regionName": "Oregon", "agentType": "app", "agentName": "Overcast", "deviceType": "phone", "deviceName": "iPhone"}),
				row(map[string]string{"time": "2024-03-01T11:00:00.000Z", "botType": "crawler", "audienceId": audienceID('b'), "episodeId": "ep1"}),
				row(map[string]string{"time": "2024-03-01T09:30:00.000Z", "audienceId": audienceID('c'), "episodeId": "ep2", "countryCode": "CA", "continentCode": "NA", "regionName": "Ontario", "agentType": "browser", "agentName": "Firefox", "referrerType": "social", "referrerName": "Mastodon", "tags": "promo,launch"}),
			),
		},
		Infos: map[string]backend.ObjectInfo{
			key: {ETag: "etag-day1", Size: 1},
		},
	}
	writer := &backend.MockRawWriter{}
	r := testRecomputer(reader, writer)

	res, err := r.ComputeShowSummaryForDate(context.Background(), show, date, name)
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, show, s.ShowUUID)
	assert.Equal(t, date, s.Period)

	// the bot row contributes to nothing
	assert.Equal(t, int64(3), summary.Total(s.HourlyDownloads))
	assert.Equal(t, int64(2), s.HourlyDownloads["2024-03-01T10"])
	assert.Equal(t, int64(1), s.HourlyDownloads["2024-03-01T09"])

	require.Contains(t, s.Episodes, "ep1")
	assert.Equal(t, "2024-03-01T10", s.Episodes["ep1"].FirstHour)
	assert.Equal(t, int64(2), summary.Total(s.Episodes["ep1"].HourlyDownloads))
	assert.Equal(t, "2024-03-01T09", s.Episodes["ep2"].FirstHour)

	assert.Equal(t, int64(2), s.DimensionDownloads["countryCode"]["US"])
	assert.Equal(t, int64(1), s.DimensionDownloads["countryCode"]["CA"])
	assert.Equal(t, int64(2), s.DimensionDownloads["appName"]["Overcast"])
	assert.Equal(t, int64(1), s.DimensionDownloads["browserName"]["Firefox"])
	assert.Equal(t, int64(1), s.DimensionDownloads["referrer"]["social.Mastodon"])
	assert.Equal(t, int64(1), s.DimensionDownloads["caRegion"]["Ontario"])
	assert.Equal(t, int64(1), s.DimensionDownloads["tag"]["promo"])
	assert.Equal(t, int64(1), s.DimensionDownloads["tag"]["launch"])
	// bot row excluded, so no latam bucket appears for it
	assert.NotContains(t, s.DimensionDownloads, "latamRegion")

	assert.Equal(t, map[string]string{key: "etag-day1"}, s.Sources)

	// duplicate audience id within the day counts once, bot audience never
	assert.Equal(t, 2, res.Audience.Len())
	assert.True(t, res.Audience.Has(aid))
	assert.False(t, res.Audience.Has(audienceID('b')))
}

func TestComputeShowSummaryForDateDefaults(t *testing.T) {
	show := uuid.New()
	name := backend.DailyFileName(show, "2024-03-02")
	key := backend.ObjectFileName(backend.ShowDailyKeyPath(show), name)

	reader := &backend.MockRawReader{
		Objects: map[string][]byte{
			key: tsvBody(row(map[string]string{"time": "2024-03-02T00:00:00.000Z"})),
		},
	}
	r := testRecomputer(reader, &backend.MockRawWriter{})

	res, err := r.ComputeShowSummaryForDate(context.Background(), show, "2024-03-02", name)
	require.NoError(t, err)

	s := res.Summary
	assert.Equal(t, int64(1), s.DimensionDownloads["countryCode"]["XX"])
	assert.Equal(t, int64(1), s.DimensionDownloads["deviceType"]["unknown"])
	assert.Equal(t, int64(1), s.DimensionDownloads["deviceName"]["Unknown"])
	// unknown agent type buckets into no agent dimension
	assert.NotContains(t, s.DimensionDownloads, "appName")
	assert.NotContains(t, s.DimensionDownloads, "browserName")
	assert.NotContains(t, s.DimensionDownloads, "libraryName")
	assert.NotContains(t, s.DimensionDownloads, "metroCode")
	assert.Equal(t, 0, res.Audience.Len())
}

func TestComputeShowSummaryForDateRegions(t *testing.T) {
	show := uuid.New()
	name := backend.DailyFileName(show, "2024-03-03")
	key := backend.ObjectFileName(backend.ShowDailyKeyPath(show), name)

	reader := &backend.MockRawReader{
		Objects: map[string][]byte{
			key: tsvBody(
				row(map[string]string{"time": "2024-03-03T10:00:00.000Z", "countryCode": "DE", "continentCode": "EU", "regionName": "Berlin"}),
				row(map[string]string{"time": "2024-03-03T10:00:00.000Z", "countryCode": "NZ", "continentCode": "OC", "regionName": "Auckland"}),
				row(map[string]string{"time": "2024-03-03T10:00:00.000Z", "countryCode": "MX", "continentCode": "NA", "regionName": "Jalisco"}),
				row(map[string]string{"time": "2024-03-03T10:00:00.000Z", "countryCode": "US", "continentCode": "NA", "regionName": "Oregon", "metroCode": "820"}),
			),
		},
	}
	r := testRecomputer(reader, &backend.MockRawWriter{})

	res, err := r.ComputeShowSummaryForDate(context.Background(), show, "2024-03-03", name)
	require.NoError(t, err)

	d := res.Summary.DimensionDownloads
	assert.Equal(t, int64(1), d["euRegion"]["Berlin, DE"])
	assert.Equal(t, int64(1), d["auRegion"]["Auckland, NZ"])
	assert.Equal(t, int64(1), d["latamRegion"]["Jalisco, MX"])
	assert.Equal(t, int64(1), d["metroCode"]["820"])
	// US is on NA but never counts as latam
	assert.NotContains(t, d["latamRegion"], "Oregon, US")
}

func TestComputeShowSummaryForDateGzip(t *testing.T) {
	show := uuid.New()
	name := backend.DailyFileName(show, "2024-03-04") + ".gz"

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(tsvBody(row(map[string]string{"time": "2024-03-04T05:00:00.000Z", "episodeId": "ep1"})))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	reader := &backend.MockRawReader{
		Objects: map[string][]byte{
			backend.ObjectFileName(backend.ShowDailyKeyPath(show), name): buf.Bytes(),
		},
	}
	r := testRecomputer(reader, &backend.MockRawWriter{})

	res, err := r.ComputeShowSummaryForDate(context.Background(), show, "2024-03-04", name)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Summary.HourlyDownloads["2024-03-04T05"])
}

func TestComputeShowSummaryForDateErrors(t *testing.T) {
	show := uuid.New()
	r := testRecomputer(&backend.MockRawReader{Objects: map[string][]byte{}}, &backend.MockRawWriter{})

	_, err := r.ComputeShowSummaryForDate(context.Background(), show, "2024-03-01", backend.DailyFileName(show, "2024-03-01"))
	assert.ErrorIs(t, err, ErrMissingInput)

	// a row without a usable time is corrupt
	name := backend.DailyFileName(show, "2024-03-05")
	reader := &backend.MockRawReader{
		Objects: map[string][]byte{
			backend.ObjectFileName(backend.ShowDailyKeyPath(show), name): tsvBody(row(map[string]string{"time": "2024-03", "episodeId": "ep1"})),
		},
	}
	r = testRecomputer(reader, &backend.MockRawWriter{})
	_, err = r.ComputeShowSummaryForDate(context.Background(), show, "2024-03-05", name)
	assert.ErrorIs(t, err, ErrCorruptInput)

	// a bot row is dropped before its time is inspected
	reader = &backend.MockRawReader{
		Objects: map[string][]byte{
			backend.ObjectFileName(backend.ShowDailyKeyPath(show), name): tsvBody(
				row(map[string]string{"time": "bad", "botType": "crawler"}),
				row(map[string]string{"time": "2024-03-05T10:00:00.000Z"}),
			),
		},
	}
	r = testRecomputer(reader, &backend.MockRawWriter{})
	res, err := r.ComputeShowSummaryForDate(context.Background(), show, "2024-03-05", name)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Total(res.Summary.HourlyDownloads))
}

func TestSaveShowSummaryAndAudience(t *testing.T) {
	show := uuid.New()
	writer := &backend.MockRawWriter{}
	r := testRecomputer(&backend.MockRawReader{}, writer)

	ctx := context.Background()

	s := summary.New(show, "2024-03-01")
	s.HourlyDownloads["2024-03-01T10"] = 1
	_, err := r.SaveShowSummary(ctx, s)
	require.NoError(t, err)

	audience := summary.NewAudience()
	audience.Add(audienceID('a'), "202403011000000")
	_, err = r.SaveAudience(ctx, show, "2024-03-01", audience)
	require.NoError(t, err)

	summaryKey := backend.ObjectFileName(backend.SummaryKeyPath(show), backend.SummaryFileName(show, "2024-03-01"))
	audienceKey := backend.ObjectFileName(backend.AudienceKeyPath(show), backend.DailyAudienceFileName(show, "2024-03-01"))
	assert.Contains(t, writer.Objects, summaryKey)
	require.Contains(t, writer.Objects, audienceKey)
	assert.Len(t, writer.Objects[audienceKey], summary.AudienceLineLength)
}
