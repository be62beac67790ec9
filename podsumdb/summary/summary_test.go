package summary

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulate(t *testing.T) {
	show := uuid.New()

	day1 := New(show, "2024-03-01")
	day1.HourlyDownloads["2024-03-01T10"] = 3
	day1.Episode("ep1").Observe("2024-03-01T10")
	day1.Dimension("countryCode")["US"] = 3

	day2 := New(show, "2024-03-02")
	day2.HourlyDownloads["2024-03-01T10"] = 1
	day2.HourlyDownloads["2024-03-02T08"] = 2
	day2.Episode("ep1").Observe("2024-03-02T08")
	day2.Episode("ep2").Observe("2024-03-02T09")
	day2.Dimension("countryCode")["DE"] = 2

	month := New(show, "2024-03")
	month.Accumulate(day1)
	month.Accumulate(day2)

	assert.Equal(t, int64(4), month.HourlyDownloads["2024-03-01T10"])
	assert.Equal(t, int64(2), month.HourlyDownloads["2024-03-02T08"])
	assert.Equal(t, int64(6), Total(month.HourlyDownloads))
	assert.Equal(t, int64(3), month.DimensionDownloads["countryCode"]["US"])
	assert.Equal(t, int64(2), month.DimensionDownloads["countryCode"]["DE"])

	// ep1 appears on both days, first hour is the earlier one
	require.Contains(t, month.Episodes, "ep1")
	assert.Equal(t, "2024-03-01T10", month.Episodes["ep1"].FirstHour)
	assert.Equal(t, int64(2), Total(month.Episodes["ep1"].HourlyDownloads))
	assert.Equal(t, "2024-03-02T09", month.Episodes["ep2"].FirstHour)
}

func TestAccumulateOrderIndependent(t *testing.T) {
	show := uuid.New()

	mk := func(period, hour string) *ShowSummary {
		s := New(show, period)
		s.HourlyDownloads[hour] = 1
		s.Episode("ep1").Observe(hour)
		return s
	}
	a := mk("2024-03-01", "2024-03-01T05")
	b := mk("2024-03-02", "2024-03-02T05")

	ab := New(show, "2024-03")
	ab.Accumulate(a)
	ab.Accumulate(b)

	ba := New(show, "2024-03")
	ba.Accumulate(b)
	ba.Accumulate(a)

	assert.Equal(t, ab.HourlyDownloads, ba.HourlyDownloads)
	assert.Equal(t, ab.Episodes["ep1"].FirstHour, ba.Episodes["ep1"].FirstHour)
}

func TestObserveFirstHour(t *testing.T) {
	e := &EpisodeSummary{}

	e.ObserveFirstHour("")
	assert.Equal(t, "", e.FirstHour)

	e.ObserveFirstHour("2024-03-05T10")
	assert.Equal(t, "2024-03-05T10", e.FirstHour)

	e.ObserveFirstHour("2024-03-07T10")
	assert.Equal(t, "2024-03-05T10", e.FirstHour)

	e.ObserveFirstHour("2024-03-01T23")
	assert.Equal(t, "2024-03-01T23", e.FirstHour)
}

func TestCheck(t *testing.T) {
	s := New(uuid.New(), "2024-03-01")
	assert.NoError(t, s.Check())

	assert.Error(t, New(uuid.New(), "").Check())
	assert.Error(t, (&ShowSummary{Period: "2024-03-01"}).Check())
}

func TestMarshalSortsMapKeys(t *testing.T) {
	s := New(uuid.New(), "2024-03")
	s.HourlyDownloads["2024-03-02T08"] = 2
	s.HourlyDownloads["2024-03-01T10"] = 4
	s.Dimension("countryCode")["US"] = 4
	s.Dimension("countryCode")["DE"] = 2
	s.Sources["summaries/show/x/b.json"] = "etag-b"
	s.Sources["summaries/show/x/a.json"] = "etag-a"

	b, err := json.Marshal(s)
	require.NoError(t, err)

	// keys serialize in ascending order at every level
	assert.Less(t,
		indexOf(t, b, "2024-03-01T10"),
		indexOf(t, b, "2024-03-02T08"))
	assert.Less(t,
		indexOf(t, b, `"DE"`),
		indexOf(t, b, `"US"`))
	assert.Less(t,
		indexOf(t, b, "a.json"),
		indexOf(t, b, "b.json"))

	// marshaling is deterministic
	b2, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, b, b2)
}

func TestMarshalOverallOmitsCounts(t *testing.T) {
	s := New(uuid.New(), "overall")
	s.Episodes["ep1"] = &EpisodeSummary{FirstHour: "2024-03-01T10"}

	b, err := json.Marshal(s)
	require.NoError(t, err)

	assert.NotContains(t, string(b), "dimensionDownloads")
	// the episode entry carries only its first hour
	assert.NotContains(t, string(b), `"ep1":{"hourlyDownloads"`)
	assert.Contains(t, string(b), `"firstHour":"2024-03-01T10"`)
}

func indexOf(t *testing.T, b []byte, sub string) int {
	t.Helper()
	i := strings.Index(string(b), sub)
	require.GreaterOrEqual(t, i, 0, "expected %q in %s", sub, b)
	return i
}
