package release

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func names(releases []*Release) []string {
	out := make([]string, 0, len(releases))
	for _, r := range releases {
		out = append(out, r.Name)
	}
	return out
}

func TestNumericPrefix(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"1.2.3", "1.2.3", true},
		{"release-4.0.0-M1", "4.0.0", true},
		{"v2.", "2", true},
		{"2.0.x", "2.0", true},
		{"syncope-1.1.0", "1.1.0", true},
		{"trunk", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NumericPrefix(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.9", "1.10", -1},
		{"2.0", "2.0.0", -1},
		{"1.2.3", "1.2", 1},
		{"1.2", "1.2.1", -1},
		{"1.2", "1.2", 0},
		{"10", "9", 1},
		{"0.9.9", "1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b))
			assert.Equal(t, -tt.want, CompareVersions(tt.b, tt.a), "antisymmetric")
		})
	}
}

func TestFilterBackwardCompatible(t *testing.T) {
	var in []*Release
	for i, n := range []string{"1.0", "1.1", "1.0.5", "1.2"} {
		in = append(in, New(n, n, day(2020, time.Month(i+1), 1), time.Time{}))
	}

	kept := FilterBackwardCompatible(in, quietLogger())
	assert.Equal(t, []string{"1.0", "1.1", "1.2"}, names(kept))
}

func TestFilterBackwardCompatibleDropsUnversioned(t *testing.T) {
	in := []*Release{
		New("milestone", "", day(2020, 1, 1), time.Time{}),
		New("1.0", "", day(2020, 2, 1), time.Time{}),
		New("1.0", "", day(2020, 3, 1), time.Time{}),
		New("2.0", "", day(2020, 4, 1), time.Time{}),
	}

	kept := FilterBackwardCompatible(in, quietLogger())
	assert.Equal(t, []string{"1.0", "2.0"}, names(kept))
	assert.Equal(t, day(2020, 2, 1), kept[0].GitDate)
}

func TestReleaseDate(t *testing.T) {
	r := New("1.0", "v1.0", day(2020, 1, 10), time.Time{})
	assert.Equal(t, day(2020, 1, 10), r.Date())

	r.TrackerDate = day(2020, 1, 12)
	assert.Equal(t, day(2020, 1, 12), r.Date())
}

func TestReleaseEqual(t *testing.T) {
	a := New("1.0", "v1", day(2020, 1, 1), time.Time{})
	b := New("1.0", "other-tag", day(2020, 1, 1), day(2021, 1, 1))
	c := New("1.0", "v1", day(2020, 1, 2), time.Time{})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func buildTimeline(t *testing.T, mainFraction float64) *Timeline {
	t.Helper()
	// Deliberately shuffled input, including a maintenance release.
	releases := []*Release{
		New("1.3", "", day(2020, 4, 1), time.Time{}),
		New("1.0", "", day(2020, 1, 1), time.Time{}),
		New("1.2", "", day(2020, 3, 1), time.Time{}),
		New("1.0.1", "", day(2020, 3, 15), time.Time{}),
		New("1.1", "", day(2020, 2, 1), time.Time{}),
	}
	return NewTimeline(releases, mainFraction, quietLogger())
}

func TestNewTimelineOrdersAndPartitions(t *testing.T) {
	tl := buildTimeline(t, 0.5)

	require.Equal(t, 4, tl.Len())
	assert.Equal(t, []string{"1.0", "1.1", "1.2", "1.3"}, names(tl.All()))
	assert.Equal(t, []string{"1.0", "1.1"}, names(tl.Main()))
	assert.Equal(t, []string{"1.2", "1.3"}, names(tl.Dropped()))
	assert.Equal(t, 2, tl.MainHorizon())

	for i, r := range tl.All() {
		assert.Equal(t, i+1, r.ID)
		assert.Equal(t, i >= 2, r.Dropped)
	}
}

func TestNewTimelineKeepsAtLeastOneMain(t *testing.T) {
	tl := buildTimeline(t, 0)
	assert.Len(t, tl.Main(), 1)
	assert.Len(t, tl.Dropped(), 3)
}

func TestNewTimelineTieBreak(t *testing.T) {
	same := day(2020, 5, 5)
	tl := NewTimeline([]*Release{
		New("2.10", "", same, time.Time{}),
		New("2.9", "", same, time.Time{}),
	}, 1, quietLogger())

	assert.Equal(t, []string{"2.9", "2.10"}, names(tl.All()))
}

func TestNewTimelineEmpty(t *testing.T) {
	tl := NewTimeline(nil, 0.5, quietLogger())
	assert.Zero(t, tl.Len())
	assert.Zero(t, tl.MainHorizon())
	assert.Nil(t, tl.ByDate(day(2020, 1, 1)))
	assert.Nil(t, tl.ByID(1))
}

func TestTimelineLookups(t *testing.T) {
	tl := buildTimeline(t, 0.5)

	require.NotNil(t, tl.ByName("1.2"))
	assert.Equal(t, 3, tl.ByName("1.2").ID)
	assert.Nil(t, tl.ByName("1.0.1"))
	assert.Nil(t, tl.ByName("9.9"))

	assert.Equal(t, "1.1", tl.ByID(2).Name)
	assert.Nil(t, tl.ByID(0))
	assert.Nil(t, tl.ByID(5))
}

func TestTimelineByDate(t *testing.T) {
	tl := buildTimeline(t, 0.5)

	tests := []struct {
		name string
		ts   time.Time
		want string
	}{
		{"before first", day(2019, 6, 1), "1.0"},
		{"same day as release", time.Date(2020, 2, 1, 23, 59, 0, 0, time.UTC), "1.1"},
		{"between releases", day(2020, 2, 2), "1.2"},
		{"last release day", day(2020, 4, 1), "1.3"},
		{"local calendar day", time.Date(2020, 2, 1, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600)), "1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tl.ByDate(tt.ts)
			require.NotNil(t, r)
			assert.Equal(t, tt.want, r.Name)
		})
	}

	assert.Nil(t, tl.ByDate(day(2020, 4, 2)))
}

func TestTimelineBetween(t *testing.T) {
	tl := buildTimeline(t, 0.5)

	assert.Equal(t, []string{"1.1", "1.2", "1.3"}, names(tl.Between(2, 4)))
	assert.Equal(t, []string{"1.2", "1.3"}, names(tl.Between(2.4, 4)))
	assert.Equal(t, []string{"1.3"}, names(tl.Between(4, 4)))
	assert.Empty(t, tl.Between(3.5, 3))
	assert.Equal(t, []string{"1.0", "1.1"}, names(tl.Between(-1, 2)))
}
