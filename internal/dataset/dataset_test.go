package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectset/internal/metrics"
	"github.com/rohankatakam/defectset/internal/release"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixtureTimeline(t *testing.T) *release.Timeline {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	tl := release.NewTimeline([]*release.Release{
		release.New("1.0", "v1.0", day(2020, 3, 1), time.Time{}),
		release.New("1.1", "v1.1", day(2020, 6, 1), time.Time{}),
		release.New("1.2", "v1.2", day(2020, 9, 1), time.Time{}),
	}, 0.67, logger)
	require.Len(t, tl.Main(), 2)

	r1 := tl.ByID(1)
	r1.Files["src/B.java"] = metrics.New(40, day(2020, 2, 1), r1.GitDate)
	a := metrics.New(100, day(2020, 1, 1), r1.GitDate)
	a.Update("alice", 1, 10, 2)
	a.Update("bob", 2, 5, 0)
	a.MarkBuggy()
	a.AddFix()
	r1.Files["src/A.java"] = a

	r2 := tl.ByID(2)
	r2.Files["src/A.java"] = metrics.New(103, day(2020, 1, 1), r2.GitDate)

	// Dropped releases never produce rows.
	tl.ByID(3).Files["src/A.java"] = metrics.New(1, day(2020, 1, 1), day(2020, 9, 1))
	return tl
}

func TestRows(t *testing.T) {
	rows := Rows(fixtureTimeline(t))
	require.Len(t, rows, 3)

	assert.Equal(t, 1, rows[0].Version)
	assert.Equal(t, "src/A.java", rows[0].File)
	assert.Equal(t, 1, rows[1].Version)
	assert.Equal(t, "src/B.java", rows[1].File)
	assert.Equal(t, 2, rows[2].Version)

	a := rows[0]
	assert.Equal(t, Row{
		Version:     1,
		File:        "src/A.java",
		LOC:         100,
		LOCTouched:  17,
		NR:          2,
		NAuth:       2,
		LOCAdded:    15,
		MaxLOCAdded: 10,
		AvgLOCAdded: 7.5,
		Churn:       13,
		MaxChurn:    8,
		AvgChurn:    6.5,
		ChgSetSize:  3,
		MaxChgSet:   2,
		AvgChgSet:   1.5,
		Age:         8,
		WeightedAge: 136,
		NFix:        1,
		Buggy:       true,
	}, a)
	assert.Equal(t, 1, BuggyCount(rows))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Rows(fixtureTimeline(t))))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Version,File,LOC,LOC_Touched,NR,NAuth,LOC_Added,MAX_LOC_Added,AVG_LOC_Added,"+
		"Churn,MAX_Churn,AVG_Churn,ChgSetSize,MAX_ChgSet,AVG_ChgSet,Age,WeightedAge,NFix,Buggy", lines[0])
	assert.Equal(t, "1,src/A.java,100,17,2,2,15,10,7.5,13,8,6.5,3,2,1.5,8,136,1,Yes", lines[1])
	assert.Equal(t, "1,src/B.java,40,0,0,0,0,0,0,0,0,0,0,0,0,4,0,0,No", lines[2])
	assert.Equal(t, "2,src/A.java,103,0,0,0,0,0,0,0,0,0,0,0,0,21,0,0,No", lines[3])
}

func TestWriteCSVIsByteStable(t *testing.T) {
	var first, second bytes.Buffer
	require.NoError(t, WriteCSV(&first, Rows(fixtureTimeline(t))))
	require.NoError(t, WriteCSV(&second, Rows(fixtureTimeline(t))))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "syncope.csv")
	rows := Rows(fixtureTimeline(t))

	require.NoError(t, WriteFile(path, rows))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestReadCSVRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong header", strings.Replace(strings.Join(Header, ","), "NFix", "Fixes", 1) + "\n"},
		{"bad number", strings.Join(Header, ",") + "\n1,A.java,x,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,No\n"},
		{"bad label", strings.Join(Header, ",") + "\n1,A.java,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,Maybe\n"},
		{"short record", strings.Join(Header, ",") + "\n1,A.java\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestWriteFileCreatesDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, WriteFile(filepath.Join(dir, "p.csv"), nil))

	data, err := os.ReadFile(filepath.Join(dir, "p.csv"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(Header, ",")+"\n", string(data))
}

func TestWalkForward(t *testing.T) {
	rows := []Row{
		{Version: 1, File: "A", Buggy: true},
		{Version: 1, File: "B"},
		{Version: 2, File: "A"},
		{Version: 2, File: "B", Buggy: true},
		{Version: 3, File: "A"},
		{Version: 3, File: "B"},
		{Version: 3, File: "C", Buggy: true},
		{Version: 3, File: "D"},
	}

	splits := WalkForward(rows)
	require.Len(t, splits, 2)

	assert.Equal(t, 2, splits[0].Release)
	assert.Len(t, splits[0].Training, 2)
	assert.Len(t, splits[0].Testing, 2)
	assert.InDelta(t, 50.0, splits[0].TrainingBuggyPct(), 1e-9)
	assert.InDelta(t, 50.0, splits[0].TestingBuggyPct(), 1e-9)

	assert.Equal(t, 3, splits[1].Release)
	assert.Len(t, splits[1].Training, 4)
	assert.Len(t, splits[1].Testing, 4)
	assert.Equal(t, 2, splits[1].TrainingBugs)
	assert.InDelta(t, 25.0, splits[1].TestingBuggyPct(), 1e-9)
}

func TestWalkForwardSingleRelease(t *testing.T) {
	assert.Empty(t, WalkForward([]Row{{Version: 1, File: "A"}}))
	assert.Empty(t, WalkForward(nil))
}

func TestSplitPercentOfEmpty(t *testing.T) {
	assert.Zero(t, Split{}.TrainingBuggyPct())
}
