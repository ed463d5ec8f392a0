package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/dataset"
	apperrors "github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/logging"
	"github.com/rohankatakam/defectset/internal/proportion"
	"github.com/rohankatakam/defectset/internal/storage"
	"github.com/rohankatakam/defectset/internal/tracker"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// header renders a commit header line in the log format.
func header(hash, author, subject string) string {
	return "\x1e" + hash + "\x1f" + author + "\x1f" + subject + "\n\n"
}

type fakeVCS struct {
	syncErr   error
	tags      map[string]time.Time
	files     map[string][]string
	loc       map[string]int64
	created   map[string]time.Time
	logs      map[string]string
	checkouts []string
}

func (f *fakeVCS) Sync(ctx context.Context) error { return f.syncErr }

func (f *fakeVCS) Files(ctx context.Context, extension string) ([]string, error) {
	current := f.checkouts[len(f.checkouts)-1]
	var out []string
	for _, p := range f.files[current] {
		if strings.HasSuffix(p, extension) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeVCS) Log(ctx context.Context, from, to string) (string, error) {
	return f.logs[from+".."+to], nil
}

func (f *fakeVCS) TagDate(ctx context.Context, tag string) (time.Time, error) {
	return f.tags[tag], nil
}

func (f *fakeVCS) FileCreationDate(ctx context.Context, path string) (time.Time, error) {
	return f.created[path], nil
}

func (f *fakeVCS) Checkout(ctx context.Context, ref string) error {
	f.checkouts = append(f.checkouts, ref)
	return nil
}

func (f *fakeVCS) LOC(ctx context.Context, paths []string) (map[string]int64, error) {
	out := make(map[string]int64, len(paths))
	for _, p := range paths {
		out[p] = f.loc[p]
	}
	return out, nil
}

type fakeTracker struct {
	versions []tracker.Version
	issues   []tracker.Issue
	keys     []string
}

func (f *fakeTracker) Bugs(ctx context.Context, project string) ([]tracker.Issue, error) {
	f.keys = append(f.keys, project)
	return f.issues, nil
}

func (f *fakeTracker) Versions(ctx context.Context, project string) ([]tracker.Version, error) {
	return f.versions, nil
}

func demoProject(name string) config.ProjectConfig {
	return config.ProjectConfig{
		Name:         name,
		TagTemplate:  "v{version}",
		MovingWindow: 0.5,
		Extension:    ".java",
		MainFraction: 0.5,
		TrackerKey:   "DEMO",
	}
}

// demoSources returns four tagged releases (two main), one untagged
// version and three bugs: DEMO-1 with declared versions, DEMO-2 fixed in
// a dropped release and DEMO-3 without a fix commit.
func demoSources() (*fakeVCS, *fakeTracker) {
	both := []string{"src/A.java", "src/B.java", "README.md"}
	vcs := &fakeVCS{
		tags: map[string]time.Time{
			"v1.0": day("2020-01-10"),
			"v1.1": day("2020-02-10"),
			"v1.2": day("2020-03-10"),
			"v1.3": day("2020-04-10"),
		},
		files: map[string][]string{"v1.0": both, "v1.1": both},
		loc:   map[string]int64{"src/A.java": 100, "src/B.java": 50},
		created: map[string]time.Time{
			"src/A.java": day("2019-12-01"),
			"src/B.java": day("2019-12-15"),
		},
		logs: map[string]string{
			"..v1.0": header("c1", "alice", "initial import") +
				"10\t0\tsrc/A.java\n5\t0\tsrc/B.java\n",
			"v1.0..v1.1": header("c2", "bob", "DEMO-1: fix npe") +
				"3\t1\tsrc/A.java\n",
			"v1.1..v1.2": header("c3", "alice", "demo-2 fix overflow") +
				"2\t2\tsrc/B.java\n",
		},
	}

	issues := &fakeTracker{
		versions: []tracker.Version{
			{Name: "1.0", ReleaseDate: day("2020-01-10"), Released: true},
			{Name: "1.1", ReleaseDate: day("2020-02-10"), Released: true},
			{Name: "1.2", ReleaseDate: day("2020-03-10"), Released: true},
			{Name: "1.3", ReleaseDate: day("2020-04-10"), Released: true},
			{Name: "2.0", ReleaseDate: day("2020-06-01")},
		},
		issues: []tracker.Issue{
			{Key: "DEMO-1", Created: day("2020-01-20"), Resolved: day("2020-02-05"), Versions: []string{"1.0"}},
			{Key: "DEMO-2", Created: day("2020-02-15"), Resolved: day("2020-03-05")},
			{Key: "DEMO-3", Created: day("2020-02-20"), Resolved: day("2020-03-01")},
		},
	}
	return vcs, issues
}

func TestBuild(t *testing.T) {
	vcs, issues := demoSources()
	b := NewBuilder(demoProject("demo"), vcs, issues, logging.Quiet())

	result, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.Timeline.Len())
	assert.Equal(t, 2, result.Timeline.MainHorizon())
	assert.Equal(t, []string{"2.0"}, result.UnknownReleases)
	assert.Equal(t, []string{"v1.0", "v1.1"}, vcs.checkouts, "only main releases are checked out")
	assert.Equal(t, []string{"DEMO"}, issues.keys)

	assert.Len(t, result.Estimate.Bugs, 2)
	assert.Equal(t, 1, result.Estimate.Discarded[proportion.DiscardNoFixCommit])
	assert.Equal(t, 1, result.Estimate.ProportionSize)

	require.Len(t, result.Rows, 4)
	a1, b1, a2, b2 := result.Rows[0], result.Rows[1], result.Rows[2], result.Rows[3]

	assert.Equal(t, 1, a1.Version)
	assert.Equal(t, "src/A.java", a1.File)
	assert.Equal(t, int64(100), a1.LOC)
	assert.Equal(t, 10, a1.LOCTouched)
	assert.Equal(t, 1, a1.ChgSetSize)
	assert.Equal(t, int64(5), a1.Age)
	assert.True(t, a1.Buggy, "declared affected version 1.0")

	assert.Equal(t, "src/B.java", b1.File)
	assert.False(t, b1.Buggy)

	assert.Equal(t, 2, a2.Version)
	assert.Equal(t, 4, a2.LOCTouched)
	assert.Equal(t, 2, a2.Churn)
	assert.Equal(t, 1, a2.NFix)
	assert.Equal(t, int64(10), a2.Age)
	assert.False(t, a2.Buggy, "the fixed version is not affected")

	// DEMO-2 is fixed in a dropped release: no fix count, no label.
	assert.Equal(t, 0, b2.NR)
	assert.Equal(t, 0, b2.NFix)
	assert.False(t, b2.Buggy)
}

func TestBuildIsDeterministic(t *testing.T) {
	render := func() []byte {
		vcs, issues := demoSources()
		result, err := NewBuilder(demoProject("demo"), vcs, issues, logging.Quiet()).Build(context.Background())
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, dataset.WriteCSV(&buf, result.Rows))
		return buf.Bytes()
	}

	assert.Equal(t, render(), render())
}

func TestBuildErrors(t *testing.T) {
	t.Run("sync failure", func(t *testing.T) {
		vcs, issues := demoSources()
		vcs.syncErr = apperrors.FetchFailure(assert.AnError, "clone failed")

		_, err := NewBuilder(demoProject("demo"), vcs, issues, logging.Quiet()).Build(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrFetch)
	})

	t.Run("no tagged release", func(t *testing.T) {
		vcs, issues := demoSources()
		vcs.tags = nil

		_, err := NewBuilder(demoProject("demo"), vcs, issues, logging.Quiet()).Build(context.Background())
		assert.ErrorIs(t, err, apperrors.ErrUnknownRelease)
	})
}

func TestRunnerIsolatesFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Build.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Build.Parallelism = 2

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"), logging.Quiet())
	require.NoError(t, err)
	defer store.Close()

	runner := NewRunner(cfg, store, logging.Quiet())

	var cleaned atomic.Int32
	runner.Sources = func(p config.ProjectConfig) (VCS, Tracker, func(), error) {
		vcs, issues := demoSources()
		if p.Name == "broken" {
			vcs.syncErr = apperrors.FetchFailure(assert.AnError, "clone failed")
		}
		return vcs, issues, func() { cleaned.Add(1) }, nil
	}

	var done []string
	runner.OnDone = func(r Report) { done = append(done, r.Project) }

	ctx := context.Background()
	reports, err := runner.Run(ctx, []config.ProjectConfig{demoProject("broken"), demoProject("demo")})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrFetch)
	assert.Contains(t, err.Error(), "broken")

	require.Len(t, reports, 2)
	assert.Error(t, reports[0].Err)
	require.NoError(t, reports[1].Err)
	assert.ElementsMatch(t, []string{"broken", "demo"}, done)
	assert.Equal(t, int32(2), cleaned.Load())

	good := reports[1]
	assert.Equal(t, 4, good.Rows)
	assert.Equal(t, 1, good.Buggy)
	assert.Equal(t, 1, good.Discarded)

	content, err := os.ReadFile(good.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "Version,"), string(content))

	build, err := store.LatestBuild(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, good.BuildID, build.ID)
	assert.Equal(t, 4, build.RowCount)

	rows, err := store.GetRows(ctx, build.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	releases, err := store.GetReleases(ctx, build.ID)
	require.NoError(t, err)
	assert.Len(t, releases, 4)

	_, err = store.LatestBuild(ctx, "broken")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunnerLogsFailureKind(t *testing.T) {
	cfg := config.Default()
	cfg.Build.OutputDir = filepath.Join(t.TempDir(), "out")

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"), logging.Quiet())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	runner := NewRunner(cfg, store, logger)
	runner.Sources = func(p config.ProjectConfig) (VCS, Tracker, func(), error) {
		vcs, issues := demoSources()
		return vcs, issues, func() {}, nil
	}

	reports, err := runner.Run(context.Background(), []config.ProjectConfig{demoProject("demo")})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStorage)
	require.Len(t, reports, 1)
	assert.Empty(t, reports[0].BuildID)

	var failure, detail *logrus.Entry
	for _, entry := range hook.AllEntries() {
		switch entry.Level {
		case logrus.ErrorLevel:
			failure = entry
		case logrus.DebugLevel:
			if strings.Contains(entry.Message, "[STORAGE]") {
				detail = entry
			}
		}
	}
	require.NotNil(t, failure)
	assert.Equal(t, "Failed to store build", failure.Message)
	assert.Equal(t, "STORAGE", failure.Data["kind"])
	assert.Equal(t, "demo", failure.Data["project"])

	require.NotNil(t, detail)
	assert.Contains(t, detail.Message, "Caused by:")
}
