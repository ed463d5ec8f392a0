package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/dataset"
	apperrors "github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/git"
	"github.com/rohankatakam/defectset/internal/release"
	"github.com/rohankatakam/defectset/internal/storage"
	"github.com/rohankatakam/defectset/internal/tracker"
)

// Sources opens the repository and tracker of a project. The returned
// cleanup releases whatever the sources hold open.
type Sources func(project config.ProjectConfig) (VCS, Tracker, func(), error)

// Report summarizes one finished project build.
type Report struct {
	Project   string
	BuildID   string
	Path      string
	Releases  int
	Main      int
	Rows      int
	Buggy     int
	Bugs      int
	Discarded int
	Duration  time.Duration
	Err       error
}

// Runner builds several projects concurrently. Projects share nothing, and a
// failing project never cancels the others.
type Runner struct {
	Config  *config.Config
	Store   storage.Store
	Logger  *logrus.Logger
	Sources Sources

	// OnDone is called once per project, successful or not.
	OnDone func(Report)
}

// NewRunner creates a runner that opens git repositories under the work
// directory and talks to the configured tracker. store may be nil.
func NewRunner(cfg *config.Config, store storage.Store, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{
		Config:  cfg,
		Store:   store,
		Logger:  logger,
		Sources: DefaultSources(cfg, logger),
	}
}

// DefaultSources clones each project into <work_dir>/<name>, caches git
// queries in <cache_dir>/<name>.db when enabled, and reads issues from JIRA.
func DefaultSources(cfg *config.Config, logger *logrus.Logger) Sources {
	return func(project config.ProjectConfig) (VCS, Tracker, func(), error) {
		var cache *git.QueryCache
		cleanup := func() {}
		if cfg.Cache.Enabled {
			c, err := git.OpenQueryCache(filepath.Join(cfg.Cache.Directory, project.Name+".db"))
			if err != nil {
				return nil, nil, nil, err
			}
			cache = c
			cleanup = func() { c.Close() }
		}

		repo := git.NewRepo(filepath.Join(cfg.Build.WorkDir, project.Name), project.URL, cache, logger)

		client, err := tracker.NewJiraClient(cfg.Tracker.BaseURL, cfg.Tracker.RateLimit, logger)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		if cfg.Tracker.PageSize > 0 {
			client.PageSize = cfg.Tracker.PageSize
		}
		return repo, client, cleanup, nil
	}
}

// Run builds every project and returns one report per project in input
// order. The error joins the failures of all projects.
func (r *Runner) Run(ctx context.Context, projects []config.ProjectConfig) ([]Report, error) {
	reports := make([]Report, len(projects))

	var (
		mu   sync.Mutex
		errs []error
	)

	// A plain group: a project error must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(max(1, r.Config.Build.Parallelism))

	for i, project := range projects {
		i, project := i, project
		g.Go(func() error {
			report := r.runProject(ctx, project)
			reports[i] = report

			mu.Lock()
			if report.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", project.Name, report.Err))
			}
			if r.OnDone != nil {
				r.OnDone(report)
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return reports, errors.Join(errs...)
}

func (r *Runner) runProject(ctx context.Context, project config.ProjectConfig) Report {
	report := Report{Project: project.Name}
	log := r.Logger.WithField("project", project.Name)

	vcs, issues, cleanup, err := r.Sources(project)
	if err != nil {
		report.Err = err
		logFailure(log, err, "Failed to open project sources")
		return report
	}
	defer cleanup()

	result, err := NewBuilder(project, vcs, issues, r.Logger).Build(ctx)
	if err != nil {
		report.Err = err
		logFailure(log, err, "Build failed")
		return report
	}

	report.Releases = result.Timeline.Len()
	report.Main = result.Timeline.MainHorizon()
	report.Rows = len(result.Rows)
	report.Buggy = dataset.BuggyCount(result.Rows)
	report.Bugs = len(result.Estimate.Bugs)
	report.Discarded = result.Estimate.DiscardedTotal()
	report.Duration = result.Duration

	report.Path = filepath.Join(r.Config.Build.OutputDir, project.Name+".csv")
	if err := dataset.WriteFile(report.Path, result.Rows); err != nil {
		report.Err = err
		logFailure(log, err, "Failed to write dataset")
		return report
	}

	if r.Store != nil {
		id, err := r.persist(ctx, result)
		if err != nil {
			report.Err = err
			logFailure(log, err, "Failed to store build")
			return report
		}
		report.BuildID = id
	}

	log.WithFields(logrus.Fields{
		"path":     report.Path,
		"build_id": report.BuildID,
	}).Info("Project done")
	return report
}

// logFailure logs err with its kind. Structured errors also log their cause,
// context and stack at debug level.
func logFailure(log *logrus.Entry, err error, msg string) {
	log = log.WithError(err).WithField("kind", apperrors.GetType(err).String())
	var e *apperrors.Error
	if errors.As(err, &e) {
		log.Debug(e.DetailedString())
	}
	log.Error(msg)
}

// persist stores the build summary, its timeline and its rows.
func (r *Runner) persist(ctx context.Context, result *Result) (string, error) {
	build := &storage.Build{
		ID:           uuid.NewString(),
		Project:      result.Project,
		CreatedAt:    time.Now().UTC(),
		Releases:     result.Timeline.Len(),
		MainReleases: result.Timeline.MainHorizon(),
		Bugs:         len(result.Estimate.Bugs),
		Discarded:    result.Estimate.DiscardedTotal(),
		RowCount:     len(result.Rows),
	}
	if err := r.Store.SaveBuild(ctx, build); err != nil {
		return "", err
	}

	records := lo.Map(result.Timeline.All(), func(rel *release.Release, _ int) storage.ReleaseRecord {
		return storage.ReleaseRecord{
			BuildID:     build.ID,
			ReleaseID:   rel.ID,
			Name:        rel.Name,
			Tag:         rel.Tag,
			GitDate:     rel.GitDate,
			TrackerDate: rel.TrackerDate,
			Dropped:     rel.Dropped,
		}
	})
	if err := r.Store.SaveReleases(ctx, build.ID, records); err != nil {
		return "", err
	}

	if err := r.Store.SaveRows(ctx, build.ID, result.Rows); err != nil {
		return "", err
	}
	return build.ID, nil
}
