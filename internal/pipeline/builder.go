// Package pipeline builds the dataset of a project from its repository and
// issue tracker, and runs several project builds side by side.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/defectset/internal/config"
	"github.com/rohankatakam/defectset/internal/dataset"
	apperrors "github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/git"
	"github.com/rohankatakam/defectset/internal/metrics"
	"github.com/rohankatakam/defectset/internal/proportion"
	"github.com/rohankatakam/defectset/internal/release"
	"github.com/rohankatakam/defectset/internal/tracker"
)

// VCS is the repository a build reads from.
type VCS interface {
	Sync(ctx context.Context) error
	Files(ctx context.Context, extension string) ([]string, error)
	Log(ctx context.Context, from, to string) (string, error)
	TagDate(ctx context.Context, tag string) (time.Time, error)
	FileCreationDate(ctx context.Context, path string) (time.Time, error)
	Checkout(ctx context.Context, ref string) error
	LOC(ctx context.Context, paths []string) (map[string]int64, error)
}

// Tracker is the issue tracker a build reads from.
type Tracker interface {
	Bugs(ctx context.Context, project string) ([]tracker.Issue, error)
	Versions(ctx context.Context, project string) ([]tracker.Version, error)
}

// creationLookups bounds concurrent creation-date queries per release.
const creationLookups = 8

// Result is the outcome of one project build.
type Result struct {
	Project  string
	Timeline *release.Timeline
	Rows     []dataset.Row
	Estimate *proportion.Result

	// UnknownReleases lists tracker versions with no git tag.
	UnknownReleases []string
	// SkippedLines counts malformed log lines over all releases.
	SkippedLines int
	Duration     time.Duration
}

// Builder builds the dataset of a single project.
type Builder struct {
	Project config.ProjectConfig
	VCS     VCS
	Tracker Tracker
	Logger  *logrus.Logger
}

// NewBuilder creates a builder for project.
func NewBuilder(project config.ProjectConfig, vcs VCS, issues Tracker, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{
		Project: project,
		VCS:     vcs,
		Tracker: issues,
		Logger:  logger,
	}
}

// Build syncs the repository, assembles the release timeline, computes
// per-file metrics for the main releases, estimates affected versions and
// returns the labeled rows. Any error aborts this project only.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := b.Logger.WithField("project", b.Project.Name)
	result := &Result{Project: b.Project.Name}

	log.Info("Syncing repository")
	if err := b.VCS.Sync(ctx); err != nil {
		return nil, err
	}

	timeline, err := b.timeline(ctx, result)
	if err != nil {
		return nil, err
	}
	result.Timeline = timeline
	if timeline.Len() == 0 {
		return nil, apperrors.UnknownReleasef("project %s has no release with a git tag", b.Project.Name)
	}
	log.WithFields(logrus.Fields{
		"releases": timeline.Len(),
		"main":     timeline.MainHorizon(),
		"unknown":  len(result.UnknownReleases),
	}).Info("Release timeline assembled")

	prevTag := ""
	for _, r := range timeline.All() {
		if r.IsMain() {
			if err := b.snapshot(ctx, r); err != nil {
				return nil, err
			}
		}
		skipped, err := b.readCommits(ctx, r, prevTag)
		if err != nil {
			return nil, err
		}
		result.SkippedLines += skipped
		prevTag = r.Tag

		log.WithFields(logrus.Fields{
			"release": r.Name,
			"id":      r.ID,
			"files":   len(r.Files),
			"commits": len(r.Commits),
			"dropped": r.Dropped,
		}).Debug("Release processed")
	}

	issues, err := b.Tracker.Bugs(ctx, b.Project.Key())
	if err != nil {
		return nil, err
	}

	estimator := proportion.NewEstimator(timeline, b.Project.MovingWindow, b.Logger)
	result.Estimate = estimator.Estimate(issues)
	result.Rows = dataset.Rows(timeline)
	result.Duration = time.Since(start)

	log.WithFields(logrus.Fields{
		"rows":      len(result.Rows),
		"buggy":     dataset.BuggyCount(result.Rows),
		"bugs":      len(result.Estimate.Bugs),
		"discarded": result.Estimate.DiscardedTotal(),
		"skipped":   result.SkippedLines,
		"duration":  result.Duration.Round(time.Millisecond),
	}).Info("Dataset built")
	return result, nil
}

// timeline joins tracker versions with their git tags. Versions without a
// tag are recorded as unknown and left out.
func (b *Builder) timeline(ctx context.Context, result *Result) (*release.Timeline, error) {
	versions, err := b.Tracker.Versions(ctx, b.Project.Key())
	if err != nil {
		return nil, err
	}

	releases := make([]*release.Release, 0, len(versions))
	for _, v := range versions {
		tag := b.Project.Tag(v.Name)
		gitDate, err := b.VCS.TagDate(ctx, tag)
		if err != nil {
			return nil, err
		}
		if gitDate.IsZero() {
			result.UnknownReleases = append(result.UnknownReleases, v.Name)
			err := apperrors.UnknownReleasef("no tag %s for version %s", tag, v.Name)
			b.Logger.WithField("project", b.Project.Name).Warn(err.Error())
			continue
		}
		releases = append(releases, release.New(v.Name, tag, gitDate, v.ReleaseDate))
	}

	return release.NewTimeline(releases, b.Project.MainFraction, b.Logger), nil
}

// snapshot checks out a main release and seeds its metrics map with the
// size and age of every tracked file.
func (b *Builder) snapshot(ctx context.Context, r *release.Release) error {
	if err := b.VCS.Checkout(ctx, r.Tag); err != nil {
		return err
	}

	paths, err := b.VCS.Files(ctx, b.Project.Extension)
	if err != nil {
		return err
	}

	loc, err := b.VCS.LOC(ctx, paths)
	if err != nil {
		return apperrors.FetchFailuref(err, "failed to count lines of %s", r.Tag)
	}

	created := make([]time.Time, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(creationLookups)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			date, err := b.VCS.FileCreationDate(gctx, path)
			if err != nil {
				return fmt.Errorf("creation date of %s: %w", path, err)
			}
			created[i] = date
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	files := make(metrics.FileMetrics, len(paths))
	for i, path := range paths {
		files[path] = metrics.New(loc[path], created[i], r.GitDate)
	}
	r.Files = files
	return nil
}

// readCommits parses the commits between prevTag and the release tag. Only
// main releases accumulate metrics.
func (b *Builder) readCommits(ctx context.Context, r *release.Release, prevTag string) (int, error) {
	text, err := b.VCS.Log(ctx, prevTag, r.Tag)
	if err != nil {
		return 0, err
	}

	parser := &git.Parser{Extension: b.Project.Extension}
	if r.IsMain() {
		parser.Metrics = r.Files
	}

	parsed := parser.Parse(text)
	r.Commits = parsed.Commits
	if parsed.Skipped > 0 {
		err := apperrors.ParseAmbiguityf("%d malformed log lines in %s", parsed.Skipped, r.Tag)
		b.Logger.WithFields(logrus.Fields{
			"project": b.Project.Name,
			"release": r.Name,
		}).Debug(err.Error())
	}
	return parsed.Skipped, nil
}
