// Package release orders, filters and partitions the releases of a project.
package release

import (
	"time"

	"github.com/rohankatakam/defectset/internal/git"
	"github.com/rohankatakam/defectset/internal/metrics"
)

// Release is one tagged version of a project.
type Release struct {
	// ID is the 1-based position in the timeline, assigned by NewTimeline.
	ID   int
	Name string
	Tag  string

	GitDate     time.Time
	TrackerDate time.Time

	// Files is populated for main releases only.
	Files   metrics.FileMetrics
	Commits []*git.Commit

	Dropped bool
}

// New creates a release with an empty file map.
func New(name, tag string, gitDate, trackerDate time.Time) *Release {
	return &Release{
		Name:        name,
		Tag:         tag,
		GitDate:     gitDate,
		TrackerDate: trackerDate,
		Files:       make(metrics.FileMetrics),
	}
}

// Equal reports whether both releases have the same name and git date.
func (r *Release) Equal(other *Release) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Name == other.Name && r.GitDate.Equal(other.GitDate)
}

// Date is the tracker release date, or the git date when the tracker has none.
func (r *Release) Date() time.Time {
	if r.TrackerDate.IsZero() {
		return r.GitDate
	}
	return r.TrackerDate
}

// IsMain reports whether the release is used for training and labeling.
func (r *Release) IsMain() bool {
	return !r.Dropped
}
