package metrics

import (
	"time"

	"github.com/hashicorp/go-set/v2"
)

// Metrics holds the running statistics of one file in one release.
// Every field except LOC and Age starts at zero and only grows through Update,
// AddFix and MarkBuggy.
type Metrics struct {
	LOC              int64
	LOCTouched       int
	NumRevisions     int
	Authors          *set.Set[string]
	LOCAdded         int
	MaxLOCAdded      int
	AvgLOCAdded      float64
	Churn            int
	MaxChurn         int
	AvgChurn         float64
	ChangeSetSize    int
	MaxChangeSetSize int
	AvgChangeSetSize float64
	Age              int64 // weeks between file creation and release
	NumFixes         int
	Buggy            bool
}

// New creates the metrics of a file checked out at a release.
func New(loc int64, created, released time.Time) *Metrics {
	return &Metrics{
		LOC:     loc,
		Authors: set.New[string](4),
		Age:     WeeksBetween(created, released),
	}
}

// WeeksBetween returns the number of whole weeks from start to end,
// truncated toward zero. An end before start yields 0. Calendar dates are
// compared, so the time of day and DST transitions do not shift the result.
func WeeksBetween(start, end time.Time) int64 {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	days := int64(e.Sub(s).Hours() / 24)
	return max(0, days/7)
}

// Update folds one commit touching the file into the statistics.
// Averages are maintained incrementally with the new revision count.
func (m *Metrics) Update(author string, changeSetSize, locAdded, locDeleted int) {
	m.LOCTouched += locAdded + locDeleted
	m.NumRevisions++
	m.Authors.Insert(author)

	n := float64(m.NumRevisions)

	m.LOCAdded += locAdded
	m.MaxLOCAdded = max(m.MaxLOCAdded, locAdded)
	m.AvgLOCAdded += (float64(locAdded) - m.AvgLOCAdded) / n

	churn := locAdded - locDeleted
	m.Churn += churn
	m.MaxChurn = max(m.MaxChurn, churn)
	m.AvgChurn += (float64(churn) - m.AvgChurn) / n

	m.ChangeSetSize += changeSetSize
	m.MaxChangeSetSize = max(m.MaxChangeSetSize, changeSetSize)
	m.AvgChangeSetSize += (float64(changeSetSize) - m.AvgChangeSetSize) / n
}

// NumAuthors returns the number of distinct commit authors
func (m *Metrics) NumAuthors() int {
	return m.Authors.Size()
}

// WeightedAge is age scaled by the lines touched in the release
func (m *Metrics) WeightedAge() int64 {
	return m.Age * int64(m.LOCTouched)
}

// AddFix records a bug-fix commit touching the file
func (m *Metrics) AddFix() {
	m.NumFixes++
}

// MarkBuggy labels the file as containing a defect in this release
func (m *Metrics) MarkBuggy() {
	m.Buggy = true
}

// FileMetrics is the metrics map of a single release, keyed by file path.
type FileMetrics map[string]*Metrics

// Update applies a commit to path if the release tracks it.
// Paths the release does not contain are ignored.
func (fm FileMetrics) Update(path, author string, changeSetSize, locAdded, locDeleted int) {
	if m, ok := fm[path]; ok {
		m.Update(author, changeSetSize, locAdded, locDeleted)
	}
}
