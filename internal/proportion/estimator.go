// Package proportion maps fixed bugs to the releases they affected. Bugs
// with usable tracker data keep their declared affected versions; the rest
// get an injection version estimated with the moving-window proportion
// method.
package proportion

import (
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/hashicorp/go-set/v2"
	"github.com/sirupsen/logrus"

	apperrors "github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/release"
	"github.com/rohankatakam/defectset/internal/tracker"
)

// DiscardReason explains why a bug was left out of the dataset.
type DiscardReason string

const (
	DiscardNoFixCommit      DiscardReason = "no_fix_commit"
	DiscardNoOpeningVersion DiscardReason = "no_opening_version"
	DiscardUnknownVersions  DiscardReason = "unknown_versions"
	DiscardInconsistent     DiscardReason = "injected_after_fix"
	DiscardNotPostRelease   DiscardReason = "not_post_release"
)

// Bug is a tracker issue matched to the repository history.
type Bug struct {
	Key        string
	Created    time.Time
	Resolution time.Time

	OpeningVersion   *release.Release
	FixedVersion     *release.Release
	AffectedVersions []*release.Release
	AffectedFiles    *set.Set[string]

	// Declared is set when AffectedVersions came from the tracker.
	Declared bool
	// Estimated is set when AffectedVersions came from the proportion method.
	Estimated bool
}

// InjectedVersion is the earliest affected version, nil before estimation.
func (b *Bug) InjectedVersion() *release.Release {
	if len(b.AffectedVersions) == 0 {
		return nil
	}
	return b.AffectedVersions[0]
}

// Files returns the affected files in sorted order.
func (b *Bug) Files() []string {
	files := b.AffectedFiles.Slice()
	sort.Strings(files)
	return files
}

// Result is the outcome of one estimation pass.
type Result struct {
	Bugs      []*Bug
	Discarded map[DiscardReason]int
	// ProportionSize is the number of bugs with declared versions that
	// served as proportion samples.
	ProportionSize  int
	UnknownVersions int
}

// DiscardedTotal sums the discard counters.
func (r *Result) DiscardedTotal() int {
	total := 0
	for _, n := range r.Discarded {
		total += n
	}
	return total
}

// Estimator labels the releases of a timeline from a set of bug reports.
type Estimator struct {
	Timeline     *release.Timeline
	MovingWindow float64
	Logger       *logrus.Logger
}

// NewEstimator creates an estimator over timeline.
func NewEstimator(timeline *release.Timeline, movingWindow float64, logger *logrus.Logger) *Estimator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Estimator{
		Timeline:     timeline,
		MovingWindow: movingWindow,
		Logger:       logger,
	}
}

// Estimate resolves fixed and affected versions for every issue, then marks
// the affected files buggy in the main releases. Fix counts are updated on
// the main releases as a side effect.
func (e *Estimator) Estimate(issues []tracker.Issue) *Result {
	result := &Result{Discarded: make(map[DiscardReason]int)}

	var bugs, proportionList []*Bug
	for _, issue := range issues {
		bug := &Bug{
			Key:           issue.Key,
			Created:       issue.Created,
			Resolution:    issue.Resolved,
			AffectedFiles: set.New[string](4),
		}

		if !e.matchFixes(bug) {
			e.discard(result, bug, DiscardNoFixCommit)
			continue
		}

		bug.OpeningVersion = e.Timeline.ByDate(issue.Created)
		if bug.OpeningVersion == nil {
			e.discard(result, bug, DiscardNoOpeningVersion)
			continue
		}

		if len(issue.Versions) == 0 {
			bugs = append(bugs, bug)
			continue
		}

		if reason, ok := e.resolveDeclared(result, bug, issue.Versions); !ok {
			e.discard(result, bug, reason)
			continue
		}
		bugs = append(bugs, bug)
		proportionList = append(proportionList, bug)
	}

	result.ProportionSize = len(proportionList)
	e.proportion(bugs, proportionList)
	e.label(bugs)

	result.Bugs = bugs
	e.Logger.WithFields(logrus.Fields{
		"bugs":        len(bugs),
		"declared":    len(proportionList),
		"discarded":   result.DiscardedTotal(),
		"unknown_ver": result.UnknownVersions,
	}).Info("Estimated affected versions")
	return result
}

func (e *Estimator) discard(result *Result, bug *Bug, reason DiscardReason) {
	result.Discarded[reason]++
	err := apperrors.UnresolvableBugf("bug %s discarded", bug.Key).WithContext("reason", string(reason))
	e.Logger.WithFields(logrus.Fields{
		"bug":    bug.Key,
		"reason": reason,
	}).Debug(err.Error())
}

// matchFixes scans commit subjects of main then dropped releases for the bug
// key. Every matching commit makes its release a fix candidate and its files
// affected; the fixed version is the last candidate.
func (e *Estimator) matchFixes(bug *Bug) bool {
	pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(bug.Key) + `\b`)

	scan := func(releases []*release.Release) {
		for _, r := range releases {
			for _, c := range r.Commits {
				if !pattern.MatchString(c.Subject) {
					continue
				}
				bug.FixedVersion = r
				for _, path := range c.Files {
					bug.AffectedFiles.Insert(path)
					if r.IsMain() {
						if m, ok := r.Files[path]; ok {
							m.AddFix()
						}
					}
				}
			}
		}
	}

	scan(e.Timeline.Main())
	scan(e.Timeline.Dropped())
	return bug.AffectedFiles.Size() > 0
}

// resolveDeclared turns tracker version names into releases and checks that
// the declared injection precedes the fix.
func (e *Estimator) resolveDeclared(result *Result, bug *Bug, names []string) (DiscardReason, bool) {
	seen := set.New[int](len(names))
	var versions []*release.Release
	for _, name := range names {
		r := e.Timeline.ByName(name)
		if r == nil {
			result.UnknownVersions++
			err := apperrors.UnknownReleasef("version %q of %s has no release", name, bug.Key)
			e.Logger.WithField("bug", bug.Key).Warn(err.Error())
			continue
		}
		if seen.Insert(r.ID) {
			versions = append(versions, r)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].ID < versions[j].ID })

	if len(versions) == 0 {
		return DiscardUnknownVersions, false
	}
	injected := versions[0]
	if injected.Date().After(bug.FixedVersion.Date()) {
		return DiscardInconsistent, false
	}
	if injected.Equal(bug.FixedVersion) {
		return DiscardNotPostRelease, false
	}

	bug.AffectedVersions = versions
	bug.Declared = true
	return "", true
}

// proportion estimates the affected versions of every bug without declared
// ones. Both lists are ordered by resolution time; the window cursor into
// proportionList only moves forward.
func (e *Estimator) proportion(bugs, proportionList []*Bug) {
	byResolution := func(list []*Bug) {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Resolution.Before(list[j].Resolution)
		})
	}
	byResolution(bugs)
	byResolution(proportionList)

	windowSize := max(1, int(math.Round(float64(len(proportionList))*e.MovingWindow)))

	lastIssueID := 0
	for _, bug := range bugs {
		if bug.Declared {
			continue
		}
		fv := bug.FixedVersion.ID
		ov := openingID(bug)

		lastIssueID = nextIssueID(bug, proportionList, lastIssueID)
		p := computeP(proportionList, windowSize, lastIssueID)

		iv := float64(fv) - float64(fv-ov)*p
		bug.AffectedVersions = e.Timeline.Between(iv, fv)
		bug.Estimated = true

		e.Logger.WithFields(logrus.Fields{
			"bug": bug.Key,
			"p":   p,
			"iv":  iv,
			"fv":  fv,
		}).Debug("Estimated injection version")
	}
}

// openingID caps the opening version at the fixed version.
func openingID(bug *Bug) int {
	return min(bug.OpeningVersion.ID, bug.FixedVersion.ID)
}

// nextIssueID returns the index of the first proportion sample resolved
// strictly after bug, searching from start onwards. The result is never
// below start.
func nextIssueID(bug *Bug, proportionList []*Bug, start int) int {
	for i := start; i < len(proportionList); i++ {
		if proportionList[i].Resolution.After(bug.Resolution) {
			return i
		}
	}
	return max(start, len(proportionList))
}

// computeP averages (FV-IV)/(FV-OV) over up to windowSize samples before
// lastIssueID, skipping samples opened in their fixed version.
func computeP(proportionList []*Bug, windowSize, lastIssueID int) float64 {
	var p float64
	counted := 0
	for id := lastIssueID; counted < windowSize && id > 0; {
		id--
		sample := proportionList[id]
		fv := sample.FixedVersion.ID
		ov := openingID(sample)
		if ov == fv {
			continue
		}
		iv := sample.InjectedVersion().ID
		p += float64(fv-iv) / float64(fv-ov)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return p / float64(counted)
}

// label marks every affected file buggy in the main releases between the
// first and last affected version.
func (e *Estimator) label(bugs []*Bug) {
	horizon := e.Timeline.MainHorizon()
	for _, bug := range bugs {
		if len(bug.AffectedVersions) == 0 {
			continue
		}
		first := bug.AffectedVersions[0].ID
		last := min(bug.AffectedVersions[len(bug.AffectedVersions)-1].ID, horizon)

		files := bug.Files()
		for id := first; id <= last; id++ {
			r := e.Timeline.ByID(id)
			if r == nil {
				continue
			}
			for _, path := range files {
				if m, ok := r.Files[path]; ok {
					m.MarkBuggy()
				}
			}
		}
	}
}
