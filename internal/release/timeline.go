package release

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Timeline is the ordered, filtered release list of one project, split into
// a main prefix and a dropped suffix.
type Timeline struct {
	all     []*Release
	main    []*Release
	dropped []*Release
	byName  map[string]*Release
}

// NewTimeline orders releases by git date, removes backward compatibility
// releases, numbers the rest from 1 and keeps the oldest
// max(1, round(n*mainFraction)) of them as main releases.
func NewTimeline(releases []*Release, mainFraction float64, logger *logrus.Logger) *Timeline {
	ordered := make([]*Release, len(releases))
	copy(ordered, releases)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.GitDate.Equal(b.GitDate) {
			return a.GitDate.Before(b.GitDate)
		}
		pa, _ := NumericPrefix(a.Name)
		pb, _ := NumericPrefix(b.Name)
		if c := CompareVersions(pa, pb); c != 0 {
			return c < 0
		}
		return a.Name < b.Name
	})

	filtered := FilterBackwardCompatible(ordered, logger)

	t := &Timeline{
		all:    filtered,
		byName: make(map[string]*Release, len(filtered)),
	}
	if len(filtered) == 0 {
		return t
	}

	mainCount := max(1, int(math.Round(float64(len(filtered))*mainFraction)))
	mainCount = min(mainCount, len(filtered))

	for i, r := range filtered {
		r.ID = i + 1
		r.Dropped = i >= mainCount
		t.byName[r.Name] = r
	}
	t.main = filtered[:mainCount]
	t.dropped = filtered[mainCount:]
	return t
}

// All returns every release in order.
func (t *Timeline) All() []*Release { return t.all }

// Main returns the releases used for training and labeling.
func (t *Timeline) Main() []*Release { return t.main }

// Dropped returns the releases newer than the main horizon.
func (t *Timeline) Dropped() []*Release { return t.dropped }

// Len is the number of releases.
func (t *Timeline) Len() int { return len(t.all) }

// MainHorizon is the ID of the last main release, 0 when empty.
func (t *Timeline) MainHorizon() int { return len(t.main) }

// ByName finds a release by its exact name.
func (t *Timeline) ByName(name string) *Release {
	return t.byName[name]
}

// ByID finds a release by timeline position.
func (t *Timeline) ByID(id int) *Release {
	if id < 1 || id > len(t.all) {
		return nil
	}
	return t.all[id-1]
}

// ByDate returns the first release whose git date falls on or after the
// calendar day of ts, or nil when ts is after the last release.
func (t *Timeline) ByDate(ts time.Time) *Release {
	day := calendarDay(ts)
	idx := sort.Search(len(t.all), func(i int) bool {
		return calendarDay(t.all[i].GitDate) >= day
	})
	if idx == len(t.all) {
		return nil
	}
	return t.all[idx]
}

// Between returns every release with from <= ID <= to.
func (t *Timeline) Between(from float64, to int) []*Release {
	var out []*Release
	for _, r := range t.all {
		if float64(r.ID) >= from && r.ID <= to {
			out = append(out, r)
		}
	}
	return out
}

// calendarDay renders the date of ts in its own location so that ISO day
// strings compare in date order.
func calendarDay(ts time.Time) string {
	return ts.Format("2006-01-02")
}
