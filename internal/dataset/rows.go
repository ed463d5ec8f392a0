// Package dataset flattens a labeled release timeline into per-file rows
// and serializes them.
package dataset

import (
	"sort"

	"github.com/rohankatakam/defectset/internal/release"
)

// Header is the column order of every dataset file.
var Header = []string{
	"Version", "File", "LOC", "LOC_Touched", "NR", "NAuth",
	"LOC_Added", "MAX_LOC_Added", "AVG_LOC_Added",
	"Churn", "MAX_Churn", "AVG_Churn",
	"ChgSetSize", "MAX_ChgSet", "AVG_ChgSet",
	"Age", "WeightedAge", "NFix", "Buggy",
}

// Row is one (release, file) observation.
type Row struct {
	Version     int     `db:"version" json:"version"`
	File        string  `db:"file" json:"file"`
	LOC         int64   `db:"loc" json:"loc"`
	LOCTouched  int     `db:"loc_touched" json:"loc_touched"`
	NR          int     `db:"nr" json:"nr"`
	NAuth       int     `db:"nauth" json:"nauth"`
	LOCAdded    int     `db:"loc_added" json:"loc_added"`
	MaxLOCAdded int     `db:"max_loc_added" json:"max_loc_added"`
	AvgLOCAdded float64 `db:"avg_loc_added" json:"avg_loc_added"`
	Churn       int     `db:"churn" json:"churn"`
	MaxChurn    int     `db:"max_churn" json:"max_churn"`
	AvgChurn    float64 `db:"avg_churn" json:"avg_churn"`
	ChgSetSize  int     `db:"chg_set_size" json:"chg_set_size"`
	MaxChgSet   int     `db:"max_chg_set" json:"max_chg_set"`
	AvgChgSet   float64 `db:"avg_chg_set" json:"avg_chg_set"`
	Age         int64   `db:"age" json:"age"`
	WeightedAge int64   `db:"weighted_age" json:"weighted_age"`
	NFix        int     `db:"nfix" json:"nfix"`
	Buggy       bool    `db:"buggy" json:"buggy"`
}

// Rows lists every tracked file of every main release, releases by ID and
// files by path.
func Rows(timeline *release.Timeline) []Row {
	var rows []Row
	for _, r := range timeline.Main() {
		paths := make([]string, 0, len(r.Files))
		for path := range r.Files {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			m := r.Files[path]
			rows = append(rows, Row{
				Version:     r.ID,
				File:        path,
				LOC:         m.LOC,
				LOCTouched:  m.LOCTouched,
				NR:          m.NumRevisions,
				NAuth:       m.NumAuthors(),
				LOCAdded:    m.LOCAdded,
				MaxLOCAdded: m.MaxLOCAdded,
				AvgLOCAdded: m.AvgLOCAdded,
				Churn:       m.Churn,
				MaxChurn:    m.MaxChurn,
				AvgChurn:    m.AvgChurn,
				ChgSetSize:  m.ChangeSetSize,
				MaxChgSet:   m.MaxChangeSetSize,
				AvgChgSet:   m.AvgChangeSetSize,
				Age:         m.Age,
				WeightedAge: m.WeightedAge(),
				NFix:        m.NumFixes,
				Buggy:       m.Buggy,
			})
		}
	}
	return rows
}

// BuggyCount counts the rows labeled buggy.
func BuggyCount(rows []Row) int {
	n := 0
	for _, row := range rows {
		if row.Buggy {
			n++
		}
	}
	return n
}
