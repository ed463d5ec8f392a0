package dataset

// Split is one walk-forward evaluation round: train on every release
// before Release, test on Release.
type Split struct {
	Release      int
	Training     []Row
	Testing      []Row
	TrainingBugs int
	TestingBugs  int
}

// TrainingBuggyPct is the share of defective training rows, in percent.
func (s Split) TrainingBuggyPct() float64 {
	return percent(s.TrainingBugs, len(s.Training))
}

// TestingBuggyPct is the share of defective testing rows, in percent.
func (s Split) TestingBuggyPct() float64 {
	return percent(s.TestingBugs, len(s.Testing))
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

// WalkForward produces one split per release from 2 to the highest version
// present in rows.
func WalkForward(rows []Row) []Split {
	last := 0
	for _, row := range rows {
		last = max(last, row.Version)
	}

	var splits []Split
	for i := 2; i <= last; i++ {
		split := Split{Release: i}
		for _, row := range rows {
			switch {
			case row.Version < i:
				split.Training = append(split.Training, row)
				if row.Buggy {
					split.TrainingBugs++
				}
			case row.Version == i:
				split.Testing = append(split.Testing, row)
				if row.Buggy {
					split.TestingBugs++
				}
			}
		}
		splits = append(splits, split)
	}
	return splits
}
