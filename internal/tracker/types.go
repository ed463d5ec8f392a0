// Package tracker reads bug reports and project versions from a JIRA
// instance.
package tracker

import "time"

// DateLayout is the JIRA version release date format.
const DateLayout = "2006-01-02"

// Issue is a closed, fixed bug report.
type Issue struct {
	Key      string
	Created  time.Time
	Resolved time.Time
	// Versions are the affected version names declared on the report.
	Versions []string
}

// Version is a project version known to the tracker.
type Version struct {
	Name        string
	ReleaseDate time.Time
	Released    bool
}
