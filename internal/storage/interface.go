package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/dataset"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Build is one dataset build of a project.
type Build struct {
	ID           string    `db:"id"`
	Project      string    `db:"project"`
	CreatedAt    time.Time `db:"created_at"`
	Releases     int       `db:"releases"`
	MainReleases int       `db:"main_releases"`
	Bugs         int       `db:"bugs"`
	Discarded    int       `db:"discarded"`
	RowCount     int       `db:"row_count"`
}

// ReleaseRecord is a timeline entry of a build.
type ReleaseRecord struct {
	BuildID     string    `db:"build_id"`
	ReleaseID   int       `db:"release_id"`
	Name        string    `db:"name"`
	Tag         string    `db:"tag"`
	GitDate     time.Time `db:"git_date"`
	TrackerDate time.Time `db:"tracker_date"`
	Dropped     bool      `db:"dropped"`
}

type rowRecord struct {
	BuildID string `db:"build_id"`
	dataset.Row
}

// Store persists dataset builds
type Store interface {
	// Build operations
	SaveBuild(ctx context.Context, build *Build) error
	GetBuild(ctx context.Context, id string) (*Build, error)
	LatestBuild(ctx context.Context, project string) (*Build, error)

	// Timeline operations
	SaveReleases(ctx context.Context, buildID string, releases []ReleaseRecord) error
	GetReleases(ctx context.Context, buildID string) ([]ReleaseRecord, error)

	// Dataset operations
	SaveRows(ctx context.Context, buildID string, rows []dataset.Row) error
	GetRows(ctx context.Context, buildID string) ([]dataset.Row, error)

	// Close connection
	Close() error
}

// Open picks the backend from dsn: postgres:// and postgresql:// URLs use
// PostgreSQL, anything else is a SQLite file path.
func Open(dsn string, logger *logrus.Logger) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(dsn, logger)
	}
	return NewSQLiteStore(dsn, logger)
}

const rowColumns = `version, file, loc, loc_touched, nr, nauth,
	loc_added, max_loc_added, avg_loc_added,
	churn, max_churn, avg_churn,
	chg_set_size, max_chg_set, avg_chg_set,
	age, weighted_age, nfix, buggy`

const insertRowQuery = `
	INSERT INTO dataset_rows (build_id, ` + rowColumns + `)
	VALUES (:build_id, :version, :file, :loc, :loc_touched, :nr, :nauth,
		:loc_added, :max_loc_added, :avg_loc_added,
		:churn, :max_churn, :avg_churn,
		:chg_set_size, :max_chg_set, :avg_chg_set,
		:age, :weighted_age, :nfix, :buggy)
`

const insertReleaseQuery = `
	INSERT INTO releases (build_id, release_id, name, tag, git_date, tracker_date, dropped)
	VALUES (:build_id, :release_id, :name, :tag, :git_date, :tracker_date, :dropped)
`
