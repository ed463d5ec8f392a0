package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/dataset"
	apperrors "github.com/rohankatakam/defectset/internal/errors"
)

// PostgresStore implements storage using PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresStore creates a new PostgreSQL storage
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, apperrors.StorageError(err, "connect to postgres")
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if logger == nil {
		logger = logrus.New()
	}
	store := &PostgresStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.StorageError(err, "init schema")
	}

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		releases INTEGER,
		main_releases INTEGER,
		bugs INTEGER,
		discarded INTEGER,
		row_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS releases (
		build_id TEXT NOT NULL REFERENCES builds(id),
		release_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		tag TEXT,
		git_date TIMESTAMPTZ,
		tracker_date TIMESTAMPTZ,
		dropped BOOLEAN,
		PRIMARY KEY (build_id, release_id)
	);

	CREATE TABLE IF NOT EXISTS dataset_rows (
		build_id TEXT NOT NULL REFERENCES builds(id),
		version INTEGER NOT NULL,
		file TEXT NOT NULL,
		loc BIGINT,
		loc_touched INTEGER,
		nr INTEGER,
		nauth INTEGER,
		loc_added INTEGER,
		max_loc_added INTEGER,
		avg_loc_added DOUBLE PRECISION,
		churn INTEGER,
		max_churn INTEGER,
		avg_churn DOUBLE PRECISION,
		chg_set_size INTEGER,
		max_chg_set INTEGER,
		avg_chg_set DOUBLE PRECISION,
		age BIGINT,
		weighted_age BIGINT,
		nfix INTEGER,
		buggy BOOLEAN,
		PRIMARY KEY (build_id, version, file)
	);

	CREATE INDEX IF NOT EXISTS idx_builds_project ON builds(project, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Build operations

func (s *PostgresStore) SaveBuild(ctx context.Context, build *Build) error {
	query := `
		INSERT INTO builds (id, project, created_at, releases, main_releases, bugs, discarded, row_count)
		VALUES (:id, :project, :created_at, :releases, :main_releases, :bugs, :discarded, :row_count)
		ON CONFLICT (id) DO UPDATE SET
			releases = EXCLUDED.releases,
			main_releases = EXCLUDED.main_releases,
			bugs = EXCLUDED.bugs,
			discarded = EXCLUDED.discarded,
			row_count = EXCLUDED.row_count
	`

	_, err := s.db.NamedExecContext(ctx, query, build)
	if err != nil {
		return apperrors.StorageError(err, "save build")
	}

	return nil
}

func (s *PostgresStore) GetBuild(ctx context.Context, id string) (*Build, error) {
	var build Build
	query := `SELECT * FROM builds WHERE id = $1`

	err := s.db.GetContext(ctx, &build, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, apperrors.StorageError(err, "get build")
	}

	return &build, nil
}

func (s *PostgresStore) LatestBuild(ctx context.Context, project string) (*Build, error) {
	var build Build
	query := `SELECT * FROM builds WHERE project = $1 ORDER BY created_at DESC LIMIT 1`

	err := s.db.GetContext(ctx, &build, query, project)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, apperrors.StorageError(err, "latest build")
	}

	return &build, nil
}

// Timeline operations

func (s *PostgresStore) SaveReleases(ctx context.Context, buildID string, releases []ReleaseRecord) error {
	if len(releases) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.StorageError(err, "begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertReleaseQuery)
	if err != nil {
		return apperrors.StorageError(err, "prepare release insert")
	}
	defer stmt.Close()

	for _, r := range releases {
		r.BuildID = buildID
		if _, err := stmt.ExecContext(ctx, r); err != nil {
			return apperrors.StorageError(err, fmt.Sprintf("save release %s", r.Name))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.StorageError(err, "commit")
	}
	return nil
}

func (s *PostgresStore) GetReleases(ctx context.Context, buildID string) ([]ReleaseRecord, error) {
	var releases []ReleaseRecord
	query := `SELECT * FROM releases WHERE build_id = $1 ORDER BY release_id`

	if err := s.db.SelectContext(ctx, &releases, query, buildID); err != nil {
		return nil, apperrors.StorageError(err, "get releases")
	}
	return releases, nil
}

// Dataset operations

func (s *PostgresStore) SaveRows(ctx context.Context, buildID string, rows []dataset.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.StorageError(err, "begin transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertRowQuery)
	if err != nil {
		return apperrors.StorageError(err, "prepare row insert")
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, rowRecord{BuildID: buildID, Row: row}); err != nil {
			return apperrors.StorageError(err, fmt.Sprintf("save row %d/%s", row.Version, row.File))
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.StorageError(err, "commit")
	}
	return nil
}

func (s *PostgresStore) GetRows(ctx context.Context, buildID string) ([]dataset.Row, error) {
	var rows []dataset.Row
	query := `SELECT ` + rowColumns + ` FROM dataset_rows WHERE build_id = $1 ORDER BY version, file`

	if err := s.db.SelectContext(ctx, &rows, query, buildID); err != nil {
		return nil, apperrors.StorageError(err, "get rows")
	}
	return rows, nil
}
