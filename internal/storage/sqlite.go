package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/defectset/internal/dataset"
	apperrors "github.com/rohankatakam/defectset/internal/errors"
)

// SQLiteStore implements storage using SQLite (for local runs)
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore creates a new SQLite storage
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.StorageError(err, "create database directory")
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, apperrors.StorageError(err, "connect to sqlite")
	}

	// Projects build in parallel; serialize writers through one connection.
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if logger == nil {
		logger = logrus.New()
	}
	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.StorageError(err, "init schema")
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		project TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		releases INTEGER,
		main_releases INTEGER,
		bugs INTEGER,
		discarded INTEGER,
		row_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS releases (
		build_id TEXT NOT NULL,
		release_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		tag TEXT,
		git_date DATETIME,
		tracker_date DATETIME,
		dropped BOOLEAN,
		PRIMARY KEY (build_id, release_id),
		FOREIGN KEY (build_id) REFERENCES builds(id)
	);

	CREATE TABLE IF NOT EXISTS dataset_rows (
		build_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		file TEXT NOT NULL,
		loc INTEGER,
		loc_touched INTEGER,
		nr INTEGER,
		nauth INTEGER,
		loc_added INTEGER,
		max_loc_added INTEGER,
		avg_loc_added REAL,
		churn INTEGER,
		max_churn INTEGER,
		avg_churn REAL,
		chg_set_size INTEGER,
		max_chg_set INTEGER,
		avg_chg_set REAL,
		age INTEGER,
		weighted_age INTEGER,
		nfix INTEGER,
		buggy BOOLEAN,
		PRIMARY KEY (build_id, version, file),
		FOREIGN KEY (build_id) REFERENCES builds(id)
	);

	CREATE INDEX IF NOT EXISTS idx_builds_project ON builds(project, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Build operations

func (s *SQLiteStore) SaveBuild(ctx context.Context, build *Build) error {
	query := `
		INSERT OR REPLACE INTO builds
		(id, project, created_at, releases, main_releases, bugs, discarded, row_count)
		VALUES (:id, :project, :created_at, :releases, :main_releases, :bugs, :discarded, :row_count)
	`
	if _, err := s.db.NamedExecContext(ctx, query, build); err != nil {
		return apperrors.StorageError(err, "save build")
	}
	return nil
}

func (s *SQLiteStore) GetBuild(ctx context.Context, id string) (*Build, error) {
	var build Build
	query := `SELECT * FROM builds WHERE id = ?`

	err := s.db.GetContext(ctx, &build, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, apperrors.StorageError(err, "get build")
	}

	return &build, nil
}

func (s *SQLiteStore) LatestBuild(ctx context.Context, project string) (*Build, error) {
	var build Build
	query := `SELECT * FROM builds WHERE project = ? ORDER BY created_at DESC LIMIT 1`

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

func (s *SQLiteStore) SaveReleases(ctx context.Context, buildID string, releases []ReleaseRecord) error {
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

func (s *SQLiteStore) GetReleases(ctx context.Context, buildID string) ([]ReleaseRecord, error) {
	var releases []ReleaseRecord
	query := `SELECT * FROM releases WHERE build_id = ? ORDER BY release_id`

	if err := s.db.SelectContext(ctx, &releases, query, buildID); err != nil {
		return nil, apperrors.StorageError(err, "get releases")
	}
	return releases, nil
}

// Dataset operations

func (s *SQLiteStore) SaveRows(ctx context.Context, buildID string, rows []dataset.Row) error {
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

func (s *SQLiteStore) GetRows(ctx context.Context, buildID string) ([]dataset.Row, error) {
	var rows []dataset.Row
	query := `SELECT ` + rowColumns + ` FROM dataset_rows WHERE build_id = ? ORDER BY version, file`

	if err := s.db.SelectContext(ctx, &rows, query, buildID); err != nil {
		return nil, apperrors.StorageError(err, "get rows")
	}
	return rows, nil
}
