// Package catalog records which packages a process has claimed, finished or
// failed, so that no two jobs ever write the same package ID or destination.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Status is the lifecycle state of a catalog record.
type Status string

const (
	StatusClaimed  Status = "claimed"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

var (
	// ErrClaimed is returned when the package ID or the destination path is
	// already held by another record.
	ErrClaimed = errors.New("catalog: package already claimed")

	// ErrNotClaimed is returned when finishing a package that holds no open
	// claim.
	ErrNotClaimed = errors.New("catalog: package not claimed")
)

// Record is one claimed package.
type Record struct {
	PackageID  string
	Path       string
	Source     string
	Status     Status
	ClaimedAt  time.Time
	FinishedAt *time.Time
	Error      *string
}

// SqliteCatalog keeps the records in a SQLite database. Writes go through a
// single WAL connection, reads through a read-only one.
type SqliteCatalog struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

func NewSqliteCatalog(dbPath string) *SqliteCatalog {
	return &SqliteCatalog{dbPath: dbPath}
}

func (s *SqliteCatalog) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

// getReadDB opens the read-only handle. An existing database file is read as
// is; a missing one is created with the schema first.
func (s *SqliteCatalog) getReadDB() (*sql.DB, error) {
	if _, err := os.Stat(s.dbPath); errors.Is(err, fs.ErrNotExist) {
		if _, err = s.getWriteDB(); err != nil {
			return nil, err
		}
	}

	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// Claim reserves packageID and path. It returns ErrClaimed when either is
// already held by an open or completed record.
func (s *SqliteCatalog) Claim(ctx context.Context, packageID, path, source string) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertClaimSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, packageID, path, source); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: %s at %s", ErrClaimed, packageID, path)
		}
		return fmt.Errorf("inserting claim: %w", err)
	}
	return nil
}

// Complete marks a claimed package as written.
func (s *SqliteCatalog) Complete(ctx context.Context, packageID string) error {
	return s.finish(ctx, packageID, StatusComplete, sql.NullString{})
}

// Fail marks a claimed package as failed and releases its path.
func (s *SqliteCatalog) Fail(ctx context.Context, packageID string, cause error) error {
	var msg sql.NullString
	if cause != nil {
		msg = sql.NullString{String: cause.Error(), Valid: true}
	}
	return s.finish(ctx, packageID, StatusFailed, msg)
}

func (s *SqliteCatalog) finish(ctx context.Context, packageID string, status Status, msg sql.NullString) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, updateStatusSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, string(status), msg, packageID)
	if err != nil {
		return fmt.Errorf("updating package status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotClaimed, packageID)
	}
	return nil
}

// Package returns the record of packageID, or sql.ErrNoRows wrapped.
func (s *SqliteCatalog) Package(ctx context.Context, packageID string) (record *Record, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectPackageSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if record, err = scanRecord(stmt.QueryRowContext(ctx, packageID)); err != nil {
		err = fmt.Errorf("scanning package: %w", err)
		return
	}
	return
}

// Packages returns every record in claim order.
func (s *SqliteCatalog) Packages(ctx context.Context) (records []*Record, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectPackagesSQL)
	if err != nil {
		err = fmt.Errorf("querying packages: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r *Record
		if r, err = scanRecord(rows); err != nil {
			err = fmt.Errorf("scanning package: %w", err)
			return
		}
		records = append(records, r)
	}
	err = rows.Err()
	return
}

func (s *SqliteCatalog) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}
		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r        Record
		status   string
		finished sql.NullTime
		msg      sql.NullString
	)
	if err := row.Scan(&r.PackageID, &r.Path, &r.Source, &status, &r.ClaimedAt, &finished, &msg); err != nil {
		return nil, err
	}

	r.Status = Status(status)
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	if msg.Valid {
		r.Error = &msg.String
	}
	return &r, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
