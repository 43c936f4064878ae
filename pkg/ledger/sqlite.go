package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/PhantomInTheWire/gridsplit/pkg/logger"
	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
)

// BusyTimeoutMS is how long SQLite waits on a locked database.
const BusyTimeoutMS = 5000

const schema = `
CREATE TABLE IF NOT EXISTS processing_jobs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL DEFAULT 'pending',
	profile         TEXT NOT NULL DEFAULT '',
	raw_files       TEXT NOT NULL DEFAULT '[]',
	processed_files TEXT NOT NULL DEFAULT '[]',
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL,
	completed_at    TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_processing_jobs_created ON processing_jobs (created_at);
`

const jobColumns = `id, status, profile, raw_files, processed_files, error, created_at, updated_at, completed_at`

// SQLite is a Store backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	log *zap.SugaredLogger
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string, log *zap.SugaredLogger) (*SQLite, error) {
	if log == nil {
		log = logger.ComponentLogger("ledger")
	}
	log.Debugw("Opening ledger", "path", path)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger database")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", BusyTimeoutMS),
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}

	s := New(db, log)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	log.Infow("Ledger opened", "path", path)
	return s, nil
}

// New wraps an already opened database. The schema is not migrated.
func New(db *sql.DB, log *zap.SugaredLogger) *SQLite {
	if log == nil {
		log = logger.ComponentLogger("ledger")
	}
	return &SQLite{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the jobs table.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "migrate ledger schema")
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Create inserts a pending job with no inputs yet.
func (s *SQLite) Create(ctx context.Context, profile string) (*Job, error) {
	now := s.now()
	job := &Job{
		ID:        newID(),
		Status:    pipeline.StatusPending,
		Profile:   profile,
		RawFiles:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_jobs (id, status, profile, raw_files, processed_files, error, created_at, updated_at)
		 VALUES (?, ?, ?, '[]', '[]', '', ?, ?)`,
		job.ID, job.Status, job.Profile, now, now)
	if err != nil {
		return nil, errors.Wrap(err, "insert job")
	}
	s.log.Infow("Job created", logger.FieldJobID, job.ID, logger.FieldProfile, profile)
	return job, nil
}

// SetRawFiles records the uploaded input keys of a job.
func (s *SQLite) SetRawFiles(ctx context.Context, id string, files []string) error {
	return s.update(ctx, id, "raw_files = ?", encodeList(files))
}

// SetResult implements pipeline.Ledger and stamps the completion time.
func (s *SQLite) SetResult(ctx context.Context, id string, locations []string) error {
	return s.update(ctx, id, "processed_files = ?, completed_at = ?", encodeList(locations), s.now())
}

// SetError implements pipeline.ErrorRecorder.
func (s *SQLite) SetError(ctx context.Context, id string, msg string) error {
	return s.update(ctx, id, "error = ?", msg)
}

// SetStatus implements pipeline.Ledger. Entering processing clears any
// previous error and result so a rerun starts clean.
func (s *SQLite) SetStatus(ctx context.Context, id string, status pipeline.Status) error {
	from, err := sourceStatuses(status)
	if err != nil {
		return err
	}
	placeholders := make([]string, len(from))
	for i := range from {
		placeholders[i] = "?"
	}

	set := "status = ?, updated_at = ?"
	if status == pipeline.StatusProcessing {
		set += ", error = '', processed_files = '[]', completed_at = NULL"
	}
	args := []any{status, s.now(), id}
	for _, f := range from {
		args = append(args, f)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE processing_jobs SET `+set+` WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return errors.Wrapf(err, "set status of %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "set status of %s", id)
	}
	if n == 0 {
		job, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return errors.Wrapf(ErrInvalidTransition, "%s: %s -> %s", id, job.Status, status)
	}
	s.log.Debugw("Job status changed", logger.FieldJobID, id, logger.FieldStatus, status)
	return nil
}

func (s *SQLite) update(ctx context.Context, id, set string, args ...any) error {
	args = append(args, s.now(), id)
	res, err := s.db.ExecContext(ctx, `UPDATE processing_jobs SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return errors.Wrapf(err, "update job %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "update job %s", id)
	}
	if n == 0 {
		return errors.Wrap(ErrNotFound, id)
	}
	return nil
}

// Get returns one job.
func (s *SQLite) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get job %s", id)
	}
	return job, nil
}

// List returns the most recent jobs first. A non-positive limit means 50.
func (s *SQLite) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM processing_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Wrap(rows.Err(), "list jobs")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job       Job
		raw, done string
		completed sql.NullTime
	)
	if err := row.Scan(&job.ID, &job.Status, &job.Profile, &raw, &done, &job.Error,
		&job.CreatedAt, &job.UpdatedAt, &completed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &job.RawFiles); err != nil {
		return nil, errors.Wrap(err, "decode raw_files")
	}
	if err := json.Unmarshal([]byte(done), &job.ProcessedFiles); err != nil {
		return nil, errors.Wrap(err, "decode processed_files")
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}
