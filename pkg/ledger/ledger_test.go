package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/PhantomInTheWire/gridsplit/pkg/pipeline"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return map[string]Store{
		"sqlite": db,
		"memory": NewMemory(),
	}
}

func TestCanTransition(t *testing.T) {
	tcs := []struct {
		from, to pipeline.Status
		ok       bool
	}{
		{pipeline.StatusPending, pipeline.StatusProcessing, true},
		{pipeline.StatusProcessing, pipeline.StatusCompleted, true},
		{pipeline.StatusProcessing, pipeline.StatusFailed, true},
		{pipeline.StatusPending, pipeline.StatusFailed, true},
		{pipeline.StatusFailed, pipeline.StatusProcessing, true},
		{pipeline.StatusCompleted, pipeline.StatusPending, true},
		{pipeline.StatusPending, pipeline.StatusCompleted, false},
		{pipeline.StatusProcessing, pipeline.StatusProcessing, false},
		{pipeline.StatusFailed, pipeline.StatusCompleted, false},
		{pipeline.StatusPending, pipeline.Status("archived"), false},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestJobLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			job, err := store.Create(ctx, "assigned")
			require.NoError(t, err)
			assert.NotEmpty(t, job.ID)
			assert.Equal(t, pipeline.StatusPending, job.Status)

			raw := []string{job.ID + "/main.png", job.ID + "/header-tl.png"}
			require.NoError(t, store.SetRawFiles(ctx, job.ID, raw))
			require.NoError(t, store.SetStatus(ctx, job.ID, pipeline.StatusProcessing))

			locations := []string{"a", "b", "c", "d"}
			require.NoError(t, store.SetResult(ctx, job.ID, locations))
			require.NoError(t, store.SetStatus(ctx, job.ID, pipeline.StatusCompleted))

			got, err := store.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, pipeline.StatusCompleted, got.Status)
			assert.Equal(t, "assigned", got.Profile)
			assert.Equal(t, raw, got.RawFiles)
			assert.Equal(t, locations, got.ProcessedFiles)
			require.NotNil(t, got.CompletedAt)
			assert.Empty(t, got.Error)
		})
	}
}

func TestJobFailureAndRerun(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job, err := store.Create(ctx, "auto")
			require.NoError(t, err)

			require.NoError(t, store.SetStatus(ctx, job.ID, pipeline.StatusProcessing))
			require.NoError(t, store.SetError(ctx, job.ID, "decode header-tl: bad bytes"))
			require.NoError(t, store.SetStatus(ctx, job.ID, pipeline.StatusFailed))

			got, err := store.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, pipeline.StatusFailed, got.Status)
			assert.Equal(t, "decode header-tl: bad bytes", got.Error)

			err = store.SetStatus(ctx, job.ID, pipeline.StatusCompleted)
			assert.True(t, errors.Is(err, ErrInvalidTransition))

			require.NoError(t, store.SetStatus(ctx, job.ID, pipeline.StatusProcessing))
			got, err = store.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Empty(t, got.Error)
			assert.Empty(t, got.ProcessedFiles)
			assert.Nil(t, got.CompletedAt)
		})
	}
}

func TestUnknownJob(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Get(ctx, "nope")
			assert.True(t, errors.Is(err, ErrNotFound))
			assert.True(t, errors.Is(store.SetStatus(ctx, "nope", pipeline.StatusProcessing), ErrNotFound))
			assert.True(t, errors.Is(store.SetResult(ctx, "nope", nil), ErrNotFound))
			assert.True(t, errors.Is(store.SetRawFiles(ctx, "nope", nil), ErrNotFound))
			assert.Error(t, store.SetStatus(ctx, "nope", pipeline.Status("archived")))
		})
	}
}

func TestList(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var ids []string
			for i := 0; i < 3; i++ {
				job, err := store.Create(ctx, "auto")
				require.NoError(t, err)
				ids = append(ids, job.ID)
			}
			jobs, err := store.List(ctx, 0)
			require.NoError(t, err)
			require.Len(t, jobs, 3)

			got := make([]string, 0, len(jobs))
			for _, j := range jobs {
				got = append(got, j.ID)
			}
			assert.ElementsMatch(t, ids, got)

			jobs, err = store.List(ctx, 2)
			require.NoError(t, err)
			assert.Len(t, jobs, 2)
		})
	}
}

func TestSQLiteSetStatusQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, zaptest.NewLogger(t).Sugar())

	mock.ExpectExec(`UPDATE processing_jobs SET status = \?, updated_at = \? WHERE id = \? AND status IN \(\?\)`).
		WithArgs("completed", sqlmock.AnyArg(), "job-1", "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetStatus(context.Background(), "job-1", pipeline.StatusCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteWriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, zaptest.NewLogger(t).Sugar())

	mock.ExpectExec(`UPDATE processing_jobs SET processed_files = \?, completed_at = \?, updated_at = \? WHERE id = \?`).
		WillReturnError(errors.New("disk I/O error"))

	err = store.SetResult(context.Background(), "job-1", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteInvalidTransitionReportsCurrentStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, zaptest.NewLogger(t).Sugar())

	mock.ExpectExec(`UPDATE processing_jobs SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM processing_jobs WHERE id = \?`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "status", "profile", "raw_files", "processed_files", "error", "created_at", "updated_at", "completed_at",
		}).AddRow("job-1", "pending", "auto", "[]", "[]", "", store.now(), store.now(), nil))

	err = store.SetStatus(context.Background(), "job-1", pipeline.StatusCompleted)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "pending -> completed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
