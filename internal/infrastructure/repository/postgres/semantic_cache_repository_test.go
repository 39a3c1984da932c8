package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/movie-search-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T, retention domain.CacheRetention) (*SemanticCacheRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewSemanticCacheRepository(db, retention), mock, func() { _ = db.Close() }
}

var cacheColumns = []string{"id", "query_text", "query_embedding", "prompt_text", "response_text", "created_at"}

func TestCreateIndexRunsDDLUnderAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t, domain.CacheRetention{})
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS semantic_cache").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.CreateIndex(context.Background(), 768); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateIndexRollsBackOnDDLFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t, domain.CacheRetention{})
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS semantic_cache").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	if err := repo.CreateIndex(context.Background(), 768); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendInsertsEmbeddingAsJSON(t *testing.T) {
	repo, mock, done := newRepoWithMock(t, domain.CacheRetention{})
	defer done()

	createdAt := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO semantic_cache").
		WithArgs("e1", "best heist movie", []byte("[0.5,0.25]"), 2, "prompt", "Heat", createdAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(context.Background(), domain.CacheEntry{
		ID:             "e1",
		QueryText:      "best heist movie",
		QueryEmbedding: []float32{0.5, 0.25},
		PromptText:     "prompt",
		ResponseText:   "Heat",
		CreatedAt:      createdAt,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNearestScansRowsAndPrefersNewestOnTie(t *testing.T) {
	repo, mock, done := newRepoWithMock(t, domain.CacheRetention{MaxEntries: 100})
	defer done()

	newer := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	rows := sqlmock.NewRows(cacheColumns).
		AddRow("n", "q", []byte("[1,0]"), "p", "newer", newer).
		AddRow("o", "q", []byte("[1,0]"), "p", "older", older).
		AddRow("f", "q", []byte("[0,1]"), "p", "far", older)
	mock.ExpectQuery("SELECT id, query_text, query_embedding").
		WithArgs(2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	match, found, err := repo.Nearest(context.Background(), []float32{1, 0})
	if err != nil || !found {
		t.Fatalf("Nearest() = %v %v", found, err)
	}
	if match.Entry.ResponseText != "newer" || match.Similarity != 1 {
		t.Fatalf("unexpected match %+v", match)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNearestEmptyTable(t *testing.T) {
	repo, mock, done := newRepoWithMock(t, domain.CacheRetention{})
	defer done()

	mock.ExpectQuery("SELECT id, query_text, query_embedding").WillReturnRows(sqlmock.NewRows(cacheColumns))

	_, found, err := repo.Nearest(context.Background(), []float32{1, 0})
	if err != nil || found {
		t.Fatalf("expected miss, got %v %v", found, err)
	}
}
