package document_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"askdocs/features/document"
	"askdocs/internal/indexing"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("Upserts On Conflict", func(t *testing.T) {
		doc := &indexing.Document{
			ID:            "doc-1",
			Source:        "manual",
			URL:           "http://example.com",
			Metadata:      map[string]string{"team": "docs"},
			ContentLength: 1200,
			ChunkCount:    3,
			IndexedAt:     time.Now(),
		}

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
			WithArgs(doc.ID, doc.Source, doc.URL, sqlmock.AnyArg(), doc.ContentLength, doc.ChunkCount, doc.IndexedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Save(context.Background(), doc)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "source", "url", "metadata", "content_length", "chunk_count", "indexed_at"}).
			AddRow("doc-1", "manual", "", []byte(`{"team":"docs"}`), 1200, 3, time.Now())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source, url, metadata, content_length, chunk_count, indexed_at FROM documents WHERE id = $1")).
			WithArgs("doc-1").
			WillReturnRows(rows)

		doc, err := repo.Get(context.Background(), "doc-1")
		assert.NoError(t, err)
		assert.Equal(t, "doc-1", doc.ID)
		assert.Equal(t, 3, doc.ChunkCount)
		assert.Equal(t, "docs", doc.Metadata["team"])
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source, url, metadata, content_length, chunk_count, indexed_at FROM documents WHERE id = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, indexing.ErrDocumentNotFound)
	})
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	rows := sqlmock.NewRows([]string{"id", "source", "url", "metadata", "content_length", "chunk_count", "indexed_at"}).
		AddRow("doc-1", "manual", "", nil, 1200, 3, time.Now()).
		AddRow("doc-2", "faq", "", nil, 800, 2, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source, url, metadata, content_length, chunk_count, indexed_at FROM documents ORDER BY indexed_at DESC")).
		WillReturnRows(rows)

	docs, err := repo.List(context.Background())
	assert.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, "doc-1", docs[0].ID)
}

func TestPostgresRepo_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
			WithArgs("doc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(context.Background(), "doc-1"))
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = $1")).
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.Background(), "missing")
		assert.ErrorIs(t, err, indexing.ErrDocumentNotFound)
	})
}

func TestPostgresRepo_Count(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	repo := document.NewPostgresRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.Count(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 7, count)
}
