package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"askdocs/internal/indexing"
)

// PostgresRepo is the document registry backed by Postgres. It implements
// indexing.DocumentStore plus the listing queries the HTTP handlers need.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, doc *indexing.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `INSERT INTO documents (id, source, url, metadata, content_length, chunk_count, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			url = EXCLUDED.url,
			metadata = EXCLUDED.metadata,
			content_length = EXCLUDED.content_length,
			chunk_count = EXCLUDED.chunk_count,
			indexed_at = EXCLUDED.indexed_at,
			updated_at = NOW()`
	_, err = r.db.ExecContext(ctx, query,
		doc.ID, doc.Source, doc.URL, metadata, doc.ContentLength, doc.ChunkCount, doc.IndexedAt)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*indexing.Document, error) {
	doc := &indexing.Document{}
	var metadata []byte

	query := `SELECT id, source, url, metadata, content_length, chunk_count, indexed_at
		FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.Source, &doc.URL, &metadata, &doc.ContentLength, &doc.ChunkCount, &doc.IndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, indexing.ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return doc, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]indexing.Document, error) {
	query := `SELECT id, source, url, metadata, content_length, chunk_count, indexed_at
		FROM documents ORDER BY indexed_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []indexing.Document
	for rows.Next() {
		var doc indexing.Document
		var metadata []byte
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.URL, &metadata,
			&doc.ContentLength, &doc.ChunkCount, &doc.IndexedAt); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return indexing.ErrDocumentNotFound
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}
