package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Pagewise/internal/config"
	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

var ErrDocumentNotFound = errors.New("document not found")

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// buildDSN appends verify-ca parameters when a root certificate is given.
func buildDSN(databaseURL, certPath string) (string, error) {
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL is empty")
	}
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	meta := doc.Metadata
	if len(meta) == 0 {
		meta = []byte("{}")
	}
	const q = `
		INSERT INTO documents
			(id, job_id, title, file_name, source_url, preview_url, page_count, expected_chunks, metadata, status, owner_id, upload_device, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING created_at, updated_at
	`
	err := c.db.QueryRowContext(ctx, q,
		doc.ID, doc.JobID, doc.Title, doc.FileName, doc.SourceURL, doc.PreviewURL, doc.PageCount, doc.ExpectedChunks,
		string(meta), doc.Status, doc.OwnerID, doc.UploadDevice,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `id, job_id, title, file_name, source_url, preview_url, page_count, expected_chunks, metadata, status, owner_id, upload_device, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d    models.Document
		meta []byte
	)
	if err := row.Scan(
		&d.ID, &d.JobID, &d.Title, &d.FileName, &d.SourceURL, &d.PreviewURL, &d.PageCount, &d.ExpectedChunks,
		&meta, &d.Status, &d.OwnerID, &d.UploadDevice, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Metadata = meta
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return nil
}

func (c *DatabaseClient) ListStuckDocuments(ctx context.Context, before time.Time) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at ASC`
	rows, err := c.db.QueryContext(ctx, q, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Chunks

// InsertDocumentChunks inserts one batch in a single transaction. Either
// every row lands or none does.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, text, char_count, page, printed_page, chapter,
			 pages, printed_pages, chapters, embedding, embedding_model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	var inserted int64
	for i := range chunks {
		ch := &chunks[i]
		var vec any
		if len(ch.Embedding) > 0 {
			vec = pgvector.NewVector(ch.Embedding)
		}
		page, printed, chapter := firstOf(ch)

		res, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Index, ch.Text, ch.CharCount, page, printed, chapter,
			toInt32(ch.Pages), nonNil(ch.PrintedPages), nonNil(ch.Sections), vec, ch.EmbeddingModel,
		)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert chunk %d: %w", ch.Index, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit chunks: %w", err)
	}
	return inserted, nil
}

func (c *DatabaseClient) CountChunks(ctx context.Context, documentID string) (models.ChunkStats, error) {
	const q = `
		SELECT count(*),
		       count(*) FILTER (WHERE embedding IS NOT NULL AND embedding_model IS NOT NULL),
		       COALESCE(max(chunk_index), -1)
		FROM document_chunks
		WHERE document_id = $1
	`
	var s models.ChunkStats
	if err := c.db.QueryRowContext(ctx, q, documentID).Scan(&s.Total, &s.Embedded, &s.MaxIndex); err != nil {
		return models.ChunkStats{}, err
	}
	return s, nil
}

// firstOf returns the scalar first page, printed page and chapter columns.
func firstOf(ch *models.DocumentChunk) (page *int, printed, chapter *string) {
	if len(ch.Pages) > 0 {
		page = &ch.Pages[0]
	}
	if len(ch.PrintedPages) > 0 {
		printed = &ch.PrintedPages[0]
	}
	if len(ch.Sections) > 0 {
		chapter = &ch.Sections[0]
	}
	return page, printed, chapter
}

func toInt32(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// Identity

// DisableUser locks the account and clears its default role.
func (c *DatabaseClient) DisableUser(ctx context.Context, userID string) error {
	const q = `
		UPDATE users
		SET disabled = true, default_role = '', updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("disable user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("disable user: no user %s", userID)
	}
	return nil
}

// RevokeProfile strips every privilege on the profile and records why.
func (c *DatabaseClient) RevokeProfile(ctx context.Context, userID string, ban models.BanRecord) error {
	meta, err := json.Marshal(ban)
	if err != nil {
		return fmt.Errorf("marshal ban record: %w", err)
	}
	const q = `
		UPDATE user_profiles
		SET can_run_crm = false, garage_id = NULL, is_admin = false, meta = $2, updated_at = now()
		WHERE user_id = $1
	`
	if _, err := c.db.ExecContext(ctx, q, userID, string(meta)); err != nil {
		return fmt.Errorf("revoke profile: %w", err)
	}
	return nil
}

var (
	_ core.DbClient      = (*DatabaseClient)(nil)
	_ core.IdentityStore = (*DatabaseClient)(nil)
)
