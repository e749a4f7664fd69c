package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/maneesh/videodrop/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

// The statement is accepted by both MySQL/TiDB and SQLite.
const createUploadsTable = `CREATE TABLE IF NOT EXISTS uploads (
	id            VARCHAR(64)   NOT NULL PRIMARY KEY,
	original_name VARCHAR(1024) NOT NULL,
	extension     VARCHAR(255)  NOT NULL,
	stored_name   VARCHAR(320)  NOT NULL,
	size          BIGINT        NOT NULL,
	sha256        CHAR(64)      NOT NULL,
	mirror_key    VARCHAR(512)  NOT NULL DEFAULT '',
	created_at_ms BIGINT        NOT NULL
)`

// sqlitePragmas are added to SQLite DSNs that do not set them already
var sqlitePragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
}

// SQLCatalog records upload metadata in a SQL database
type SQLCatalog struct {
	db *sql.DB
}

// NewSQLCatalog opens the database, checks the connection and creates the
// uploads table when missing. driver is "mysql" or "sqlite".
func NewSQLCatalog(ctx context.Context, driver, dsn string) (*SQLCatalog, error) {
	if driver == "sqlite" {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings. SQLite takes one writer at a time.
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createUploadsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create uploads table: %w", err)
	}

	return &SQLCatalog{db: db}, nil
}

// sqliteDSN appends the pragmas the DSN does not already set
func sqliteDSN(dsn string) string {
	for _, pragma := range sqlitePragmas {
		name, _, _ := strings.Cut(pragma, "(")
		if strings.Contains(dsn, name+"(") {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + pragma
		} else {
			dsn += "?" + pragma
		}
	}
	return dsn
}

// Close closes the database connection
func (sc *SQLCatalog) Close() error {
	return sc.db.Close()
}

// CreateUpload inserts an upload record
func (sc *SQLCatalog) CreateUpload(ctx context.Context, upload *models.Upload) error {
	ctx, span := tracer.Start(ctx, "sql.create_upload",
		trace.WithAttributes(
			attribute.String("upload_id", upload.ID),
			attribute.String("stored_name", upload.StoredName),
			attribute.Int64("size_bytes", upload.Size),
		),
	)
	defer span.End()

	query := `INSERT INTO uploads (id, original_name, extension, stored_name, size, sha256, mirror_key, created_at_ms)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := sc.db.ExecContext(ctx, query,
		upload.ID,
		upload.OriginalName,
		upload.Extension,
		upload.StoredName,
		upload.Size,
		upload.SHA256,
		upload.MirrorKey,
		upload.CreatedAt.UnixMilli(),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert upload: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// GetUpload retrieves an upload record by ID
func (sc *SQLCatalog) GetUpload(ctx context.Context, id string) (*models.Upload, error) {
	ctx, span := tracer.Start(ctx, "sql.get_upload",
		trace.WithAttributes(
			attribute.String("upload_id", id),
		),
	)
	defer span.End()

	query := `SELECT id, original_name, extension, stored_name, size, sha256, mirror_key, created_at_ms
			  FROM uploads WHERE id = ?`

	var (
		upload    models.Upload
		createdMs int64
	)
	err := sc.db.QueryRowContext(ctx, query, id).Scan(
		&upload.ID,
		&upload.OriginalName,
		&upload.Extension,
		&upload.StoredName,
		&upload.Size,
		&upload.SHA256,
		&upload.MirrorKey,
		&createdMs,
	)

	if err == sql.ErrNoRows {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query upload: %w", err)
	}

	upload.CreatedAt = time.UnixMilli(createdMs).UTC()
	span.SetAttributes(attribute.Bool("found", true))
	return &upload, nil
}

// ListUploads returns the most recent uploads, newest first
func (sc *SQLCatalog) ListUploads(ctx context.Context, limit int) ([]*models.Upload, error) {
	ctx, span := tracer.Start(ctx, "sql.list_uploads",
		trace.WithAttributes(
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	query := `SELECT id, original_name, extension, stored_name, size, sha256, mirror_key, created_at_ms
			  FROM uploads
			  ORDER BY created_at_ms DESC, id ASC
			  LIMIT ?`

	rows, err := sc.db.QueryContext(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		var (
			upload    models.Upload
			createdMs int64
		)
		err := rows.Scan(
			&upload.ID,
			&upload.OriginalName,
			&upload.Extension,
			&upload.StoredName,
			&upload.Size,
			&upload.SHA256,
			&upload.MirrorKey,
			&createdMs,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		upload.CreatedAt = time.UnixMilli(createdMs).UTC()
		uploads = append(uploads, &upload)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}

	span.SetAttributes(attribute.Int("upload_count", len(uploads)))
	return uploads, nil
}
