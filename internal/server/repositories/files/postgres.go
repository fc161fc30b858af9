package files

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fileforge/fileforge/internal/common"
	"github.com/fileforge/fileforge/internal/dbx"
	"github.com/fileforge/fileforge/internal/server/models"
)

// PostgresRepository implements StoredFile storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const fileColumns = `id, object_key, owner_id, size, content_type, is_public,
	tags, thumbnail_keys, expires_at, is_deleted, deleted_at, created_at`

func (r *PostgresRepository) Create(ctx context.Context, f *models.StoredFile) error {
	tags, err := json.Marshal(f.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	thumbs, err := json.Marshal(f.ThumbnailKeys)
	if err != nil {
		return fmt.Errorf("marshal thumbnail keys: %w", err)
	}
	query := `
		INSERT INTO stored_files (id, object_key, owner_id, size, content_type,
			is_public, tags, thumbnail_keys, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		f.ID, f.ObjectKey, f.OwnerID, f.Size, f.ContentType,
		f.IsPublic, tags, thumbs, f.ExpiresAt, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByObjectKey(ctx context.Context, key string) (*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM stored_files WHERE object_key = $1`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) UpdateMetadata(ctx context.Context, id string, isPublic bool, tags []string) error {
	t, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	query := `UPDATE stored_files SET is_public = $2, tags = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, isPublic, t)
}

func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE stored_files SET is_deleted = TRUE, deleted_at = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *PostgresRepository) SelectExpiredGuests(ctx context.Context, now time.Time, limit int) ([]*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM stored_files
		WHERE owner_id = '' AND is_deleted = FALSE
		AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.StoredFile, error) {
	var (
		f         models.StoredFile
		tagsRaw   []byte
		thumbsRaw []byte
		expiresAt sql.NullTime
		deletedAt sql.NullTime
	)
	err := row.Scan(&f.ID, &f.ObjectKey, &f.OwnerID, &f.Size, &f.ContentType,
		&f.IsPublic, &tagsRaw, &thumbsRaw, &expiresAt, &f.IsDeleted, &deletedAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tagsRaw, &f.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal(thumbsRaw, &f.ThumbnailKeys); err != nil {
		return nil, fmt.Errorf("unmarshal thumbnail keys: %w", err)
	}
	if expiresAt.Valid {
		f.ExpiresAt = &expiresAt.Time
	}
	if deletedAt.Valid {
		f.DeletedAt = &deletedAt.Time
	}
	return &f, nil
}
