package credentials

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

// PostgresRepository implements credential storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const credentialColumns = `id, name, owner_id, tier, key_hash, key_prefix, permissions,
	rate_limit, allowed_ips, expires_at, is_active, is_blocked, blocked_until,
	last_used_at, last_used_ip, usage_count, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, c *models.Credential) error {
	perms, err := json.Marshal(c.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	ips, err := json.Marshal(c.AllowedIPs)
	if err != nil {
		return fmt.Errorf("marshal allowed ips: %w", err)
	}

	query := `
		INSERT INTO credentials (id, name, owner_id, tier, key_hash, key_prefix,
			permissions, rate_limit, allowed_ips, expires_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.Name, c.OwnerID, c.Tier, c.KeyHash, c.KeyPrefix,
		perms, c.RateLimit, ips, c.ExpiresAt, c.IsActive, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	c, err := scanCredential(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) FindActiveByPrefix(ctx context.Context, prefix string, now time.Time) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE key_prefix = $1 AND is_active = TRUE
		AND (expires_at IS NULL OR expires_at > $2)`
	rows, err := r.db.QueryContext(ctx, query, prefix, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select credentials: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials
		WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select credentials: %w", err)
	}
	defer rows.Close()
	return scanCredentials(rows)
}

func (r *PostgresRepository) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	query := `SELECT count(*) FROM credentials WHERE owner_id = $1 AND is_active = TRUE`
	var n int
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ReplaceSecret(ctx context.Context, id, keyHash, keyPrefix string) error {
	query := `UPDATE credentials SET key_hash = $2, key_prefix = $3,
		usage_count = 0, last_used_at = NULL, last_used_ip = '', updated_at = now()
		WHERE id = $1`
	return r.execOne(ctx, query, id, keyHash, keyPrefix)
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE credentials SET is_active = FALSE, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) Block(ctx context.Context, id string, until time.Time) error {
	query := `UPDATE credentials SET is_blocked = TRUE, blocked_until = $2, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, until)
}

func (r *PostgresRepository) Unblock(ctx context.Context, id string) error {
	query := `UPDATE credentials SET is_blocked = FALSE, blocked_until = NULL, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) UpdateSettings(ctx context.Context, id string, perms models.Permissions, rateLimit int, allowedIPs []string) error {
	p, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	ips, err := json.Marshal(allowedIPs)
	if err != nil {
		return fmt.Errorf("marshal allowed ips: %w", err)
	}
	query := `UPDATE credentials SET permissions = $2, rate_limit = $3, allowed_ips = $4, updated_at = now() WHERE id = $1`
	return r.execOne(ctx, query, id, p, rateLimit, ips)
}

func (r *PostgresRepository) TouchUsage(ctx context.Context, id, ip string, at time.Time) error {
	query := `UPDATE credentials SET last_used_at = $2, last_used_ip = $3, usage_count = usage_count + 1 WHERE id = $1`
	return r.execOne(ctx, query, id, at, ip)
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

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		c           models.Credential
		permsRaw    []byte
		ipsRaw      []byte
		expiresAt   sql.NullTime
		blockedTill sql.NullTime
		lastUsedAt  sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Name, &c.OwnerID, &c.Tier, &c.KeyHash, &c.KeyPrefix,
		&permsRaw, &c.RateLimit, &ipsRaw, &expiresAt, &c.IsActive, &c.IsBlocked,
		&blockedTill, &lastUsedAt, &c.LastUsedIP, &c.UsageCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(permsRaw, &c.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshal permissions: %w", err)
	}
	if err := json.Unmarshal(ipsRaw, &c.AllowedIPs); err != nil {
		return nil, fmt.Errorf("unmarshal allowed ips: %w", err)
	}
	if expiresAt.Valid {
		c.ExpiresAt = &expiresAt.Time
	}
	if blockedTill.Valid {
		c.BlockedUntil = &blockedTill.Time
	}
	if lastUsedAt.Valid {
		c.LastUsedAt = &lastUsedAt.Time
	}
	return &c, nil
}

func scanCredentials(rows *sql.Rows) ([]*models.Credential, error) {
	var result []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
