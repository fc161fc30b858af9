package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/fileforge/fileforge/internal/dbx"
	"github.com/fileforge/fileforge/internal/server/models"
)

// PostgresRepository implements usage storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, rec *models.UsageRecord) error {
	query := `
		INSERT INTO usage_records (credential_id, endpoint, method, status_code,
			latency_ms, ip, user_agent, request_bytes, response_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.CredentialID, rec.Endpoint, rec.Method, rec.StatusCode,
		rec.LatencyMS, rec.IP, rec.UserAgent, rec.RequestBytes, rec.ResponseBytes, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) WindowStats(ctx context.Context, credentialID string, since time.Time) (*models.UsageWindowStats, error) {
	query := `
		SELECT count(DISTINCT ip), count(DISTINCT user_agent), count(*),
			coalesce(avg(CASE WHEN status_code >= 400 THEN 1.0 ELSE 0.0 END), 0)
		FROM usage_records
		WHERE credential_id = $1 AND created_at >= $2
	`
	stats := &models.UsageWindowStats{}
	err := r.db.QueryRowContext(ctx, query, credentialID, since).
		Scan(&stats.DistinctIPs, &stats.DistinctAgents, &stats.Requests, &stats.ErrorRate)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return stats, nil
}

func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM usage_records WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
