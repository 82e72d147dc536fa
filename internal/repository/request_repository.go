package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/web3analysis/internal/database"
	"github.com/digkill/web3analysis/internal/models"
)

// RequestRepository stores the report_requests markers that keep one
// generation per (project, wallet) in flight.
type RequestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Acquire claims the (project, wallet) slot for requestID. The single upsert
// is the serialization point: a fresh pending row owned by another request is
// left unchanged (0 rows affected), anything else is inserted (1) or taken
// over (2).
func (r *RequestRepository) Acquire(ctx context.Context, projectName, address, requestID string, now time.Time, window time.Duration) (bool, error) {
	const query = `
INSERT INTO report_requests (project_name, wallet_address, request_id, status, created_at, updated_at)
VALUES (?, ?, ?, 'pending', ?, ?)
ON DUPLICATE KEY UPDATE
    request_id = IF(status = 'pending' AND created_at > ?, request_id, VALUES(request_id)),
    status = IF(request_id = VALUES(request_id), 'pending', status),
    created_at = IF(request_id = VALUES(request_id), VALUES(created_at), created_at),
    updated_at = IF(request_id = VALUES(request_id), VALUES(updated_at), updated_at)`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, projectName, address, requestID, now, now, now.Add(-window))
	if err != nil {
		return false, fmt.Errorf("acquire report request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire rows affected: %w", err)
	}
	return affected > 0, nil
}

// Release moves the request out of pending. Rows already superseded by a
// newer request are not touched.
func (r *RequestRepository) Release(ctx context.Context, requestID string, status models.RequestStatus, now time.Time) error {
	const query = `
UPDATE report_requests SET status = ?, updated_at = ?
WHERE request_id = ? AND status = 'pending'`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, status, now, requestID); err != nil {
		return fmt.Errorf("release report request: %w", err)
	}
	return nil
}

func (r *RequestRepository) Find(ctx context.Context, projectName, address string) (*models.ReportRequest, error) {
	const query = `
SELECT id, project_name, wallet_address, request_id, status, created_at, updated_at
FROM report_requests WHERE project_name = ? AND wallet_address = ?`
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, query, projectName, address)
	var req models.ReportRequest
	if err := row.Scan(&req.ID, &req.ProjectName, &req.Address, &req.RequestID, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find report request: %w", err)
	}
	return &req, nil
}

// PurgeStale deletes finished requests and pending ones created before cutoff.
func (r *RequestRepository) PurgeStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM report_requests WHERE status <> 'pending' OR created_at < ?`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge report requests: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return affected, nil
}
