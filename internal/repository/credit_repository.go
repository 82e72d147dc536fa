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

type CreditRepository struct {
	db *sql.DB
}

func NewCreditRepository(db *sql.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) Get(ctx context.Context, address string) (*models.UserCredits, error) {
	const query = `
SELECT user_address, credits, used_credits, plan, expires_at, updated_at
FROM user_credits WHERE user_address = ?`
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, query, address)
	var c models.UserCredits
	var expiresAt sql.NullTime
	if err := row.Scan(&c.Address, &c.Credits, &c.UsedCredits, &c.Plan, &expiresAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user credits: %w", err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

// Credit adds amount to the account in one statement. expiresAt replaces the
// stored expiry only for monthly plans; one-time grants keep it as is.
func (r *CreditRepository) Credit(ctx context.Context, address string, amount int, plan models.PlanType, expiresAt *time.Time, now time.Time) error {
	const query = `
INSERT INTO user_credits (user_address, credits, used_credits, plan, expires_at, updated_at)
VALUES (?, ?, 0, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    credits = credits + VALUES(credits),
    expires_at = IF(VALUES(plan) = 'monthly', VALUES(expires_at), expires_at),
    plan = VALUES(plan),
    updated_at = VALUES(updated_at)`
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, address, amount, plan, nullTime(expiresAt), now); err != nil {
		return fmt.Errorf("credit user: %w", err)
	}
	return nil
}

// Debit decrements credits only when the balance covers amount and returns the
// remaining balance. Callers should run it inside a transaction so the
// follow-up read observes the same row version.
func (r *CreditRepository) Debit(ctx context.Context, address string, amount int, now time.Time) (int, error) {
	const query = `
UPDATE user_credits
SET credits = credits - ?, used_credits = used_credits + ?, updated_at = ?
WHERE user_address = ? AND credits >= ?`
	conn := database.Conn(ctx, r.db)
	res, err := conn.ExecContext(ctx, query, amount, amount, now, address, amount)
	if err != nil {
		return 0, fmt.Errorf("debit user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("debit rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrInsufficientCredits
	}

	var left int
	if err := conn.QueryRowContext(ctx, `SELECT credits FROM user_credits WHERE user_address = ?`, address).Scan(&left); err != nil {
		return 0, fmt.Errorf("read balance after debit: %w", err)
	}
	return left, nil
}

func (r *CreditRepository) RecordConsumption(ctx context.Context, c *models.CreditConsumption) error {
	const query = `
INSERT INTO credit_consumption (user_address, amount, type, report_id, created_at)
VALUES (?, ?, ?, ?, ?)`
	var reportID sql.NullInt64
	if c.ReportID != nil {
		reportID = sql.NullInt64{Int64: *c.ReportID, Valid: true}
	}
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, c.Address, c.Amount, c.Type, reportID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert credit consumption: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("consumption last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *CreditRepository) ListConsumption(ctx context.Context, address string) ([]models.CreditConsumption, error) {
	const query = `
SELECT id, user_address, amount, type, report_id, created_at
FROM credit_consumption WHERE user_address = ?
ORDER BY id ASC`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("list credit consumption: %w", err)
	}
	defer rows.Close()

	var out []models.CreditConsumption
	for rows.Next() {
		var c models.CreditConsumption
		var reportID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Address, &c.Amount, &c.Type, &reportID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit consumption: %w", err)
		}
		if reportID.Valid {
			id := reportID.Int64
			c.ReportID = &id
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Expire zeroes a lapsed balance. Already-zero rows are left untouched so
// repeated calls change nothing.
func (r *CreditRepository) Expire(ctx context.Context, address string, now time.Time) (bool, error) {
	const query = `
UPDATE user_credits SET credits = 0, updated_at = ?
WHERE user_address = ? AND expires_at IS NOT NULL AND expires_at < ? AND credits <> 0`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, now, address, now)
	if err != nil {
		return false, fmt.Errorf("expire credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("expire rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *CreditRepository) ExpireAll(ctx context.Context, now time.Time) (int64, error) {
	const query = `
UPDATE user_credits SET credits = 0, updated_at = ?
WHERE expires_at IS NOT NULL AND expires_at < ? AND credits <> 0`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, now, now)
	if err != nil {
		return 0, fmt.Errorf("expire all credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire all rows affected: %w", err)
	}
	return affected, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
