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

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `order_no, created_at, user_address, amount, credits, network, transaction_hash, order_status, expired_at, paid_at, plan, token_address, token_decimals`

func (r *OrderRepository) Create(ctx context.Context, o *models.Order) error {
	const query = `
INSERT INTO orders (` + orderColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		o.OrderNo, o.CreatedAt, o.Address, o.Amount, o.Credits, o.Network, o.TransactionHash,
		o.Status, o.ExpiredAt, nullTime(o.PaidAt), o.Plan, o.TokenAddress, o.TokenDecimals)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByOrderNo(ctx context.Context, orderNo string) (*models.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE order_no = ?`
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, query, orderNo)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}

// MarkPaid moves a pending order to paid and reports whether this call made
// the transition.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderNo, txHash string, paidAt time.Time) (bool, error) {
	const query = `
UPDATE orders SET order_status = ?, transaction_hash = ?, paid_at = ?
WHERE order_no = ? AND order_status = ?`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, models.OrderPaid, txHash, paidAt, orderNo, models.OrderPending)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark paid rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListSettled returns the user's paid orders that have not expired at now.
func (r *OrderRepository) ListSettled(ctx context.Context, address string, now time.Time) ([]models.Order, error) {
	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE user_address = ? AND order_status = ? AND expired_at > ?
ORDER BY created_at ASC`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, address, models.OrderPaid, now)
	if err != nil {
		return nil, fmt.Errorf("list settled orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var paidAt sql.NullTime
	if err := row.Scan(&o.OrderNo, &o.CreatedAt, &o.Address, &o.Amount, &o.Credits, &o.Network, &o.TransactionHash,
		&o.Status, &o.ExpiredAt, &paidAt, &o.Plan, &o.TokenAddress, &o.TokenDecimals); err != nil {
		return nil, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	return &o, nil
}
