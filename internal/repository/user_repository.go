package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/web3analysis/internal/database"
	"github.com/digkill/web3analysis/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByAddress(ctx context.Context, address string) (*models.User, error) {
	const query = `
SELECT user_address, nickname, avatar_url, created_at
FROM users WHERE user_address = ?`
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, query, address)
	var u models.User
	if err := row.Scan(&u.Address, &u.Nickname, &u.AvatarURL, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// Ensure inserts the user when absent and reports whether a row was created.
func (r *UserRepository) Ensure(ctx context.Context, user *models.User) (*models.User, bool, error) {
	const query = `
INSERT IGNORE INTO users (user_address, nickname, avatar_url, created_at)
VALUES (?, ?, ?, ?)`
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, user.Address, user.Nickname, user.AvatarURL, user.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("user rows affected: %w", err)
	}
	if affected > 0 {
		return user, true, nil
	}
	existing, err := r.FindByAddress(ctx, user.Address)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return user, false, nil
	}
	return existing, false, nil
}
