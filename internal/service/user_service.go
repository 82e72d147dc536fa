package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/digkill/web3analysis/internal/models"
)

type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

// Ensure registers the wallet on first sight with a generated nickname.
func (s *UserService) Ensure(ctx context.Context, address string) (*models.User, bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, false, invalid("Address cannot be empty")
	}
	nick := address
	if len(nick) > 6 {
		nick = nick[:6]
	}
	user, created, err := s.users.Ensure(ctx, &models.User{
		Address:   address,
		Nickname:  "User_" + nick,
		CreatedAt: utcNow(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}
	return user, created, nil
}

func (s *UserService) Get(ctx context.Context, address string) (*models.User, error) {
	user, err := s.users.FindByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
