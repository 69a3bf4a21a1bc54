package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/edirooss/firewatch-server/internal/domain/principal"
)

var ErrUserNotFound = errors.New("user not found")

func userKey(email string) string { return keyPrefix + "user:" + strings.ToLower(email) }

// User is an account. ID is the lower-cased email.
type User struct {
	ID           string         `json:"id"`
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	Role         principal.Role `json:"role"`
	Active       bool           `json:"active"` // set once an admin approves the account
	PasswordHash []byte         `json:"password_hash"`
}

type UserRepository struct {
	log    *zap.Logger
	client *RedisClient
}

func newUserRepository(log *zap.Logger, client *RedisClient) *UserRepository {
	return &UserRepository{log: log.Named("users"), client: client}
}

func (r *UserRepository) Upsert(ctx context.Context, u *User) error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	u.ID = strings.ToLower(u.ID)
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := r.client.Set(ctx, userKey(u.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("set user: %w", err)
	}
	return nil
}

// GetByEmail returns ErrUserNotFound if no account exists for email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return getJSON[User](ctx, r.client, userKey(email), ErrUserNotFound)
}
