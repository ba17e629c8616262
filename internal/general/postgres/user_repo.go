package postgres

import (
	"context"

	"motoride/internal/domain/user"
	"motoride/internal/ports"

	"github.com/jackc/pgx/v5"
)

// UserRepo reads user display data. The users table is owned externally.
type UserRepo struct{}

// NewUserRepo constructs a new UserRepo.
func NewUserRepo() ports.UserRepository {
	return &UserRepo{}
}

// GetByID fetches a user by id, nil when absent.
func (repo *UserRepo) GetByID(ctx context.Context, id string) (*user.User, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var u user.User
	var role string
	err = tx.QueryRow(ctx, `
		SELECT id, name, role, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &role, &u.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.Role = user.Role(role)
	return &u, nil
}
