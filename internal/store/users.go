package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// User is an account row.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
}

// UserRepo persists accounts.
type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Create inserts a new account. A taken email yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, email, name, passwordHash string) (*User, error) {
	u := &User{Email: email, Name: name, PasswordHash: passwordHash}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users(email, name, password_hash) VALUES($1, $2, $3) RETURNING id`,
		email, name, passwordHash,
	).Scan(&u.ID)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", mapError(err))
	}
	return u, nil
}

// ByEmail fetches an account by email, ErrNotFound if absent.
func (r *UserRepo) ByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash)
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

// ByID fetches an account by id, ErrNotFound if absent.
func (r *UserRepo) ByID(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash)
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}
