package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CartRepo persists cart entries keyed by (user_id, course_id).
type CartRepo struct {
	pool *pgxpool.Pool
}

func NewCartRepo(pool *pgxpool.Pool) *CartRepo {
	return &CartRepo{pool: pool}
}

// Add inserts a cart entry. An existing (user, course) pair yields
// ErrDuplicate.
func (r *CartRepo) Add(ctx context.Context, userID, courseID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cart_entries(user_id, course_id) VALUES($1, $2)`,
		userID, courseID,
	)
	if err != nil {
		return fmt.Errorf("insert cart entry: %w", mapError(err))
	}
	return nil
}

// AddIfAbsent inserts a cart entry unless it already exists. It reports
// whether a row was inserted.
func (r *CartRepo) AddIfAbsent(ctx context.Context, userID, courseID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO cart_entries(user_id, course_id) VALUES($1, $2)
         ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, courseID,
	)
	if err != nil {
		return false, fmt.Errorf("insert cart entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Remove deletes one cart entry. Removing an absent entry is not an error.
func (r *CartRepo) Remove(ctx context.Context, userID, courseID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM cart_entries WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	)
	return err
}

// Clear deletes every cart entry of a user.
func (r *CartRepo) Clear(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM cart_entries WHERE user_id = $1`,
		userID,
	)
	return err
}

// CourseIDs lists the course ids in a user's cart.
func (r *CartRepo) CourseIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT course_id FROM cart_entries WHERE user_id = $1 ORDER BY course_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}
