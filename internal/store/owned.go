package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OwnedRepo persists owned-course records. Ownership is permanent: rows are
// never deleted by this service.
type OwnedRepo struct {
	pool *pgxpool.Pool
}

func NewOwnedRepo(pool *pgxpool.Pool) *OwnedRepo {
	return &OwnedRepo{pool: pool}
}

// Add inserts an owned entry. An already-owned course yields ErrDuplicate.
func (r *OwnedRepo) Add(ctx context.Context, userID, courseID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO owned_entries(user_id, course_id) VALUES($1, $2)`,
		userID, courseID,
	)
	if err != nil {
		return fmt.Errorf("insert owned entry: %w", mapError(err))
	}
	return nil
}

// Grant records ownership of every course in courseIDs, skipping pairs that
// already exist. Safe to run any number of times for the same input.
func (r *OwnedRepo) Grant(ctx context.Context, userID int64, courseIDs []int64) error {
	for _, courseID := range courseIDs {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO owned_entries(user_id, course_id) VALUES($1, $2)
             ON CONFLICT (user_id, course_id) DO NOTHING`,
			userID, courseID,
		)
		if err != nil {
			return fmt.Errorf("grant course %d to user %d: %w", courseID, userID, err)
		}
	}
	return nil
}

// CourseIDs lists the course ids a user owns.
func (r *OwnedRepo) CourseIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT course_id FROM owned_entries WHERE user_id = $1 ORDER BY course_id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}
