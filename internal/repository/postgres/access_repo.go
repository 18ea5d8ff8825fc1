package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/model"
)

// AccessRepo implements AccessRepository using PostgreSQL.
type AccessRepo struct{ db *DB }

// NewAccessRepo constructs an access repository.
func NewAccessRepo(db *DB) *AccessRepo { return &AccessRepo{db: db} }

// Standing reads role, ownership and enrollment in one round trip.
// A missing course yields IsOwner=false and Enrolled=false.
func (r *AccessRepo) Standing(ctx context.Context, userID, courseID uuid.UUID) (model.Standing, error) {
	const q = `
SELECT u.role_id,
       COALESCE(c.created_by = u.id, false),
       EXISTS (SELECT 1 FROM course_enrollments e
               WHERE e.course_id=$2 AND e.user_id=u.id AND e.status='enrolled' AND e.active)
FROM users u
LEFT JOIN courses c ON c.id=$2
WHERE u.id=$1`
	var (
		role int
		s    model.Standing
	)
	err := r.db.Pool.QueryRow(ctx, q, userID, courseID).Scan(&role, &s.IsOwner, &s.Enrolled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Standing{}, errs.ErrNotFound
		}
		return model.Standing{}, err
	}
	s.Role = model.Role(role)
	return s, nil
}
