// Package access answers entitlement and course-management questions for every service.
package access

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/model"
	"github.com/and161185/course-stream/internal/repository"
)

// Oracle decides whether users may watch or manage a course.
type Oracle interface {
	// IsEntitled reports whether user may watch courseID: admin, instructor of record, or enrolled.
	IsEntitled(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	// CanManage reports whether user may change courseID's videos: admin or instructor of record.
	CanManage(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}

// OracleImpl implements Oracle over an AccessRepository.
type OracleImpl struct {
	repo repository.AccessRepository
}

// NewOracle constructs an Oracle.
func NewOracle(repo repository.AccessRepository) *OracleImpl {
	return &OracleImpl{repo: repo}
}

func (o *OracleImpl) standing(ctx context.Context, userID, courseID uuid.UUID) (model.Standing, bool, error) {
	if userID.IsNil() || courseID.IsNil() {
		return model.Standing{}, false, nil
	}
	s, err := o.repo.Standing(ctx, userID, courseID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Standing{}, false, nil
	}
	if err != nil {
		return model.Standing{}, false, err
	}
	return s, true, nil
}

// IsEntitled implements Oracle.
func (o *OracleImpl) IsEntitled(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	s, ok, err := o.standing(ctx, userID, courseID)
	if err != nil || !ok {
		return false, err
	}
	return manages(s) || s.Enrolled, nil
}

// CanManage implements Oracle.
func (o *OracleImpl) CanManage(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	s, ok, err := o.standing(ctx, userID, courseID)
	if err != nil || !ok {
		return false, err
	}
	return manages(s), nil
}

func manages(s model.Standing) bool {
	return s.Role == model.RoleAdmin || (s.Role == model.RoleInstructor && s.IsOwner)
}
