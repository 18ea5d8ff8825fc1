// Package repository declares persistence interfaces consumed by services.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/course-stream/internal/model"
)

// ModuleRepository reads course modules and writes their video columns.
type ModuleRepository interface {
	// GetModule returns the module or errs.ErrNotFound.
	GetModule(ctx context.Context, id uuid.UUID) (*model.Module, error)
	// SetVideo overwrites every video column of the module.
	SetVideo(ctx context.Context, moduleID uuid.UUID, v model.VideoLink) error
	// ClearVideo empties every video column; clearing an empty module is not an error.
	ClearVideo(ctx context.Context, moduleID uuid.UUID) error
}

// UserRepository reads user profiles.
type UserRepository interface {
	// GetByID returns the user or errs.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// AccessRepository answers how a user stands with a course.
type AccessRepository interface {
	// Standing returns the user's role, ownership and enrollment for courseID.
	// Unknown users yield errs.ErrNotFound.
	Standing(ctx context.Context, userID, courseID uuid.UUID) (model.Standing, error)
}
