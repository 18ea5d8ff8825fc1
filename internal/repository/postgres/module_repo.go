package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/model"
)

// ModuleRepo implements ModuleRepository using PostgreSQL.
type ModuleRepo struct{ db *DB }

// NewModuleRepo constructs a module repository.
func NewModuleRepo(db *DB) *ModuleRepo { return &ModuleRepo{db: db} }

// GetModule selects a live module with its video columns.
func (r *ModuleRepo) GetModule(ctx context.Context, id uuid.UUID) (*model.Module, error) {
	const q = `
SELECT id, course_id, title, encrypted_video_url, video_title, estimated_duration_seconds,
       video_source, video_added_by, video_added_at
FROM course_modules WHERE id=$1 AND deleted_at IS NULL`
	var (
		m        model.Module
		cipher   *string
		title    *string
		duration *int32
		source   *string
		addedBy  uuid.NullUUID
		addedAt  *time.Time
	)
	err := r.db.Pool.QueryRow(ctx, q, id).Scan(
		&m.ID, &m.CourseID, &m.Title, &cipher, &title, &duration, &source, &addedBy, &addedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if cipher != nil && *cipher != "" {
		v := &model.VideoLink{CiphertextURL: *cipher}
		if title != nil {
			v.Title = *title
		}
		if duration != nil {
			v.DurationSeconds = int(*duration)
		}
		if source != nil {
			v.Source = *source
		}
		if addedBy.Valid {
			v.AddedBy = addedBy.UUID
		}
		if addedAt != nil {
			v.AddedAt = *addedAt
		}
		m.Video = v
	}
	return &m, nil
}

// SetVideo overwrites the video columns.
func (r *ModuleRepo) SetVideo(ctx context.Context, moduleID uuid.UUID, v model.VideoLink) error {
	const q = `
UPDATE course_modules
SET encrypted_video_url=$2, video_title=$3, estimated_duration_seconds=$4,
    video_source=$5, video_added_by=$6, video_added_at=$7
WHERE id=$1 AND deleted_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, moduleID, v.CiphertextURL, v.Title, int32(v.DurationSeconds),
		v.Source, v.AddedBy, v.AddedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ClearVideo nulls the video columns. It is idempotent.
func (r *ModuleRepo) ClearVideo(ctx context.Context, moduleID uuid.UUID) error {
	const q = `
UPDATE course_modules
SET encrypted_video_url=NULL, video_title=NULL, estimated_duration_seconds=NULL,
    video_source=NULL, video_added_by=NULL, video_added_at=NULL
WHERE id=$1 AND deleted_at IS NULL`
	_, err := r.db.Pool.Exec(ctx, q, moduleID)
	return err
}
