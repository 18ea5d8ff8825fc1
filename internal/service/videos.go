package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/course-stream/internal/clock"
	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/model"
	"github.com/and161185/course-stream/internal/repository"
)

// DefaultVideoSource is stored when the caller gives no source tag.
const DefaultVideoSource = "external"

// VideoInput is an instructor's video registration request.
type VideoInput struct {
	URL             string
	Title           string
	DurationSeconds int
	Source          string
}

// VideoRegistry registers, replaces and removes a module's video link.
type VideoRegistry interface {
	// Add validates, encrypts and stores the link.
	Add(ctx context.Context, actorID, courseID, moduleID uuid.UUID, in VideoInput) (*model.Module, error)
	// Update overwrites the link through the same pipeline as Add.
	Update(ctx context.Context, actorID, courseID, moduleID uuid.UUID, in VideoInput) (*model.Module, error)
	// Remove clears the link. Removing an absent link succeeds.
	Remove(ctx context.Context, actorID, courseID, moduleID uuid.UUID) error
}

// VideoServiceImpl implements VideoRegistry.
type VideoServiceImpl struct {
	modules   repository.ModuleRepository
	oracle    EnrollmentOracle
	validator URLValidator
	codec     Codec
	clock     clock.Clock
	log       *zap.Logger
}

// NewVideoService constructs VideoRegistry with required dependencies.
func NewVideoService(
	modules repository.ModuleRepository, oracle EnrollmentOracle, validator URLValidator,
	codec Codec, c clock.Clock, log *zap.Logger,
) *VideoServiceImpl {
	if c == nil {
		c = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &VideoServiceImpl{modules: modules, oracle: oracle, validator: validator, codec: codec, clock: c, log: log}
}

// Add implements VideoRegistry.
func (s *VideoServiceImpl) Add(ctx context.Context, actorID, courseID, moduleID uuid.UUID, in VideoInput) (*model.Module, error) {
	return s.store(ctx, actorID, courseID, moduleID, in)
}

// Update implements VideoRegistry.
func (s *VideoServiceImpl) Update(ctx context.Context, actorID, courseID, moduleID uuid.UUID, in VideoInput) (*model.Module, error) {
	return s.store(ctx, actorID, courseID, moduleID, in)
}

// Remove implements VideoRegistry.
func (s *VideoServiceImpl) Remove(ctx context.Context, actorID, courseID, moduleID uuid.UUID) error {
	if _, err := s.authorize(ctx, actorID, courseID, moduleID); err != nil {
		return err
	}
	if err := s.modules.ClearVideo(ctx, moduleID); err != nil {
		return fmt.Errorf("clear video: %w", err)
	}
	s.log.Info("video link removed",
		zap.String("module_id", moduleID.String()), zap.String("actor_id", actorID.String()))
	return nil
}

func (s *VideoServiceImpl) store(ctx context.Context, actorID, courseID, moduleID uuid.UUID, in VideoInput) (*model.Module, error) {
	m, err := s.authorize(ctx, actorID, courseID, moduleID)
	if err != nil {
		return nil, err
	}
	if err := checkInput(&in); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(ctx, in.URL); err != nil {
		return nil, err
	}

	ct, err := s.codec.Encrypt(in.URL)
	if err != nil {
		return nil, fmt.Errorf("encrypt video url: %w", err)
	}
	v := model.VideoLink{
		CiphertextURL:   ct,
		Title:           in.Title,
		DurationSeconds: in.DurationSeconds,
		Source:          in.Source,
		AddedBy:         actorID,
		AddedAt:         s.clock.Now().UTC(),
	}
	if err := s.modules.SetVideo(ctx, moduleID, v); err != nil {
		return nil, fmt.Errorf("store video: %w", err)
	}
	m.Video = &v
	s.log.Info("video link stored",
		zap.String("module_id", moduleID.String()), zap.String("actor_id", actorID.String()))
	return m, nil
}

// authorize requires the actor to manage the course and the module to belong to it.
func (s *VideoServiceImpl) authorize(ctx context.Context, actorID, courseID, moduleID uuid.UUID) (*model.Module, error) {
	ok, err := s.oracle.CanManage(ctx, actorID, courseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrForbidden
	}
	m, err := s.modules.GetModule(ctx, moduleID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrModuleCourseMismatch
		}
		return nil, err
	}
	if m.CourseID != courseID {
		return nil, errs.ErrModuleCourseMismatch
	}
	return m, nil
}

func checkInput(in *VideoInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Source = strings.TrimSpace(in.Source)
	switch {
	case in.Title == "" || len(in.Title) > 255:
		return errs.NewValidation(errs.ReasonInvalidField, "The video title field is required and may not exceed 255 characters.")
	case in.DurationSeconds < 1:
		return errs.NewValidation(errs.ReasonInvalidField, "The estimated duration seconds must be at least 1.")
	case len(in.Source) > 50:
		return errs.NewValidation(errs.ReasonInvalidField, "The video source may not exceed 50 characters.")
	}
	if in.Source == "" {
		in.Source = DefaultVideoSource
	}
	return nil
}
