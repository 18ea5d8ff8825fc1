package service

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/token"
)

// RedirectTarget is where the playback request is sent. It never appears in a response body.
type RedirectTarget struct {
	URL string
}

// StreamProxy redeems stream tokens.
type StreamProxy interface {
	Redirect(ctx context.Context, tok string) (RedirectTarget, error)
}

// StreamServiceImpl implements StreamProxy.
type StreamServiceImpl struct {
	signer *token.Signer
	codec  Codec
	oracle EnrollmentOracle
	log    *zap.Logger
}

// NewStreamService constructs StreamProxy with required dependencies.
func NewStreamService(signer *token.Signer, codec Codec, oracle EnrollmentOracle, log *zap.Logger) *StreamServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamServiceImpl{signer: signer, codec: codec, oracle: oracle, log: log}
}

// Redirect verifies tok, decrypts its payload and re-checks entitlement now.
func (s *StreamServiceImpl) Redirect(ctx context.Context, tok string) (RedirectTarget, error) {
	c, err := s.signer.Parse(tok)
	if errors.Is(err, token.ErrUnknownVariant) {
		return RedirectTarget{}, errs.NewTokenError(errs.TokenWrongPurpose, err)
	}
	if err != nil {
		return RedirectTarget{}, err
	}
	if c.Kind != token.KindStream {
		return RedirectTarget{}, errs.NewTokenError(errs.TokenWrongPurpose, nil)
	}
	claims := c.Stream

	userID, err1 := uuid.FromString(claims.Subject)
	courseID, err2 := uuid.FromString(claims.CourseID)
	if err := errors.Join(err1, err2); err != nil {
		return RedirectTarget{}, errs.NewTokenError(errs.TokenMalformed, err)
	}

	plain, err := s.codec.Decrypt(claims.Payload.EncryptedURL)
	if err != nil {
		s.log.Error("video url decrypt failed",
			zap.String("course_id", claims.CourseID),
			zap.String("module_id", claims.ModuleID),
			zap.Error(err))
		return RedirectTarget{}, err
	}

	ok, err := s.oracle.IsEntitled(ctx, userID, courseID)
	if err != nil {
		return RedirectTarget{}, err
	}
	if !ok {
		s.log.Info("stream access revoked",
			zap.String("user_id", claims.Subject), zap.String("course_id", claims.CourseID))
		return RedirectTarget{}, errs.ErrAccessRevoked
	}
	return RedirectTarget{URL: plain}, nil
}
