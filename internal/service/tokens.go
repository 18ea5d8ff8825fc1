package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/model"
	"github.com/and161185/course-stream/internal/repository"
	"github.com/and161185/course-stream/internal/token"
)

// Defaults for TokenOptions.
const (
	DefaultTokenTTL        = 5 * time.Minute
	DefaultAppLink         = "app://watch"
	DefaultAndroidFallback = "https://play.google.com/store/apps/details?id=com.hakimyar.hekmat_sara"
	DefaultIOSFallback     = "https://apps.apple.com/app/hekmat-sara"
)

// TokenOptions configure capability token issuance.
type TokenOptions struct {
	StreamTTL       time.Duration
	DeepLinkTTL     time.Duration
	AppLink         string
	AndroidFallback string
	IOSFallback     string
}

func (o *TokenOptions) defaults() {
	if o.StreamTTL <= 0 {
		o.StreamTTL = DefaultTokenTTL
	}
	if o.DeepLinkTTL <= 0 {
		o.DeepLinkTTL = DefaultTokenTTL
	}
	if o.AppLink == "" {
		o.AppLink = DefaultAppLink
	}
	if o.AndroidFallback == "" {
		o.AndroidFallback = DefaultAndroidFallback
	}
	if o.IOSFallback == "" {
		o.IOSFallback = DefaultIOSFallback
	}
}

// StreamGrant is an issued stream token.
type StreamGrant struct {
	Token      string
	ExpiresIn  time.Duration
	VideoTitle string
}

// DeepLinkGrant is an issued deep link.
type DeepLinkGrant struct {
	DeepLink    string
	FallbackURL string
	ExpiresIn   time.Duration
	ModuleTitle string
}

// TokenIssuer mints capability tokens for entitled users.
type TokenIssuer interface {
	IssueStream(ctx context.Context, userID, courseID, moduleID uuid.UUID) (StreamGrant, error)
	IssueDeepLink(ctx context.Context, userID, courseID, moduleID uuid.UUID, p model.Platform) (DeepLinkGrant, error)
}

// TokenServiceImpl implements TokenIssuer.
type TokenServiceImpl struct {
	modules repository.ModuleRepository
	oracle  EnrollmentOracle
	codec   Codec
	signer  *token.Signer
	opts    TokenOptions
	log     *zap.Logger
}

// NewTokenService constructs TokenIssuer with required dependencies.
func NewTokenService(
	modules repository.ModuleRepository, oracle EnrollmentOracle, codec Codec,
	signer *token.Signer, opts TokenOptions, log *zap.Logger,
) *TokenServiceImpl {
	opts.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenServiceImpl{modules: modules, oracle: oracle, codec: codec, signer: signer, opts: opts, log: log}
}

// IssueStream implements TokenIssuer. The token carries a fresh encryption of the URL,
// never the stored ciphertext.
func (s *TokenServiceImpl) IssueStream(ctx context.Context, userID, courseID, moduleID uuid.UUID) (StreamGrant, error) {
	m, err := s.playable(ctx, userID, courseID, moduleID)
	if err != nil {
		return StreamGrant{}, err
	}

	plain, err := s.codec.Decrypt(m.Video.CiphertextURL)
	if err != nil {
		s.log.Error("video url decrypt failed", zap.String("module_id", moduleID.String()), zap.Error(err))
		return StreamGrant{}, err
	}
	fresh, err := s.codec.Encrypt(plain)
	if err != nil {
		return StreamGrant{}, fmt.Errorf("encrypt stream payload: %w", err)
	}
	signed, _, err := s.signer.SignStream(userID, courseID, moduleID, fresh, s.opts.StreamTTL)
	if err != nil {
		return StreamGrant{}, fmt.Errorf("sign stream token: %w", err)
	}
	return StreamGrant{Token: signed, ExpiresIn: s.opts.StreamTTL, VideoTitle: m.Video.Title}, nil
}

// IssueDeepLink implements TokenIssuer.
func (s *TokenServiceImpl) IssueDeepLink(
	ctx context.Context, userID, courseID, moduleID uuid.UUID, p model.Platform,
) (DeepLinkGrant, error) {
	m, err := s.playable(ctx, userID, courseID, moduleID)
	if err != nil {
		return DeepLinkGrant{}, err
	}

	jti, err := uuid.NewV4()
	if err != nil {
		return DeepLinkGrant{}, err
	}
	signed, _, err := s.signer.SignDeepLink(jti.String(), userID, courseID, moduleID, s.opts.DeepLinkTTL)
	if err != nil {
		return DeepLinkGrant{}, fmt.Errorf("sign deep link token: %w", err)
	}

	q := url.Values{}
	q.Set("token", signed)
	q.Set("course_id", courseID.String())
	q.Set("module_id", moduleID.String())
	sep := "?"
	if strings.Contains(s.opts.AppLink, "?") {
		sep = "&"
	}

	fallback := s.opts.AndroidFallback
	if p == model.PlatformIOS {
		fallback = s.opts.IOSFallback
	}

	s.log.Info("deep link generated",
		zap.String("user_id", userID.String()),
		zap.String("course_id", courseID.String()),
		zap.String("module_id", moduleID.String()),
		zap.String("jti", jti.String()))

	return DeepLinkGrant{
		DeepLink:    s.opts.AppLink + sep + q.Encode(),
		FallbackURL: fallback,
		ExpiresIn:   s.opts.DeepLinkTTL,
		ModuleTitle: m.Video.Title,
	}, nil
}

// playable requires entitlement and a module of courseID carrying a video.
func (s *TokenServiceImpl) playable(ctx context.Context, userID, courseID, moduleID uuid.UUID) (*model.Module, error) {
	ok, err := s.oracle.IsEntitled(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotEntitled
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
	if !m.HasVideo() {
		return nil, errs.ErrNoVideo
	}
	return m, nil
}

// DetectPlatform picks the store fallback from an explicit hint or the User-Agent.
func DetectPlatform(hint, userAgent string) model.Platform {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "ios":
		return model.PlatformIOS
	case "android":
		return model.PlatformAndroid
	}
	ua := strings.ToLower(userAgent)
	for _, marker := range []string{"iphone", "ipad", "ipod", "ios"} {
		if strings.Contains(ua, marker) {
			return model.PlatformIOS
		}
	}
	return model.PlatformAndroid
}
