package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/course-stream/internal/clock"
	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/limiter"
	"github.com/and161185/course-stream/internal/model"
	"github.com/and161185/course-stream/internal/replay"
	"github.com/and161185/course-stream/internal/token"
)

// Login is the result of a successful deep-link redemption.
type Login struct {
	Tokens model.Tokens
	User   *model.User
	Rules  []model.AbilityRule
}

// DeepLinkRedeemer exchanges single-use deep-link tokens for session credentials.
type DeepLinkRedeemer interface {
	Redeem(ctx context.Context, tok string, src model.Source) (Login, error)
}

// DeepLinkServiceImpl implements DeepLinkRedeemer.
type DeepLinkServiceImpl struct {
	signer *token.Signer
	guard  replay.Guard
	oracle EnrollmentOracle
	users  UserDirectory
	lim    limiter.Limiter
	clock  clock.Clock
	log    *zap.Logger
}

// NewDeepLinkService constructs DeepLinkRedeemer with required dependencies.
func NewDeepLinkService(
	signer *token.Signer, guard replay.Guard, oracle EnrollmentOracle, users UserDirectory,
	lim limiter.Limiter, c clock.Clock, log *zap.Logger,
) *DeepLinkServiceImpl {
	if c == nil {
		c = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DeepLinkServiceImpl{signer: signer, guard: guard, oracle: oracle, users: users, lim: lim, clock: c, log: log}
}

// Redeem implements DeepLinkRedeemer. The jti is reserved before entitlement is checked,
// so a token rejected on entitlement is still spent.
func (s *DeepLinkServiceImpl) Redeem(ctx context.Context, tok string, src model.Source) (Login, error) {
	ipHash := limiter.HashIP(src.IP)

	allowed, _, err := s.lim.Allow(ctx, limiter.ScopeDeepLinkLogin, ipHash)
	if err != nil {
		return Login{}, err
	}
	if !allowed {
		return Login{}, errs.ErrRateLimited
	}

	login, err := s.redeem(ctx, tok, src)
	if err != nil {
		var te *errs.TokenError
		if errors.As(err, &te) || errors.Is(err, errs.ErrReplayDetected) {
			blocked, _, ferr := s.lim.Failure(ctx, limiter.ScopeDeepLinkLogin, ipHash)
			switch {
			case ferr != nil:
				s.log.Warn("limiter failure not recorded", zap.String("ip", src.IP), zap.Error(ferr))
			case blocked:
				s.log.Warn("deep link redemption blocked", zap.String("ip", src.IP))
			}
		}
		return Login{}, err
	}

	// Success: reset counters (best-effort).
	if err := s.lim.Success(ctx, limiter.ScopeDeepLinkLogin, ipHash); err != nil {
		s.log.Warn("limiter reset failed", zap.String("ip", src.IP), zap.Error(err))
	}
	return login, nil
}

func (s *DeepLinkServiceImpl) redeem(ctx context.Context, tok string, src model.Source) (Login, error) {
	c, err := s.signer.Parse(tok)
	if err != nil {
		return Login{}, err
	}
	if c.Kind != token.KindDeepLink {
		return Login{}, errs.NewTokenError(errs.TokenMalformed, errors.New("not a deep link token"))
	}
	claims := c.DeepLink
	if claims.ID == "" {
		return Login{}, errs.NewTokenError(errs.TokenMalformed, errors.New("missing jti"))
	}

	remaining := c.ExpiresAt().Sub(s.clock.Now())
	if remaining < time.Second {
		remaining = time.Second
	}
	reserved, err := s.guard.Reserve(ctx, claims.ID, remaining)
	if err != nil {
		return Login{}, fmt.Errorf("reserve jti: %w", err)
	}
	if !reserved {
		// A live reservation means a concurrent or earlier redemption won; a gone one
		// means the record was swept after expiry.
		live, herr := s.guard.Has(ctx, claims.ID)
		if herr != nil {
			s.log.Warn("replay lookup failed", zap.String("jti", claims.ID), zap.Error(herr))
		}
		s.log.Warn("deep link replay detected",
			zap.String("jti", claims.ID),
			zap.Bool("reservation_live", live),
			zap.String("user_id", claims.Subject),
			zap.String("ip", src.IP),
			zap.String("user_agent", src.UserAgent))
		return Login{}, errs.ErrReplayDetected
	}

	userID, err1 := uuid.FromString(claims.Subject)
	courseID, err2 := uuid.FromString(claims.CourseID)
	_, err3 := uuid.FromString(claims.ModuleID)
	if err := errors.Join(err1, err2, err3); err != nil {
		return Login{}, errs.NewTokenError(errs.TokenMalformed, err)
	}

	ok, err := s.oracle.IsEntitled(ctx, userID, courseID)
	if err != nil {
		return Login{}, err
	}
	if !ok {
		s.log.Info("deep link access revoked",
			zap.String("jti", claims.ID), zap.String("user_id", claims.Subject), zap.String("course_id", claims.CourseID))
		return Login{}, errs.ErrAccessRevoked
	}

	u, err := s.users.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return Login{}, errs.ErrUnauthorized
		}
		return Login{}, err
	}
	tokens, err := s.users.IssueSession(ctx, userID)
	if err != nil {
		return Login{}, fmt.Errorf("issue session: %w", err)
	}

	s.log.Info("deep link redeemed", zap.String("jti", claims.ID), zap.String("user_id", claims.Subject))
	return Login{Tokens: tokens, User: u, Rules: AbilityRules(u.Role)}, nil
}
