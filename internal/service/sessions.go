package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/course-stream/internal/clock"
	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/model"
	"github.com/and161185/course-stream/internal/repository"
)

// sessionAudience separates session bearers from capability tokens even if keys were shared.
const sessionAudience = "course-stream/session"

// UserDirectory resolves user profiles and mints regular session credentials.
type UserDirectory interface {
	// Profile loads the user or returns errs.ErrNotFound.
	Profile(ctx context.Context, userID uuid.UUID) (*model.User, error)
	// IssueSession mints a fresh session bearer for userID.
	IssueSession(ctx context.Context, userID uuid.UUID) (model.Tokens, error)
	// Verify validates a session bearer and returns its subject.
	Verify(token string) (uuid.UUID, error)
}

// SessionServiceImpl implements UserDirectory with HS256 JWT bearers.
type SessionServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	clock     clock.Clock
	parser    *jwt.Parser
}

// NewSessionService constructs UserDirectory with required dependencies.
func NewSessionService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, c clock.Clock) *SessionServiceImpl {
	if c == nil {
		c = clock.Real()
	}
	return &SessionServiceImpl{
		users:     users,
		signKey:   signKey,
		accessTTL: accessTTL,
		clock:     c,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithAudience(sessionAudience),
			jwt.WithLeeway(30*time.Second),
			jwt.WithTimeFunc(c.Now),
		),
	}
}

// Profile implements UserDirectory.
func (s *SessionServiceImpl) Profile(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	if userID.IsNil() {
		return nil, errs.ErrNotFound
	}
	return s.users.GetByID(ctx, userID)
}

// IssueSession implements UserDirectory.
func (s *SessionServiceImpl) IssueSession(_ context.Context, userID uuid.UUID) (model.Tokens, error) {
	access, exp, err := s.issueAccessToken(userID)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *SessionServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.clock.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		ID:        jti.String(),
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{sessionAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// Verify implements UserDirectory. Every failure is errs.ErrUnauthorized.
func (s *SessionServiceImpl) Verify(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	if _, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.signKey, nil
	}); err != nil {
		return uuid.Nil, errors.Join(errs.ErrUnauthorized, err)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil || id.IsNil() {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return id, nil
}

// AbilityRules returns the client-side permission rules for a role.
func AbilityRules(r model.Role) []model.AbilityRule {
	switch r {
	case model.RoleAdmin:
		return []model.AbilityRule{{Action: "manage", Subject: "all"}}
	case model.RoleInstructor:
		return []model.AbilityRule{{Action: "read", Subject: "all"}, {Action: "manage", Subject: "Course"}}
	default:
		return []model.AbilityRule{{Action: "read", Subject: "Course"}, {Action: "read", Subject: "Module"}}
	}
}
