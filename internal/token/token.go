// Package token mints and verifies the two capability token kinds: stream tokens
// and single-use deep-link tokens. Both are HS256 JWTs with fixed claim sets;
// decoding yields a Capability whose Kind selects exactly one claim struct.
package token

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/course-stream/internal/clock"
	"github.com/and161185/course-stream/internal/errs"
)

// Claim discriminators.
const (
	PurposeStream        = "stream"
	TypeDeepLink         = "deep_link"
	PurposeVideoPlayback = "video_playback"
)

// ErrUnknownVariant is the cause of the Malformed error returned when a verified
// claim set matches neither token kind.
var ErrUnknownVariant = errors.New("claims match no token kind")

// DefaultIssuer is written to and required in the iss claim.
const DefaultIssuer = "course-stream"

// Kind selects the variant of a Capability.
type Kind int

const (
	KindStream Kind = iota + 1
	KindDeepLink
)

// StreamPayload carries the freshly re-encrypted video URL.
type StreamPayload struct {
	EncryptedURL string `json:"encrypted_url"`
}

// StreamClaims authorize one redirect to a module's video until expiry.
type StreamClaims struct {
	jwt.RegisteredClaims
	CourseID string        `json:"course_id"`
	ModuleID string        `json:"module_id"`
	Purpose  string        `json:"purpose"`
	Payload  StreamPayload `json:"payload"`
}

// DeepLinkClaims authorize one exchange for session credentials. RegisteredClaims.ID is the jti.
type DeepLinkClaims struct {
	jwt.RegisteredClaims
	CourseID string `json:"course_id"`
	ModuleID string `json:"module_id"`
	Type     string `json:"type"`
	Purpose  string `json:"purpose"`
}

// Capability is a verified token. Exactly one of Stream and DeepLink is set, per Kind.
type Capability struct {
	Kind     Kind
	Stream   *StreamClaims
	DeepLink *DeepLinkClaims
}

// ExpiresAt returns the verified expiry of either variant.
func (c Capability) ExpiresAt() time.Time {
	switch c.Kind {
	case KindStream:
		return c.Stream.ExpiresAt.Time
	case KindDeepLink:
		return c.DeepLink.ExpiresAt.Time
	}
	return time.Time{}
}

// wireClaims is the union of both claim sets, used only while decoding.
type wireClaims struct {
	jwt.RegisteredClaims
	CourseID string         `json:"course_id"`
	ModuleID string         `json:"module_id"`
	Type     string         `json:"type,omitempty"`
	Purpose  string         `json:"purpose"`
	Payload  *StreamPayload `json:"payload,omitempty"`
}

// Signer mints and verifies capability tokens with a single HMAC key.
type Signer struct {
	key    []byte
	issuer string
	clock  clock.Clock
	parser *jwt.Parser
}

// NewSigner constructs a Signer. The key must not be shared with session tokens.
func NewSigner(key []byte, issuer string, c clock.Clock) *Signer {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if c == nil {
		c = clock.Real()
	}
	return &Signer{
		key:    key,
		issuer: issuer,
		clock:  c,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuer(issuer),
			jwt.WithTimeFunc(c.Now),
		),
	}
}

func (s *Signer) registered(subject uuid.UUID, jti string, ttl time.Duration) (jwt.RegisteredClaims, time.Time) {
	now := s.clock.Now()
	// exp is encoded in whole seconds; round up so the token lives at least ttl.
	exp := now.Add(ttl)
	if t := exp.Truncate(time.Second); !t.Equal(exp) {
		exp = t.Add(time.Second)
	}
	return jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    s.issuer,
		Subject:   subject.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}, exp
}

// SignStream mints a stream token embedding encryptedURL.
func (s *Signer) SignStream(subject, courseID, moduleID uuid.UUID, encryptedURL string, ttl time.Duration) (string, time.Time, error) {
	rc, exp := s.registered(subject, "", ttl)
	claims := StreamClaims{
		RegisteredClaims: rc,
		CourseID:         courseID.String(),
		ModuleID:         moduleID.String(),
		Purpose:          PurposeStream,
		Payload:          StreamPayload{EncryptedURL: encryptedURL},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	return signed, exp, err
}

// SignDeepLink mints a deep-link token identified by jti.
func (s *Signer) SignDeepLink(jti string, subject, courseID, moduleID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	if jti == "" {
		return "", time.Time{}, errors.New("empty jti")
	}
	rc, exp := s.registered(subject, jti, ttl)
	claims := DeepLinkClaims{
		RegisteredClaims: rc,
		CourseID:         courseID.String(),
		ModuleID:         moduleID.String(),
		Type:             TypeDeepLink,
		Purpose:          PurposeVideoPlayback,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	return signed, exp, err
}

// Parse verifies signature, issuer and expiry, then matches the claim set to a variant.
// Failures are *errs.TokenError.
func (s *Signer) Parse(tok string) (Capability, error) {
	var w wireClaims
	_, err := s.parser.ParseWithClaims(tok, &w, func(*jwt.Token) (any, error) { return s.key, nil })
	if err != nil {
		return Capability{}, classify(err)
	}

	switch {
	case w.Type == "" && w.Purpose == PurposeStream:
		if w.Payload == nil || w.Payload.EncryptedURL == "" {
			return Capability{}, errs.NewTokenError(errs.TokenMalformed, errors.New("missing payload"))
		}
		return Capability{Kind: KindStream, Stream: &StreamClaims{
			RegisteredClaims: w.RegisteredClaims,
			CourseID:         w.CourseID,
			ModuleID:         w.ModuleID,
			Purpose:          w.Purpose,
			Payload:          *w.Payload,
		}}, nil
	case w.Type == TypeDeepLink && w.Purpose == PurposeVideoPlayback:
		return Capability{Kind: KindDeepLink, DeepLink: &DeepLinkClaims{
			RegisteredClaims: w.RegisteredClaims,
			CourseID:         w.CourseID,
			ModuleID:         w.ModuleID,
			Type:             w.Type,
			Purpose:          w.Purpose,
		}}, nil
	default:
		return Capability{}, errs.NewTokenError(errs.TokenMalformed, ErrUnknownVariant)
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errs.NewTokenError(errs.TokenExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return errs.NewTokenError(errs.TokenInvalidSignature, err)
	default:
		return errs.NewTokenError(errs.TokenMalformed, err)
	}
}
