package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/course-stream/internal/errs"
	"github.com/and161185/course-stream/internal/token"
)

func TestStream_IssueThenRedirect(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	signer := token.NewSigner(testKeys(t).Capability, "", f.clk)
	issuer := newTokenService(t, f, signer)
	proxy := NewStreamService(signer, f.codec, f.oracle, zaptest.NewLogger(t))
	ctx := context.Background()

	g, err := issuer.IssueStream(ctx, f.student, f.course, f.module)
	require.NoError(t, err)

	target, err := proxy.Redirect(ctx, g.Token)
	require.NoError(t, err)
	require.Equal(t, f.url, target.URL)

	// redeemable more than once until expiry
	_, err = proxy.Redirect(ctx, g.Token)
	require.NoError(t, err)
}

func TestStream_TTLBoundary(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	signer := token.NewSigner(testKeys(t).Capability, "", f.clk)
	issuer := newTokenService(t, f, signer)
	proxy := NewStreamService(signer, f.codec, f.oracle, nil)
	ctx := context.Background()

	g, err := issuer.IssueStream(ctx, f.student, f.course, f.module)
	require.NoError(t, err)

	f.clk.Set(testStart.Add(g.ExpiresIn - time.Second))
	_, err = proxy.Redirect(ctx, g.Token)
	require.NoError(t, err)

	f.clk.Set(testStart.Add(g.ExpiresIn + time.Second))
	_, err = proxy.Redirect(ctx, g.Token)
	var te *errs.TokenError
	require.ErrorAs(t, err, &te)
	require.Equal(t, errs.TokenExpired, te.Kind)
}

func TestStream_EntitlementRecheckedAtRedemption(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	signer := token.NewSigner(testKeys(t).Capability, "", f.clk)
	issuer := newTokenService(t, f, signer)
	proxy := NewStreamService(signer, f.codec, f.oracle, zaptest.NewLogger(t))
	ctx := context.Background()

	g, err := issuer.IssueStream(ctx, f.student, f.course, f.module)
	require.NoError(t, err)

	f.oracle.setEntitled(f.student, false)
	target, err := proxy.Redirect(ctx, g.Token)
	require.ErrorIs(t, err, errs.ErrAccessRevoked)
	require.Empty(t, target.URL)
}

func TestStream_RejectsDeepLinkAndForeignTokens(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	signer := token.NewSigner(testKeys(t).Capability, "", f.clk)
	proxy := NewStreamService(signer, f.codec, f.oracle, nil)
	ctx := context.Background()

	dl, _, err := signer.SignDeepLink("jti-1", f.student, f.course, f.module, time.Minute)
	require.NoError(t, err)
	_, err = proxy.Redirect(ctx, dl)
	var te *errs.TokenError
	require.ErrorAs(t, err, &te)
	require.Equal(t, errs.TokenWrongPurpose, te.Kind)

	// correctly signed, but the purpose names no token kind
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":     token.DefaultIssuer,
		"exp":     testStart.Add(time.Minute).Unix(),
		"purpose": "video_stream",
		"payload": map[string]string{"encrypted_url": "v1.x"},
	}).SignedString(testKeys(t).Capability)
	require.NoError(t, err)
	_, err = proxy.Redirect(ctx, foreign)
	require.ErrorAs(t, err, &te)
	require.Equal(t, errs.TokenWrongPurpose, te.Kind)

	// a session bearer is signed with another key
	sessions := NewSessionService(&fakeUsers{}, testKeys(t).Session, time.Hour, f.clk)
	bearer, err := sessions.IssueSession(ctx, f.student)
	require.NoError(t, err)
	_, err = proxy.Redirect(ctx, bearer.AccessToken)
	require.ErrorAs(t, err, &te)
	require.Equal(t, errs.TokenInvalidSignature, te.Kind)
}

func TestStream_DecryptFailureIsCryptoError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	signer := token.NewSigner(testKeys(t).Capability, "", f.clk)
	proxy := NewStreamService(signer, f.codec, f.oracle, zaptest.NewLogger(t))

	tok, _, err := signer.SignStream(f.student, f.course, f.module, "v1.not-a-real-ciphertext", time.Minute)
	require.NoError(t, err)
	_, err = proxy.Redirect(context.Background(), tok)
	var ce *errs.CryptoError
	require.ErrorAs(t, err, &ce)
	require.ErrorIs(t, err, errs.ErrDecrypt)
	require.NotContains(t, err.Error(), "not-a-real-ciphertext")
}
