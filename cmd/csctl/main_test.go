package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/course-stream/internal/clock"
	"github.com/and161185/course-stream/internal/crypto"
	"github.com/and161185/course-stream/internal/token"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	otherSecret = "fedcba9876543210fedcba9876543210"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	app    *app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(env map[string]string) *harness {
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.app = &app{
		stdout: h.stdout,
		stderr: h.stderr,
		getenv: func(k string) string { return env[k] },
		now:    func() time.Time { return testNow },
	}
	return h
}

func (h *harness) run(args ...string) (int, string) {
	h.stdout.Reset()
	h.stderr.Reset()
	code := h.app.run(args)
	return code, strings.TrimSpace(h.stdout.String())
}

func TestKeygen(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	code, out := h.run("keygen")
	require.Equal(t, 0, code)
	require.True(t, strings.HasPrefix(out, "base64:"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out, "base64:"))
	require.NoError(t, err)
	require.Len(t, raw, crypto.KeyLen)

	_, again := h.run("keygen")
	require.NotEqual(t, out, again)
}

func TestEncryptDecrypt_EnvSecret(t *testing.T) {
	t.Parallel()

	h := newHarness(map[string]string{secretEnv: testSecret})
	code, ct := h.run("encrypt", "--url", "https://cdn.example.com/v.mp4")
	require.Equal(t, 0, code, h.stderr.String())
	require.True(t, strings.HasPrefix(ct, "v1."))

	code, pt := h.run("decrypt", "--text", ct)
	require.Equal(t, 0, code, h.stderr.String())
	require.Equal(t, "https://cdn.example.com/v.mp4", pt)

	// flag beats env
	code, _ = h.run("--secret", otherSecret, "decrypt", "--text", ct)
	require.Equal(t, 1, code)
	require.NotEmpty(t, h.stderr.String())
}

func TestReencrypt(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	code, oldCT := h.run("--secret", otherSecret, "encrypt", "--url", "https://youtu.be/x")
	require.Equal(t, 0, code)

	code, newCT := h.run("--secret", testSecret, "reencrypt", "--from", otherSecret, "--text", oldCT)
	require.Equal(t, 0, code, h.stderr.String())
	require.NotEqual(t, oldCT, newCT)

	code, pt := h.run("--secret", testSecret, "decrypt", "--text", newCT)
	require.Equal(t, 0, code)
	require.Equal(t, "https://youtu.be/x", pt)
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	code, _ := h.run()
	require.Equal(t, 2, code)

	code, _ = h.run("frobnicate")
	require.Equal(t, 2, code)
	require.Contains(t, h.stderr.String(), "unknown command")

	code, _ = h.run("--secret", testSecret, "encrypt")
	require.Equal(t, 2, code)
	require.Contains(t, h.stderr.String(), "--url is required")

	code, _ = h.run("encrypt", "--url", "https://a.example")
	require.Equal(t, 1, code)
	require.Contains(t, h.stderr.String(), secretEnv)

	code, _ = h.run("--secret", "short", "encrypt", "--url", "https://a.example")
	require.Equal(t, 1, code)

	code, _ = h.run("--help")
	require.Equal(t, 0, code)
}

func signStream(t *testing.T, secret string) (string, uuid.UUID) {
	t.Helper()
	keys, err := crypto.DeriveKeys([]byte(secret))
	require.NoError(t, err)
	codec, err := crypto.NewCodec(keys.URL)
	require.NoError(t, err)
	ct, err := codec.Encrypt("https://vimeo.com/42")
	require.NoError(t, err)

	user := uuid.Must(uuid.NewV4())
	signer := token.NewSigner(keys.Capability, token.DefaultIssuer, clock.NewFake(testNow))
	tok, _, err := signer.SignStream(user, uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), ct, 5*time.Minute)
	require.NoError(t, err)
	return tok, user
}

func TestInspect_Verified(t *testing.T) {
	t.Parallel()

	tok, user := signStream(t, testSecret)
	h := newHarness(map[string]string{secretEnv: testSecret})
	code, out := h.run("inspect", "--token", tok)
	require.Equal(t, 0, code, h.stderr.String())

	var got inspection
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.True(t, got.Verified)
	require.False(t, got.Expired)
	require.Equal(t, "stream", got.Kind)
	require.Equal(t, "https://vimeo.com/42", got.VideoURL)
	require.Equal(t, user.String(), got.Claims["sub"])
}

func TestInspect_Unverified(t *testing.T) {
	t.Parallel()

	tok, _ := signStream(t, testSecret)
	h := newHarness(nil)
	code, out := h.run("inspect", "--unverified", "--token", tok)
	require.Equal(t, 0, code, h.stderr.String())

	var got inspection
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.False(t, got.Verified)
	require.Empty(t, got.VideoURL)
	require.Equal(t, token.PurposeStream, got.Claims["purpose"])
}

func TestInspect_ForeignSecretRejected(t *testing.T) {
	t.Parallel()

	tok, _ := signStream(t, testSecret)
	h := newHarness(nil)
	code, _ := h.run("--secret", otherSecret, "inspect", "--token", tok)
	require.Equal(t, 1, code)

	code, _ = h.run("inspect", "--unverified", "--token", "not-a-jwt")
	require.Equal(t, 1, code)
}
