package crypto

import (
	"bytes"
	"crypto/subtle"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/course-stream/internal/errs"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	key, err := RandBytes(KeyLen)
	require.NoError(t, err)
	c, err := NewCodec(key)
	require.NoError(t, err)
	return c
}

func TestNewCodec_RejectsBadKey(t *testing.T) {
	t.Parallel()
	if _, err := NewCodec([]byte("short")); err == nil {
		t.Fatalf("NewCodec must reject a short key")
	}
}

func TestCodec_Roundtrip(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t)

	urls := []string{
		"https://cdn.example.com/v1.mp4",
		"https://videos.example.com/path/with%20space?sig=abc&exp=1",
		"",
		strings.Repeat("x", 4096),
	}
	for _, u := range urls {
		ct, err := c.Encrypt(u)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(ct, "v1."))
		if u != "" {
			require.NotContains(t, ct, u)
		}
		got, err := c.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, u, got)
	}
}

func TestCodec_FreshNoncePerEncryption(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t)

	a, err := c.Encrypt("https://cdn.example.com/v1.mp4")
	require.NoError(t, err)
	b, err := c.Encrypt("https://cdn.example.com/v1.mp4")
	require.NoError(t, err)
	require.NotEqual(t, a, b, "two encryptions of one url must differ")
}

func TestCodec_TamperDetection_EveryBit(t *testing.T) {
	t.Parallel()
	c := newTestCodec(t)

	ct, err := c.Encrypt("https://cdn.example.com/v1.mp4")
	require.NoError(t, err)
	raw, err := b64.DecodeString(strings.TrimPrefix(ct, codecVersion))
	require.NoError(t, err)

	for i := 0; i < len(raw)*8; i++ {
		mut := bytes.Clone(raw)
		mut[i/8] ^= 1 << (i % 8)
		_, err := c.Decrypt(codecVersion + b64.EncodeToString(mut))
		if err == nil {
			t.Fatalf("bit %d flipped: decrypt must fail", i)
		}
		var ce *errs.CryptoError
		require.ErrorAs(t, err, &ce)
		require.ErrorIs(t, err, errs.ErrDecrypt)
	}
}

func TestCodec_ForeignKeyAndGarbage(t *testing.T) {
	t.Parallel()
	a := newTestCodec(t)
	b := newTestCodec(t)

	ct, err := a.Encrypt("https://cdn.example.com/v1.mp4")
	require.NoError(t, err)

	for name, in := range map[string]string{
		"foreign key":   ct,
		"no version":    strings.TrimPrefix(ct, codecVersion),
		"bad base64":    "v1.***",
		"too short":     "v1.AAAA",
		"empty":         "",
		"other version": "v2." + strings.TrimPrefix(ct, codecVersion),
	} {
		_, err := b.Decrypt(in)
		require.ErrorIs(t, err, errs.ErrDecrypt, name)
	}
}

func TestDeriveKeys_IndependentAndDeterministic(t *testing.T) {
	t.Parallel()

	master := []byte("0123456789abcdef0123456789abcdef")
	k1, err := DeriveKeys(master)
	require.NoError(t, err)
	k2, err := DeriveKeys(master)
	require.NoError(t, err)

	if subtle.ConstantTimeCompare(k1.URL, k2.URL) != 1 {
		t.Fatalf("DeriveKeys must be deterministic")
	}
	require.Len(t, k1.URL, KeyLen)
	require.NotEqual(t, k1.URL, k1.Capability)
	require.NotEqual(t, k1.Capability, k1.Session)
	require.NotEqual(t, k1.URL, k1.Session)

	other, err := DeriveKeys([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	require.NotEqual(t, k1.URL, other.URL)
}

func TestDeriveKeys_ShortSecret(t *testing.T) {
	t.Parallel()
	_, err := DeriveKeys([]byte("too-short"))
	require.ErrorIs(t, err, ErrShortSecret)
}

func TestRandBytes_LengthUniq(t *testing.T) {
	t.Parallel()
	a, err := RandBytes(48)
	require.NoError(t, err)
	require.Len(t, a, 48)
	b, _ := RandBytes(48)
	require.False(t, bytes.Equal(a, b))
}
