package crypto

import (
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/and161185/course-stream/internal/errs"
)

const (
	codecVersion = "v1."
	// urlAAD binds every ciphertext to the video-url purpose.
	urlAAD = "course-stream/video-url/v1"
)

var b64 = base64.RawURLEncoding

// Codec encrypts and decrypts video URLs with XChaCha20-Poly1305.
// Output is text: "v1." + base64url(nonce || ciphertext || tag).
// Codec holds no mutable state and is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec constructs a Codec from a 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return "", &errs.CryptoError{Op: "encrypt", Err: err}
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, []byte(plaintext), []byte(urlAAD))
	return codecVersion + b64.EncodeToString(out), nil
}

// Decrypt opens text produced by Encrypt. Tampered, truncated or foreign-key
// input yields *errs.CryptoError wrapping errs.ErrDecrypt.
func (c *Codec) Decrypt(text string) (string, error) {
	body, ok := strings.CutPrefix(text, codecVersion)
	if !ok {
		return "", decryptErr(errors.New("unknown ciphertext version"))
	}
	raw, err := b64.DecodeString(body)
	if err != nil {
		return "", decryptErr(err)
	}
	if len(raw) < chacha20poly1305.NonceSizeX+c.aead.Overhead() {
		return "", decryptErr(errors.New("ciphertext too short"))
	}
	nonce := raw[:chacha20poly1305.NonceSizeX]
	ct := raw[chacha20poly1305.NonceSizeX:]
	pt, err := c.aead.Open(nil, nonce, ct, []byte(urlAAD))
	if err != nil {
		return "", decryptErr(err)
	}
	return string(pt), nil
}

func decryptErr(cause error) error {
	return &errs.CryptoError{Op: "decrypt", Err: errors.Join(errs.ErrDecrypt, cause)}
}
