// Package crypto implements server-side key derivation and the URL encryption codec.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeyLen is the size of every derived key.
const KeyLen = 32

// MinSecretLen is the minimum accepted master secret size.
const MinSecretLen = 32

// HKDF info labels. Changing one invalidates everything keyed by it.
const (
	infoURL        = "course-stream url-encryption"
	infoCapability = "course-stream capability-signing"
	infoSession    = "course-stream session-signing"
)

// ErrShortSecret is returned for a master secret below MinSecretLen.
var ErrShortSecret = errors.New("app secret must be at least 32 bytes")

// Keys holds independent subkeys derived from the master secret.
type Keys struct {
	URL        []byte // EncryptionCodec key
	Capability []byte // stream and deep-link token HMAC key
	Session    []byte // session bearer token HMAC key
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKeys expands the master secret into per-purpose keys via HKDF-SHA256.
func DeriveKeys(master []byte) (Keys, error) {
	if len(master) < MinSecretLen {
		return Keys{}, ErrShortSecret
	}
	var k Keys
	var err error
	if k.URL, err = expand(master, infoURL); err != nil {
		return Keys{}, err
	}
	if k.Capability, err = expand(master, infoCapability); err != nil {
		return Keys{}, err
	}
	if k.Session, err = expand(master, infoSession); err != nil {
		return Keys{}, err
	}
	return k, nil
}

func expand(master []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	key := make([]byte, KeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
