// Package service contains the application services of the video delivery pipeline.
package service

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// Codec encrypts and decrypts video URLs.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// URLValidator checks a candidate video URL against the registration policy.
type URLValidator interface {
	Validate(ctx context.Context, raw string) error
}

// EnrollmentOracle answers entitlement questions.
type EnrollmentOracle interface {
	IsEntitled(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
	CanManage(ctx context.Context, userID, courseID uuid.UUID) (bool, error)
}
