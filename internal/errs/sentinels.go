// Package errs contains sentinel and typed errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing or invalid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the actor may not manage the course.
	ErrForbidden = errors.New("not an instructor of this course")

	// ErrModuleCourseMismatch indicates the module does not belong to the course in the request.
	ErrModuleCourseMismatch = errors.New("module does not belong to this course")

	// ErrNotEntitled indicates the user has no access to the course at issuance time.
	ErrNotEntitled = errors.New("not enrolled in this course")

	// ErrNoVideo indicates the module carries no video link.
	ErrNoVideo = errors.New("module does not have a video")

	// ErrAccessRevoked indicates entitlement was lost between issuance and redemption.
	ErrAccessRevoked = errors.New("access revoked")

	// ErrReplayDetected indicates a single-use token identifier was already consumed.
	ErrReplayDetected = errors.New("token already used")

	// ErrRateLimited indicates temporary lockout due to repeated failures.
	ErrRateLimited = errors.New("rate limited")

	// ErrDecrypt indicates ciphertext could not be authenticated with the server key.
	ErrDecrypt = errors.New("decrypt failed")
)
