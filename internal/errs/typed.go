package errs

import "fmt"

// Reason classifies a user-correctable validation failure.
type Reason string

const (
	ReasonInvalidScheme    Reason = "invalid_scheme"
	ReasonInvalidFormat    Reason = "invalid_format"
	ReasonDomainNotAllowed Reason = "domain_not_allowed"
	ReasonUnreachable      Reason = "unreachable"
	ReasonInvalidField     Reason = "invalid_field"
)

// ValidationError is returned when input fails a policy check. Never retried automatically.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidation builds a ValidationError.
func NewValidation(reason Reason, msg string) *ValidationError {
	return &ValidationError{Reason: reason, Message: msg}
}

// TokenKind classifies why a capability token was rejected.
type TokenKind int

const (
	TokenMalformed TokenKind = iota + 1
	TokenExpired
	TokenWrongPurpose
	TokenInvalidSignature
)

func (k TokenKind) String() string {
	switch k {
	case TokenMalformed:
		return "malformed"
	case TokenExpired:
		return "expired"
	case TokenWrongPurpose:
		return "wrong purpose"
	case TokenInvalidSignature:
		return "invalid signature"
	default:
		return "unknown"
	}
}

// TokenError reports a rejected token. The client must request a new token.
type TokenError struct {
	Kind TokenKind
	Err  error
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return "token " + e.Kind.String()
	}
	return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// NewTokenError builds a TokenError.
func NewTokenError(kind TokenKind, err error) *TokenError {
	return &TokenError{Kind: kind, Err: err}
}

// CryptoError wraps a failure of the symmetric codec. Detail is for logs only.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *CryptoError) Unwrap() error { return e.Err }
