package domain

import "errors"

// Sentinel errors shared across services. Controllers map these onto HTTP
// status codes; repositories collapse storage constraint violations into the
// Already* conflicts.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("operation not allowed in current state")
	ErrInvalidInput = errors.New("invalid input")

	// Idempotency conflicts. Informational, not failures of the service.
	ErrAlreadyRedeemed  = errors.New("invitation already redeemed")
	ErrAlreadySubmitted = errors.New("onboarding already submitted")
	ErrAlreadyIssued    = errors.New("membership already issued for this invitation")

	// Trust violations. Logged for audit; responses never reveal which part
	// of a credential was wrong.
	ErrPinMismatch  = errors.New("invitation credentials do not match")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrConsentRequired = errors.New("consent is required before submitting responses")
	ErrExpired         = errors.New("invitation expired")
	ErrRevoked         = errors.New("invitation revoked")
	ErrRateLimited     = errors.New("rate limit exceeded")

	// ErrValidatorUnavailable degrades to escalation inside the gate and is
	// never surfaced to the applicant.
	ErrValidatorUnavailable = errors.New("validator unavailable")

	// ErrDuplicateCredential is returned by the membership repository when a
	// generated membership code or key collides with an existing row. The
	// issuer retries with fresh randomness.
	ErrDuplicateCredential = errors.New("generated credential already exists")
)
