package domain

import "time"

// Role codes carried in bearer credentials.
const (
	RoleAdmin = "admin"
)

// AutomationSubject identifies the privileged-automation identity granted by
// the operator token.
const AutomationSubject = "automation"

// Identity is the verified subject of a bearer credential.
type Identity struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the identity carries the given role.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenIssuer issues signed bearer tokens (e.g. JWT).
type TokenIssuer interface {
	Issue(subject string, roles []string, expiry time.Duration) (string, error)
}

// TokenVerifier verifies a signed bearer credential and returns the identity
// it asserts.
type TokenVerifier interface {
	Verify(token string) (*Identity, error)
}
