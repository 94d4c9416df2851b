package domain

import (
	"context"
	"time"
)

// Membership is the final issued credential. The raw membership key is
// returned exactly once at issuance; storage keeps only its hash.
// swagger:model Membership
type Membership struct {
	ID             string    `json:"id"`
	InvitationCode string    `json:"invitation_code"`
	MembershipCode string    `json:"membership_code"`
	KeyHash        string    `json:"-"`
	IssuedTo       string    `json:"issued_to"`
	Active         bool      `json:"active"`
	IssuedAt       time.Time `json:"issued_at"`
}

// MembershipCredentials is the one-time issuance result containing the raw key.
type MembershipCredentials struct {
	MembershipCode string `json:"membership_code"`
	MembershipKey  string `json:"membership_key"`
	IssuedTo       string `json:"issued_to"`
}

// MembershipRepository defines the interface for membership storage. Create
// relies on storage uniqueness constraints as the backstop: a duplicate
// invitation_code maps to ErrAlreadyIssued, a duplicate membership code or
// key hash maps to ErrDuplicateCredential.
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	GetByCode(ctx context.Context, membershipCode string) (*Membership, error)
	GetByKeyHash(ctx context.Context, keyHash string) (*Membership, error)
	Deactivate(ctx context.Context, membershipCode string) error
	List(ctx context.Context) ([]*Membership, error)
}

// MembershipService defines the business logic for the membership issuer.
type MembershipService interface {
	Issue(ctx context.Context, invitationCode, operator string) (*MembershipCredentials, error)
	Revoke(ctx context.Context, membershipCode string) error
	ValidateKey(ctx context.Context, key string) (*Membership, error)
	List(ctx context.Context) ([]*Membership, error)
}
