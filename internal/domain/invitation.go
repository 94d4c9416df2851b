package domain

import (
	"context"
	"time"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationRedeemed InvitationStatus = "redeemed"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation is a pre-issued code+PIN pair granting one applicant the right
// to begin onboarding. Rows are never physically deleted; revocation is
// logical to preserve the audit trail.
// swagger:model Invitation
type Invitation struct {
	ID           string           `json:"id"`
	Code         string           `json:"code"`
	PINHash      string           `json:"-"`
	InvitedName  string           `json:"invited_name"`
	InvitedEmail string           `json:"invited_email,omitempty"`
	Status       InvitationStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	RedeemedAt   *time.Time       `json:"redeemed_at,omitempty"`
	ConsumedAt   *time.Time       `json:"consumed_at,omitempty"`
}

// NewInvitation returns a pending Invitation. ID is set by the repository on create.
func NewInvitation(code, pinHash, invitedName, invitedEmail string, createdAt time.Time) *Invitation {
	return &Invitation{
		Code:         code,
		PINHash:      pinHash,
		InvitedName:  invitedName,
		InvitedEmail: invitedEmail,
		Status:       InvitationPending,
		CreatedAt:    createdAt,
	}
}

// ExpiredAt reports whether the invitation has passed its time-to-live at
// the given instant. Expiration is evaluated lazily from CreatedAt; there is
// no background sweep. A non-positive ttl means invitations never expire.
func (i *Invitation) ExpiredAt(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.After(i.CreatedAt.Add(ttl))
}

// InvitationCredentials is the create result handed back to the administrator.
// The raw PIN exists only here; storage keeps a bcrypt hash.
type InvitationCredentials struct {
	Code        string `json:"code"`
	PIN         string `json:"pin"`
	InvitedName string `json:"invited_name"`
}

// PinHasher hashes and verifies invitation PINs. Compare must be
// constant-time; PIN checks are a timing side-channel concern.
type PinHasher interface {
	Hash(pin string) (string, error)
	Compare(hash, pin string) error
}

// InvitationRepository defines the interface for invitation storage.
// Redeem and Revoke are atomic conditional updates: they succeed only when
// the row is still in the expected status and report whether this caller won.
type InvitationRepository interface {
	Create(ctx context.Context, inv *Invitation) error
	GetByCode(ctx context.Context, code string) (*Invitation, error)
	Redeem(ctx context.Context, code string, at time.Time) (won bool, err error)
	Revoke(ctx context.Context, code string) (changed bool, err error)
	MarkConsumed(ctx context.Context, code string, at time.Time) error
	List(ctx context.Context) ([]*Invitation, error)
}

// InvitationService defines the business logic for the invitation registry.
type InvitationService interface {
	Create(ctx context.Context, invitedName, invitedEmail string) (*InvitationCredentials, error)
	Redeem(ctx context.Context, code, pin, sourceAddr string) (*Invitation, error)
	Revoke(ctx context.Context, code string) error
	List(ctx context.Context) ([]*Invitation, error)
	AuditTrail(ctx context.Context, code string) ([]*AuditRecord, error)
}
