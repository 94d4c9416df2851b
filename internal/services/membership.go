package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"membershipinitiation/internal/codegen"
	"membershipinitiation/internal/domain"
)

// issueMaxAttempts bounds the collision-check-and-retry loop on credential
// generation. Collisions in a 6-hex-char code space are rare but possible;
// anything past this count indicates a systemic problem, not bad luck.
const issueMaxAttempts = 5

type membershipService struct {
	memberships domain.MembershipRepository
	sessions    domain.OnboardingSessionRepository
	invitations domain.InvitationRepository
	audit       domain.AuditRepository
	logger      *slog.Logger
}

// NewMembershipService creates the membership issuer.
func NewMembershipService(
	memberships domain.MembershipRepository,
	sessions domain.OnboardingSessionRepository,
	invitations domain.InvitationRepository,
	audit domain.AuditRepository,
	logger *slog.Logger,
) domain.MembershipService {
	return &membershipService{
		memberships: memberships,
		sessions:    sessions,
		invitations: invitations,
		audit:       audit,
		logger:      logger,
	}
}

// Issue mints the credential for an approved session. The raw membership key
// is returned exactly once; only its hash is stored. The unique constraint
// on invitation_code is the backstop that guarantees at most one membership
// per invitation even under concurrent calls.
func (s *membershipService) Issue(ctx context.Context, invitationCode, operator string) (*domain.MembershipCredentials, error) {
	sess, err := s.sessions.GetByInvitationCode(ctx, invitationCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.State != domain.SessionApproved {
		return nil, domain.ErrInvalidState
	}

	inv, err := s.invitations.GetByCode(ctx, invitationCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}

	for attempt := 0; attempt < issueMaxAttempts; attempt++ {
		membershipCode, err := codegen.MembershipCode()
		if err != nil {
			return nil, fmt.Errorf("generate membership code: %w", err)
		}
		key, err := codegen.MembershipKey()
		if err != nil {
			return nil, fmt.Errorf("generate membership key: %w", err)
		}

		now := time.Now()
		m := &domain.Membership{
			InvitationCode: invitationCode,
			MembershipCode: membershipCode,
			KeyHash:        hashMembershipKey(key),
			IssuedTo:       inv.InvitedName,
			Active:         true,
			IssuedAt:       now,
		}
		err = s.memberships.Create(ctx, m)
		if errors.Is(err, domain.ErrDuplicateCredential) {
			// Generation collision; retry with fresh randomness.
			continue
		}
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyIssued) {
				return nil, domain.ErrAlreadyIssued
			}
			return nil, fmt.Errorf("create membership: %w", err)
		}

		if err := s.invitations.MarkConsumed(ctx, invitationCode, now); err != nil {
			s.logger.ErrorContext(ctx, "mark invitation consumed failed", "code", invitationCode, "err", err)
		}
		s.appendAudit(ctx, invitationCode, operator, fmt.Sprintf("membership %s issued", membershipCode))

		return &domain.MembershipCredentials{
			MembershipCode: membershipCode,
			MembershipKey:  key,
			IssuedTo:       inv.InvitedName,
		}, nil
	}
	return nil, fmt.Errorf("membership credential generation collided %d times", issueMaxAttempts)
}

// Revoke deactivates a membership. Idempotent; the row is never deleted.
func (s *membershipService) Revoke(ctx context.Context, membershipCode string) error {
	m, err := s.memberships.GetByCode(ctx, membershipCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("get membership: %w", err)
	}
	if !m.Active {
		return nil
	}
	if err := s.memberships.Deactivate(ctx, membershipCode); err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	s.appendAudit(ctx, m.InvitationCode, domain.ActorSystem, fmt.Sprintf("membership %s revoked", membershipCode))
	return nil
}

// ValidateKey checks a presented membership key. Only presence and active
// status are observable; the key itself is never stored or returned.
func (s *membershipService) ValidateKey(ctx context.Context, key string) (*domain.Membership, error) {
	m, err := s.memberships.GetByKeyHash(ctx, hashMembershipKey(key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get membership by key: %w", err)
	}
	if !m.Active {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func (s *membershipService) List(ctx context.Context) ([]*domain.Membership, error) {
	memberships, err := s.memberships.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	if memberships == nil {
		memberships = []*domain.Membership{}
	}
	return memberships, nil
}

func hashMembershipKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *membershipService) appendAudit(ctx context.Context, code, actor, reason string) {
	rec := &domain.AuditRecord{
		InvitationCode: code,
		FromState:      string(domain.SessionApproved),
		ToState:        string(domain.SessionApproved),
		Actor:          actor,
		Reason:         reason,
		CreatedAt:      time.Now(),
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed", "code", code, "err", err)
	}
}
