package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"membershipinitiation/internal/codegen"
	"membershipinitiation/internal/domain"
)

type invitationService struct {
	invitations domain.InvitationRepository
	audit       domain.AuditRepository
	hasher      domain.PinHasher
	limiter     domain.RateLimiter
	email       domain.EmailService
	ttl         time.Duration
	logger      *slog.Logger
}

// NewInvitationService creates an InvitationService. ttl is the invitation
// time-to-live, evaluated lazily at redemption time; non-positive means
// invitations never expire. email may be nil when delivery is disabled.
func NewInvitationService(
	invitations domain.InvitationRepository,
	audit domain.AuditRepository,
	hasher domain.PinHasher,
	limiter domain.RateLimiter,
	email domain.EmailService,
	ttl time.Duration,
	logger *slog.Logger,
) domain.InvitationService {
	return &invitationService{
		invitations: invitations,
		audit:       audit,
		hasher:      hasher,
		limiter:     limiter,
		email:       email,
		ttl:         ttl,
		logger:      logger,
	}
}

func (s *invitationService) Create(ctx context.Context, invitedName, invitedEmail string) (*domain.InvitationCredentials, error) {
	code, err := codegen.Code(codegen.InvitationCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate invitation code: %w", err)
	}
	pin, err := codegen.PIN(codegen.PINDigits)
	if err != nil {
		return nil, fmt.Errorf("generate pin: %w", err)
	}
	pinHash, err := s.hasher.Hash(pin)
	if err != nil {
		return nil, fmt.Errorf("hash pin: %w", err)
	}

	inv := domain.NewInvitation(code, pinHash, invitedName, invitedEmail, time.Now())
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	s.appendAudit(ctx, code, "", string(domain.InvitationPending), domain.ActorSystem, "invitation created")

	if s.email != nil && invitedEmail != "" {
		data := &domain.InvitationEmailData{
			Email:          invitedEmail,
			InvitedName:    invitedName,
			Code:           code,
			PIN:            pin,
			ExpiresInHours: int(s.ttl / time.Hour),
		}
		if err := s.email.SendInvitation(ctx, data); err != nil {
			// Delivery failure does not invalidate the invitation; the
			// administrator still holds the credentials.
			s.logger.WarnContext(ctx, "invitation email failed", "code", code, "err", err)
		}
	}

	return &domain.InvitationCredentials{Code: code, PIN: pin, InvitedName: invitedName}, nil
}

func (s *invitationService) Redeem(ctx context.Context, code, pin, sourceAddr string) (*domain.Invitation, error) {
	if s.limiter != nil {
		if ok, _ := s.limiter.Allow("redeem:code:" + code); !ok {
			return nil, domain.ErrRateLimited
		}
		if sourceAddr != "" {
			if ok, _ := s.limiter.Allow("redeem:addr:" + sourceAddr); !ok {
				return nil, domain.ErrRateLimited
			}
		}
	}

	inv, err := s.invitations.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}

	switch inv.Status {
	case domain.InvitationRevoked:
		return nil, domain.ErrRevoked
	case domain.InvitationExpired:
		return nil, domain.ErrExpired
	case domain.InvitationRedeemed:
		return nil, domain.ErrAlreadyRedeemed
	}

	now := time.Now()
	if inv.ExpiredAt(now, s.ttl) {
		// Expiry is lazy: the row keeps its stored status, so the audit
		// record describes a rejected attempt, not a state change.
		s.appendAudit(ctx, code, string(inv.Status), string(inv.Status), domain.ActorApplicant, "redemption rejected: invitation expired")
		return nil, domain.ErrExpired
	}

	if err := s.hasher.Compare(inv.PINHash, pin); err != nil {
		// Trust violation: log and audit without revealing which part of the
		// credential was wrong, and without the pin itself.
		s.logger.WarnContext(ctx, "redemption pin mismatch", "code", code, "source", sourceAddr)
		s.appendAudit(ctx, code, string(inv.Status), string(inv.Status), domain.ActorApplicant, "redemption rejected: credential mismatch")
		return nil, domain.ErrPinMismatch
	}

	won, err := s.invitations.Redeem(ctx, code, now)
	if err != nil {
		return nil, fmt.Errorf("redeem invitation: %w", err)
	}
	if !won {
		// Another concurrent redemption got there first.
		return nil, domain.ErrAlreadyRedeemed
	}
	s.appendAudit(ctx, code, string(domain.InvitationPending), string(domain.InvitationRedeemed), domain.ActorApplicant, "invitation redeemed")

	inv.Status = domain.InvitationRedeemed
	inv.RedeemedAt = &now
	return inv, nil
}

func (s *invitationService) Revoke(ctx context.Context, code string) error {
	changed, err := s.invitations.Revoke(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("revoke invitation: %w", err)
	}
	if changed {
		s.appendAudit(ctx, code, "", string(domain.InvitationRevoked), domain.ActorSystem, "invitation revoked")
	}
	// Idempotent: revoking an already-revoked invitation is a no-op.
	return nil
}

func (s *invitationService) List(ctx context.Context) ([]*domain.Invitation, error) {
	invs, err := s.invitations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	if invs == nil {
		invs = []*domain.Invitation{}
	}
	return invs, nil
}

// AuditTrail returns the transition history for an invitation, oldest first.
func (s *invitationService) AuditTrail(ctx context.Context, code string) ([]*domain.AuditRecord, error) {
	if _, err := s.invitations.GetByCode(ctx, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	records, err := s.audit.ListByInvitationCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}
	return records, nil
}

func (s *invitationService) appendAudit(ctx context.Context, code, from, to, actor, reason string) {
	rec := &domain.AuditRecord{
		InvitationCode: code,
		FromState:      from,
		ToState:        to,
		Actor:          actor,
		Reason:         reason,
		CreatedAt:      time.Now(),
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed", "code", code, "err", err)
	}
}
