package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"membershipinitiation/internal/domain"
)

type reviewService struct {
	sessions domain.OnboardingSessionRepository
	audit    domain.AuditRepository
	logger   *slog.Logger
}

// NewReviewService creates the admin review queue. Authorization happens in
// the delivery layer; operator is the verified identity making the decision.
func NewReviewService(sessions domain.OnboardingSessionRepository, audit domain.AuditRepository, logger *slog.Logger) domain.ReviewService {
	return &reviewService{sessions: sessions, audit: audit, logger: logger}
}

// ListPending returns sessions awaiting human review, oldest submission
// first for fairness.
func (s *reviewService) ListPending(ctx context.Context) ([]*domain.OnboardingSession, error) {
	sessions, err := s.sessions.ListByState(ctx, domain.SessionAdminReview)
	if err != nil {
		return nil, fmt.Errorf("list pending sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*domain.OnboardingSession{}
	}
	return sessions, nil
}

func (s *reviewService) Decide(ctx context.Context, invitationCode string, approve bool, operator string) (*domain.OnboardingSession, error) {
	sess, err := s.sessions.GetByInvitationCode(ctx, invitationCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.State != domain.SessionAdminReview {
		return nil, domain.ErrInvalidState
	}

	now := time.Now()
	target := domain.SessionRejected
	if approve {
		target = domain.SessionApproved
	}

	verdict := &domain.AdminVerdict{Approved: approve, Operator: operator, DecidedAt: now}
	if err := s.sessions.SetAdminVerdict(ctx, invitationCode, verdict); err != nil {
		return nil, fmt.Errorf("set admin verdict: %w", err)
	}

	won, err := s.sessions.TransitionState(ctx, invitationCode, domain.SessionAdminReview, target, now)
	if err != nil {
		return nil, fmt.Errorf("transition to %s: %w", target, err)
	}
	if !won {
		// A concurrent decision got there first.
		return nil, domain.ErrInvalidState
	}

	rec := &domain.AuditRecord{
		InvitationCode: invitationCode,
		FromState:      string(domain.SessionAdminReview),
		ToState:        string(target),
		Actor:          operator,
		Reason:         "admin decision recorded",
		CreatedAt:      now,
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed", "code", invitationCode, "err", err)
	}

	return s.sessions.GetByInvitationCode(ctx, invitationCode)
}
