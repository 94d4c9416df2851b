package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"membershipinitiation/internal/domain"
)

type onboardingService struct {
	sessions    domain.OnboardingSessionRepository
	invitations domain.InvitationRepository
	gate        domain.ValidationGate
	audit       domain.AuditRepository
	limiter     domain.RateLimiter
	logger      *slog.Logger
}

// NewOnboardingService creates an OnboardingService. Submitted sessions are
// handed off to the validation gate inside SubmitResponses.
func NewOnboardingService(
	sessions domain.OnboardingSessionRepository,
	invitations domain.InvitationRepository,
	gate domain.ValidationGate,
	audit domain.AuditRepository,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) domain.OnboardingService {
	return &onboardingService{
		sessions:    sessions,
		invitations: invitations,
		gate:        gate,
		audit:       audit,
		limiter:     limiter,
		logger:      logger,
	}
}

func (s *onboardingService) StartSession(ctx context.Context, invitationCode string) (*domain.OnboardingSession, bool, error) {
	inv, err := s.invitations.GetByCode(ctx, invitationCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, domain.ErrNotFound
		}
		return nil, false, fmt.Errorf("get invitation: %w", err)
	}
	if inv.Status != domain.InvitationRedeemed {
		return nil, false, domain.ErrInvalidState
	}

	// Idempotent: a session already started for this invitation is returned as-is.
	if existing, err := s.sessions.GetByInvitationCode(ctx, invitationCode); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("get session: %w", err)
	}

	sess := domain.NewOnboardingSession(invitationCode, time.Now())
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	s.appendAudit(ctx, invitationCode, "", string(domain.SessionCollecting), domain.ActorApplicant, "onboarding session started")
	return sess, true, nil
}

func (s *onboardingService) RecordConsent(ctx context.Context, invitationCode string, granted bool) error {
	changed, err := s.sessions.SetConsent(ctx, invitationCode, granted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("set consent: %w", err)
	}
	if !changed {
		// Consent can only be recorded while the session is still collecting.
		return domain.ErrInvalidState
	}
	return nil
}

// SubmitResponses is the idempotency boundary of the pipeline: a retried
// submission on an already-submitted session returns the session's current
// state instead of an error, so network retries are harmless.
func (s *onboardingService) SubmitResponses(ctx context.Context, invitationCode string, responses []domain.ResponseEntry, sourceAddr string) (*domain.OnboardingSession, error) {
	if s.limiter != nil && sourceAddr != "" {
		if ok, _ := s.limiter.Allow("submit:addr:" + sourceAddr); !ok {
			return nil, domain.ErrRateLimited
		}
	}

	sess, err := s.sessions.GetByInvitationCode(ctx, invitationCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if sess.State != domain.SessionCollecting {
		// A retried submission on a session still awaiting its automated
		// review nudges the evaluation forward instead of leaving it stuck;
		// resolved sessions come back as-is.
		if sess.State == domain.SessionSubmitted || sess.State == domain.SessionAIReview {
			evaluated, err := s.gate.Evaluate(ctx, invitationCode)
			if err != nil {
				s.logger.ErrorContext(ctx, "gate evaluation failed", "code", invitationCode, "err", err)
				return sess, nil
			}
			return evaluated, nil
		}
		return sess, nil
	}

	if !sess.ConsentGiven {
		return nil, domain.ErrConsentRequired
	}
	if err := validateResponses(responses); err != nil {
		return nil, err
	}
	for i := range responses {
		responses[i].Position = i
	}

	if err := s.sessions.SaveResponses(ctx, sess.ID, responses); err != nil {
		return nil, fmt.Errorf("save responses: %w", err)
	}

	now := time.Now()
	won, err := s.sessions.TransitionState(ctx, invitationCode, domain.SessionCollecting, domain.SessionSubmitted, now)
	if err != nil {
		return nil, fmt.Errorf("transition to submitted: %w", err)
	}
	if !won {
		// A concurrent submission won the race; report its outcome.
		current, err := s.sessions.GetByInvitationCode(ctx, invitationCode)
		if err != nil {
			return nil, fmt.Errorf("get session after lost submit race: %w", err)
		}
		return current, nil
	}
	s.appendAudit(ctx, invitationCode, string(domain.SessionCollecting), string(domain.SessionSubmitted), domain.ActorApplicant, "responses submitted")

	evaluated, err := s.gate.Evaluate(ctx, invitationCode)
	if err != nil {
		// The submission itself succeeded; evaluation can be retried by the
		// gate without losing the applicant's data.
		s.logger.ErrorContext(ctx, "gate evaluation failed", "code", invitationCode, "err", err)
		sess.State = domain.SessionSubmitted
		sess.SubmittedAt = &now
		sess.Responses = responses
		return sess, nil
	}
	return evaluated, nil
}

func validateResponses(responses []domain.ResponseEntry) error {
	if len(responses) == 0 {
		return fmt.Errorf("%w: at least one response is required", domain.ErrInvalidInput)
	}
	for _, r := range responses {
		if strings.TrimSpace(r.Question) == "" || strings.TrimSpace(r.Answer) == "" {
			return fmt.Errorf("%w: responses must have a question and an answer", domain.ErrInvalidInput)
		}
	}
	return nil
}

func (s *onboardingService) appendAudit(ctx context.Context, code, from, to, actor, reason string) {
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
