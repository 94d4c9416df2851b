package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"membershipinitiation/internal/domain"
)

// GateConfig holds the validation gate policy.
type GateConfig struct {
	// ConfidenceThreshold is the minimum validator confidence for an
	// automatic approve/reject. Anything below escalates.
	ConfidenceThreshold float64
	// ValidatorTimeout bounds each validator attempt.
	ValidatorTimeout time.Duration
	// MaxRetries is the number of retries after the first attempt on
	// transient validator failure.
	MaxRetries uint64
	// RetryInitialInterval seeds the exponential backoff between attempts.
	RetryInitialInterval time.Duration
}

type gateService struct {
	sessions    domain.OnboardingSessionRepository
	invitations domain.InvitationRepository
	validator   domain.Validator
	audit       domain.AuditRepository
	cfg         GateConfig
	logger      *slog.Logger
}

// NewValidationGate creates the gate that runs automated review on submitted
// sessions. Any ambiguity (uncertain verdict, low confidence, validator error
// after retries) escalates to admin review; silence never equals approval.
func NewValidationGate(
	sessions domain.OnboardingSessionRepository,
	invitations domain.InvitationRepository,
	validator domain.Validator,
	audit domain.AuditRepository,
	cfg GateConfig,
	logger *slog.Logger,
) domain.ValidationGate {
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	return &gateService{
		sessions:    sessions,
		invitations: invitations,
		validator:   validator,
		audit:       audit,
		cfg:         cfg,
		logger:      logger,
	}
}

func (g *gateService) Evaluate(ctx context.Context, invitationCode string) (*domain.OnboardingSession, error) {
	sess, err := g.sessions.GetByInvitationCode(ctx, invitationCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	switch sess.State {
	case domain.SessionSubmitted:
		won, err := g.sessions.TransitionState(ctx, invitationCode, domain.SessionSubmitted, domain.SessionAIReview, time.Now())
		if err != nil {
			return nil, fmt.Errorf("transition to ai_review: %w", err)
		}
		if !won {
			// Someone else claimed the session first; report the current state.
			return g.sessions.GetByInvitationCode(ctx, invitationCode)
		}
		g.appendAudit(ctx, invitationCode, domain.SessionSubmitted, domain.SessionAIReview, domain.ActorSystem, "automated review started")
	case domain.SessionAIReview:
		// A previous evaluation claimed the session but never resolved it
		// (crash or storage error between the claim and the outcome). Run it
		// again; the exit transition still admits exactly one winner.
		g.logger.WarnContext(ctx, "resuming unresolved evaluation", "code", invitationCode)
	default:
		return sess, nil
	}

	var invitedName string
	if inv, err := g.invitations.GetByCode(ctx, invitationCode); err == nil {
		invitedName = inv.InvitedName
	}

	target := domain.SessionAdminReview
	reason := "escalated to admin review"

	result, err := g.callValidator(ctx, &domain.ValidationRequest{
		InvitationCode: invitationCode,
		InvitedName:    invitedName,
		Responses:      sess.Responses,
	})
	if err != nil {
		// Fail safe: exhausted retries, timeout, or cancellation all count
		// as "uncertain" and escalate rather than blocking the applicant.
		g.logger.WarnContext(ctx, "validator unavailable, escalating", "code", invitationCode, "err", err)
		reason = "validator unavailable after retries; escalated to admin review"
	} else {
		verdict := &domain.AIVerdict{
			Verdict:     result.Verdict,
			Confidence:  result.Confidence,
			Rationale:   result.Rationale,
			EvaluatedAt: time.Now(),
		}
		if err := g.sessions.SetAIVerdict(ctx, invitationCode, verdict); err != nil {
			return nil, fmt.Errorf("set ai verdict: %w", err)
		}
		target, reason = resolveVerdict(result, g.cfg.ConfidenceThreshold)
	}

	if !domain.CanTransition(domain.SessionAIReview, target) {
		return nil, fmt.Errorf("%w: ai_review -> %s", domain.ErrInvalidState, target)
	}
	won, err := g.sessions.TransitionState(ctx, invitationCode, domain.SessionAIReview, target, time.Now())
	if err != nil {
		return nil, fmt.Errorf("transition out of ai_review: %w", err)
	}
	if won {
		g.appendAudit(ctx, invitationCode, domain.SessionAIReview, target, domain.ActorSystem, reason)
	}

	return g.sessions.GetByInvitationCode(ctx, invitationCode)
}

// resolveVerdict maps a validator result onto the next state. Only a
// confident pass or fail decides automatically; everything else escalates.
func resolveVerdict(result *domain.ValidationResult, threshold float64) (domain.SessionState, string) {
	switch {
	case result.Verdict == domain.VerdictPass && result.Confidence >= threshold:
		return domain.SessionApproved, fmt.Sprintf("automated pass (confidence %.2f)", result.Confidence)
	case result.Verdict == domain.VerdictFail && result.Confidence >= threshold:
		return domain.SessionRejected, fmt.Sprintf("automated fail (confidence %.2f)", result.Confidence)
	default:
		return domain.SessionAdminReview, fmt.Sprintf("verdict %s (confidence %.2f) below threshold; escalated to admin review", result.Verdict, result.Confidence)
	}
}

func (g *gateService) callValidator(ctx context.Context, req *domain.ValidationRequest) (*domain.ValidationResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.cfg.RetryInitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, g.cfg.MaxRetries), ctx)

	return backoff.RetryWithData(func() (*domain.ValidationResult, error) {
		attemptCtx := ctx
		if g.cfg.ValidatorTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, g.cfg.ValidatorTimeout)
			defer cancel()
		}
		result, err := g.validator.Validate(attemptCtx, req)
		if err != nil {
			// Timeouts and 5xx-equivalents are transient; give backoff a
			// chance unless the caller's context is already gone.
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return result, nil
	}, policy)
}

func (g *gateService) appendAudit(ctx context.Context, code string, from, to domain.SessionState, actor, reason string) {
	rec := &domain.AuditRecord{
		InvitationCode: code,
		FromState:      string(from),
		ToState:        string(to),
		Actor:          actor,
		Reason:         reason,
		CreatedAt:      time.Now(),
	}
	if err := g.audit.Append(ctx, rec); err != nil {
		g.logger.ErrorContext(ctx, "audit append failed", "code", code, "err", err)
	}
}
