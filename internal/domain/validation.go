package domain

import "context"

// ValidationVerdict is the tagged outcome of an automated review. Anything
// other than a confident pass or fail escalates to human review.
type ValidationVerdict string

const (
	VerdictPass      ValidationVerdict = "pass"
	VerdictFail      ValidationVerdict = "fail"
	VerdictUncertain ValidationVerdict = "uncertain"
)

// ValidationRequest is the payload sent to the validation collaborator.
type ValidationRequest struct {
	InvitationCode string          `json:"invitation_code"`
	InvitedName    string          `json:"invited_name"`
	Responses      []ResponseEntry `json:"responses"`
}

// ValidationResult is the collaborator's answer.
type ValidationResult struct {
	Verdict    ValidationVerdict `json:"verdict"`
	Confidence float64           `json:"confidence"`
	Rationale  string            `json:"rationale"`
}

// Validator is the port to the external AI validation collaborator. The call
// must honor ctx cancellation; implementations apply a bounded timeout.
type Validator interface {
	Validate(ctx context.Context, req *ValidationRequest) (*ValidationResult, error)
}

// ValidationGate runs the automated review for a submitted session and
// transitions it to approved, rejected, or admin_review.
type ValidationGate interface {
	Evaluate(ctx context.Context, invitationCode string) (*OnboardingSession, error)
}

// ReviewService exposes escalated sessions to privileged operators.
type ReviewService interface {
	ListPending(ctx context.Context) ([]*OnboardingSession, error)
	Decide(ctx context.Context, invitationCode string, approve bool, operator string) (*OnboardingSession, error)
}
