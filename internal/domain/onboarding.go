package domain

import (
	"context"
	"time"
)

// SessionState is the review state of an onboarding session.
type SessionState string

const (
	SessionCollecting  SessionState = "collecting"
	SessionSubmitted   SessionState = "submitted"
	SessionAIReview    SessionState = "ai_review"
	SessionAdminReview SessionState = "admin_review"
	SessionApproved    SessionState = "approved"
	SessionRejected    SessionState = "rejected"
)

// validSessionTransitions is the explicit transition table for the review
// state machine. Anything not listed is illegal; in particular there is no
// edge from ai_review or admin_review back to a collecting state, and no
// automatic edge promotes admin_review to approved.
var validSessionTransitions = map[SessionState]map[SessionState]bool{
	SessionCollecting: {SessionSubmitted: true},
	SessionSubmitted:  {SessionAIReview: true},
	SessionAIReview: {
		SessionApproved:    true,
		SessionRejected:    true,
		SessionAdminReview: true,
	},
	SessionAdminReview: {
		SessionApproved: true,
		SessionRejected: true,
	},
}

// CanTransition reports whether from → to is a legal session transition.
func CanTransition(from, to SessionState) bool {
	return validSessionTransitions[from][to]
}

// IsTerminal reports whether the state admits no further transitions.
func (s SessionState) IsTerminal() bool {
	return s == SessionApproved || s == SessionRejected
}

// ResponseEntry is one applicant answer. Responses are an ordered sequence
// of question/answer pairs, not an untyped blob.
// swagger:model ResponseEntry
type ResponseEntry struct {
	Position int    `json:"position"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// AIVerdict is the automated review outcome attached to a session.
// swagger:model AIVerdict
type AIVerdict struct {
	Verdict     ValidationVerdict `json:"verdict"`
	Confidence  float64           `json:"confidence"`
	Rationale   string            `json:"rationale"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// AdminVerdict records a human decision on an escalated session.
// swagger:model AdminVerdict
type AdminVerdict struct {
	Approved  bool      `json:"approved"`
	Operator  string    `json:"operator"`
	DecidedAt time.Time `json:"decided_at"`
}

// OnboardingSession is the record of one applicant's consent and submitted
// responses tied to one invitation. At most one session exists per
// invitation; it is mutated only through state-machine transitions.
// swagger:model OnboardingSession
type OnboardingSession struct {
	ID             string          `json:"id"`
	InvitationCode string          `json:"invitation_code"`
	ConsentGiven   bool            `json:"consent_given"`
	Responses      []ResponseEntry `json:"responses"`
	AIVerdict      *AIVerdict      `json:"ai_verdict,omitempty"`
	AdminVerdict   *AdminVerdict   `json:"admin_verdict,omitempty"`
	State          SessionState    `json:"state"`
	CreatedAt      time.Time       `json:"created_at"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewOnboardingSession returns a session in collecting state. ID is set by
// the repository on create.
func NewOnboardingSession(invitationCode string, createdAt time.Time) *OnboardingSession {
	return &OnboardingSession{
		InvitationCode: invitationCode,
		State:          SessionCollecting,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

// OnboardingSessionRepository defines the interface for session storage.
// TransitionState is an atomic conditional update on the state column.
type OnboardingSessionRepository interface {
	Create(ctx context.Context, s *OnboardingSession) error
	GetByInvitationCode(ctx context.Context, code string) (*OnboardingSession, error)
	SetConsent(ctx context.Context, code string, granted bool) (changed bool, err error)
	SaveResponses(ctx context.Context, sessionID string, responses []ResponseEntry) error
	TransitionState(ctx context.Context, code string, from, to SessionState, at time.Time) (won bool, err error)
	SetAIVerdict(ctx context.Context, code string, v *AIVerdict) error
	SetAdminVerdict(ctx context.Context, code string, v *AdminVerdict) error
	ListByState(ctx context.Context, state SessionState) ([]*OnboardingSession, error)
}

// OnboardingService defines the business logic for the onboarding session store.
type OnboardingService interface {
	StartSession(ctx context.Context, invitationCode string) (session *OnboardingSession, created bool, err error)
	RecordConsent(ctx context.Context, invitationCode string, granted bool) error
	SubmitResponses(ctx context.Context, invitationCode string, responses []ResponseEntry, sourceAddr string) (*OnboardingSession, error)
}
