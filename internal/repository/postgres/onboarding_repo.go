package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"membershipinitiation/internal/domain"
)

type onboardingSessionRepository struct {
	DB *sql.DB
}

// NewOnboardingSessionRepository returns a domain.OnboardingSessionRepository implemented with Postgres.
func NewOnboardingSessionRepository(db *sql.DB) domain.OnboardingSessionRepository {
	return &onboardingSessionRepository{DB: db}
}

const sessionColumns = `
	id, invitation_code, consent_given, state, created_at, submitted_at, updated_at,
	ai_verdict, ai_confidence, ai_rationale, ai_evaluated_at,
	admin_approved, admin_operator, admin_decided_at
`

func (r *onboardingSessionRepository) Create(ctx context.Context, s *domain.OnboardingSession) error {
	query := `
		INSERT INTO onboarding_sessions (invitation_code, consent_given, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		s.InvitationCode, s.ConsentGiven, s.State, s.CreatedAt, s.UpdatedAt,
	).Scan(&s.ID)
}

func (r *onboardingSessionRepository) GetByInvitationCode(ctx context.Context, code string) (*domain.OnboardingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM onboarding_sessions WHERE invitation_code = $1`
	s, err := scanSession(r.DB.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, err
	}
	responses, err := r.loadResponses(ctx, []string{s.ID})
	if err != nil {
		return nil, err
	}
	s.Responses = responses[s.ID]
	if s.Responses == nil {
		s.Responses = []domain.ResponseEntry{}
	}
	return s, nil
}

func (r *onboardingSessionRepository) SetConsent(ctx context.Context, code string, granted bool) (bool, error) {
	query := `
		UPDATE onboarding_sessions
		SET consent_given = $2, updated_at = NOW()
		WHERE invitation_code = $1 AND state = 'collecting'
	`
	res, err := r.DB.ExecContext(ctx, query, code, granted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	var id string
	err = r.DB.QueryRowContext(ctx, `SELECT id FROM onboarding_sessions WHERE invitation_code = $1`, code).Scan(&id)
	if err != nil {
		return false, err
	}
	return false, nil
}

func (r *onboardingSessionRepository) SaveResponses(ctx context.Context, sessionID string, responses []domain.ResponseEntry) error {
	deleteQuery := `DELETE FROM onboarding_responses WHERE session_id = $1`
	if _, err := r.DB.ExecContext(ctx, deleteQuery, sessionID); err != nil {
		return err
	}
	insertQuery := `
		INSERT INTO onboarding_responses (session_id, position, question, answer)
		VALUES ($1, $2, $3, $4)
	`
	for _, resp := range responses {
		if _, err := r.DB.ExecContext(ctx, insertQuery, sessionID, resp.Position, resp.Question, resp.Answer); err != nil {
			return err
		}
	}
	return nil
}

// TransitionState is the compare-and-swap on the state column: it succeeds
// only when the row is still in the expected from state. submitted_at is
// stamped when the session enters submitted.
func (r *onboardingSessionRepository) TransitionState(ctx context.Context, code string, from, to domain.SessionState, at time.Time) (bool, error) {
	query := `
		UPDATE onboarding_sessions
		SET state = $3,
		    updated_at = $4,
		    submitted_at = CASE WHEN $3 = 'submitted' THEN $4 ELSE submitted_at END
		WHERE invitation_code = $1 AND state = $2
	`
	res, err := r.DB.ExecContext(ctx, query, code, from, to, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *onboardingSessionRepository) SetAIVerdict(ctx context.Context, code string, v *domain.AIVerdict) error {
	query := `
		UPDATE onboarding_sessions
		SET ai_verdict = $2, ai_confidence = $3, ai_rationale = $4, ai_evaluated_at = $5, updated_at = NOW()
		WHERE invitation_code = $1
	`
	_, err := r.DB.ExecContext(ctx, query, code, v.Verdict, v.Confidence, v.Rationale, v.EvaluatedAt)
	return err
}

func (r *onboardingSessionRepository) SetAdminVerdict(ctx context.Context, code string, v *domain.AdminVerdict) error {
	query := `
		UPDATE onboarding_sessions
		SET admin_approved = $2, admin_operator = $3, admin_decided_at = $4, updated_at = NOW()
		WHERE invitation_code = $1
	`
	_, err := r.DB.ExecContext(ctx, query, code, v.Approved, v.Operator, v.DecidedAt)
	return err
}

// ListByState returns sessions ordered by submission time, oldest first, so
// the review queue is fair.
func (r *onboardingSessionRepository) ListByState(ctx context.Context, state domain.SessionState) ([]*domain.OnboardingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM onboarding_sessions
		WHERE state = $1
		ORDER BY submitted_at ASC NULLS LAST, created_at ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.OnboardingSession
	var ids []string
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if sessions == nil {
		return []*domain.OnboardingSession{}, nil
	}

	responses, err := r.loadResponses(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		s.Responses = responses[s.ID]
		if s.Responses == nil {
			s.Responses = []domain.ResponseEntry{}
		}
	}
	return sessions, nil
}

func (r *onboardingSessionRepository) loadResponses(ctx context.Context, sessionIDs []string) (map[string][]domain.ResponseEntry, error) {
	query := `
		SELECT session_id, position, question, answer
		FROM onboarding_responses
		WHERE session_id = ANY($1)
		ORDER BY session_id, position
	`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(sessionIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.ResponseEntry)
	for rows.Next() {
		var sessionID string
		var entry domain.ResponseEntry
		if err := rows.Scan(&sessionID, &entry.Position, &entry.Question, &entry.Answer); err != nil {
			return nil, err
		}
		result[sessionID] = append(result[sessionID], entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanSession(row rowScanner) (*domain.OnboardingSession, error) {
	s := &domain.OnboardingSession{}
	var submittedAt sql.NullTime
	var aiVerdict, aiRationale sql.NullString
	var aiConfidence sql.NullFloat64
	var aiEvaluatedAt sql.NullTime
	var adminApproved sql.NullBool
	var adminOperator sql.NullString
	var adminDecidedAt sql.NullTime

	err := row.Scan(
		&s.ID, &s.InvitationCode, &s.ConsentGiven, &s.State, &s.CreatedAt, &submittedAt, &s.UpdatedAt,
		&aiVerdict, &aiConfidence, &aiRationale, &aiEvaluatedAt,
		&adminApproved, &adminOperator, &adminDecidedAt,
	)
	if err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		s.SubmittedAt = &submittedAt.Time
	}
	if aiVerdict.Valid {
		s.AIVerdict = &domain.AIVerdict{
			Verdict:     domain.ValidationVerdict(aiVerdict.String),
			Confidence:  aiConfidence.Float64,
			Rationale:   aiRationale.String,
			EvaluatedAt: aiEvaluatedAt.Time,
		}
	}
	if adminApproved.Valid {
		s.AdminVerdict = &domain.AdminVerdict{
			Approved:  adminApproved.Bool,
			Operator:  adminOperator.String,
			DecidedAt: adminDecidedAt.Time,
		}
	}
	return s, nil
}
