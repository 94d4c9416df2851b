package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"membershipinitiation/internal/domain"
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

type membershipRepository struct {
	DB *sql.DB
}

// NewMembershipRepository returns a domain.MembershipRepository implemented with Postgres.
func NewMembershipRepository(db *sql.DB) domain.MembershipRepository {
	return &membershipRepository{DB: db}
}

// Create inserts the membership row. The storage uniqueness constraints are
// the backstop for the issuer: a second membership for the same invitation
// surfaces as ErrAlreadyIssued, a generated code/key collision as
// ErrDuplicateCredential so the caller retries with fresh randomness.
func (r *membershipRepository) Create(ctx context.Context, m *domain.Membership) error {
	query := `
		INSERT INTO memberships (invitation_code, membership_code, membership_key_hash, issued_to, active, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		m.InvitationCode, m.MembershipCode, m.KeyHash, m.IssuedTo, m.Active, m.IssuedAt,
	).Scan(&m.ID)
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == "memberships_invitation_code_key" {
			return domain.ErrAlreadyIssued
		}
		return domain.ErrDuplicateCredential
	}
	return err
}

func (r *membershipRepository) GetByCode(ctx context.Context, membershipCode string) (*domain.Membership, error) {
	query := `
		SELECT id, invitation_code, membership_code, membership_key_hash, issued_to, active, issued_at
		FROM memberships
		WHERE membership_code = $1
	`
	return scanMembership(r.DB.QueryRowContext(ctx, query, membershipCode))
}

func (r *membershipRepository) GetByKeyHash(ctx context.Context, keyHash string) (*domain.Membership, error) {
	query := `
		SELECT id, invitation_code, membership_code, membership_key_hash, issued_to, active, issued_at
		FROM memberships
		WHERE membership_key_hash = $1
	`
	return scanMembership(r.DB.QueryRowContext(ctx, query, keyHash))
}

func (r *membershipRepository) Deactivate(ctx context.Context, membershipCode string) error {
	query := `UPDATE memberships SET active = false WHERE membership_code = $1`
	_, err := r.DB.ExecContext(ctx, query, membershipCode)
	return err
}

func (r *membershipRepository) List(ctx context.Context) ([]*domain.Membership, error) {
	query := `
		SELECT id, invitation_code, membership_code, membership_key_hash, issued_to, active, issued_at
		FROM memberships
		ORDER BY issued_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if memberships == nil {
		memberships = []*domain.Membership{}
	}
	return memberships, nil
}

func scanMembership(row rowScanner) (*domain.Membership, error) {
	m := &domain.Membership{}
	err := row.Scan(&m.ID, &m.InvitationCode, &m.MembershipCode, &m.KeyHash, &m.IssuedTo, &m.Active, &m.IssuedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}
