package postgres

import (
	"context"
	"database/sql"
	"time"

	"membershipinitiation/internal/domain"
)

type invitationRepository struct {
	DB *sql.DB
}

// NewInvitationRepository returns a domain.InvitationRepository implemented with Postgres.
func NewInvitationRepository(db *sql.DB) domain.InvitationRepository {
	return &invitationRepository{DB: db}
}

func (r *invitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	query := `
		INSERT INTO invitations (code, pin_hash, invited_name, invited_email, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		inv.Code, inv.PINHash, inv.InvitedName, inv.InvitedEmail, inv.Status, inv.CreatedAt,
	).Scan(&inv.ID)
}

func (r *invitationRepository) GetByCode(ctx context.Context, code string) (*domain.Invitation, error) {
	query := `
		SELECT id, code, pin_hash, invited_name, invited_email, status, created_at, redeemed_at, consumed_at
		FROM invitations
		WHERE code = $1
	`
	return scanInvitation(r.DB.QueryRowContext(ctx, query, code))
}

// Redeem performs the atomic pending → redeemed transition. Under concurrent
// calls with the same code exactly one caller observes won=true; the
// conditional update is the guard, not an in-process lock.
func (r *invitationRepository) Redeem(ctx context.Context, code string, at time.Time) (bool, error) {
	query := `
		UPDATE invitations
		SET status = 'redeemed', redeemed_at = $2
		WHERE code = $1 AND status = 'pending'
	`
	res, err := r.DB.ExecContext(ctx, query, code, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *invitationRepository) Revoke(ctx context.Context, code string) (bool, error) {
	query := `
		UPDATE invitations
		SET status = 'revoked'
		WHERE code = $1 AND status IN ('pending', 'redeemed')
	`
	res, err := r.DB.ExecContext(ctx, query, code)
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
	// Distinguish "already terminal" from "unknown code".
	var id string
	err = r.DB.QueryRowContext(ctx, `SELECT id FROM invitations WHERE code = $1`, code).Scan(&id)
	if err != nil {
		return false, err
	}
	return false, nil
}

func (r *invitationRepository) MarkConsumed(ctx context.Context, code string, at time.Time) error {
	query := `
		UPDATE invitations
		SET consumed_at = $2
		WHERE code = $1 AND consumed_at IS NULL
	`
	_, err := r.DB.ExecContext(ctx, query, code, at)
	return err
}

func (r *invitationRepository) List(ctx context.Context) ([]*domain.Invitation, error) {
	query := `
		SELECT id, code, pin_hash, invited_name, invited_email, status, created_at, redeemed_at, consumed_at
		FROM invitations
		ORDER BY created_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invs []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if invs == nil {
		invs = []*domain.Invitation{}
	}
	return invs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	var redeemedAt, consumedAt sql.NullTime
	err := row.Scan(
		&inv.ID, &inv.Code, &inv.PINHash, &inv.InvitedName, &inv.InvitedEmail,
		&inv.Status, &inv.CreatedAt, &redeemedAt, &consumedAt,
	)
	if err != nil {
		return nil, err
	}
	if redeemedAt.Valid {
		inv.RedeemedAt = &redeemedAt.Time
	}
	if consumedAt.Valid {
		inv.ConsumedAt = &consumedAt.Time
	}
	return inv, nil
}
