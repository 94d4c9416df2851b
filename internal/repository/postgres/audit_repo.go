package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"membershipinitiation/internal/domain"
)

type auditRepository struct {
	DB *sql.DB
}

// NewAuditRepository returns a domain.AuditRepository implemented with
// Postgres. The table is append-only; there is no update or delete path.
func NewAuditRepository(db *sql.DB) domain.AuditRepository {
	return &auditRepository{DB: db}
}

func (r *auditRepository) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO audit_records (id, invitation_code, from_state, to_state, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.DB.ExecContext(ctx, query,
		rec.ID, rec.InvitationCode, rec.FromState, rec.ToState, rec.Actor, rec.Reason, rec.CreatedAt,
	)
	return err
}

func (r *auditRepository) ListByInvitationCode(ctx context.Context, code string) ([]*domain.AuditRecord, error) {
	query := `
		SELECT id, invitation_code, from_state, to_state, actor, reason, created_at
		FROM audit_records
		WHERE invitation_code = $1
		ORDER BY created_at ASC
	`
	rows, err := r.DB.QueryContext(ctx, query, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		rec := &domain.AuditRecord{}
		if err := rows.Scan(&rec.ID, &rec.InvitationCode, &rec.FromState, &rec.ToState, &rec.Actor, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}
	return records, nil
}
