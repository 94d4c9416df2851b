package domain

import (
	"context"
	"time"
)

// Actor names used in audit records.
const (
	ActorSystem    = "system"
	ActorApplicant = "applicant"
)

// AuditRecord is one immutable entry in the transition log. Every state
// transition, successful or rejected, appends one. The entity's current
// state column is a cache of the latest entry, not the sole record.
// Reason text never contains secrets.
// swagger:model AuditRecord
type AuditRecord struct {
	ID             string    `json:"id"`
	InvitationCode string    `json:"invitation_code"`
	FromState      string    `json:"from_state"`
	ToState        string    `json:"to_state"`
	Actor          string    `json:"actor"`
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditRepository defines the interface for the append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, rec *AuditRecord) error
	ListByInvitationCode(ctx context.Context, code string) ([]*AuditRecord, error)
}
