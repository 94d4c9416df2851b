package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"membershipinitiation/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestInvitationRepository_Create(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		inv     *domain.Invitation
		mock    func(mock sqlmock.Sqlmock)
		wantID  string
		wantErr bool
	}{
		{
			name: "success",
			inv: &domain.Invitation{
				Code:        "AbCdEfGh1234567890",
				PINHash:     "$2a$10$hash",
				InvitedName: "Ada",
				Status:      domain.InvitationPending,
				CreatedAt:   createdAt,
			},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO invitations \(code, pin_hash, invited_name, invited_email, status, created_at\)`).
					WithArgs("AbCdEfGh1234567890", "$2a$10$hash", "Ada", "", string(domain.InvitationPending), createdAt).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inv-uuid-1"))
			},
			wantID: "inv-uuid-1",
		},
		{
			name: "db error",
			inv: &domain.Invitation{
				Code:      "AbCdEfGh1234567890",
				Status:    domain.InvitationPending,
				CreatedAt: createdAt,
			},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO invitations`).
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewInvitationRepository(db)
			err = repo.Create(ctx, tt.inv)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, tt.inv.ID)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestInvitationRepository_GetByCode(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	redeemedAt := createdAt.Add(time.Hour)

	t.Run("found with redeemed_at", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		rows := sqlmock.NewRows([]string{"id", "code", "pin_hash", "invited_name", "invited_email", "status", "created_at", "redeemed_at", "consumed_at"}).
			AddRow("inv-1", "AbCdEfGh1234567890", "$2a$10$hash", "Ada", "ada@example.com", "redeemed", createdAt, redeemedAt, nil)
		mock.ExpectQuery(`SELECT id, code, pin_hash, invited_name, invited_email, status, created_at, redeemed_at, consumed_at`).
			WithArgs("AbCdEfGh1234567890").
			WillReturnRows(rows)

		repo := NewInvitationRepository(db)
		inv, err := repo.GetByCode(ctx, "AbCdEfGh1234567890")
		require.NoError(t, err)
		require.Equal(t, domain.InvitationRedeemed, inv.Status)
		require.NotNil(t, inv.RedeemedAt)
		require.Nil(t, inv.ConsumedAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`SELECT id, code, pin_hash`).
			WithArgs("ZzZzZzZzZzZzZzZzZz").
			WillReturnError(sql.ErrNoRows)

		repo := NewInvitationRepository(db)
		_, err = repo.GetByCode(ctx, "ZzZzZzZzZzZzZzZzZz")
		require.True(t, errors.Is(err, sql.ErrNoRows))
	})
}

func TestInvitationRepository_Redeem(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)

	t.Run("wins when still pending", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE invitations\s+SET status = 'redeemed', redeemed_at = \$2\s+WHERE code = \$1 AND status = 'pending'`).
			WithArgs("AbCdEfGh1234567890", at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewInvitationRepository(db)
		won, err := repo.Redeem(ctx, "AbCdEfGh1234567890", at)
		require.NoError(t, err)
		require.True(t, won)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loses when already redeemed", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE invitations`).
			WithArgs("AbCdEfGh1234567890", at).
			WillReturnResult(sqlmock.NewResult(0, 0))

		repo := NewInvitationRepository(db)
		won, err := repo.Redeem(ctx, "AbCdEfGh1234567890", at)
		require.NoError(t, err)
		require.False(t, won)
	})
}

func TestInvitationRepository_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("changes a pending invitation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE invitations\s+SET status = 'revoked'`).
			WithArgs("AbCdEfGh1234567890").
			WillReturnResult(sqlmock.NewResult(0, 1))

		repo := NewInvitationRepository(db)
		changed, err := repo.Revoke(ctx, "AbCdEfGh1234567890")
		require.NoError(t, err)
		require.True(t, changed)
	})

	t.Run("no-op on terminal invitation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE invitations`).
			WithArgs("AbCdEfGh1234567890").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT id FROM invitations WHERE code = \$1`).
			WithArgs("AbCdEfGh1234567890").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("inv-1"))

		repo := NewInvitationRepository(db)
		changed, err := repo.Revoke(ctx, "AbCdEfGh1234567890")
		require.NoError(t, err)
		require.False(t, changed)
	})

	t.Run("unknown code surfaces no rows", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(`UPDATE invitations`).
			WithArgs("ZzZzZzZzZzZzZzZzZz").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT id FROM invitations`).
			WithArgs("ZzZzZzZzZzZzZzZzZz").
			WillReturnError(sql.ErrNoRows)

		repo := NewInvitationRepository(db)
		_, err = repo.Revoke(ctx, "ZzZzZzZzZzZzZzZzZz")
		require.True(t, errors.Is(err, sql.ErrNoRows))
	})
}

func TestInvitationRepository_MarkConsumed(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE invitations\s+SET consumed_at = \$2\s+WHERE code = \$1 AND consumed_at IS NULL`).
		WithArgs("AbCdEfGh1234567890", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewInvitationRepository(db)
	require.NoError(t, repo.MarkConsumed(ctx, "AbCdEfGh1234567890", at))
	require.NoError(t, mock.ExpectationsWereMet())
}
