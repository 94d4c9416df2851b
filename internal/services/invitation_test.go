package services

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membershipinitiation/internal/domain"
)

func newInvitationServiceForTest(invRepo *fakeInvitationRepo, audit *fakeAuditRepo, limiter domain.RateLimiter, email domain.EmailService, ttl time.Duration) domain.InvitationService {
	return NewInvitationService(invRepo, audit, fakePinHasher{}, limiter, email, ttl, testLogger())
}

func TestInvitationService_Create(t *testing.T) {
	invRepo := newFakeInvitationRepo()
	audit := &fakeAuditRepo{}
	email := &fakeEmailService{}
	svc := newInvitationServiceForTest(invRepo, audit, &fakeLimiter{}, email, 24*time.Hour)

	creds, err := svc.Create(context.Background(), "Ada Lovelace", "ada@example.com")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9]{18}$`), creds.Code)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{4}$`), creds.PIN)
	assert.Equal(t, "Ada Lovelace", creds.InvitedName)

	stored, err := invRepo.GetByCode(context.Background(), creds.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, stored.Status)
	assert.NotEqual(t, creds.PIN, stored.PINHash, "pin must not be stored in the clear")

	require.Len(t, email.sent, 1)
	assert.Equal(t, creds.Code, email.sent[0].Code)
	assert.Equal(t, creds.PIN, email.sent[0].PIN)

	require.Len(t, audit.reasons(creds.Code), 1)
}

func TestInvitationService_Create_EmailFailureStillSucceeds(t *testing.T) {
	invRepo := newFakeInvitationRepo()
	email := &fakeEmailService{err: assert.AnError}
	svc := newInvitationServiceForTest(invRepo, &fakeAuditRepo{}, &fakeLimiter{}, email, 24*time.Hour)

	creds, err := svc.Create(context.Background(), "Ada", "ada@example.com")
	require.NoError(t, err)

	_, err = invRepo.GetByCode(context.Background(), creds.Code)
	require.NoError(t, err, "invitation must exist even when delivery fails")
}

func TestInvitationService_Redeem(t *testing.T) {
	const code = "AbCdEfGh1234567890"

	seed := func(status domain.InvitationStatus, createdAt time.Time) *fakeInvitationRepo {
		repo := newFakeInvitationRepo()
		repo.invs[code] = &domain.Invitation{
			ID:          "inv-1",
			Code:        code,
			PINHash:     "hashed:4471",
			InvitedName: "Ada",
			Status:      status,
			CreatedAt:   createdAt,
		}
		return repo
	}

	tests := []struct {
		name    string
		repo    *fakeInvitationRepo
		code    string
		pin     string
		wantErr error
	}{
		{
			name: "valid credentials succeed",
			repo: seed(domain.InvitationPending, time.Now()),
			code: code, pin: "4471",
		},
		{
			name: "wrong pin rejected",
			repo: seed(domain.InvitationPending, time.Now()),
			code: code, pin: "0000",
			wantErr: domain.ErrPinMismatch,
		},
		{
			name: "unknown code",
			repo: newFakeInvitationRepo(),
			code: "ZzZzZzZzZzZzZzZzZz", pin: "4471",
			wantErr: domain.ErrNotFound,
		},
		{
			name: "already redeemed",
			repo: seed(domain.InvitationRedeemed, time.Now()),
			code: code, pin: "4471",
			wantErr: domain.ErrAlreadyRedeemed,
		},
		{
			name: "revoked",
			repo: seed(domain.InvitationRevoked, time.Now()),
			code: code, pin: "4471",
			wantErr: domain.ErrRevoked,
		},
		{
			name: "expired by ttl",
			repo: seed(domain.InvitationPending, time.Now().Add(-48*time.Hour)),
			code: code, pin: "4471",
			wantErr: domain.ErrExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newInvitationServiceForTest(tt.repo, &fakeAuditRepo{}, &fakeLimiter{}, nil, 24*time.Hour)
			inv, err := svc.Redeem(context.Background(), tt.code, tt.pin, "10.0.0.1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.InvitationRedeemed, inv.Status)
			require.NotNil(t, inv.RedeemedAt)
		})
	}
}

func TestInvitationService_Redeem_WrongPinThenCorrect(t *testing.T) {
	invRepo := newFakeInvitationRepo()
	audit := &fakeAuditRepo{}
	svc := newInvitationServiceForTest(invRepo, audit, &fakeLimiter{}, nil, 24*time.Hour)

	creds, err := svc.Create(context.Background(), "Ada", "")
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), creds.Code, "9999", "10.0.0.1")
	require.ErrorIs(t, err, domain.ErrPinMismatch)

	stored, err := invRepo.GetByCode(context.Background(), creds.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, stored.Status, "failed attempt must not consume the invitation")

	// The failed attempt leaves an audit entry that names neither pin.
	reasons := audit.reasons(creds.Code)
	require.Contains(t, reasons, "redemption rejected: credential mismatch")
	for _, reason := range reasons {
		assert.NotContains(t, reason, "9999")
		assert.NotContains(t, reason, creds.PIN)
	}

	inv, err := svc.Redeem(context.Background(), creds.Code, creds.PIN, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationRedeemed, inv.Status)
}

func TestInvitationService_Redeem_ExpiredAuditKeepsStoredStatus(t *testing.T) {
	const code = "AbCdEfGh1234567890"
	invRepo := newFakeInvitationRepo()
	invRepo.invs[code] = &domain.Invitation{
		ID:        "inv-1",
		Code:      code,
		PINHash:   "hashed:4471",
		Status:    domain.InvitationPending,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	audit := &fakeAuditRepo{}
	svc := newInvitationServiceForTest(invRepo, audit, &fakeLimiter{}, nil, 24*time.Hour)

	_, err := svc.Redeem(context.Background(), code, "4471", "10.0.0.1")
	require.ErrorIs(t, err, domain.ErrExpired)

	// Expiry is lazy: the row stays pending, so the audit record must
	// describe a rejected attempt rather than a state the row never holds.
	records, err := audit.ListByInvitationCode(context.Background(), code)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(domain.InvitationPending), records[0].FromState)
	assert.Equal(t, string(domain.InvitationPending), records[0].ToState)
	assert.Equal(t, "redemption rejected: invitation expired", records[0].Reason)

	stored, err := invRepo.GetByCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationPending, stored.Status)
}

func TestInvitationService_Redeem_ConcurrentSingleWinner(t *testing.T) {
	invRepo := newFakeInvitationRepo()
	svc := newInvitationServiceForTest(invRepo, &fakeAuditRepo{}, nil, nil, 0)

	creds, err := svc.Create(context.Background(), "Ada", "")
	require.NoError(t, err)

	const attempts = 16
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(context.Background(), creds.Code, creds.PIN, "")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(t, err, domain.ErrAlreadyRedeemed)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent redemption must win")
}

func TestInvitationService_Redeem_RateLimited(t *testing.T) {
	invRepo := newFakeInvitationRepo()
	limiter := &fakeLimiter{denied: map[string]bool{"redeem:addr:10.0.0.9": true}}
	svc := newInvitationServiceForTest(invRepo, &fakeAuditRepo{}, limiter, nil, 24*time.Hour)

	creds, err := svc.Create(context.Background(), "Ada", "")
	require.NoError(t, err)

	_, err = svc.Redeem(context.Background(), creds.Code, creds.PIN, "10.0.0.9")
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestInvitationService_Revoke(t *testing.T) {
	invRepo := newFakeInvitationRepo()
	svc := newInvitationServiceForTest(invRepo, &fakeAuditRepo{}, &fakeLimiter{}, nil, 24*time.Hour)

	creds, err := svc.Create(context.Background(), "Ada", "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), creds.Code))
	stored, err := invRepo.GetByCode(context.Background(), creds.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationRevoked, stored.Status)

	// Idempotent.
	require.NoError(t, svc.Revoke(context.Background(), creds.Code))

	require.ErrorIs(t, svc.Revoke(context.Background(), "ZzZzZzZzZzZzZzZzZz"), domain.ErrNotFound)
}

func TestInvitationService_AuditTrail(t *testing.T) {
	invRepo := newFakeInvitationRepo()
	audit := &fakeAuditRepo{}
	svc := newInvitationServiceForTest(invRepo, audit, &fakeLimiter{}, nil, 24*time.Hour)

	creds, err := svc.Create(context.Background(), "Ada", "")
	require.NoError(t, err)
	_, err = svc.Redeem(context.Background(), creds.Code, creds.PIN, "")
	require.NoError(t, err)

	records, err := svc.AuditTrail(context.Background(), creds.Code)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, string(domain.InvitationPending), records[0].ToState)
	assert.Equal(t, string(domain.InvitationRedeemed), records[1].ToState)

	_, err = svc.AuditTrail(context.Background(), "ZzZzZzZzZzZzZzZzZz")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
