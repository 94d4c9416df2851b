package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"membershipinitiation/internal/domain"
)

// In-memory fakes shared by the service tests. All of them are safe for
// concurrent use so the race tests exercise the services' CAS semantics.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeInvitationRepo struct {
	mu     sync.Mutex
	invs   map[string]*domain.Invitation
	nextID int
}

func newFakeInvitationRepo() *fakeInvitationRepo {
	return &fakeInvitationRepo{invs: make(map[string]*domain.Invitation)}
}

func (r *fakeInvitationRepo) Create(ctx context.Context, inv *domain.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inv.ID = fmt.Sprintf("inv-%d", r.nextID)
	cp := *inv
	r.invs[inv.Code] = &cp
	return nil
}

func (r *fakeInvitationRepo) GetByCode(ctx context.Context, code string) (*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invs[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeInvitationRepo) Redeem(ctx context.Context, code string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invs[code]
	if !ok || inv.Status != domain.InvitationPending {
		return false, nil
	}
	inv.Status = domain.InvitationRedeemed
	inv.RedeemedAt = &at
	return true, nil
}

func (r *fakeInvitationRepo) Revoke(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invs[code]
	if !ok {
		return false, sql.ErrNoRows
	}
	if inv.Status != domain.InvitationPending && inv.Status != domain.InvitationRedeemed {
		return false, nil
	}
	inv.Status = domain.InvitationRevoked
	return true, nil
}

func (r *fakeInvitationRepo) MarkConsumed(ctx context.Context, code string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invs[code]
	if !ok {
		return sql.ErrNoRows
	}
	if inv.ConsumedAt == nil {
		inv.ConsumedAt = &at
	}
	return nil
}

func (r *fakeInvitationRepo) List(ctx context.Context) ([]*domain.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Invitation, 0, len(r.invs))
	for _, inv := range r.invs {
		cp := *inv
		out = append(out, &cp)
	}
	return out, nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.OnboardingSession
	nextID   int
	// verdictErr is returned by the next SetAIVerdict call, then cleared.
	verdictErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*domain.OnboardingSession)}
}

func (r *fakeSessionRepo) put(s *domain.OnboardingSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	if s.ID == "" {
		s.ID = fmt.Sprintf("sess-%d", r.nextID)
	}
	cp := *s
	r.sessions[s.InvitationCode] = &cp
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *domain.OnboardingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.InvitationCode]; exists {
		return errors.New("duplicate session")
	}
	r.nextID++
	s.ID = fmt.Sprintf("sess-%d", r.nextID)
	cp := *s
	r.sessions[s.InvitationCode] = &cp
	return nil
}

func (r *fakeSessionRepo) GetByInvitationCode(ctx context.Context, code string) (*domain.OnboardingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	cp.Responses = append([]domain.ResponseEntry(nil), s.Responses...)
	return &cp, nil
}

func (r *fakeSessionRepo) SetConsent(ctx context.Context, code string, granted bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok {
		return false, sql.ErrNoRows
	}
	if s.State != domain.SessionCollecting {
		return false, nil
	}
	s.ConsentGiven = granted
	return true, nil
}

func (r *fakeSessionRepo) SaveResponses(ctx context.Context, sessionID string, responses []domain.ResponseEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == sessionID {
			s.Responses = append([]domain.ResponseEntry(nil), responses...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r *fakeSessionRepo) TransitionState(ctx context.Context, code string, from, to domain.SessionState, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok || s.State != from {
		return false, nil
	}
	s.State = to
	s.UpdatedAt = at
	if to == domain.SessionSubmitted {
		s.SubmittedAt = &at
	}
	return true, nil
}

func (r *fakeSessionRepo) SetAIVerdict(ctx context.Context, code string, v *domain.AIVerdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verdictErr != nil {
		err := r.verdictErr
		r.verdictErr = nil
		return err
	}
	s, ok := r.sessions[code]
	if !ok {
		return sql.ErrNoRows
	}
	cp := *v
	s.AIVerdict = &cp
	return nil
}

func (r *fakeSessionRepo) SetAdminVerdict(ctx context.Context, code string, v *domain.AdminVerdict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	if !ok {
		return sql.ErrNoRows
	}
	cp := *v
	s.AdminVerdict = &cp
	return nil
}

func (r *fakeSessionRepo) ListByState(ctx context.Context, state domain.SessionState) ([]*domain.OnboardingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OnboardingSession
	for _, s := range r.sessions {
		if s.State == state {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	records []*domain.AuditRecord
	err     error
}

func (r *fakeAuditRepo) Append(ctx context.Context, rec *domain.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	rec.ID = fmt.Sprintf("audit-%d", len(r.records)+1)
	cp := *rec
	r.records = append(r.records, &cp)
	return nil
}

func (r *fakeAuditRepo) ListByInvitationCode(ctx context.Context, code string) ([]*domain.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditRecord
	for _, rec := range r.records {
		if rec.InvitationCode == code {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) reasons(code string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, rec := range r.records {
		if rec.InvitationCode == code {
			out = append(out, rec.Reason)
		}
	}
	return out
}

type fakeMembershipRepo struct {
	mu              sync.Mutex
	byInvitation    map[string]*domain.Membership
	byCode          map[string]*domain.Membership
	byKeyHash       map[string]*domain.Membership
	forceCollisions int
	nextID          int
}

func newFakeMembershipRepo() *fakeMembershipRepo {
	return &fakeMembershipRepo{
		byInvitation: make(map[string]*domain.Membership),
		byCode:       make(map[string]*domain.Membership),
		byKeyHash:    make(map[string]*domain.Membership),
	}
}

func (r *fakeMembershipRepo) Create(ctx context.Context, m *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byInvitation[m.InvitationCode]; exists {
		return domain.ErrAlreadyIssued
	}
	if r.forceCollisions > 0 {
		r.forceCollisions--
		return domain.ErrDuplicateCredential
	}
	if _, exists := r.byCode[m.MembershipCode]; exists {
		return domain.ErrDuplicateCredential
	}
	if _, exists := r.byKeyHash[m.KeyHash]; exists {
		return domain.ErrDuplicateCredential
	}
	r.nextID++
	m.ID = fmt.Sprintf("mem-%d", r.nextID)
	cp := *m
	r.byInvitation[m.InvitationCode] = &cp
	r.byCode[m.MembershipCode] = &cp
	r.byKeyHash[m.KeyHash] = &cp
	return nil
}

func (r *fakeMembershipRepo) GetByCode(ctx context.Context, membershipCode string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byCode[membershipCode]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMembershipRepo) GetByKeyHash(ctx context.Context, keyHash string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byKeyHash[keyHash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMembershipRepo) Deactivate(ctx context.Context, membershipCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byCode[membershipCode]
	if !ok {
		return sql.ErrNoRows
	}
	m.Active = false
	return nil
}

func (r *fakeMembershipRepo) List(ctx context.Context) ([]*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Membership
	for _, m := range r.byCode {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// fakePinHasher avoids bcrypt cost in tests; the real adapter has its own tests.
type fakePinHasher struct{}

func (fakePinHasher) Hash(pin string) (string, error) { return "hashed:" + pin, nil }

func (fakePinHasher) Compare(hash, pin string) error {
	if hash != "hashed:"+pin {
		return errors.New("pin mismatch")
	}
	return nil
}

type fakeLimiter struct {
	mu       sync.Mutex
	denied   map[string]bool
	seenKeys []string
}

func (l *fakeLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seenKeys = append(l.seenKeys, key)
	if l.denied[key] {
		return false, time.Minute
	}
	return true, 0
}

type fakeEmailService struct {
	mu   sync.Mutex
	sent []*domain.InvitationEmailData
	err  error
}

func (s *fakeEmailService) SendInvitation(ctx context.Context, data *domain.InvitationEmailData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, data)
	return nil
}

type validatorOutcome struct {
	result *domain.ValidationResult
	err    error
}

type fakeValidator struct {
	mu       sync.Mutex
	outcomes []validatorOutcome
	calls    int
}

func (v *fakeValidator) Validate(ctx context.Context, req *domain.ValidationRequest) (*domain.ValidationResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if len(v.outcomes) == 0 {
		return nil, errors.New("no scripted outcome")
	}
	out := v.outcomes[0]
	if len(v.outcomes) > 1 {
		v.outcomes = v.outcomes[1:]
	}
	return out.result, out.err
}

func (v *fakeValidator) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type fakeGate struct {
	mu       sync.Mutex
	sessions *fakeSessionRepo
	err      error
	calls    []string
}

func (g *fakeGate) Evaluate(ctx context.Context, invitationCode string) (*domain.OnboardingSession, error) {
	g.mu.Lock()
	g.calls = append(g.calls, invitationCode)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.sessions.GetByInvitationCode(ctx, invitationCode)
}

func (g *fakeGate) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
