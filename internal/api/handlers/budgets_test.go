package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TannerHolle/budget/internal/api/middleware"
	"github.com/TannerHolle/budget/internal/domain"
)

var _ BudgetStore = (*fakeBudgetStore)(nil)

type fakeBudgetStore struct {
	budgets map[uuid.UUID]*domain.Budget
	removed map[uuid.UUID][]uuid.UUID
	added   map[uuid.UUID][]uuid.UUID
	codes   map[uuid.UUID]string
}

func newFakeBudgetStore(budgets ...*domain.Budget) *fakeBudgetStore {
	s := &fakeBudgetStore{
		budgets: map[uuid.UUID]*domain.Budget{},
		removed: map[uuid.UUID][]uuid.UUID{},
		added:   map[uuid.UUID][]uuid.UUID{},
		codes:   map[uuid.UUID]string{},
	}
	for _, b := range budgets {
		s.budgets[b.ID] = b
	}
	return s
}

func (s *fakeBudgetStore) Create(ctx context.Context, budget *domain.Budget) error {
	s.budgets[budget.ID] = budget
	return nil
}

func (s *fakeBudgetStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Budget, error) {
	if b, ok := s.budgets[id]; ok {
		return b, nil
	}
	return nil, domain.ErrNotFound
}

func (s *fakeBudgetStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Budget, error) {
	var out []*domain.Budget
	for _, b := range s.budgets {
		if b.HasMember(userID) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBudgetStore) HasAccess(ctx context.Context, userID, budgetID uuid.UUID) (bool, error) {
	b, ok := s.budgets[budgetID]
	return ok && b.HasMember(userID), nil
}

func (s *fakeBudgetStore) Rename(ctx context.Context, budgetID uuid.UUID, name string) error {
	b, ok := s.budgets[budgetID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Name = name
	return nil
}

func (s *fakeBudgetStore) Delete(ctx context.Context, budgetID uuid.UUID) error {
	if _, ok := s.budgets[budgetID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.budgets, budgetID)
	return nil
}

func (s *fakeBudgetStore) AddMember(ctx context.Context, budgetID, userID uuid.UUID, role domain.MemberRole) error {
	s.added[budgetID] = append(s.added[budgetID], userID)
	if b, ok := s.budgets[budgetID]; ok {
		b.AddMember(userID)
	}
	return nil
}

func (s *fakeBudgetStore) RemoveMember(ctx context.Context, budgetID, userID uuid.UUID) error {
	s.removed[budgetID] = append(s.removed[budgetID], userID)
	return nil
}

func (s *fakeBudgetStore) SetInviteCode(ctx context.Context, budgetID uuid.UUID, code string) error {
	b, ok := s.budgets[budgetID]
	if !ok {
		return domain.ErrNotFound
	}
	b.InviteCode = code
	s.codes[budgetID] = code
	return nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) SendInvite(ctx context.Context, email, budgetName, token string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func TestCreateBudget_OwnerIsMember(t *testing.T) {
	store := newFakeBudgetStore()
	h := NewBudgetsHandler(store, newFakeUserStore(), newFakeInviteStore(), &fakeMailer{}, zerolog.Nop())
	owner := uuid.New()

	rec := httptest.NewRecorder()
	h.Create(rec, authedRequest(http.MethodPost, "/api/budgets", `{"name":"Household"}`, owner))

	require.Equal(t, http.StatusCreated, rec.Code)

	var budget domain.Budget
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&budget))
	assert.Equal(t, owner, budget.OwnerID)
	require.Len(t, budget.Members, 1)
	assert.Equal(t, owner, budget.Members[0].UserID)
	assert.Equal(t, domain.RoleOwner, budget.Members[0].Role)
}

func TestGetBudget_NonMemberDenied(t *testing.T) {
	budget := domain.NewBudget("Household", uuid.New())
	store := newFakeBudgetStore(budget)
	h := NewBudgetsHandler(store, newFakeUserStore(), newFakeInviteStore(), &fakeMailer{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Get(rec, authedRequest(http.MethodGet, "/api/budgets/"+budget.ID.String(), "", uuid.New()), budget.ID.String())

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvite_ExistingUserJoinsImmediately(t *testing.T) {
	owner := uuid.New()
	budget := domain.NewBudget("Household", owner)
	store := newFakeBudgetStore(budget)
	users := newFakeUserStore()
	existing := domain.NewUser("friend@example.com", "Friend", "hash")
	require.NoError(t, users.Create(context.Background(), existing))
	mailer := &fakeMailer{}
	h := NewBudgetsHandler(store, users, newFakeInviteStore(), mailer, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Invite(rec, authedRequest(http.MethodPost, "/x", `{"email":"friend@example.com"}`, owner), budget.ID.String())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{existing.ID}, store.added[budget.ID])
	assert.Empty(t, mailer.sent)
}

func TestInvite_UnknownEmailGetsInvite(t *testing.T) {
	owner := uuid.New()
	budget := domain.NewBudget("Household", owner)
	store := newFakeBudgetStore(budget)
	invites := newFakeInviteStore()
	mailer := &fakeMailer{}
	h := NewBudgetsHandler(store, newFakeUserStore(), invites, mailer, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Invite(rec, authedRequest(http.MethodPost, "/x", `{"email":"new@example.com"}`, owner), budget.ID.String())

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"new@example.com"}, mailer.sent)
	require.Len(t, invites.invites, 1)
	for _, inv := range invites.invites {
		assert.Equal(t, "new@example.com", inv.Email)
		assert.Equal(t, budget.ID, inv.BudgetID)
	}
}

func TestInvite_MailFailureStillCreatesInvite(t *testing.T) {
	owner := uuid.New()
	budget := domain.NewBudget("Household", owner)
	invites := newFakeInviteStore()
	h := NewBudgetsHandler(newFakeBudgetStore(budget), newFakeUserStore(), invites, &fakeMailer{err: assert.AnError}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Invite(rec, authedRequest(http.MethodPost, "/x", `{"email":"new@example.com"}`, owner), budget.ID.String())

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, invites.invites, 1)
}

func TestInvite_MemberMayInvite(t *testing.T) {
	owner := uuid.New()
	member := uuid.New()
	budget := domain.NewBudget("Household", owner)
	budget.AddMember(member)
	invites := newFakeInviteStore()
	h := NewBudgetsHandler(newFakeBudgetStore(budget), newFakeUserStore(), invites, &fakeMailer{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Invite(rec, authedRequest(http.MethodPost, "/x", `{"email":"new@example.com"}`, member), budget.ID.String())

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, invites.invites, 1)
}

func TestInvite_NonMemberDenied(t *testing.T) {
	budget := domain.NewBudget("Household", uuid.New())
	h := NewBudgetsHandler(newFakeBudgetStore(budget), newFakeUserStore(), newFakeInviteStore(), &fakeMailer{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Invite(rec, authedRequest(http.MethodPost, "/x", `{"email":"new@example.com"}`, uuid.New()), budget.ID.String())

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvite_ExistingMemberRejected(t *testing.T) {
	owner := uuid.New()
	budget := domain.NewBudget("Household", owner)
	users := newFakeUserStore()
	existing := domain.NewUser("friend@example.com", "Friend", "hash")
	require.NoError(t, users.Create(context.Background(), existing))
	budget.AddMember(existing.ID)
	store := newFakeBudgetStore(budget)
	h := NewBudgetsHandler(store, users, newFakeInviteStore(), &fakeMailer{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Invite(rec, authedRequest(http.MethodPost, "/x", `{"email":"friend@example.com"}`, owner), budget.ID.String())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.added[budget.ID])
}

func TestInvite_PendingInviteResent(t *testing.T) {
	owner := uuid.New()
	budget := domain.NewBudget("Household", owner)
	pending := domain.NewInvite("new@example.com", budget.ID, "tok-first")
	invites := newFakeInviteStore(pending)
	mailer := &fakeMailer{}
	h := NewBudgetsHandler(newFakeBudgetStore(budget), newFakeUserStore(), invites, mailer, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Invite(rec, authedRequest(http.MethodPost, "/x", `{"email":"new@example.com"}`, owner), budget.ID.String())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"new@example.com"}, mailer.sent)
	assert.Len(t, invites.invites, 1)
}

func TestInviteCode_GeneratedOnFirstRequest(t *testing.T) {
	owner := uuid.New()
	budget := domain.NewBudget("Household", owner)
	store := newFakeBudgetStore(budget)
	h := NewBudgetsHandler(store, newFakeUserStore(), newFakeInviteStore(), &fakeMailer{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.InviteCode(rec, authedRequest(http.MethodGet, "/x", "", owner), budget.ID.String())

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		InviteCode string `json:"invite_code"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.InviteCode)
	assert.Equal(t, resp.InviteCode, store.codes[budget.ID])

	// A second request returns the same code.
	rec = httptest.NewRecorder()
	h.InviteCode(rec, authedRequest(http.MethodGet, "/x", "", owner), budget.ID.String())
	var again struct {
		InviteCode string `json:"invite_code"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&again))
	assert.Equal(t, resp.InviteCode, again.InviteCode)
}

func TestRegenerateInviteCode_OwnerOnly(t *testing.T) {
	owner := uuid.New()
	member := uuid.New()
	budget := domain.NewBudget("Household", owner)
	budget.AddMember(member)
	budget.InviteCode = "old-code"
	store := newFakeBudgetStore(budget)
	h := NewBudgetsHandler(store, newFakeUserStore(), newFakeInviteStore(), &fakeMailer{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.RegenerateInviteCode(rec, authedRequest(http.MethodPost, "/x", "", member), budget.ID.String())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.RegenerateInviteCode(rec, authedRequest(http.MethodPost, "/x", "", owner), budget.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, store.codes[budget.ID])
	assert.NotEqual(t, "old-code", store.codes[budget.ID])
}

func TestRemoveMember_OwnerCannotBeRemoved(t *testing.T) {
	owner := uuid.New()
	budget := domain.NewBudget("Household", owner)
	store := newFakeBudgetStore(budget)
	h := NewBudgetsHandler(store, newFakeUserStore(), newFakeInviteStore(), &fakeMailer{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.RemoveMember(rec, authedRequest(http.MethodDelete, "/x", "", owner), budget.ID.String(), owner.String())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.removed[budget.ID])
}

func TestLeave_OwnerBlocked(t *testing.T) {
	owner := uuid.New()
	budget := domain.NewBudget("Household", owner)
	h := NewBudgetsHandler(newFakeBudgetStore(budget), newFakeUserStore(), newFakeInviteStore(), &fakeMailer{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Leave(rec, authedRequest(http.MethodPost, "/x", "", owner), budget.ID.String())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeave_MemberLeaves(t *testing.T) {
	owner := uuid.New()
	member := uuid.New()
	budget := domain.NewBudget("Household", owner)
	budget.AddMember(member)
	store := newFakeBudgetStore(budget)
	h := NewBudgetsHandler(store, newFakeUserStore(), newFakeInviteStore(), &fakeMailer{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Leave(rec, authedRequest(http.MethodPost, "/x", "", member), budget.ID.String())

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{member}, store.removed[budget.ID])
}
