package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/TannerHolle/budget/internal/domain"
)

type fakeUserStore struct {
	byEmail map[string]*domain.User
	byID    map[uuid.UUID]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail: map[string]*domain.User{},
		byID:    map[uuid.UUID]*domain.User{},
	}
}

func (s *fakeUserStore) Create(ctx context.Context, user *domain.User) error {
	if _, ok := s.byEmail[user.Email]; ok {
		return domain.ErrDuplicate
	}
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
	return nil
}

func (s *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if u, ok := s.byEmail[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

type fakeTokenStore struct {
	issued     map[string]uuid.UUID
	revoked    []string
	lastExpiry time.Time
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{issued: map[string]uuid.UUID{}}
}

func (s *fakeTokenStore) Create(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	s.issued[token] = userID
	s.lastExpiry = expiresAt
	return nil
}

func (s *fakeTokenStore) Delete(ctx context.Context, token string) error {
	s.revoked = append(s.revoked, token)
	delete(s.issued, token)
	return nil
}

type fakeInviteStore struct {
	invites map[uuid.UUID]*domain.Invite
}

func newFakeInviteStore(invites ...*domain.Invite) *fakeInviteStore {
	s := &fakeInviteStore{invites: map[uuid.UUID]*domain.Invite{}}
	for _, inv := range invites {
		s.invites[inv.ID] = inv
	}
	return s
}

func (s *fakeInviteStore) Create(ctx context.Context, invite *domain.Invite) error {
	s.invites[invite.ID] = invite
	return nil
}

func (s *fakeInviteStore) FindPending(ctx context.Context, email string) ([]domain.Invite, error) {
	var out []domain.Invite
	for _, inv := range s.invites {
		if inv.Email == strings.ToLower(email) && !inv.Used && time.Now().Before(inv.ExpiresAt) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (s *fakeInviteStore) MarkUsed(ctx context.Context, id uuid.UUID) error {
	inv, ok := s.invites[id]
	if !ok || inv.Used {
		return domain.ErrNotFound
	}
	inv.Used = true
	return nil
}

type fakeMemberAdder struct {
	added   map[uuid.UUID][]uuid.UUID
	created []*domain.Budget
}

func newFakeMemberAdder() *fakeMemberAdder {
	return &fakeMemberAdder{added: map[uuid.UUID][]uuid.UUID{}}
}

func (s *fakeMemberAdder) Create(ctx context.Context, budget *domain.Budget) error {
	s.created = append(s.created, budget)
	return nil
}

func (s *fakeMemberAdder) AddMember(ctx context.Context, budgetID, userID uuid.UUID, role domain.MemberRole) error {
	s.added[budgetID] = append(s.added[budgetID], userID)
	return nil
}

func TestRegister_ConsumesPendingInvite(t *testing.T) {
	budgetID := uuid.New()
	invite := domain.NewInvite("new@example.com", budgetID, "tok123")
	users := newFakeUserStore()
	invites := newFakeInviteStore(invite)
	members := newFakeMemberAdder()
	h := NewAuthHandler(users, newFakeTokenStore(), invites, members, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"New@Example.com","name":"New User","password":"longenough"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		User  domain.User `json:"user"`
		Token string      `json:"token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "new@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)

	require.Len(t, members.added[budgetID], 1)
	assert.Equal(t, resp.User.ID, members.added[budgetID][0])
	assert.True(t, invites.invites[invite.ID].Used)

	// Registration also creates the user's own default budget.
	require.Len(t, members.created, 1)
	assert.Equal(t, "New User's Budget", members.created[0].Name)
	assert.Equal(t, resp.User.ID, members.created[0].OwnerID)
}

func TestRegister_IgnoresExpiredInvite(t *testing.T) {
	budgetID := uuid.New()
	invite := domain.NewInvite("new@example.com", budgetID, "tok123")
	invite.ExpiresAt = time.Now().Add(-time.Hour)
	members := newFakeMemberAdder()
	h := NewAuthHandler(newFakeUserStore(), newFakeTokenStore(), newFakeInviteStore(invite), members, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"new@example.com","name":"New User","password":"longenough"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, members.added[budgetID])
	assert.False(t, invite.Used)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	users := newFakeUserStore()
	require.NoError(t, users.Create(context.Background(), domain.NewUser("taken@example.com", "First", "hash")))
	h := NewAuthHandler(users, newFakeTokenStore(), newFakeInviteStore(), newFakeMemberAdder(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"taken@example.com","name":"Second","password":"longenough"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_ShortPassword(t *testing.T) {
	h := NewAuthHandler(newFakeUserStore(), newFakeTokenStore(), newFakeInviteStore(), newFakeMemberAdder(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"email":"a@b.com","name":"A","password":"short"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	users := newFakeUserStore()
	require.NoError(t, users.Create(context.Background(), domain.NewUser("a@b.com", "A", string(hash))))
	tokens := newFakeTokenStore()
	h := NewAuthHandler(users, tokens, newFakeInviteStore(), newFakeMemberAdder(), zerolog.Nop())

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"valid credentials", `{"email":"a@b.com","password":"correct horse"}`, http.StatusOK},
		{"wrong password", `{"email":"a@b.com","password":"wrong"}`, http.StatusUnauthorized},
		{"unknown user", `{"email":"nobody@b.com","password":"correct horse"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Login(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestLogin_RememberMeExtendsSession(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	users := newFakeUserStore()
	require.NoError(t, users.Create(context.Background(), domain.NewUser("a@b.com", "A", string(hash))))
	tokens := newFakeTokenStore()
	h := NewAuthHandler(users, tokens, newFakeInviteStore(), newFakeMemberAdder(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@b.com","password":"correct horse"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	shortExpiry := tokens.lastExpiry

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"a@b.com","password":"correct horse","rememberMe":true}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, tokens.lastExpiry.After(shortExpiry.Add(20*24*time.Hour)))
}

func TestLogout_RevokesToken(t *testing.T) {
	tokens := newFakeTokenStore()
	tokens.issued["tok"] = uuid.New()
	h := NewAuthHandler(newFakeUserStore(), tokens, newFakeInviteStore(), newFakeMemberAdder(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, tokens.revoked, "tok")
}
