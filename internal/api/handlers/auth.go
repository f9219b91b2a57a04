package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/TannerHolle/budget/internal/api/middleware"
	"github.com/TannerHolle/budget/internal/domain"
)

// TokenTTL is how long a login session stays valid. Logins that ask to be
// remembered get ExtendedTokenTTL instead.
const (
	TokenTTL         = 7 * 24 * time.Hour
	ExtendedTokenTTL = 30 * 24 * time.Hour
)

// UserStore is the slice of user storage the auth endpoints need.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// TokenStore issues and revokes bearer tokens.
type TokenStore interface {
	Create(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error
	Delete(ctx context.Context, token string) error
}

// InviteStore is the slice of invite storage the auth endpoints need.
type InviteStore interface {
	Create(ctx context.Context, invite *domain.Invite) error
	FindPending(ctx context.Context, email string) ([]domain.Invite, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
}

// BudgetMembership is the slice of budget storage registration needs.
type BudgetMembership interface {
	Create(ctx context.Context, budget *domain.Budget) error
	AddMember(ctx context.Context, budgetID, userID uuid.UUID, role domain.MemberRole) error
}

// AuthHandler handles registration, login, and session endpoints.
type AuthHandler struct {
	users   UserStore
	tokens  TokenStore
	invites InviteStore
	budgets BudgetMembership
	log     zerolog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(users UserStore, tokens TokenStore, invites InviteStore, budgets BudgetMembership, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:   users,
		tokens:  tokens,
		invites: invites,
		budgets: budgets,
		log:     log,
	}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Name) == "" || len(req.Password) < 8 {
		middleware.WriteError(w, http.StatusBadRequest, "Email, name, and a password of at least 8 characters are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to hash password")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	ctx := r.Context()
	user := domain.NewUser(req.Email, req.Name, string(hash))
	if err := h.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			middleware.WriteError(w, http.StatusConflict, "An account with this email already exists")
			return
		}
		h.log.Error().Err(err).Msg("Failed to create user")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	budget := domain.NewBudget(user.Name+"'s Budget", user.ID)
	if err := h.budgets.Create(ctx, budget); err != nil {
		h.log.Error().Err(err).Msg("Failed to create default budget")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	h.redeemInvites(ctx, user)

	token, err := h.issueToken(ctx, user.ID, TokenTTL)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to issue token")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"user":      user,
		"token":     token,
		"budget_id": budget.ID,
	})
}

// redeemInvites consumes every pending invite addressed to the new user's
// email, adding them to the inviting budgets. A failed invite is logged and
// skipped; registration already succeeded.
func (h *AuthHandler) redeemInvites(ctx context.Context, user *domain.User) {
	invites, err := h.invites.FindPending(ctx, user.Email)
	if err != nil {
		h.log.Error().Err(err).Str("email", user.Email).Msg("Failed to look up pending invites")
		return
	}

	now := time.Now().UTC()
	for _, inv := range invites {
		if !inv.Redeemable(user.Email, now) {
			continue
		}
		// MarkUsed wins at most once, so a concurrent registration cannot
		// redeem the same invite twice.
		if err := h.invites.MarkUsed(ctx, inv.ID); err != nil {
			continue
		}
		if err := h.budgets.AddMember(ctx, inv.BudgetID, user.ID, domain.RoleMember); err != nil {
			h.log.Error().Err(err).
				Str("budget_id", inv.BudgetID.String()).
				Str("user_id", user.ID.String()).
				Msg("Failed to add invited member")
			continue
		}
		h.log.Info().
			Str("budget_id", inv.BudgetID.String()).
			Str("user_id", user.ID.String()).
			Msg("Invite redeemed")
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	ttl := TokenTTL
	if req.RememberMe {
		ttl = ExtendedTokenTTL
	}
	token, err := h.issueToken(ctx, user.ID, ttl)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to issue token")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if ok && token != "" {
		if err := h.tokens.Delete(r.Context(), token); err != nil {
			h.log.Error().Err(err).Msg("Failed to revoke token")
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByID(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeDomainError(w, err, "Failed to load user")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) issueToken(ctx context.Context, userID uuid.UUID, ttl time.Duration) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	if err := h.tokens.Create(ctx, token, userID, time.Now().UTC().Add(ttl)); err != nil {
		return "", err
	}
	return token, nil
}
