package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TannerHolle/budget/internal/api/middleware"
	"github.com/TannerHolle/budget/internal/domain"
)

// BudgetStore is the slice of budget storage the budget endpoints need.
type BudgetStore interface {
	Create(ctx context.Context, budget *domain.Budget) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Budget, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Budget, error)
	HasAccess(ctx context.Context, userID, budgetID uuid.UUID) (bool, error)
	Rename(ctx context.Context, budgetID uuid.UUID, name string) error
	Delete(ctx context.Context, budgetID uuid.UUID) error
	AddMember(ctx context.Context, budgetID, userID uuid.UUID, role domain.MemberRole) error
	RemoveMember(ctx context.Context, budgetID, userID uuid.UUID) error
	SetInviteCode(ctx context.Context, budgetID uuid.UUID, code string) error
}

// InviteMailer delivers invitation emails. Delivery may be asynchronous.
type InviteMailer interface {
	SendInvite(ctx context.Context, email, budgetName, token string) error
}

// BudgetsHandler handles budget and membership endpoints.
type BudgetsHandler struct {
	budgets BudgetStore
	users   UserStore
	invites InviteStore
	mailer  InviteMailer
	log     zerolog.Logger
}

// NewBudgetsHandler creates a new budgets handler.
func NewBudgetsHandler(budgets BudgetStore, users UserStore, invites InviteStore, mailer InviteMailer, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{
		budgets: budgets,
		users:   users,
		invites: invites,
		mailer:  mailer,
		log:     log,
	}
}

// List handles GET /api/budgets
func (h *BudgetsHandler) List(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.budgets.ListForUser(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list budgets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list budgets")
		return
	}
	if budgets == nil {
		budgets = []*domain.Budget{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"budgets": budgets,
		"count":   len(budgets),
	})
}

// Create handles POST /api/budgets
func (h *BudgetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Budget name is required")
		return
	}

	budget := domain.NewBudget(req.Name, middleware.UserID(r.Context()))
	if err := h.budgets.Create(r.Context(), budget); err != nil {
		h.log.Error().Err(err).Msg("Failed to create budget")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create budget")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, budget)
}

// Get handles GET /api/budgets/{id}
func (h *BudgetsHandler) Get(w http.ResponseWriter, r *http.Request, rawID string) {
	budgetID, ok := parseID(w, rawID, "budget id")
	if !ok {
		return
	}
	budget, ok := h.requireAccess(w, r, budgetID)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, budget)
}

// Rename handles PUT /api/budgets/{id}
func (h *BudgetsHandler) Rename(w http.ResponseWriter, r *http.Request, rawID string) {
	budgetID, ok := parseID(w, rawID, "budget id")
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Budget name is required")
		return
	}

	if _, ok := h.requireOwner(w, r, budgetID); !ok {
		return
	}
	if err := h.budgets.Rename(r.Context(), budgetID, req.Name); err != nil {
		writeDomainError(w, err, "Failed to rename budget")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// Delete handles DELETE /api/budgets/{id}
func (h *BudgetsHandler) Delete(w http.ResponseWriter, r *http.Request, rawID string) {
	budgetID, ok := parseID(w, rawID, "budget id")
	if !ok {
		return
	}
	if _, ok := h.requireOwner(w, r, budgetID); !ok {
		return
	}
	if err := h.budgets.Delete(r.Context(), budgetID); err != nil {
		writeDomainError(w, err, "Failed to delete budget")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Invite handles POST /api/budgets/{id}/invite
//
// Any member may invite. An email that already belongs to a registered user
// joins immediately; anyone else gets a pending invite that is redeemed when
// they register. A still-pending invite for the same email is resent rather
// than duplicated.
func (h *BudgetsHandler) Invite(w http.ResponseWriter, r *http.Request, rawID string) {
	budgetID, ok := parseID(w, rawID, "budget id")
	if !ok {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Email is required")
		return
	}

	budget, ok := h.requireAccess(w, r, budgetID)
	if !ok {
		return
	}

	ctx := r.Context()
	if user, err := h.users.GetByEmail(ctx, req.Email); err == nil {
		if budget.HasMember(user.ID) {
			middleware.WriteError(w, http.StatusBadRequest, "This user is already a member of this budget")
			return
		}
		if err := h.budgets.AddMember(ctx, budgetID, user.ID, domain.RoleMember); err != nil {
			h.log.Error().Err(err).Msg("Failed to add member")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to add member")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "member added"})
		return
	}

	if pending, err := h.invites.FindPending(ctx, req.Email); err == nil {
		for _, inv := range pending {
			if inv.BudgetID != budgetID {
				continue
			}
			if err := h.mailer.SendInvite(ctx, req.Email, budget.Name, inv.Token); err != nil {
				h.log.Error().Err(err).Str("email", req.Email).Msg("Failed to resend invite email")
			}
			middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"status":     "invite resent",
				"expires_at": inv.ExpiresAt,
			})
			return
		}
	}

	invite := domain.NewInvite(req.Email, budgetID, newInviteToken())
	if err := h.invites.Create(ctx, invite); err != nil {
		h.log.Error().Err(err).Msg("Failed to create invite")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create invite")
		return
	}

	if err := h.mailer.SendInvite(ctx, req.Email, budget.Name, invite.Token); err != nil {
		// The invite still exists and can be redeemed; only the email failed.
		h.log.Error().Err(err).Str("email", req.Email).Msg("Failed to send invite email")
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"status":     "invite sent",
		"expires_at": invite.ExpiresAt,
	})
}

// InviteCode handles GET /api/budgets/{id}/invite-code
//
// Generates and persists a code on first request.
func (h *BudgetsHandler) InviteCode(w http.ResponseWriter, r *http.Request, rawID string) {
	budgetID, ok := parseID(w, rawID, "budget id")
	if !ok {
		return
	}
	budget, ok := h.requireAccess(w, r, budgetID)
	if !ok {
		return
	}

	if budget.InviteCode == "" {
		code := newInviteCode()
		if err := h.budgets.SetInviteCode(r.Context(), budgetID, code); err != nil {
			writeDomainError(w, err, "Failed to generate invite code")
			return
		}
		budget.InviteCode = code
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"invite_code": budget.InviteCode,
		"owner_id":    budget.OwnerID,
		"members":     budget.Members,
	})
}

// RegenerateInviteCode handles POST /api/budgets/{id}/regenerate-invite-code
//
// Owner only; invalidates the previous code.
func (h *BudgetsHandler) RegenerateInviteCode(w http.ResponseWriter, r *http.Request, rawID string) {
	budgetID, ok := parseID(w, rawID, "budget id")
	if !ok {
		return
	}
	if _, ok := h.requireOwner(w, r, budgetID); !ok {
		return
	}

	code := newInviteCode()
	if err := h.budgets.SetInviteCode(r.Context(), budgetID, code); err != nil {
		writeDomainError(w, err, "Failed to regenerate invite code")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"invite_code": code})
}

// RemoveMember handles DELETE /api/budgets/{id}/members/{userId}
func (h *BudgetsHandler) RemoveMember(w http.ResponseWriter, r *http.Request, rawID, rawUserID string) {
	budgetID, ok := parseID(w, rawID, "budget id")
	if !ok {
		return
	}
	memberID, ok := parseID(w, rawUserID, "user id")
	if !ok {
		return
	}

	budget, ok := h.requireOwner(w, r, budgetID)
	if !ok {
		return
	}
	if memberID == budget.OwnerID {
		middleware.WriteError(w, http.StatusBadRequest, "The owner cannot be removed")
		return
	}
	if err := h.budgets.RemoveMember(r.Context(), budgetID, memberID); err != nil {
		writeDomainError(w, err, "Failed to remove member")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "member removed"})
}

// Leave handles POST /api/budgets/{id}/leave
func (h *BudgetsHandler) Leave(w http.ResponseWriter, r *http.Request, rawID string) {
	budgetID, ok := parseID(w, rawID, "budget id")
	if !ok {
		return
	}
	budget, ok := h.requireAccess(w, r, budgetID)
	if !ok {
		return
	}
	userID := middleware.UserID(r.Context())
	if userID == budget.OwnerID {
		middleware.WriteError(w, http.StatusBadRequest, "The owner cannot leave; delete the budget instead")
		return
	}
	if err := h.budgets.RemoveMember(r.Context(), budgetID, userID); err != nil {
		writeDomainError(w, err, "Failed to leave budget")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// requireAccess loads the budget and verifies the caller is a member.
func (h *BudgetsHandler) requireAccess(w http.ResponseWriter, r *http.Request, budgetID uuid.UUID) (*domain.Budget, bool) {
	budget, err := h.budgets.GetByID(r.Context(), budgetID)
	if errors.Is(err, domain.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Budget not found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load budget")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load budget")
		return nil, false
	}
	if !budget.HasMember(middleware.UserID(r.Context())) {
		middleware.WriteError(w, http.StatusForbidden, "Access denied")
		return nil, false
	}
	return budget, true
}

// requireOwner loads the budget and verifies the caller owns it.
func (h *BudgetsHandler) requireOwner(w http.ResponseWriter, r *http.Request, budgetID uuid.UUID) (*domain.Budget, bool) {
	budget, ok := h.requireAccess(w, r, budgetID)
	if !ok {
		return nil, false
	}
	if budget.OwnerID != middleware.UserID(r.Context()) {
		middleware.WriteError(w, http.StatusForbidden, "Only the owner can do that")
		return nil, false
	}
	return budget, true
}

func newInviteToken() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}

func newInviteCode() string {
	buf := make([]byte, 8)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
