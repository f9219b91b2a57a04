package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account holder. PasswordHash is a bcrypt hash and is never
// serialized.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewUser creates a user with a normalized (lowercased, trimmed) email.
func NewUser(email, name, passwordHash string) *User {
	return &User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
}

// InviteTTL is how long an invite stays redeemable.
const InviteTTL = 7 * 24 * time.Hour

// Invite is a pending email invitation to join a budget. It is consumed at
// most once, during registration with a matching email.
type Invite struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	BudgetID  uuid.UUID `json:"budget_id"`
	Token     string    `json:"token"`
	Used      bool      `json:"used"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NewInvite creates an invite that expires after InviteTTL.
func NewInvite(email string, budgetID uuid.UUID, token string) *Invite {
	now := time.Now().UTC()
	return &Invite{
		ID:        uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		BudgetID:  budgetID,
		Token:     token,
		ExpiresAt: now.Add(InviteTTL),
		CreatedAt: now,
	}
}

// Redeemable reports whether the invite can still be consumed for the given
// email at the given instant.
func (i *Invite) Redeemable(email string, at time.Time) bool {
	return !i.Used &&
		at.Before(i.ExpiresAt) &&
		strings.EqualFold(strings.TrimSpace(email), i.Email)
}
