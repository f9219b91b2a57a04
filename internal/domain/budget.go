package domain

import (
	"time"

	"github.com/google/uuid"
)

// MemberRole distinguishes the budget owner from invited members.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleMember MemberRole = "member"
)

// Member is one user's membership in a budget.
type Member struct {
	UserID  uuid.UUID  `json:"user_id"`
	Role    MemberRole `json:"role"`
	AddedAt time.Time  `json:"added_at"`
}

// PlaidConnection is one linked Plaid item. The access token is the opaque
// credential used for all API calls against that item.
type PlaidConnection struct {
	ItemID          string `json:"item_id"`
	AccessToken     string `json:"-"`
	InstitutionID   string `json:"institution_id"`
	InstitutionName string `json:"institution_name"`
}

// TellerConnection is one linked Teller enrollment.
type TellerConnection struct {
	ConnectionID    string `json:"connection_id"`
	AccessToken     string `json:"-"`
	InstitutionName string `json:"institution_name"`
}

// Budget is a shared ledger owned by one user and shared with invited members.
type Budget struct {
	ID                uuid.UUID          `json:"id"`
	Name              string             `json:"name"`
	OwnerID           uuid.UUID          `json:"owner_id"`
	Members           []Member           `json:"members"`
	InviteCode        string             `json:"invite_code,omitempty"`
	PlaidConnections  []PlaidConnection  `json:"plaid_connections,omitempty"`
	TellerConnections []TellerConnection `json:"teller_connections,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// NewBudget creates a budget with the owner already present in the members
// list. Every creation path goes through here so the owner-in-members
// invariant cannot be skipped.
func NewBudget(name string, ownerID uuid.UUID) *Budget {
	now := time.Now().UTC()
	return &Budget{
		ID:      uuid.New(),
		Name:    name,
		OwnerID: ownerID,
		Members: []Member{
			{UserID: ownerID, Role: RoleOwner, AddedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasMember reports whether the user is the owner or appears in the members list.
func (b *Budget) HasMember(userID uuid.UUID) bool {
	if b.OwnerID == userID {
		return true
	}
	for _, m := range b.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// AddMember appends a regular member. Adding an existing member is a no-op.
func (b *Budget) AddMember(userID uuid.UUID) {
	if b.HasMember(userID) {
		return
	}
	b.Members = append(b.Members, Member{
		UserID:  userID,
		Role:    RoleMember,
		AddedAt: time.Now().UTC(),
	})
}
