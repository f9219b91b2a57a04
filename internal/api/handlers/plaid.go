package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TannerHolle/budget/internal/api/middleware"
	"github.com/TannerHolle/budget/internal/bankfeed"
	"github.com/TannerHolle/budget/internal/domain"
)

// TransactionSyncer runs the fetch/normalize/classify/dedup pipeline.
type TransactionSyncer interface {
	Sync(ctx context.Context, req bankfeed.SyncRequest) (*bankfeed.SyncResult, error)
}

// BulkImporter persists caller-approved candidates as expenses.
type BulkImporter interface {
	BulkImport(ctx context.Context, budgetID, userID uuid.UUID, entries []bankfeed.ImportEntry) (*bankfeed.ImportResult, error)
}

// PlaidClient is the slice of the Plaid API the handler needs beyond the
// bankfeed.Provider interface.
type PlaidClient interface {
	bankfeed.Provider
	CreateLinkToken(ctx context.Context, clientUserID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)
	GetItemInstitutionID(ctx context.Context, accessToken string) (string, error)
	GetInstitutionName(ctx context.Context, institutionID string) (string, error)
	RemoveItem(ctx context.Context, accessToken string) error
}

// PlaidConnectionStore persists linked Plaid items per budget.
type PlaidConnectionStore interface {
	HasAccess(ctx context.Context, userID, budgetID uuid.UUID) (bool, error)
	PlaidConnections(ctx context.Context, budgetID uuid.UUID) ([]domain.PlaidConnection, error)
	UpsertPlaidConnection(ctx context.Context, budgetID uuid.UUID, conn domain.PlaidConnection) error
	RemovePlaidConnection(ctx context.Context, budgetID uuid.UUID, itemID string) error
}

// PlaidHandler handles Plaid linking, syncing, and importing.
type PlaidHandler struct {
	client   PlaidClient
	budgets  PlaidConnectionStore
	syncer   TransactionSyncer
	importer BulkImporter
	log      zerolog.Logger
}

// NewPlaidHandler creates a new Plaid handler.
func NewPlaidHandler(client PlaidClient, budgets PlaidConnectionStore, syncer TransactionSyncer, importer BulkImporter, log zerolog.Logger) *PlaidHandler {
	return &PlaidHandler{
		client:   client,
		budgets:  budgets,
		syncer:   syncer,
		importer: importer,
		log:      log,
	}
}

// CreateLinkToken handles POST /api/plaid/create-link-token
func (h *PlaidHandler) CreateLinkToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.client.CreateLinkToken(r.Context(), middleware.UserID(r.Context()).String())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create link token")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to create link token")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"link_token": token})
}

// ExchangeToken handles POST /api/plaid/exchange-token
//
// Trades the public token from the Link flow for a permanent access token and
// stores the resulting connection on the budget.
func (h *PlaidHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BudgetID    uuid.UUID `json:"budget_id"`
		PublicToken string    `json:"public_token"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.BudgetID == uuid.Nil || req.PublicToken == "" {
		middleware.WriteError(w, http.StatusBadRequest, "budget_id and public_token are required")
		return
	}
	if !h.checkAccess(w, r, req.BudgetID) {
		return
	}

	ctx := r.Context()
	accessToken, itemID, err := h.client.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to exchange public token")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to exchange public token")
		return
	}

	conn := domain.PlaidConnection{ItemID: itemID, AccessToken: accessToken}
	// Institution metadata is cosmetic; a lookup failure must not lose the
	// access token that was just issued.
	if instID, err := h.client.GetItemInstitutionID(ctx, accessToken); err == nil {
		conn.InstitutionID = instID
		if name, err := h.client.GetInstitutionName(ctx, instID); err == nil {
			conn.InstitutionName = name
		}
	}
	if conn.InstitutionName == "" {
		conn.InstitutionName = "Unknown Institution"
	}

	if err := h.budgets.UpsertPlaidConnection(ctx, req.BudgetID, conn); err != nil {
		h.log.Error().Err(err).Msg("Failed to store connection")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store connection")
		return
	}

	h.log.Info().
		Str("budget_id", req.BudgetID.String()).
		Str("institution", conn.InstitutionName).
		Msg("Linked Plaid item")

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"item_id":          itemID,
		"institution_name": conn.InstitutionName,
	})
}

// Accounts handles GET /api/plaid/accounts/{budgetId}
//
// Returns every linked institution's accounts with balances. A failing
// institution is logged and its accounts omitted.
func (h *PlaidHandler) Accounts(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := parseID(w, rawBudgetID, "budget id")
	if !ok {
		return
	}
	if !h.checkAccess(w, r, budgetID) {
		return
	}

	ctx := r.Context()
	connections, err := h.budgets.PlaidConnections(ctx, budgetID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load connections")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load accounts")
		return
	}

	accounts := make([]connectedAccount, 0)
	for _, conn := range connections {
		raw, err := h.client.ListAccounts(ctx, conn.AccessToken)
		if err != nil {
			h.log.Warn().Err(err).Str("institution", conn.InstitutionName).Msg("Failed to list accounts")
			continue
		}
		for _, a := range raw {
			if a.InstitutionName == "" {
				a.InstitutionName = conn.InstitutionName
			}
			accounts = append(accounts, connectedAccount{RawAccount: a, ConnectionID: conn.ItemID})
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// Transactions handles GET /api/plaid/transactions/{budgetId}
//
// Returns deduplicated expense candidates for every linked institution; the
// client categorizes them and posts the batch to Import.
func (h *PlaidHandler) Transactions(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := parseID(w, rawBudgetID, "budget id")
	if !ok {
		return
	}
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	connections, err := h.budgets.PlaidConnections(ctx, budgetID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load connections")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load connections")
		return
	}

	result, err := h.syncer.Sync(ctx, bankfeed.SyncRequest{
		BudgetID:    budgetID,
		UserID:      middleware.UserID(ctx),
		StartDate:   start,
		EndDate:     end,
		Provider:    h.client,
		Connections: plaidConnections(connections),
	})
	if err != nil {
		writeDomainError(w, err, "Failed to sync transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// Import handles POST /api/plaid/import/{budgetId}
func (h *PlaidHandler) Import(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := parseID(w, rawBudgetID, "budget id")
	if !ok {
		return
	}
	var req struct {
		Transactions []bankfeed.ImportEntry `json:"transactions"`
	}
	if !decode(w, r, &req) {
		return
	}

	result, err := h.importer.BulkImport(r.Context(), budgetID, middleware.UserID(r.Context()), req.Transactions)
	if err != nil {
		writeDomainError(w, err, "Failed to import transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// Remove handles POST /api/plaid/remove/{budgetId}
func (h *PlaidHandler) Remove(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := parseID(w, rawBudgetID, "budget id")
	if !ok {
		return
	}
	var req struct {
		ItemID string `json:"item_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ItemID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "item_id is required")
		return
	}
	if !h.checkAccess(w, r, budgetID) {
		return
	}

	ctx := r.Context()
	connections, err := h.budgets.PlaidConnections(ctx, budgetID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load connections")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to remove connection")
		return
	}

	// Provider-side removal is best effort; the local record is what gates
	// future syncs.
	for _, conn := range connections {
		if conn.ItemID != req.ItemID {
			continue
		}
		if err := h.client.RemoveItem(ctx, conn.AccessToken); err != nil {
			h.log.Warn().Err(err).Str("item_id", req.ItemID).Msg("Failed to remove item upstream")
		}
	}

	if err := h.budgets.RemovePlaidConnection(ctx, budgetID, req.ItemID); err != nil {
		writeDomainError(w, err, "Failed to remove connection")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *PlaidHandler) checkAccess(w http.ResponseWriter, r *http.Request, budgetID uuid.UUID) bool {
	allowed, err := h.budgets.HasAccess(r.Context(), middleware.UserID(r.Context()), budgetID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check budget access")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to check budget access")
		return false
	}
	if !allowed {
		middleware.WriteError(w, http.StatusForbidden, "Access denied")
		return false
	}
	return true
}

// connectedAccount is a provider account annotated with the connection it
// came from.
type connectedAccount struct {
	bankfeed.RawAccount
	ConnectionID string `json:"connection_id"`
}

func plaidConnections(conns []domain.PlaidConnection) []bankfeed.Connection {
	out := make([]bankfeed.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, bankfeed.Connection{
			ID:              c.ItemID,
			AccessToken:     c.AccessToken,
			InstitutionName: c.InstitutionName,
		})
	}
	return out
}

// parseDateRange reads optional start_date/end_date query parameters as UTC
// calendar dates. Zero values let the syncer apply its default window.
func parseDateRange(w http.ResponseWriter, r *http.Request) (start, end time.Time, ok bool) {
	query := r.URL.Query()
	var err error
	if s := query.Get("start_date"); s != "" {
		if start, err = parseCalendarDate(s); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return start, end, false
		}
	}
	if s := query.Get("end_date"); s != "" {
		if end, err = parseCalendarDate(s); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return start, end, false
		}
	}
	return start, end, true
}
