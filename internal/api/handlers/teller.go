package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TannerHolle/budget/internal/api/middleware"
	"github.com/TannerHolle/budget/internal/bankfeed"
	"github.com/TannerHolle/budget/internal/domain"
)

// TellerClient is the slice of the Teller API the handler needs beyond the
// bankfeed.Provider interface.
type TellerClient interface {
	bankfeed.Provider
	AppID() string
}

// TellerConnectionStore persists linked Teller enrollments per budget.
type TellerConnectionStore interface {
	HasAccess(ctx context.Context, userID, budgetID uuid.UUID) (bool, error)
	TellerConnections(ctx context.Context, budgetID uuid.UUID) ([]domain.TellerConnection, error)
	UpsertTellerConnection(ctx context.Context, budgetID uuid.UUID, conn domain.TellerConnection) error
	RemoveTellerConnection(ctx context.Context, budgetID uuid.UUID, connectionID string) error
}

// TellerHandler handles Teller linking, syncing, and importing.
type TellerHandler struct {
	client   TellerClient
	budgets  TellerConnectionStore
	syncer   TransactionSyncer
	importer BulkImporter
	log      zerolog.Logger
}

// NewTellerHandler creates a new Teller handler.
func NewTellerHandler(client TellerClient, budgets TellerConnectionStore, syncer TransactionSyncer, importer BulkImporter, log zerolog.Logger) *TellerHandler {
	return &TellerHandler{
		client:   client,
		budgets:  budgets,
		syncer:   syncer,
		importer: importer,
		log:      log,
	}
}

// Config handles GET /api/teller/config
//
// Teller Connect runs in the browser and only needs the application id.
func (h *TellerHandler) Config(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"application_id": h.client.AppID(),
	})
}

// Connect handles POST /api/teller/connect
//
// Teller Connect hands the browser an access token directly, so linking is
// just storing it.
func (h *TellerHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BudgetID        uuid.UUID `json:"budget_id"`
		AccessToken     string    `json:"access_token"`
		EnrollmentID    string    `json:"enrollment_id"`
		InstitutionName string    `json:"institution_name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.BudgetID == uuid.Nil || req.AccessToken == "" || req.EnrollmentID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "budget_id, access_token, and enrollment_id are required")
		return
	}
	if !h.checkAccess(w, r, req.BudgetID) {
		return
	}

	name := strings.TrimSpace(req.InstitutionName)
	if name == "" {
		name = "Unknown Institution"
	}
	conn := domain.TellerConnection{
		ConnectionID:    req.EnrollmentID,
		AccessToken:     req.AccessToken,
		InstitutionName: name,
	}
	if err := h.budgets.UpsertTellerConnection(r.Context(), req.BudgetID, conn); err != nil {
		h.log.Error().Err(err).Msg("Failed to store connection")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store connection")
		return
	}

	h.log.Info().
		Str("budget_id", req.BudgetID.String()).
		Str("institution", name).
		Msg("Linked Teller enrollment")

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"connection_id":    req.EnrollmentID,
		"institution_name": name,
	})
}

// Accounts handles GET /api/teller/accounts/{budgetId}
//
// Returns every enrollment's accounts with balances. A failing enrollment is
// logged and its accounts omitted.
func (h *TellerHandler) Accounts(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := parseID(w, rawBudgetID, "budget id")
	if !ok {
		return
	}
	if !h.checkAccess(w, r, budgetID) {
		return
	}

	ctx := r.Context()
	connections, err := h.budgets.TellerConnections(ctx, budgetID)
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
			accounts = append(accounts, connectedAccount{RawAccount: a, ConnectionID: conn.ConnectionID})
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// Transactions handles GET /api/teller/transactions/{budgetId}
func (h *TellerHandler) Transactions(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := parseID(w, rawBudgetID, "budget id")
	if !ok {
		return
	}
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	connections, err := h.budgets.TellerConnections(ctx, budgetID)
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
		Connections: tellerConnections(connections),
	})
	if err != nil {
		writeDomainError(w, err, "Failed to sync transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// Import handles POST /api/teller/import/{budgetId}
func (h *TellerHandler) Import(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
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

// Remove handles POST /api/teller/remove/{budgetId}
//
// Teller has no server-side unlink call; removal is local only.
func (h *TellerHandler) Remove(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := parseID(w, rawBudgetID, "budget id")
	if !ok {
		return
	}
	var req struct {
		ConnectionID string `json:"connection_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ConnectionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "connection_id is required")
		return
	}
	if !h.checkAccess(w, r, budgetID) {
		return
	}

	if err := h.budgets.RemoveTellerConnection(r.Context(), budgetID, req.ConnectionID); err != nil {
		writeDomainError(w, err, "Failed to remove connection")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *TellerHandler) checkAccess(w http.ResponseWriter, r *http.Request, budgetID uuid.UUID) bool {
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

func tellerConnections(conns []domain.TellerConnection) []bankfeed.Connection {
	out := make([]bankfeed.Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, bankfeed.Connection{
			ID:              c.ConnectionID,
			AccessToken:     c.AccessToken,
			InstitutionName: c.InstitutionName,
		})
	}
	return out
}
