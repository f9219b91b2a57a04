package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/TannerHolle/budget/internal/api/middleware"
	"github.com/TannerHolle/budget/internal/domain"
)

// NetWorthStore is the slice of asset and liability storage the net worth
// endpoints need.
type NetWorthStore interface {
	CreateAsset(ctx context.Context, asset *domain.Asset) error
	ListAssets(ctx context.Context) ([]domain.Asset, error)
	UpdateAsset(ctx context.Context, asset *domain.Asset) error
	DeleteAsset(ctx context.Context, id uuid.UUID) error
	GetAsset(ctx context.Context, id uuid.UUID) (*domain.Asset, error)
	GetLiability(ctx context.Context, id uuid.UUID) (*domain.Liability, error)
	CreateLiability(ctx context.Context, liability *domain.Liability) error
	ListLiabilities(ctx context.Context) ([]domain.Liability, error)
	UpdateLiability(ctx context.Context, liability *domain.Liability) error
	DeleteLiability(ctx context.Context, id uuid.UUID) error
}

// NetWorthHandler handles asset, liability, and summary endpoints.
type NetWorthHandler struct {
	store NetWorthStore
	log   zerolog.Logger
}

// NewNetWorthHandler creates a new net worth handler.
func NewNetWorthHandler(store NetWorthStore, log zerolog.Logger) *NetWorthHandler {
	return &NetWorthHandler{store: store, log: log}
}

// Summary handles GET /api/networth
func (h *NetWorthHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assets, err := h.store.ListAssets(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list assets")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load net worth")
		return
	}
	liabilities, err := h.store.ListLiabilities(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list liabilities")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load net worth")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, domain.SummarizeNetWorth(assets, liabilities))
}

type assetRequest struct {
	Name  string           `json:"name"`
	Value *decimal.Decimal `json:"value"`
	Type  domain.AssetType `json:"type"`
}

// CreateAsset handles POST /api/networth/assets
func (h *NetWorthHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Value == nil || req.Value.Sign() < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Name and a non-negative value are required")
		return
	}
	if req.Type == "" {
		req.Type = domain.AssetOther
	}

	now := time.Now().UTC()
	asset := &domain.Asset{
		ID:        uuid.New(),
		Name:      req.Name,
		Value:     *req.Value,
		Type:      req.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateAsset(r.Context(), asset); err != nil {
		h.log.Error().Err(err).Msg("Failed to create asset")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create asset")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, asset)
}

// UpdateAsset handles PUT /api/networth/assets/{id}
func (h *NetWorthHandler) UpdateAsset(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID, "asset id")
	if !ok {
		return
	}
	var req assetRequest
	if !decode(w, r, &req) {
		return
	}

	asset, err := h.store.GetAsset(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to load asset")
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		asset.Name = name
	}
	if req.Value != nil {
		if req.Value.Sign() < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Value cannot be negative")
			return
		}
		asset.Value = *req.Value
	}
	if req.Type != "" {
		asset.Type = req.Type
	}

	if err := h.store.UpdateAsset(r.Context(), asset); err != nil {
		writeDomainError(w, err, "Failed to update asset")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, asset)
}

// DeleteAsset handles DELETE /api/networth/assets/{id}
func (h *NetWorthHandler) DeleteAsset(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID, "asset id")
	if !ok {
		return
	}
	if err := h.store.DeleteAsset(r.Context(), id); err != nil {
		writeDomainError(w, err, "Failed to delete asset")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type liabilityRequest struct {
	Name   string               `json:"name"`
	Amount *decimal.Decimal     `json:"amount"`
	Type   domain.LiabilityType `json:"type"`
}

// CreateLiability handles POST /api/networth/liabilities
func (h *NetWorthHandler) CreateLiability(w http.ResponseWriter, r *http.Request) {
	var req liabilityRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Amount == nil || req.Amount.Sign() < 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Name and a non-negative amount are required")
		return
	}
	if req.Type == "" {
		req.Type = domain.LiabilityOther
	}

	now := time.Now().UTC()
	liability := &domain.Liability{
		ID:        uuid.New(),
		Name:      req.Name,
		Amount:    *req.Amount,
		Type:      req.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateLiability(r.Context(), liability); err != nil {
		h.log.Error().Err(err).Msg("Failed to create liability")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create liability")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, liability)
}

// UpdateLiability handles PUT /api/networth/liabilities/{id}
func (h *NetWorthHandler) UpdateLiability(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID, "liability id")
	if !ok {
		return
	}
	var req liabilityRequest
	if !decode(w, r, &req) {
		return
	}

	liability, err := h.store.GetLiability(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "Failed to load liability")
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		liability.Name = name
	}
	if req.Amount != nil {
		if req.Amount.Sign() < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Amount cannot be negative")
			return
		}
		liability.Amount = *req.Amount
	}
	if req.Type != "" {
		liability.Type = req.Type
	}

	if err := h.store.UpdateLiability(r.Context(), liability); err != nil {
		writeDomainError(w, err, "Failed to update liability")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, liability)
}

// DeleteLiability handles DELETE /api/networth/liabilities/{id}
func (h *NetWorthHandler) DeleteLiability(w http.ResponseWriter, r *http.Request, rawID string) {
	id, ok := parseID(w, rawID, "liability id")
	if !ok {
		return
	}
	if err := h.store.DeleteLiability(r.Context(), id); err != nil {
		writeDomainError(w, err, "Failed to delete liability")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
