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

// CategoryStore is the slice of category storage the category endpoints need.
type CategoryStore interface {
	Create(ctx context.Context, category *domain.Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	ListForBudget(ctx context.Context, budgetID uuid.UUID) ([]domain.Category, error)
	Update(ctx context.Context, category *domain.Category) error
	Delete(ctx context.Context, budgetID, id uuid.UUID) error
}

// AccessChecker guards budget-scoped endpoints.
type AccessChecker interface {
	HasAccess(ctx context.Context, userID, budgetID uuid.UUID) (bool, error)
}

// CategoriesHandler handles category endpoints.
type CategoriesHandler struct {
	access     AccessChecker
	categories CategoryStore
	log        zerolog.Logger
}

// NewCategoriesHandler creates a new categories handler.
func NewCategoriesHandler(access AccessChecker, categories CategoryStore, log zerolog.Logger) *CategoriesHandler {
	return &CategoriesHandler{
		access:     access,
		categories: categories,
		log:        log,
	}
}

type categoryRequest struct {
	Name       string           `json:"name"`
	Color      string           `json:"color"`
	Icon       string           `json:"icon"`
	Allocation *decimal.Decimal `json:"allocation"`
	Rollover   *bool            `json:"rollover"`
	Order      *int             `json:"order"`
}

// List handles GET /api/budgets/{id}/categories
func (h *CategoriesHandler) List(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}
	categories, err := h.categories.ListForBudget(r.Context(), budgetID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}

// Create handles POST /api/budgets/{id}/categories
func (h *CategoriesHandler) Create(w http.ResponseWriter, r *http.Request, rawBudgetID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}
	var req categoryRequest
	if !decode(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Category name is required")
		return
	}

	category := newCategory(budgetID, req)
	if err := h.categories.Create(r.Context(), category); err != nil {
		h.log.Error().Err(err).Msg("Failed to create category")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create category")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, category)
}

// Update handles PUT /api/budgets/{id}/categories/{categoryId}
func (h *CategoriesHandler) Update(w http.ResponseWriter, r *http.Request, rawBudgetID, rawCategoryID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}
	categoryID, ok := parseID(w, rawCategoryID, "category id")
	if !ok {
		return
	}
	var req categoryRequest
	if !decode(w, r, &req) {
		return
	}

	category, err := h.categories.GetByID(r.Context(), categoryID)
	if err != nil || category.BudgetID != budgetID {
		middleware.WriteError(w, http.StatusNotFound, "Category not found")
		return
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		category.Name = name
	}
	if req.Color != "" {
		category.Color = req.Color
	}
	if req.Icon != "" {
		category.Icon = req.Icon
	}
	if req.Allocation != nil {
		if req.Allocation.Sign() < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "Allocation cannot be negative")
			return
		}
		category.Allocation = *req.Allocation
	}
	if req.Rollover != nil {
		category.Rollover = *req.Rollover
	}
	if req.Order != nil {
		category.Order = *req.Order
	}

	if err := h.categories.Update(r.Context(), category); err != nil {
		writeDomainError(w, err, "Failed to update category")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, category)
}

// Delete handles DELETE /api/budgets/{id}/categories/{categoryId}
func (h *CategoriesHandler) Delete(w http.ResponseWriter, r *http.Request, rawBudgetID, rawCategoryID string) {
	budgetID, ok := h.checkAccess(w, r, rawBudgetID)
	if !ok {
		return
	}
	categoryID, ok := parseID(w, rawCategoryID, "category id")
	if !ok {
		return
	}
	if err := h.categories.Delete(r.Context(), budgetID, categoryID); err != nil {
		writeDomainError(w, err, "Failed to delete category; it may still have expenses")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *CategoriesHandler) checkAccess(w http.ResponseWriter, r *http.Request, rawBudgetID string) (uuid.UUID, bool) {
	budgetID, ok := parseID(w, rawBudgetID, "budget id")
	if !ok {
		return uuid.Nil, false
	}
	allowed, err := h.access.HasAccess(r.Context(), middleware.UserID(r.Context()), budgetID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check budget access")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to check budget access")
		return uuid.Nil, false
	}
	if !allowed {
		middleware.WriteError(w, http.StatusForbidden, "Access denied")
		return uuid.Nil, false
	}
	return budgetID, true
}

func newCategory(budgetID uuid.UUID, req categoryRequest) *domain.Category {
	category := &domain.Category{
		ID:       uuid.New(),
		BudgetID: budgetID,
		Name:     req.Name,
		Color:    domain.DefaultCategoryColor,
		Icon:     domain.DefaultCategoryIcon,
	}
	if req.Color != "" {
		category.Color = req.Color
	}
	if req.Icon != "" {
		category.Icon = req.Icon
	}
	if req.Allocation != nil && req.Allocation.Sign() >= 0 {
		category.Allocation = *req.Allocation
	}
	if req.Rollover != nil {
		category.Rollover = *req.Rollover
	}
	if req.Order != nil {
		category.Order = *req.Order
	}
	now := time.Now().UTC()
	category.CreatedAt = now
	category.UpdatedAt = now
	return category
}
