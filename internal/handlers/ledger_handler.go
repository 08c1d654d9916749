package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"

	"github.com/alexienu/backend/internal/middleware"
	"github.com/alexienu/backend/internal/services"
)

const (
	maxRequestBytes      = 1_048_576 // 1 MB
	defaultActivityLimit = 10
	activityCacheTTL     = 60 * time.Second
)

// LedgerHandler is the HTTP wrapper over the ledger facade. Redis may
// be nil; the recent-activity cache then degrades to the database.
type LedgerHandler struct {
	ledger    *services.Ledger
	store     *services.LedgerStore
	redis     *redis.Client
	validator *services.ValidationHelper
}

func NewLedgerHandler(db *sql.DB, redisClient *redis.Client) *LedgerHandler {
	ledger := services.NewLedger(db)
	return &LedgerHandler{
		ledger:    ledger,
		store:     ledger.Store(),
		redis:     redisClient,
		validator: services.NewValidationHelper(),
	}
}

// Routes mounts the ledger endpoints on r. Callers wrap the group with
// the auth middleware.
func (h *LedgerHandler) Routes(r chi.Router) {
	r.Get("/accounts", h.ListAccounts)
	r.Post("/accounts", h.CreateAccount)
	r.Delete("/accounts/{accountID}", h.DeleteAccount)
	r.Get("/statements/{accountName}", h.AccountStatement)
	r.Get("/account-types", h.ListAccountTypes)
	r.Post("/account-types", h.CreateAccountType)
	r.Delete("/account-types/{typeID}", h.DeleteAccountType)
	r.Get("/activity", h.RecentActivity)
	r.Post("/entries", h.CreateEntry)
}

func (h *LedgerHandler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return 0, false
	}
	return userID, true
}

func (h *LedgerHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// ListAccounts returns the user's accounts sorted by name
// @Summary List accounts
// @Tags ledger
// @Produce json
// @Router /ledger/accounts [get]
func (h *LedgerHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	accounts, err := h.store.ListAccounts(r.Context(), userID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// ListAccountTypes returns the user's account types in display order
// @Summary List account types
// @Tags ledger
// @Produce json
// @Router /ledger/account-types [get]
func (h *LedgerHandler) ListAccountTypes(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	types, err := h.store.ListAccountTypes(r.Context(), userID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountTypes": types,
		"count":        len(types),
	})
}

// CreateAccountType creates an account type
// @Summary Create account type
// @Tags ledger
// @Accept json
// @Produce json
// @Router /ledger/account-types [post]
func (h *LedgerHandler) CreateAccountType(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name    string `json:"name" validate:"required,max=80"`
		Sign    int    `json:"sign" validate:"required,oneof=-1 1"`
		Order   int    `json:"order"`
		Visible *bool  `json:"visible"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	visible := true
	if req.Visible != nil {
		visible = *req.Visible
	}

	accountType, err := h.store.CreateAccountType(r.Context(), userID, req.Name, req.Sign, req.Order, visible)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountType)
}

// CreateAccount creates an account under one of the user's account types
// @Summary Create account
// @Tags ledger
// @Accept json
// @Produce json
// @Router /ledger/accounts [post]
func (h *LedgerHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		Name           string `json:"name" validate:"required,max=80"`
		AccountTypeID  int64  `json:"accountTypeId" validate:"required"`
		InitialBalance string `json:"initialBalance"`
		Budget         string `json:"budget"`
		InBudget       bool   `json:"inBudget"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	params := services.AccountParams{InBudget: req.InBudget}
	var err error
	if req.InitialBalance != "" {
		if params.InitialBalance, err = decimal.NewFromString(req.InitialBalance); err != nil {
			services.SendErrorResponse(w, "initialBalance is not a decimal number", http.StatusBadRequest, nil)
			return
		}
	}
	if req.Budget != "" {
		if params.Budget, err = decimal.NewFromString(req.Budget); err != nil {
			services.SendErrorResponse(w, "budget is not a decimal number", http.StatusBadRequest, nil)
			return
		}
	}

	account, err := h.store.CreateAccount(r.Context(), userID, req.Name, req.AccountTypeID, params)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// DeleteAccount removes an account and its postings
// @Summary Delete account
// @Tags ledger
// @Router /ledger/accounts/{accountID} [delete]
func (h *LedgerHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	if err := h.store.DeleteAccount(r.Context(), userID, accountID); err != nil {
		services.SendLedgerError(w, err)
		return
	}
	h.invalidateActivityCache(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccountType removes an account type with its accounts and postings
// @Summary Delete account type
// @Tags ledger
// @Router /ledger/account-types/{typeID} [delete]
func (h *LedgerHandler) DeleteAccountType(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	typeID, err := strconv.ParseInt(chi.URLParam(r, "typeID"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid account type id", http.StatusBadRequest, nil)
		return
	}

	if err := h.store.DeleteAccountType(r.Context(), userID, typeID); err != nil {
		services.SendLedgerError(w, err)
		return
	}
	h.invalidateActivityCache(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

func activityCacheKey(userID int64) string {
	return "ledger:activity:" + strconv.FormatInt(userID, 10)
}

func (h *LedgerHandler) invalidateActivityCache(ctx context.Context, userID int64) {
	if h.redis == nil {
		return
	}
	if err := h.redis.Del(ctx, activityCacheKey(userID)).Err(); err != nil {
		log.Printf("[LEDGER] Failed to invalidate activity cache for user %d: %v", userID, err)
	}
}

// RecentActivity returns the user's newest journal entries
// @Summary Recent activity
// @Tags ledger
// @Produce json
// @Param limit query int false "Number of entries to return (default: 10, max: 100)"
// @Router /ledger/activity [get]
func (h *LedgerHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		Limit int `validate:"omitempty,min=1,max=100"`
	}
	req.Limit = defaultActivityLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = l
		}
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Only the default page is cached; other limits go to the database.
	cacheable := h.redis != nil && req.Limit == defaultActivityLimit
	if cacheable {
		if cached, err := h.redis.Get(r.Context(), activityCacheKey(userID)).Result(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(cached))
			return
		}
	}

	entries, err := h.ledger.RecentActivity(r.Context(), userID, req.Limit)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	body, err := json.Marshal(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
	if err != nil {
		services.SendErrorResponse(w, "Failed to encode activity", http.StatusInternalServerError, nil)
		return
	}

	if cacheable {
		if err := h.redis.Set(r.Context(), activityCacheKey(userID), body, activityCacheTTL).Err(); err != nil {
			log.Printf("[LEDGER] Failed to cache activity for user %d: %v", userID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// CreateEntry creates a journal entry and posts it between two accounts
// @Summary Create and post a standard entry
// @Tags ledger
// @Accept json
// @Produce json
// @Router /ledger/entries [post]
func (h *LedgerHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req struct {
		Description string `json:"description" validate:"required,max=160"`
		Amount      string `json:"amount" validate:"required"`
		DebitID     int64  `json:"debitId" validate:"required"`
		CreditID    int64  `json:"creditId" validate:"required"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entry, err := h.ledger.CreateAndPostStandardEntry(r.Context(), userID, req.Description, req.Amount, req.DebitID, req.CreditID)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	h.invalidateActivityCache(r.Context(), userID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"entry":   entry,
	})
}

// AccountStatement returns the account's line items, newest first
// @Summary Account statement
// @Tags ledger
// @Produce json
// @Router /ledger/statements/{accountName} [get]
func (h *LedgerHandler) AccountStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	accountName := chi.URLParam(r, "accountName")
	lineItems, err := h.ledger.AccountStatement(r.Context(), userID, accountName)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lineItems": lineItems,
		"count":     len(lineItems),
	})
}
