// Package api exposes the account repository over HTTP with gin.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/codewandler/bankes/core/account"
	"github.com/codewandler/bankes/core/money"
)

// Accounts is the part of account.Repository the handler needs.
type Accounts interface {
	Load(ctx context.Context, id account.AccountID) (*account.Account, error)
	Execute(ctx context.Context, id account.AccountID, fn func(*account.Account) error, opts ...account.ExecuteOption) (*account.Account, error)
}

type OpenAccountRequest struct {
	CustomerID string `json:"customerId" validate:"required,max=128"`
	Currency   string `json:"currency" validate:"required,len=3,alpha"`
}

type MoneyRequest struct {
	Amount   string `json:"amount" validate:"required,numeric"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

type AccountResponse struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customerId"`
	Balance    money.Money `json:"balance"`
	Version    int64       `json:"version"`
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	accounts Accounts
}

func NewAccountHandler(accounts Accounts) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Register mounts the account routes on r.
func (h *AccountHandler) Register(r gin.IRouter) {
	g := r.Group("/v1/accounts")
	g.POST("", h.OpenAccount)
	g.GET("/:id", h.GetAccount)
	g.POST("/:id/deposits", h.Deposit)
	g.POST("/:id/withdrawals", h.Withdraw)
}

func (h *AccountHandler) OpenAccount(c *gin.Context) {
	var req OpenAccountRequest
	if !bind(c, &req) {
		return
	}

	currency, err := money.ParseCurrency(req.Currency)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	acc, err := h.accounts.Execute(c.Request.Context(), account.NewAccountID(), func(a *account.Account) error {
		return a.Create(account.CustomerID(req.CustomerID), currency)
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(acc))
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	acc, err := h.accounts.Load(c.Request.Context(), account.AccountID(c.Param("id")))
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	if !acc.IsCreated() {
		RespondWithError(c, http.StatusNotFound, "Account not found")
		return
	}

	c.JSON(http.StatusOK, toResponse(acc))
}

func (h *AccountHandler) Deposit(c *gin.Context) {
	h.move(c, (*account.Account).Deposit)
}

func (h *AccountHandler) Withdraw(c *gin.Context) {
	h.move(c, (*account.Account).Withdraw)
}

func (h *AccountHandler) move(c *gin.Context, apply func(*account.Account, money.Money) error) {
	var req MoneyRequest
	if !bind(c, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, "Invalid amount")
		return
	}
	currency, err := money.ParseCurrency(req.Currency)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	m := money.New(amount, currency)

	acc, err := h.accounts.Execute(c.Request.Context(), account.AccountID(c.Param("id")), func(a *account.Account) error {
		return apply(a, m)
	})
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(acc))
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if validationErrors := ValidateRequest(req); validationErrors != nil {
		RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}

func toResponse(acc *account.Account) AccountResponse {
	return AccountResponse{
		ID:         acc.ID().String(),
		CustomerID: string(acc.CustomerID()),
		Balance:    acc.Balance(),
		Version:    acc.Version().Int64(),
	}
}
