package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codewandler/bankes/core/account"
	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/core/money"
)

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"message": message,
	})
}

// respondWithDomainError maps repository and aggregate errors to a status.
func respondWithDomainError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, account.ErrNotInitialized):
		RespondWithError(c, http.StatusNotFound, "Account not found")
	case errors.Is(err, account.ErrInsufficientBalance):
		RespondWithError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, es.ErrConcurrencyConflict):
		RespondWithError(c, http.StatusConflict, "Account was modified concurrently, retry")
	case errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrInvalidCurrency),
		errors.Is(err, money.ErrInvalidMoney),
		errors.Is(err, account.ErrInvalidAmount),
		errors.Is(err, account.ErrInvalidCustomer),
		errors.Is(err, account.ErrAlreadyInitialized):
		RespondWithError(c, http.StatusBadRequest, err.Error())
	default:
		RespondWithError(c, http.StatusInternalServerError, "Internal error")
	}
}
