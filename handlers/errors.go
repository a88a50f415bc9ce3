package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/freelance-billing/billing"
)

// statusFor maps a billing error kind to its HTTP status.
func statusFor(kind billing.Kind) int {
	switch kind {
	case billing.KindInvalidAmount, billing.KindValidation:
		return http.StatusBadRequest
	case billing.KindNoBillableWork:
		return http.StatusUnprocessableEntity
	case billing.KindNotFound, billing.KindUnknownPaymentReference:
		return http.StatusNotFound
	case billing.KindInvalidTransition, billing.KindHasDependents, billing.KindIdentifierExhausted:
		return http.StatusConflict
	case billing.KindRenderFailure, billing.KindDeliveryFailure:
		return http.StatusBadGateway
	case billing.KindTimeout:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	c.Error(err)

	var be *billing.Error
	if !errors.As(err, &be) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "Internal"})
		return
	}

	body := gin.H{"error": be.Error(), "code": string(be.Kind)}
	if be.Field != "" {
		body["field"] = be.Field
	}
	if be.Entity != "" {
		body["entity"] = be.Entity
	}
	if be.Retryable() {
		body["retryable"] = true
	}
	c.JSON(statusFor(be.Kind), body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": string(billing.KindValidation)})
}
