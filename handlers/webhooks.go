package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/freelance-billing/billing"
)

const maxWebhookBody = 64 << 10

type WebhookHandler struct {
	svc      *billing.Service
	provider billing.PaymentProvider
}

func NewWebhookHandler(svc *billing.Service, provider billing.PaymentProvider) *WebhookHandler {
	return &WebhookHandler{svc: svc, provider: provider}
}

// Stripe verifies the signature before anything reaches the billing core.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	if h.provider == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment provider not configured"})
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Webhook body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	n, err := h.provider.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature or payload"})
		return
	}
	if n == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	event, err := h.svc.ReconcilePaymentEvent(c.Request.Context(), *n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "received",
		"processed":     event.Processed,
		"error_message": event.ErrorMessage,
	})
}
