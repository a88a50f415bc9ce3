package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/freelance-billing/billing"
	"github.com/yourusername/freelance-billing/models"
)

func postWebhook(router http.Handler, payload, signature string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStripeWebhook(t *testing.T) {
	provider := &MockPaymentProvider{
		CreatePaymentIntentFunc: func(ctx context.Context, inv *models.Invoice) (*billing.ProviderIntent, error) {
			return &billing.ProviderIntent{ProviderID: "pi_1", Status: "requires_payment_method"}, nil
		},
		ParseWebhookFunc: func(payload []byte, signature string) (*billing.PaymentNotification, error) {
			switch signature {
			case "bad":
				return nil, errors.New("signature mismatch")
			case "irrelevant":
				return nil, nil
			}
			return &billing.PaymentNotification{
				ExternalID: "evt_1",
				Type:       billing.EventPaymentSucceeded,
				Reference:  signature,
				Payload:    payload,
			}, nil
		},
	}
	env := newTestEnv(t, provider)
	inv := env.draft(t)
	_, err := env.svc.Transition(context.Background(), env.owner.ID, inv.ID, billing.ActionSend, billing.TransitionParams{})
	require.NoError(t, err)
	_, err = env.svc.CreatePaymentIntent(context.Background(), env.owner.ID, inv.ID)
	require.NoError(t, err)

	handler := NewWebhookHandler(env.svc, provider)
	router := gin.New()
	router.POST("/webhooks/stripe", handler.Stripe)

	t.Run("bad signature never reaches billing", func(t *testing.T) {
		w := postWebhook(router, `{"id":"evt_1"}`, "bad")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var count int64
		env.db.Model(&models.PaymentEvent{}).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("irrelevant event type", func(t *testing.T) {
		w := postWebhook(router, `{"id":"evt_0"}`, "irrelevant")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ignored", decode(t, w)["status"])
	})

	t.Run("payment succeeded marks invoice paid", func(t *testing.T) {
		w := postWebhook(router, `{"id":"evt_1"}`, "pi_1")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, true, decode(t, w)["processed"])

		var stored models.Invoice
		require.NoError(t, env.db.First(&stored, inv.ID).Error)
		assert.Equal(t, models.InvoicePaid, stored.Status)
		assert.Equal(t, billing.PaymentMethodExternal, stored.PaymentMethod)
	})

	t.Run("redelivery is a no-op", func(t *testing.T) {
		w := postWebhook(router, `{"id":"evt_1"}`, "pi_1")
		require.Equal(t, http.StatusOK, w.Code)
		var count int64
		env.db.Model(&models.PaymentEvent{}).Where("external_id = ?", "evt_1").Count(&count)
		assert.Equal(t, int64(1), count)
	})
}

func TestStripeWebhookRejectsOversizedBody(t *testing.T) {
	parsed := false
	provider := &MockPaymentProvider{
		ParseWebhookFunc: func(payload []byte, signature string) (*billing.PaymentNotification, error) {
			parsed = true
			return nil, nil
		},
	}
	env := newTestEnv(t, provider)
	handler := NewWebhookHandler(env.svc, provider)
	router := gin.New()
	router.POST("/webhooks/stripe", handler.Stripe)

	w := postWebhook(router, `{"pad":"`+strings.Repeat("x", maxWebhookBody)+`"}`, "sig")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.False(t, parsed)

	w = postWebhook(router, `{"id":"evt_small"}`, "sig")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, parsed)
}

func TestStripeWebhookWithoutProvider(t *testing.T) {
	env := newTestEnv(t, nil)
	handler := NewWebhookHandler(env.svc, nil)
	router := gin.New()
	router.POST("/webhooks/stripe", handler.Stripe)

	w := postWebhook(router, `{}`, "sig")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
