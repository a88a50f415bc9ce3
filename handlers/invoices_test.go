package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/freelance-billing/billing"
	"github.com/yourusername/freelance-billing/models"
)

func invoiceRouter(env *testEnv) *gin.Engine {
	handler := NewInvoiceHandler(env.svc)
	handler.clock = func() time.Time { return testNow }

	router := gin.New()
	router.Use(asOwner(env.owner.ID, "user"))
	router.POST("/invoices", handler.CreateInvoice)
	router.POST("/invoices/preview", handler.PreviewInvoice)
	router.GET("/invoices", handler.ListInvoices)
	router.GET("/invoices/overdue", handler.ListOverdue)
	router.GET("/invoices/summary", handler.Summary)
	router.GET("/invoices/next-number", handler.NextNumber)
	router.GET("/invoices/:id", handler.GetInvoice)
	router.GET("/invoices/:id/document", handler.GetDocument)
	router.POST("/invoices/:id/transition", handler.Transition)
	router.POST("/invoices/:id/payment-intent", handler.CreatePaymentIntent)
	router.DELETE("/invoices/:id", handler.DeleteInvoice)
	return router
}

func TestCreateInvoice(t *testing.T) {
	env := newTestEnv(t, nil)
	env.entry(t, "2024-01-10", "2", "50")
	router := invoiceRouter(env)

	tests := []struct {
		name       string
		body       gin.H
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing client",
			body:       gin.H{"start_date": "2024-01-01", "end_date": "2024-01-31"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "Validation",
		},
		{
			name:       "malformed date",
			body:       gin.H{"client_id": env.client.ID, "start_date": "01/01/2024", "end_date": "2024-01-31"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "Validation",
		},
		{
			name:       "unknown client",
			body:       gin.H{"client_id": 999, "start_date": "2024-01-01", "end_date": "2024-01-31"},
			wantStatus: http.StatusNotFound,
			wantCode:   "NotFound",
		},
		{
			name:       "negative tax rate",
			body:       gin.H{"client_id": env.client.ID, "start_date": "2024-01-01", "end_date": "2024-01-31", "tax_rate": "-1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "InvalidAmount",
		},
		{
			name:       "empty window",
			body:       gin.H{"client_id": env.client.ID, "start_date": "2023-01-01", "end_date": "2023-01-31"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "NoBillableWork",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/invoices", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decode(t, w)["code"])
		})
	}

	t.Run("valid request", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/invoices", gin.H{
			"client_id":  env.client.ID,
			"start_date": "2024-01-01",
			"end_date":   "2024-01-31",
			"tax_rate":   "10",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		body := decode(t, w)
		assert.Equal(t, "INV-2024-0001", body["invoice_number"])
		assert.Equal(t, models.InvoiceDraft, body["status"])
		assert.True(t, amountOf(t, body["total_amount"]).Equal(amountOf(t, "110")))
		assert.Equal(t, false, body["is_overdue"])

		// The same entries cannot be billed twice.
		w = doJSON(router, http.MethodPost, "/invoices", gin.H{
			"client_id":  env.client.ID,
			"start_date": "2024-01-01",
			"end_date":   "2024-01-31",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestPreviewInvoiceConsumesNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	env.entry(t, "2024-01-10", "1.5", "40")
	env.entry(t, "2024-01-11", "2", "40")
	router := invoiceRouter(env)

	body := gin.H{"client_id": env.client.ID, "start_date": "2024-01-01", "end_date": "2024-01-31"}
	for i := 0; i < 2; i++ {
		w := doJSON(router, http.MethodPost, "/invoices/preview", body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		out := decode(t, w)
		assert.True(t, amountOf(t, out["subtotal"]).Equal(amountOf(t, "140")))
		assert.Equal(t, float64(2), out["entry_count"])
		assert.Len(t, out["lines"], 1)
	}
}

func TestGetAndListInvoices(t *testing.T) {
	env := newTestEnv(t, nil)
	inv := env.draft(t)
	router := invoiceRouter(env)

	w := doJSON(router, http.MethodGet, fmt.Sprintf("/invoices/%d", inv.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, inv.Number, body["invoice_number"])
	assert.Len(t, body["items"], 1)

	w = doJSON(router, http.MethodGet, "/invoices/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/invoices/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/invoices?status=draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = doJSON(router, http.MethodGet, "/invoices?status=paid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])

	w = doJSON(router, http.MethodGet, "/invoices?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoiceOwnerIsolation(t *testing.T) {
	env := newTestEnv(t, nil)
	inv := env.draft(t)

	other := models.User{Email: "other@example.com", Name: "Other", PasswordHash: "x", IsActive: true}
	require.NoError(t, env.db.Create(&other).Error)

	handler := NewInvoiceHandler(env.svc)
	router := gin.New()
	router.Use(asOwner(other.ID, "user"))
	router.GET("/invoices/:id", handler.GetInvoice)
	router.DELETE("/invoices/:id", handler.DeleteInvoice)

	w := doJSON(router, http.MethodGet, fmt.Sprintf("/invoices/%d", inv.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(router, http.MethodDelete, fmt.Sprintf("/invoices/%d", inv.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransitionFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	inv := env.draft(t)
	router := invoiceRouter(env)
	path := fmt.Sprintf("/invoices/%d/transition", inv.ID)

	w := doJSON(router, http.MethodGet, fmt.Sprintf("/invoices/%d/document", inv.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	steps := []struct {
		name       string
		body       gin.H
		wantStatus int
		wantState  string
		wantCode   string
	}{
		{name: "unknown action", body: gin.H{"action": "archive"}, wantStatus: http.StatusBadRequest, wantCode: "Validation"},
		{name: "pay a draft", body: gin.H{"action": "mark_paid", "payment_method": "bank"}, wantStatus: http.StatusConflict, wantCode: "InvalidTransition"},
		{name: "send", body: gin.H{"action": "send"}, wantStatus: http.StatusOK, wantState: models.InvoiceSent},
		{name: "send twice", body: gin.H{"action": "send"}, wantStatus: http.StatusConflict, wantCode: "InvalidTransition"},
		{name: "pay without method", body: gin.H{"action": "mark_paid"}, wantStatus: http.StatusBadRequest, wantCode: "Validation"},
		{name: "pay", body: gin.H{"action": "mark_paid", "payment_method": "bank", "payment_reference": "TX-1"}, wantStatus: http.StatusOK, wantState: models.InvoicePaid},
		{name: "pay again", body: gin.H{"action": "mark_paid", "payment_method": "bank"}, wantStatus: http.StatusOK, wantState: models.InvoicePaid},
		{name: "cancel paid", body: gin.H{"action": "cancel"}, wantStatus: http.StatusConflict, wantCode: "InvalidTransition"},
	}
	for _, step := range steps {
		w := doJSON(router, http.MethodPost, path, step.body)
		require.Equal(t, step.wantStatus, w.Code, "%s: %s", step.name, w.Body.String())
		body := decode(t, w)
		if step.wantState != "" {
			assert.Equal(t, step.wantState, body["status"], step.name)
		}
		if step.wantCode != "" {
			assert.Equal(t, step.wantCode, body["code"], step.name)
		}
	}

	w = doJSON(router, http.MethodGet, fmt.Sprintf("/invoices/%d/document", inv.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), inv.Number+".pdf")
	assert.Equal(t, "%PDF-"+inv.Number, w.Body.String())

	w = doJSON(router, http.MethodDelete, fmt.Sprintf("/invoices/%d", inv.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSendWithoutClientEmailReportsDelivery(t *testing.T) {
	env := newTestEnv(t, nil)
	inv := env.draft(t)
	require.NoError(t, env.db.Model(&env.client).Update("email", "").Error)
	router := invoiceRouter(env)

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/invoices/%d/transition", inv.ID), gin.H{"action": "send", "notify": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "DeliveryFailure", body["code"])
	invoice := body["invoice"].(map[string]interface{})
	assert.Equal(t, models.InvoiceSent, invoice["status"])
}

func TestOverdueSummaryAndNextNumber(t *testing.T) {
	env := newTestEnv(t, nil)
	inv := env.draft(t)
	_, err := env.svc.Transition(context.Background(), env.owner.ID, inv.ID, billing.ActionSend, billing.TransitionParams{})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.Invoice{}).Where("id = ?", inv.ID).Update("due_date", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)).Error)
	router := invoiceRouter(env)

	w := doJSON(router, http.MethodGet, "/invoices/overdue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, float64(1), body["count"])
	first := body["invoices"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, true, first["is_overdue"])
	assert.Equal(t, float64(10), first["days_overdue"])

	w = doJSON(router, http.MethodGet, "/invoices/summary?period=week", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode(t, w)
	assert.Equal(t, "week", sum["period"])
	assert.True(t, amountOf(t, sum["overdue_amount"]).Equal(amountOf(t, "100")))
	assert.True(t, amountOf(t, sum["outstanding_amount"]).Equal(amountOf(t, "100")))

	w = doJSON(router, http.MethodGet, "/invoices/next-number", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "INV-2024-0002", decode(t, w)["invoice_number"])

	w = doJSON(router, http.MethodGet, "/invoices/next-number?year=2025", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "INV-2025-0001", decode(t, w)["invoice_number"])

	w = doJSON(router, http.MethodGet, "/invoices/next-number?year=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePaymentIntentHandler(t *testing.T) {
	provider := &MockPaymentProvider{
		CreatePaymentIntentFunc: func(ctx context.Context, inv *models.Invoice) (*billing.ProviderIntent, error) {
			return &billing.ProviderIntent{ProviderID: "pi_123", Status: "requires_payment_method", ClientSecret: "pi_123_secret"}, nil
		},
	}
	env := newTestEnv(t, provider)
	inv := env.draft(t)
	router := invoiceRouter(env)
	path := fmt.Sprintf("/invoices/%d/payment-intent", inv.ID)

	w := doJSON(router, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err := env.svc.Transition(context.Background(), env.owner.ID, inv.ID, billing.ActionSend, billing.TransitionParams{})
	require.NoError(t, err)

	w = doJSON(router, http.MethodPost, path, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "pi_123_secret", body["client_secret"])
	assert.Equal(t, "pi_123", body["payment_intent"].(map[string]interface{})["provider_id"])

	provider.CreatePaymentIntentFunc = func(ctx context.Context, inv *models.Invoice) (*billing.ProviderIntent, error) {
		return nil, errors.New("provider down")
	}
	w = doJSON(router, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDeleteDraftInvoice(t *testing.T) {
	env := newTestEnv(t, nil)
	inv := env.draft(t)
	router := invoiceRouter(env)

	w := doJSON(router, http.MethodDelete, fmt.Sprintf("/invoices/%d", inv.ID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Released entries can be billed again.
	w = doJSON(router, http.MethodPost, "/invoices", gin.H{"client_id": env.client.ID, "start_date": "2024-01-01", "end_date": "2024-01-31"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "INV-2024-0002", decode(t, w)["invoice_number"])
}
