package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/freelance-billing/billing"
	"github.com/yourusername/freelance-billing/middleware"
	"github.com/yourusername/freelance-billing/models"
)

func adminRouter(env *testEnv, role string) *gin.Engine {
	handler := NewAdminHandler(env.svc)
	handler.clock = func() time.Time { return testNow }

	router := gin.New()
	admin := router.Group("/admin", asOwner(env.owner.ID, role), middleware.RequireRole("admin"))
	admin.POST("/recurring/run", handler.RunRecurring)
	admin.POST("/reminders/run", handler.RunReminders)
	admin.GET("/payment-events/failed", handler.ListFailedPaymentEvents)
	admin.POST("/payment-events/:external_id/retry", handler.RetryPaymentEvent)
	return router
}

func TestRunRecurringPass(t *testing.T) {
	env := newTestEnv(t, nil)
	next := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, env.db.Model(&env.client).Updates(map[string]interface{}{
		"recurring_invoice":   true,
		"recurring_frequency": billing.FrequencyMonthly,
		"next_invoice_date":   next,
	}).Error)
	env.entry(t, "2024-01-10", "3", "20")

	w := doJSON(adminRouter(env, "user"), http.MethodPost, "/admin/recurring/run", gin.H{"date": "2024-01-15"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	router := adminRouter(env, "admin")
	w = doJSON(router, http.MethodPost, "/admin/recurring/run", gin.H{"date": "15.01.2024"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/admin/recurring/run", gin.H{"date": "2024-01-15"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	succeeded := body["succeeded"].([]interface{})
	require.Len(t, succeeded, 1)
	assert.Equal(t, "INV-2024-0001", succeeded[0].(map[string]interface{})["invoice_number"])

	// Same day again: the next date has moved on.
	w = doJSON(router, http.MethodPost, "/admin/recurring/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["succeeded"])
}

func TestRunRemindersPass(t *testing.T) {
	env := newTestEnv(t, nil)
	inv := env.draft(t)
	require.NoError(t, env.db.Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]interface{}{
		"status":   models.InvoiceSent,
		"due_date": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}).Error)

	w := doJSON(adminRouter(env, "admin"), http.MethodPost, "/admin/reminders/run", gin.H{"date": "2024-01-15"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	// No notifier is configured, so delivery fails and is reported per invoice.
	assert.Empty(t, body["sent"])
	assert.Len(t, body["failed"], 1)
}

func TestPaymentEventRetry(t *testing.T) {
	env := newTestEnv(t, nil)
	inv := env.draft(t)
	require.NoError(t, env.db.Model(&models.Invoice{}).Where("id = ?", inv.ID).Update("status", models.InvoiceSent).Error)
	require.NoError(t, env.db.Create(&models.PaymentIntent{
		UserID: env.owner.ID, InvoiceID: inv.ID, ProviderID: "pi_9", Amount: inv.TotalAmount, Currency: "USD", Status: "requires_payment_method",
	}).Error)
	require.NoError(t, env.db.Create(&models.PaymentEvent{
		ExternalID: "evt_9", EventType: billing.EventPaymentSucceeded, Reference: "pi_9", Payload: "{}", ErrorMessage: "database is locked",
	}).Error)
	router := adminRouter(env, "admin")

	w := doJSON(router, http.MethodGet, "/admin/payment-events/failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = doJSON(router, http.MethodPost, "/admin/payment-events/evt_9/retry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["processed"])

	w = doJSON(router, http.MethodGet, "/admin/payment-events/failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["count"])

	w = doJSON(router, http.MethodPost, "/admin/payment-events/evt_missing/retry", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
