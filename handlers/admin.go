package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/freelance-billing/billing"
)

// AdminHandler triggers the batch passes and payment-event retries by hand.
type AdminHandler struct {
	svc   *billing.Service
	clock func() time.Time
}

func NewAdminHandler(svc *billing.Service) *AdminHandler {
	return &AdminHandler{svc: svc, clock: time.Now}
}

type RunPassRequest struct {
	Date string `json:"date"`
}

func (h *AdminHandler) asOf(c *gin.Context) (time.Time, bool) {
	var req RunPassRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return time.Time{}, false
		}
	}
	if req.Date == "" {
		return h.clock(), true
	}
	t, err := parseDate("date", req.Date)
	if err != nil {
		badRequest(c, err)
		return time.Time{}, false
	}
	return t, true
}

func (h *AdminHandler) RunRecurring(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	res, err := h.svc.RunRecurringBillingPass(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) RunReminders(c *gin.Context) {
	asOf, ok := h.asOf(c)
	if !ok {
		return
	}
	res, err := h.svc.SendOverdueReminders(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AdminHandler) ListFailedPaymentEvents(c *gin.Context) {
	events, err := h.svc.ListFailedPaymentEvents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (h *AdminHandler) RetryPaymentEvent(c *gin.Context) {
	event, err := h.svc.RetryPaymentEvent(c.Request.Context(), c.Param("external_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}
