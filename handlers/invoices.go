package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yourusername/freelance-billing/billing"
	"github.com/yourusername/freelance-billing/middleware"
	"github.com/yourusername/freelance-billing/models"
)

const dateLayout = "2006-01-02"

type InvoiceHandler struct {
	svc   *billing.Service
	clock func() time.Time
}

func NewInvoiceHandler(svc *billing.Service) *InvoiceHandler {
	return &InvoiceHandler{svc: svc, clock: time.Now}
}

func (h *InvoiceHandler) today() time.Time {
	return billing.DateOf(h.clock())
}

type CreateInvoiceRequest struct {
	ClientID        uint            `json:"client_id" binding:"required"`
	ProjectID       *uint           `json:"project_id"`
	StartDate       string          `json:"start_date" binding:"required"`
	EndDate         string          `json:"end_date" binding:"required"`
	IssueDate       string          `json:"issue_date"`
	DueDate         string          `json:"due_date"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	DiscountRate    decimal.Decimal `json:"discount_rate"`
	Notes           string          `json:"notes"`
	TermsConditions string          `json:"terms_conditions"`
	SendImmediately bool            `json:"send_immediately"`
	Notify          bool            `json:"notify"`
}

type PreviewRequest struct {
	ClientID  uint   `json:"client_id" binding:"required"`
	ProjectID *uint  `json:"project_id"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

type TransitionRequest struct {
	Action           string `json:"action" binding:"required"`
	PaymentMethod    string `json:"payment_method"`
	PaymentReference string `json:"payment_reference"`
	Notify           bool   `json:"notify"`
	Subject          string `json:"subject"`
	Message          string `json:"message"`
}

// InvoiceResponse adds the derived overdue view to a stored invoice.
type InvoiceResponse struct {
	*models.Invoice
	IsOverdue   bool `json:"is_overdue"`
	DaysOverdue int  `json:"days_overdue"`
}

func (h *InvoiceHandler) respond(inv *models.Invoice) InvoiceResponse {
	today := h.today()
	return InvoiceResponse{Invoice: inv, IsOverdue: inv.IsOverdue(today), DaysOverdue: inv.DaysOverdue(today)}
}

func (h *InvoiceHandler) respondList(invoices []models.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		out[i] = h.respond(&invoices[i])
	}
	return out
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date (YYYY-MM-DD)", field)
	}
	return t, nil
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param, "code": string(billing.KindValidation)})
		return 0, false
	}
	return uint(id), true
}

func owner(c *gin.Context) (uint, bool) {
	id, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return id, ok
}

// CreateInvoice bills the client's unbilled time entries in the window.
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	issue, err := parseOptionalDate("issue_date", req.IssueDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	due, err := parseOptionalDate("due_date", req.DueDate)
	if err != nil {
		badRequest(c, err)
		return
	}

	inv, err := h.svc.CreateInvoiceFromEntries(c.Request.Context(), userID, billing.CreateInvoiceRequest{
		ClientID:        req.ClientID,
		ProjectID:       req.ProjectID,
		StartDate:       start,
		EndDate:         end,
		IssueDate:       issue,
		DueDate:         due,
		TaxRate:         req.TaxRate,
		DiscountRate:    req.DiscountRate,
		Notes:           req.Notes,
		TermsConditions: req.TermsConditions,
		SendImmediately: req.SendImmediately,
		Notify:          req.Notify,
	})
	if err != nil {
		if inv != nil {
			// Created but the follow-up send or delivery failed.
			respondPartial(c, http.StatusCreated, h.respond(inv), err)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.respond(inv))
}

// PreviewInvoice prices the window without consuming any entries.
func (h *InvoiceHandler) PreviewInvoice(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		badRequest(c, err)
		return
	}

	agg, err := h.svc.Aggregate(c.Request.Context(), userID, billing.EntryFilter{
		ClientID:  req.ClientID,
		ProjectID: req.ProjectID,
		Start:     start,
		End:       end,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	lines := make([]gin.H, len(agg.Lines))
	for i, l := range agg.Lines {
		lines[i] = gin.H{
			"project_id":       l.ProjectID,
			"time_entry_id":    l.TimeEntryID,
			"description":      l.Description,
			"quantity":         l.Quantity,
			"unit_price":       l.UnitPrice,
			"total":            l.Total,
			"total_overridden": l.TotalOverridden,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"lines":       lines,
		"subtotal":    agg.Subtotal,
		"entry_count": len(agg.EntryIDs),
	})
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	inv, err := h.svc.GetInvoice(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.respond(inv))
}

// GetDocument streams the rendered invoice document.
func (h *InvoiceHandler) GetDocument(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	inv, err := h.svc.GetInvoice(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(inv.Document) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invoice has not been rendered yet", "code": string(billing.KindNotFound), "entity": "document"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, inv.Number))
	c.Data(http.StatusOK, inv.DocumentContentType, inv.Document)
}

func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	status := c.Query("status")
	switch status {
	case "", models.InvoiceDraft, models.InvoiceSent, models.InvoicePaid, models.InvoiceOverdue, models.InvoiceCancelled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status filter", "code": string(billing.KindValidation), "field": "status"})
		return
	}

	invoices, err := h.svc.ListInvoices(c.Request.Context(), userID, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"invoices": h.respondList(invoices),
		"count":    len(invoices),
	})
}

func (h *InvoiceHandler) ListOverdue(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	invoices, err := h.svc.ListOverdue(c.Request.Context(), userID, h.today())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"invoices": h.respondList(invoices),
		"count":    len(invoices),
	})
}

func (h *InvoiceHandler) Summary(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	sum, err := h.svc.Summary(c.Request.Context(), userID, c.DefaultQuery("period", "month"), h.today())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// NextNumber previews the number the next invoice of the year would get.
func (h *InvoiceHandler) NextNumber(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	year := h.today().Year()
	if y := c.Query("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid year", "code": string(billing.KindValidation), "field": "year"})
			return
		}
		year = parsed
	}
	number, err := h.svc.NextNumber(c.Request.Context(), userID, year)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice_number": number, "year": year})
}

func (h *InvoiceHandler) Transition(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	action, err := billing.ParseAction(req.Action)
	if err != nil {
		respondError(c, err)
		return
	}

	inv, err := h.svc.Transition(c.Request.Context(), userID, id, action, billing.TransitionParams{
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Notify:           req.Notify,
		Subject:          req.Subject,
		Message:          req.Message,
	})
	if err != nil {
		if inv != nil {
			respondPartial(c, http.StatusOK, h.respond(inv), err)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.respond(inv))
}

// CreatePaymentIntent opens a provider payment for a sent invoice.
func (h *InvoiceHandler) CreatePaymentIntent(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	intent, err := h.svc.CreatePaymentIntent(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment_intent": intent,
		"client_secret":  intent.ClientSecret,
	})
}

func (h *InvoiceHandler) DeleteInvoice(c *gin.Context) {
	userID, ok := owner(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteInvoice(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondPartial reports a committed invoice whose post-commit side effect
// failed.
func respondPartial(c *gin.Context, status int, body InvoiceResponse, err error) {
	c.Error(err)
	c.JSON(status, gin.H{
		"invoice": body,
		"warning": err.Error(),
		"code":    string(billing.KindOf(err)),
	})
}
