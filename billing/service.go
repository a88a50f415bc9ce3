package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/yourusername/freelance-billing/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultPaymentTermsDays = 30

// Deps are the collaborators of the billing core. Only DB is required.
type Deps struct {
	Renderer DocumentRenderer
	Notifier NotificationSender
	Provider PaymentProvider
	Events   EventPublisher
	Metrics  Recorder
	Logger   zerolog.Logger

	// OperationTimeout bounds every persistence and provider call.
	OperationTimeout time.Duration
	// SendRecurring sends invoices produced by the recurring pass.
	SendRecurring bool
	// Clock allows tests to pin "now".
	Clock func() time.Time
}

type Service struct {
	db            *gorm.DB
	renderer      DocumentRenderer
	notifier      NotificationSender
	provider      PaymentProvider
	events        EventPublisher
	metrics       Recorder
	log           zerolog.Logger
	timeout       time.Duration
	sendRecurring bool
	clock         func() time.Time
}

func NewService(db *gorm.DB, deps Deps) *Service {
	s := &Service{
		db:            db,
		renderer:      deps.Renderer,
		notifier:      deps.Notifier,
		provider:      deps.Provider,
		events:        deps.Events,
		metrics:       deps.Metrics,
		log:           deps.Logger.With().Str("component", "billing").Logger(),
		timeout:       deps.OperationTimeout,
		sendRecurring: deps.SendRecurring,
		clock:         deps.Clock,
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) today() time.Time {
	return DateOf(s.clock())
}

func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Service) publish(ctx context.Context, key string, inv *models.Invoice) {
	if s.events == nil || inv == nil {
		return
	}
	event := InvoiceEvent{
		Type:          key,
		InvoiceID:     inv.ID,
		OwnerID:       inv.UserID,
		InvoiceNumber: inv.Number,
		Status:        inv.Status,
		TotalAmount:   inv.TotalAmount,
		OccurredAt:    s.clock().UTC(),
	}
	ctx, cancel := s.opContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.events.Publish(ctx, inv.Number, event); err != nil {
		s.log.Warn().Err(err).Str("event", key).Uint("invoice_id", inv.ID).Msg("failed to publish invoice event")
	}
}

// InvoiceEvent is the payload handed to EventPublisher.
type InvoiceEvent struct {
	Type          string          `json:"type"`
	InvoiceID     uint            `json:"invoice_id"`
	OwnerID       uint            `json:"owner_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// CreateInvoiceRequest is the filter and pricing input for invoice creation.
type CreateInvoiceRequest struct {
	ClientID        uint
	ProjectID       *uint
	StartDate       time.Time
	EndDate         time.Time
	IssueDate       *time.Time
	DueDate         *time.Time
	TaxRate         decimal.Decimal
	DiscountRate    decimal.Decimal
	Notes           string
	TermsConditions string
	// SendImmediately promotes the new draft to sent after commit.
	SendImmediately bool
	Notify          bool
}

// CreateInvoiceFromEntries prices the owner's unbilled work in the window and
// persists it as a new invoice in one transaction.
func (s *Service) CreateInvoiceFromEntries(ctx context.Context, owner uint, req CreateInvoiceRequest) (*models.Invoice, error) {
	if req.ClientID == 0 {
		return nil, validation("client_id", "is required")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, validation("end_date", "must not be before start_date")
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var inv *models.Invoice
	err := s.db.WithContext(opCtx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = s.createInvoice(tx, owner, req)
		return err
	})
	if err != nil {
		return nil, classify("create invoice", err)
	}

	s.metrics.InvoiceCreated("manual")
	s.log.Info().Uint("owner", owner).Str("number", inv.Number).Str("total", inv.TotalAmount.StringFixed(2)).Msg("invoice created")
	s.publish(ctx, "invoice.created", inv)

	if req.SendImmediately {
		sent, err := s.Transition(ctx, owner, inv.ID, ActionSend, TransitionParams{Notify: req.Notify})
		if sent == nil {
			// The draft stays committed.
			return inv, err
		}
		return sent, err
	}
	return inv, nil
}

func (s *Service) createInvoice(tx *gorm.DB, owner uint, req CreateInvoiceRequest) (*models.Invoice, error) {
	var client models.Client
	if err := tx.Where("id = ? AND user_id = ?", req.ClientID, owner).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("client")
		}
		return nil, err
	}
	if req.ProjectID != nil {
		var project models.Project
		err := tx.Where("id = ? AND user_id = ? AND client_id = ?", *req.ProjectID, owner, client.ID).First(&project).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("project")
			}
			return nil, err
		}
	}

	filter := EntryFilter{ClientID: client.ID, ProjectID: req.ProjectID, Start: req.StartDate, End: req.EndDate}
	entries, err := selectEntries(tx.Clauses(clause.Locking{Strength: "UPDATE"}), owner, filter)
	if err != nil {
		return nil, err
	}
	agg, err := buildAggregation(entries)
	if err != nil {
		return nil, err
	}

	issue := s.today()
	if req.IssueDate != nil {
		issue = DateOf(*req.IssueDate)
	}
	terms := client.PaymentTermsDays
	if terms <= 0 {
		terms = defaultPaymentTermsDays
	}
	due := issue.AddDate(0, 0, terms)
	if req.DueDate != nil {
		due = DateOf(*req.DueDate)
	}
	if due.Before(issue) {
		return nil, validation("due_date", "must not be before issue_date")
	}
	currency := client.Currency
	if currency == "" {
		currency = "USD"
	}

	inv := &models.Invoice{
		UserID:          owner,
		ClientID:        client.ID,
		ProjectID:       req.ProjectID,
		IssueDate:       issue,
		DueDate:         due,
		Status:          models.InvoiceDraft,
		Subtotal:        agg.Subtotal,
		TaxRate:         req.TaxRate,
		DiscountRate:    req.DiscountRate,
		Currency:        currency,
		Notes:           req.Notes,
		TermsConditions: req.TermsConditions,
	}
	if err := applyAmounts(inv); err != nil {
		return nil, err
	}
	if err := s.insertNumbered(tx, inv); err != nil {
		return nil, err
	}

	items := make([]models.InvoiceItem, 0, len(agg.Lines))
	for _, line := range agg.Lines {
		items = append(items, models.InvoiceItem{
			InvoiceID:       inv.ID,
			TimeEntryID:     line.TimeEntryID,
			Description:     line.Description,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			Total:           line.Total,
			TotalOverridden: line.TotalOverridden,
		})
	}
	if err := tx.Create(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to create invoice items: %w", err)
	}
	if err := consumeEntries(tx, owner, inv.ID, agg.EntryIDs, s.clock()); err != nil {
		return nil, err
	}

	inv.Items = items
	inv.Client = &client
	return inv, nil
}

// GetInvoice loads an invoice with its items and client.
func (s *Service) GetInvoice(ctx context.Context, owner, id uint) (*models.Invoice, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var inv models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Client").
		Where("id = ? AND user_id = ?", id, owner).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("invoice")
		}
		return nil, classify("get invoice", err)
	}
	return &inv, nil
}

// ListInvoices returns the owner's invoices, newest first, optionally by status.
func (s *Service) ListInvoices(ctx context.Context, owner uint, status string) ([]models.Invoice, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	q := s.db.WithContext(ctx).Where("user_id = ?", owner)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var invoices []models.Invoice
	if err := q.Order("issue_date DESC, id DESC").Find(&invoices).Error; err != nil {
		return nil, classify("list invoices", err)
	}
	return invoices, nil
}

// ListOverdue returns the owner's derived-overdue invoices.
func (s *Service) ListOverdue(ctx context.Context, owner uint, today time.Time) ([]models.Invoice, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var invoices []models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Client").
		Where("user_id = ? AND status = ? AND due_date < ?", owner, models.InvoiceSent, DateOf(today)).
		Order("due_date ASC").
		Find(&invoices).Error
	if err != nil {
		return nil, classify("list overdue invoices", err)
	}
	return invoices, nil
}

// Summary is the invoice statistics over a trailing window.
type Summary struct {
	Period            string          `json:"period"`
	TotalInvoices     int             `json:"total_invoices"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	OverdueAmount     decimal.Decimal `json:"overdue_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
}

// SummaryWindowDays maps week/month/year to trailing day counts; anything
// else is treated as month.
func SummaryWindowDays(period string) (string, int) {
	switch period {
	case "week":
		return period, 7
	case "year":
		return period, 365
	default:
		return "month", 30
	}
}

// Summary totals invoices issued in the trailing window. Overdue covers all
// derived-overdue invoices regardless of issue date.
func (s *Service) Summary(ctx context.Context, owner uint, period string, today time.Time) (*Summary, error) {
	period, days := SummaryWindowDays(period)
	today = DateOf(today)

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var invoices []models.Invoice
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND issue_date >= ? AND issue_date <= ?", owner, today.AddDate(0, 0, -days), today).
		Find(&invoices).Error
	if err != nil {
		return nil, classify("invoice summary", err)
	}

	sum := &Summary{Period: period, TotalInvoices: len(invoices)}
	for _, inv := range invoices {
		sum.TotalAmount = sum.TotalAmount.Add(inv.TotalAmount)
		switch inv.Status {
		case models.InvoicePaid:
			sum.PaidAmount = sum.PaidAmount.Add(inv.TotalAmount)
		case models.InvoiceSent, models.InvoiceOverdue:
			sum.OutstandingAmount = sum.OutstandingAmount.Add(inv.TotalAmount)
		}
	}

	var overdue []models.Invoice
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND due_date < ?", owner, models.InvoiceSent, today).
		Find(&overdue).Error
	if err != nil {
		return nil, classify("invoice summary", err)
	}
	for _, inv := range overdue {
		sum.OverdueAmount = sum.OverdueAmount.Add(inv.TotalAmount)
	}
	return sum, nil
}

// CreatePaymentIntent opens a provider payment intent for a sent invoice and
// records it locally so reconciliation can find it.
func (s *Service) CreatePaymentIntent(ctx context.Context, owner, invoiceID uint) (*models.PaymentIntent, error) {
	if s.provider == nil {
		return nil, validation("provider", "no payment provider configured")
	}
	inv, err := s.GetInvoice(ctx, owner, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvoiceSent && inv.Status != models.InvoiceOverdue {
		return nil, invalidTransition("invoice", inv.Status, "awaiting payment")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	pi, err := s.provider.CreatePaymentIntent(ctx, inv)
	if err != nil {
		return nil, classify("create payment intent", err)
	}
	intent := &models.PaymentIntent{
		UserID:       owner,
		InvoiceID:    inv.ID,
		ProviderID:   pi.ProviderID,
		Amount:       inv.TotalAmount,
		Currency:     inv.Currency,
		Status:       pi.Status,
		ClientSecret: pi.ClientSecret,
	}
	if err := s.db.WithContext(ctx).Create(intent).Error; err != nil {
		return nil, classify("save payment intent", err)
	}
	return intent, nil
}
