package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/freelance-billing/models"
	"gorm.io/gorm"
)

const (
	FrequencyWeekly       = "weekly"
	FrequencyMonthly      = "monthly"
	FrequencyQuarterly    = "quarterly"
	FrequencyOnCompletion = "on_completion"
)

// PeriodDays is the fixed lookback and advance length of a frequency. Months
// and quarters are 30 and 90 days, not calendar periods.
func PeriodDays(frequency string) (int, bool) {
	switch frequency {
	case FrequencyWeekly:
		return 7, true
	case FrequencyMonthly:
		return 30, true
	case FrequencyQuarterly:
		return 90, true
	}
	return 0, false
}

type SubjectKind string

const (
	SubjectClient  SubjectKind = "client"
	SubjectProject SubjectKind = "project"
)

// SubjectOutcome reports what the pass did with one billing subject.
type SubjectOutcome struct {
	Kind            SubjectKind `json:"kind"`
	ID              uint        `json:"id"`
	OwnerID         uint        `json:"owner_id"`
	Name            string      `json:"name"`
	InvoiceID       uint        `json:"invoice_id,omitempty"`
	InvoiceNumber   string      `json:"invoice_number,omitempty"`
	NextInvoiceDate *time.Time  `json:"next_invoice_date,omitempty"`
	Reason          string      `json:"reason,omitempty"`
	Err             error       `json:"-"`
}

type RecurringRunResult struct {
	AsOf      time.Time        `json:"as_of"`
	Succeeded []SubjectOutcome `json:"succeeded"`
	Skipped   []SubjectOutcome `json:"skipped"`
	// Interrupted is set when ctx ended before every subject was visited.
	Interrupted bool `json:"interrupted"`
}

type billingSubject struct {
	kind         SubjectKind
	id           uint
	owner        uint
	clientID     uint
	projectID    *uint
	name         string
	frequency    string
	onCompletion bool
}

// RunRecurringBillingPass invoices every due subject as of asOf. Each subject
// commits or rolls back on its own; failures are reported in Skipped and
// leave the subject's next invoice date alone so the next run retries it.
func (s *Service) RunRecurringBillingPass(ctx context.Context, asOf time.Time) (*RecurringRunResult, error) {
	today := DateOf(asOf)
	subjects, err := s.dueSubjects(ctx, today)
	if err != nil {
		return nil, classify("list recurring subjects", err)
	}

	result := &RecurringRunResult{AsOf: today, Succeeded: []SubjectOutcome{}, Skipped: []SubjectOutcome{}}
	for _, sub := range subjects {
		if ctx.Err() != nil {
			result.Interrupted = true
			s.log.Warn().Int("remaining", len(subjects)-len(result.Succeeded)-len(result.Skipped)).Msg("recurring pass interrupted")
			break
		}
		outcome := s.billSubject(ctx, sub, today)
		if outcome.Err != nil {
			result.Skipped = append(result.Skipped, outcome)
			s.metrics.RecurringOutcome(string(sub.kind), "skipped")
			continue
		}
		result.Succeeded = append(result.Succeeded, outcome)
		s.metrics.RecurringOutcome(string(sub.kind), "succeeded")
	}

	s.log.Info().
		Str("as_of", today.Format("2006-01-02")).
		Int("succeeded", len(result.Succeeded)).
		Int("skipped", len(result.Skipped)).
		Bool("interrupted", result.Interrupted).
		Msg("recurring billing pass finished")
	return result, nil
}

func (s *Service) dueSubjects(ctx context.Context, today time.Time) ([]billingSubject, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	db := s.db.WithContext(ctx)

	var clients []models.Client
	err := db.Where("recurring_invoice = ? AND is_active = ? AND next_invoice_date IS NOT NULL AND next_invoice_date <= ?", true, true, today).
		Order("id").Find(&clients).Error
	if err != nil {
		return nil, err
	}
	var projects []models.Project
	err = db.Where("auto_invoice = ? AND invoice_frequency <> ? AND status = ? AND next_invoice_date IS NOT NULL AND next_invoice_date <= ?",
		true, FrequencyOnCompletion, models.ProjectActive, today).
		Order("id").Find(&projects).Error
	if err != nil {
		return nil, err
	}
	var completed []models.Project
	err = db.Where("auto_invoice = ? AND invoice_frequency = ? AND status = ?", true, FrequencyOnCompletion, models.ProjectCompleted).
		Order("id").Find(&completed).Error
	if err != nil {
		return nil, err
	}

	subjects := make([]billingSubject, 0, len(clients)+len(projects)+len(completed))
	for _, c := range clients {
		subjects = append(subjects, billingSubject{
			kind: SubjectClient, id: c.ID, owner: c.UserID, clientID: c.ID,
			name: c.Name, frequency: c.RecurringFrequency,
		})
	}
	for _, p := range append(projects, completed...) {
		id := p.ID
		subjects = append(subjects, billingSubject{
			kind: SubjectProject, id: p.ID, owner: p.UserID, clientID: p.ClientID, projectID: &id,
			name: p.Name, frequency: p.InvoiceFrequency, onCompletion: p.InvoiceFrequency == FrequencyOnCompletion,
		})
	}
	return subjects, nil
}

// billSubject runs one subject to completion even if ctx is cancelled
// meanwhile; only the operation timeout can cut it short.
func (s *Service) billSubject(ctx context.Context, sub billingSubject, today time.Time) SubjectOutcome {
	outcome := SubjectOutcome{Kind: sub.kind, ID: sub.id, OwnerID: sub.owner, Name: sub.name}
	log := s.log.With().Str("subject", string(sub.kind)).Uint("subject_id", sub.id).Logger()

	req := CreateInvoiceRequest{
		ClientID:  sub.clientID,
		ProjectID: sub.projectID,
		EndDate:   today,
		IssueDate: &today,
	}
	var next *time.Time
	if sub.onCompletion {
		req.Notes = fmt.Sprintf("Final invoice for project %s", sub.name)
	} else {
		days, ok := PeriodDays(sub.frequency)
		if !ok {
			outcome.Err = validation("frequency", fmt.Sprintf("unsupported frequency %q", sub.frequency))
			outcome.Reason = outcome.Err.Error()
			log.Warn().Str("frequency", sub.frequency).Msg("skipping recurring subject")
			return outcome
		}
		req.StartDate = today.AddDate(0, 0, -days)
		n := today.AddDate(0, 0, days)
		next = &n
		req.Notes = fmt.Sprintf("Recurring invoice for %s period ending %s", sub.frequency, today.Format("2006-01-02"))
		if sub.kind == SubjectProject {
			req.Notes = fmt.Sprintf("Recurring invoice for project %s - %s period ending %s", sub.name, sub.frequency, today.Format("2006-01-02"))
		}
	}

	txCtx, cancel := s.opContext(context.WithoutCancel(ctx))
	defer cancel()

	var inv *models.Invoice
	err := s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = s.createInvoice(tx, sub.owner, req)
		if err != nil {
			return err
		}
		switch {
		case sub.onCompletion:
			return tx.Model(&models.Project{}).Where("id = ?", sub.id).Update("auto_invoice", false).Error
		case sub.kind == SubjectClient:
			return tx.Model(&models.Client{}).Where("id = ?", sub.id).Update("next_invoice_date", *next).Error
		default:
			return tx.Model(&models.Project{}).Where("id = ?", sub.id).Update("next_invoice_date", *next).Error
		}
	})
	if err != nil {
		outcome.Err = classify("recurring invoice", err)
		outcome.Reason = outcome.Err.Error()
		if errors.Is(err, ErrNoBillableWork) {
			outcome.Reason = "no billable work"
			log.Info().Msg("no billable work, subject skipped")
		} else {
			log.Error().Err(err).Msg("failed to generate recurring invoice")
		}
		return outcome
	}

	outcome.InvoiceID = inv.ID
	outcome.InvoiceNumber = inv.Number
	outcome.NextInvoiceDate = next
	s.metrics.InvoiceCreated("recurring")
	s.publish(txCtx, "invoice.created", inv)
	log.Info().Str("number", inv.Number).Msg("generated recurring invoice")

	if s.sendRecurring {
		if _, err := s.Transition(txCtx, sub.owner, inv.ID, ActionSend, TransitionParams{Notify: true}); err != nil {
			log.Error().Err(err).Str("number", inv.Number).Msg("failed to send recurring invoice")
		}
	}
	return outcome
}

// ReminderOutcome reports one overdue reminder attempt.
type ReminderOutcome struct {
	InvoiceID     uint   `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	OwnerID       uint   `json:"owner_id"`
	Error         string `json:"error,omitempty"`
}

type ReminderRunResult struct {
	AsOf        time.Time         `json:"as_of"`
	Sent        []ReminderOutcome `json:"sent"`
	Failed      []ReminderOutcome `json:"failed"`
	Interrupted bool              `json:"interrupted"`
}

// SendOverdueReminders reminds clients of every derived-overdue invoice
// across owners. A failed reminder does not stop the rest.
func (s *Service) SendOverdueReminders(ctx context.Context, asOf time.Time) (*ReminderRunResult, error) {
	today := DateOf(asOf)

	listCtx, cancel := s.opContext(ctx)
	var invoices []models.Invoice
	err := s.db.WithContext(listCtx).
		Select("id", "user_id", "number").
		Where("status = ? AND due_date < ?", models.InvoiceSent, today).
		Order("due_date ASC, id ASC").
		Find(&invoices).Error
	cancel()
	if err != nil {
		return nil, classify("list overdue invoices", err)
	}

	result := &ReminderRunResult{AsOf: today, Sent: []ReminderOutcome{}, Failed: []ReminderOutcome{}}
	for _, inv := range invoices {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}
		outcome := ReminderOutcome{InvoiceID: inv.ID, InvoiceNumber: inv.Number, OwnerID: inv.UserID}
		if _, err := s.Transition(context.WithoutCancel(ctx), inv.UserID, inv.ID, ActionRemind, TransitionParams{}); err != nil {
			outcome.Error = err.Error()
			result.Failed = append(result.Failed, outcome)
			s.log.Error().Err(err).Str("number", inv.Number).Msg("failed to send overdue reminder")
			continue
		}
		result.Sent = append(result.Sent, outcome)
	}
	s.log.Info().Int("sent", len(result.Sent)).Int("failed", len(result.Failed)).Msg("overdue reminders finished")
	return result, nil
}
