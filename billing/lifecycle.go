package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/freelance-billing/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Action string

const (
	ActionSend        Action = "send"
	ActionMarkPaid    Action = "mark_paid"
	ActionCancel      Action = "cancel"
	ActionMarkOverdue Action = "mark_overdue"
	ActionRemind      Action = "remind"
)

// ParseAction validates an action name coming from a transport.
func ParseAction(name string) (Action, error) {
	switch a := Action(name); a {
	case ActionSend, ActionMarkPaid, ActionCancel, ActionMarkOverdue, ActionRemind:
		return a, nil
	}
	return "", validation("action", fmt.Sprintf("unknown action %q", name))
}

type TransitionParams struct {
	PaymentMethod    string
	PaymentReference string
	// Notify delivers the rendered invoice to the client after send.
	Notify  bool
	Subject string
	Message string
}

// Transition applies action to the owner's invoice under a row lock. Side
// effects (delivery, events) run after commit; a delivery failure is returned
// together with the committed invoice.
func (s *Service) Transition(ctx context.Context, owner, id uint, action Action, params TransitionParams) (*models.Invoice, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var (
		inv     *models.Invoice
		changed bool
	)
	err := s.db.WithContext(opCtx).Transaction(func(tx *gorm.DB) error {
		var err error
		inv, changed, err = s.applyTransition(opCtx, tx, owner, id, action, params)
		return err
	})
	if err != nil {
		s.metrics.Transition(string(action), "rejected")
		return nil, classify(fmt.Sprintf("%s invoice", action), err)
	}
	s.metrics.Transition(string(action), "ok")

	if changed {
		s.log.Info().Uint("owner", owner).Str("number", inv.Number).Str("status", inv.Status).Msg("invoice transitioned")
		s.publish(ctx, "invoice."+inv.Status, inv)
	}
	if (action == ActionSend && params.Notify) || action == ActionRemind {
		if err := s.deliver(ctx, inv, action, params); err != nil {
			return inv, err
		}
	}
	return inv, nil
}

func (s *Service) applyTransition(ctx context.Context, tx *gorm.DB, owner, id uint, action Action, params TransitionParams) (*models.Invoice, bool, error) {
	inv, err := lockInvoice(tx, owner, id)
	if err != nil {
		return nil, false, err
	}

	switch action {
	case ActionSend:
		if inv.Status != models.InvoiceDraft {
			return nil, false, invalidTransition("invoice", inv.Status, models.InvoiceSent)
		}
		if err := checkTotals(inv); err != nil {
			return nil, false, err
		}
		if err := s.render(ctx, inv); err != nil {
			return nil, false, err
		}
		inv.Status = models.InvoiceSent

	case ActionMarkPaid:
		changed, err := s.markPaid(tx, inv, params.PaymentMethod, params.PaymentReference)
		return inv, changed, err

	case ActionCancel:
		switch inv.Status {
		case models.InvoiceCancelled:
			return inv, false, nil
		case models.InvoicePaid:
			return nil, false, invalidTransition("invoice", inv.Status, models.InvoiceCancelled)
		}
		if err := releaseEntries(tx, owner, inv.ID); err != nil {
			return nil, false, err
		}
		inv.Status = models.InvoiceCancelled

	case ActionMarkOverdue:
		if inv.Status != models.InvoiceSent {
			return nil, false, invalidTransition("invoice", inv.Status, models.InvoiceOverdue)
		}
		inv.Status = models.InvoiceOverdue

	case ActionRemind:
		if inv.Status != models.InvoiceSent && inv.Status != models.InvoiceOverdue {
			return nil, false, invalidTransition("invoice", inv.Status, "reminded")
		}
		if len(inv.Document) > 0 {
			return inv, false, nil
		}
		if err := s.render(ctx, inv); err != nil {
			return nil, false, err
		}
		return inv, false, saveInvoice(tx, inv)

	default:
		return nil, false, validation("action", fmt.Sprintf("unknown action %q", action))
	}

	return inv, true, saveInvoice(tx, inv)
}

// markPaid is idempotent: an already paid invoice is left untouched. The
// method is required; the reference is recorded when given (cash has none).
func (s *Service) markPaid(tx *gorm.DB, inv *models.Invoice, method, reference string) (bool, error) {
	if inv.Status == models.InvoicePaid {
		return false, nil
	}
	if inv.Status != models.InvoiceSent && inv.Status != models.InvoiceOverdue {
		return false, invalidTransition("invoice", inv.Status, models.InvoicePaid)
	}
	if method == "" {
		return false, validation("payment_method", "is required")
	}
	today := s.today()
	inv.Status = models.InvoicePaid
	inv.PaidDate = &today
	inv.PaymentMethod = method
	inv.PaymentReference = reference
	return true, saveInvoice(tx, inv)
}

func (s *Service) render(ctx context.Context, inv *models.Invoice) error {
	if s.renderer == nil {
		return &Error{Kind: KindRenderFailure, Entity: "invoice", Message: "no renderer configured"}
	}
	doc, err := s.renderer.Render(ctx, inv)
	if err != nil {
		return &Error{Kind: KindRenderFailure, Entity: "invoice", Message: "failed to render invoice", Err: err}
	}
	now := s.clock().UTC()
	inv.Document = doc.Content
	inv.DocumentContentType = doc.ContentType
	inv.RenderedAt = &now
	return nil
}

func (s *Service) deliver(ctx context.Context, inv *models.Invoice, action Action, params TransitionParams) error {
	deliveryErr := func(msg string, err error) error {
		s.log.Error().Err(err).Str("number", inv.Number).Msg(msg)
		return &Error{Kind: KindDeliveryFailure, Entity: "invoice", Message: msg, Err: err}
	}
	if s.notifier == nil {
		return deliveryErr("no notifier configured", nil)
	}
	if inv.Client == nil || inv.Client.Email == "" {
		return deliveryErr("client has no email address", nil)
	}

	n := Notification{
		To:             inv.Client.Email,
		Subject:        params.Subject,
		Body:           params.Message,
		Attachment:     inv.Document,
		AttachmentName: fmt.Sprintf("invoice_%s.pdf", inv.Number),
		AttachmentType: inv.DocumentContentType,
	}
	today := s.today()
	if n.Subject == "" {
		n.Subject = fmt.Sprintf("Invoice %s", inv.Number)
		if action == ActionRemind {
			n.Subject = fmt.Sprintf("Reminder: Invoice %s is overdue", inv.Number)
		}
	}
	if n.Body == "" {
		n.Body = fmt.Sprintf("Dear %s,\n\nPlease find attached invoice %s for %s %s, due on %s.",
			inv.Client.Name, inv.Number, inv.TotalAmount.StringFixed(2), inv.Currency, inv.DueDate.Format("2006-01-02"))
		if action == ActionRemind {
			n.Body = fmt.Sprintf("Dear %s,\n\nThis is a reminder that invoice %s for %s %s was due on %s and is %d days overdue.",
				inv.Client.Name, inv.Number, inv.TotalAmount.StringFixed(2), inv.Currency,
				inv.DueDate.Format("2006-01-02"), inv.DaysOverdue(today))
		}
	}

	ctx, cancel := s.opContext(context.WithoutCancel(ctx))
	defer cancel()
	var owner models.User
	if err := s.db.WithContext(ctx).Select("id", "email").First(&owner, inv.UserID).Error; err == nil {
		n.ReplyTo = owner.Email
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		return deliveryErr("failed to deliver invoice", err)
	}
	return nil
}

// lockInvoice loads the owner's invoice FOR UPDATE with items and client.
func lockInvoice(tx *gorm.DB, owner, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", id, owner).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("invoice")
		}
		return nil, err
	}
	if err := tx.Where("invoice_id = ?", inv.ID).Order("id").Find(&inv.Items).Error; err != nil {
		return nil, fmt.Errorf("failed to load invoice items: %w", err)
	}
	var client models.Client
	if err := tx.Unscoped().First(&client, inv.ClientID).Error; err != nil {
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	inv.Client = &client
	return &inv, nil
}

func saveInvoice(tx *gorm.DB, inv *models.Invoice) error {
	if err := tx.Omit(clause.Associations).Save(inv).Error; err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	return nil
}
