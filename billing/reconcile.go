package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/freelance-billing/models"
	"gorm.io/gorm"
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"

	// PaymentMethodExternal is recorded on invoices paid through the provider.
	PaymentMethodExternal = "external"
)

// ReconcilePaymentEvent records a verified provider notification and applies
// it at most once. Replays of a known external id return the stored event.
// Dispatch failures are stored on the event, not returned.
func (s *Service) ReconcilePaymentEvent(ctx context.Context, n PaymentNotification) (*models.PaymentEvent, error) {
	if n.ExternalID == "" {
		return nil, validation("external_id", "is required")
	}
	if n.Type == "" {
		return nil, validation("event_type", "is required")
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	db := s.db.WithContext(opCtx)

	existing, err := findEvent(db, n.ExternalID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, classify("reconcile payment event", err)
	}
	if existing != nil {
		s.metrics.PaymentEvent(existing.EventType, "duplicate")
		s.log.Info().Str("external_id", n.ExternalID).Msg("payment event already recorded")
		return existing, nil
	}

	event := &models.PaymentEvent{
		ExternalID: n.ExternalID,
		EventType:  n.Type,
		Reference:  n.Reference,
		Payload:    string(n.Payload),
	}
	if err := db.Create(event).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.metrics.PaymentEvent(n.Type, "duplicate")
			existing, err := findEvent(db, n.ExternalID)
			return existing, classify("reconcile payment event", err)
		}
		return nil, classify("record payment event", err)
	}

	return s.dispatch(ctx, event)
}

// RetryPaymentEvent reprocesses a stored event whose dispatch failed.
// Processed events are returned unchanged.
func (s *Service) RetryPaymentEvent(ctx context.Context, externalID string) (*models.PaymentEvent, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	event, err := findEvent(s.db.WithContext(opCtx), externalID)
	if err != nil {
		return nil, classify("retry payment event", err)
	}
	if event.Processed {
		return event, nil
	}
	return s.dispatch(ctx, event)
}

// ListFailedPaymentEvents returns events still waiting for a retry.
func (s *Service) ListFailedPaymentEvents(ctx context.Context) ([]models.PaymentEvent, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var events []models.PaymentEvent
	err := s.db.WithContext(ctx).
		Where("processed = ? AND error_message <> ?", false, "").
		Order("id").
		Find(&events).Error
	if err != nil {
		return nil, classify("list payment events", err)
	}
	return events, nil
}

func findEvent(db *gorm.DB, externalID string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	if err := db.Where("external_id = ?", externalID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("payment_event")
		}
		return nil, err
	}
	return &event, nil
}

func (s *Service) dispatch(ctx context.Context, event *models.PaymentEvent) (*models.PaymentEvent, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	db := s.db.WithContext(opCtx)

	var paid *models.Invoice
	err := db.Transaction(func(tx *gorm.DB) error {
		var (
			note string
			err  error
		)
		switch event.EventType {
		case EventPaymentSucceeded:
			paid, note, err = s.applyPaymentSucceeded(tx, event.Reference)
		case EventPaymentFailed:
			note, err = applyPaymentFailed(tx, event.Reference)
		default:
			s.log.Debug().Str("event_type", event.EventType).Msg("ignoring payment event type")
		}
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		if err := tx.Model(event).Updates(map[string]interface{}{
			"processed":     true,
			"processed_at":  now,
			"error_message": note,
		}).Error; err != nil {
			return err
		}
		event.Processed = true
		event.ProcessedAt = &now
		event.ErrorMessage = note
		return nil
	})
	if err != nil {
		paid = nil
		saveCtx, cancelSave := s.opContext(context.WithoutCancel(ctx))
		defer cancelSave()
		if saveErr := s.db.WithContext(saveCtx).Model(event).Updates(map[string]interface{}{
			"processed":     false,
			"processed_at":  nil,
			"error_message": err.Error(),
		}).Error; saveErr != nil {
			return nil, classify("record payment event error", saveErr)
		}
		event.Processed = false
		event.ProcessedAt = nil
		event.ErrorMessage = err.Error()
		s.metrics.PaymentEvent(event.EventType, "error")
		s.log.Error().Err(err).Str("external_id", event.ExternalID).Msg("failed to process payment event")
		return event, nil
	}

	result := "processed"
	if event.ErrorMessage != "" {
		result = "unresolved"
		s.log.Warn().Str("external_id", event.ExternalID).Str("error", event.ErrorMessage).Msg("payment event could not be matched")
	}
	s.metrics.PaymentEvent(event.EventType, result)
	if paid != nil {
		s.publish(ctx, "invoice."+paid.Status, paid)
	}
	return event, nil
}

// applyPaymentSucceeded marks the intent's invoice paid. It returns the
// invoice when its status changed, and a note instead of an error when the
// reference is unknown so the event is not retried forever.
func (s *Service) applyPaymentSucceeded(tx *gorm.DB, reference string) (*models.Invoice, string, error) {
	intent, note, err := findIntent(tx, reference)
	if intent == nil {
		return nil, note, err
	}
	if err := tx.Model(intent).Update("status", models.IntentSucceeded).Error; err != nil {
		return nil, "", fmt.Errorf("failed to update payment intent: %w", err)
	}
	inv, err := lockInvoice(tx, intent.UserID, intent.InvoiceID)
	if err != nil {
		return nil, "", err
	}
	changed, err := s.markPaid(tx, inv, PaymentMethodExternal, reference)
	if err != nil || !changed {
		return nil, "", err
	}
	return inv, "", nil
}

func applyPaymentFailed(tx *gorm.DB, reference string) (string, error) {
	intent, note, err := findIntent(tx, reference)
	if intent == nil {
		return note, err
	}
	if err := tx.Model(intent).Update("status", models.IntentFailed).Error; err != nil {
		return "", fmt.Errorf("failed to update payment intent: %w", err)
	}
	return "", nil
}

func findIntent(tx *gorm.DB, reference string) (*models.PaymentIntent, string, error) {
	var intent models.PaymentIntent
	err := tx.Where("provider_id = ?", reference).First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		unknown := &Error{
			Kind:    KindUnknownPaymentReference,
			Entity:  "payment_intent",
			Message: fmt.Sprintf("no payment intent for reference %q", reference),
		}
		return nil, unknown.Error(), nil
	}
	if err != nil {
		return nil, "", err
	}
	return &intent, "", nil
}
