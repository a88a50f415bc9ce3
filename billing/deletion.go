package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/freelance-billing/models"
	"gorm.io/gorm"
)

// DeleteInvoice removes an unpaid invoice with its items and frees its time
// entries for rebilling.
func (s *Service) DeleteInvoice(ctx context.Context, owner, id uint) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := lockInvoice(tx, owner, id)
		if err != nil {
			return err
		}
		if inv.Status == models.InvoicePaid {
			return &Error{Kind: KindInvalidTransition, Entity: "invoice", Message: "paid invoices cannot be deleted"}
		}
		if err := guard(tx, "invoice", "payment_intents", &models.PaymentIntent{}, "invoice_id = ?", inv.ID); err != nil {
			return err
		}
		if err := releaseEntries(tx, owner, inv.ID); err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", inv.ID).Delete(&models.InvoiceItem{}).Error; err != nil {
			return fmt.Errorf("failed to delete invoice items: %w", err)
		}
		return tx.Delete(&models.Invoice{}, inv.ID).Error
	})
	if err != nil {
		return classify("delete invoice", err)
	}
	s.log.Info().Uint("owner", owner).Uint("invoice_id", id).Msg("invoice deleted")
	return nil
}

// DeleteClient refuses while the client still has projects, time entries or
// invoices.
func (s *Service) DeleteClient(ctx context.Context, owner, id uint) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, "client", &models.Client{}, owner, id); err != nil {
			return err
		}
		if err := guard(tx, "client", "projects", &models.Project{}, "client_id = ?", id); err != nil {
			return err
		}
		if err := guard(tx, "client", "time_entries", &models.TimeEntry{}, "client_id = ?", id); err != nil {
			return err
		}
		if err := guard(tx, "client", "invoices", &models.Invoice{}, "client_id = ?", id); err != nil {
			return err
		}
		return tx.Delete(&models.Client{}, id).Error
	})
	return classify("delete client", err)
}

// DeleteProject refuses while the project still has time entries or invoices.
func (s *Service) DeleteProject(ctx context.Context, owner, id uint) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, "project", &models.Project{}, owner, id); err != nil {
			return err
		}
		if err := guard(tx, "project", "time_entries", &models.TimeEntry{}, "project_id = ?", id); err != nil {
			return err
		}
		if err := guard(tx, "project", "invoices", &models.Invoice{}, "project_id = ?", id); err != nil {
			return err
		}
		return tx.Delete(&models.Project{}, id).Error
	})
	return classify("delete project", err)
}

// DeleteTimeEntry removes an entry. Line items built from it survive with the
// back-reference cleared.
func (s *Service) DeleteTimeEntry(ctx context.Context, owner, id uint) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.TimeEntry
		if err := tx.Where("id = ? AND user_id = ?", id, owner).First(&entry).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("time_entry")
			}
			return err
		}
		err := tx.Model(&models.InvoiceItem{}).
			Where("time_entry_id = ?", entry.ID).
			Update("time_entry_id", nil).Error
		if err != nil {
			return fmt.Errorf("failed to detach invoice items: %w", err)
		}
		return tx.Delete(&entry).Error
	})
	return classify("delete time entry", err)
}

func exists(tx *gorm.DB, entity string, model interface{}, owner, id uint) error {
	var n int64
	if err := tx.Model(model).Where("id = ? AND user_id = ?", id, owner).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return notFound(entity)
	}
	return nil
}

// guard fails with HasDependents when any live row of model matches.
func guard(tx *gorm.DB, entity, relation string, model interface{}, query string, args ...interface{}) error {
	var n int64
	if err := tx.Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to count %s: %w", relation, err)
	}
	if n > 0 {
		return hasDependents(entity, relation)
	}
	return nil
}
