package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/freelance-billing/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FormatNumber renders the human-facing invoice number. The sequence is
// zero-padded to four digits and widens past 9999.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("INV-%d-%04d", year, seq)
}

// NextNumber previews the number the owner's next invoice in year would get.
// The number is only reserved by creating the invoice.
func (s *Service) NextNumber(ctx context.Context, owner uint, year int) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	seq, err := nextSeq(s.db.WithContext(ctx), owner, year)
	if err != nil {
		return "", classify("next invoice number", err)
	}
	return FormatNumber(year, seq), nil
}

// nextSeq reads the highest sequence ever issued, soft-deleted rows included,
// so numbers are never reused.
func nextSeq(tx *gorm.DB, owner uint, year int) (int, error) {
	var max int
	err := tx.Unscoped().
		Model(&models.Invoice{}).
		Select("COALESCE(MAX(number_seq), 0)").
		Where("user_id = ? AND number_year = ?", owner, year).
		Row().
		Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read invoice sequence: %w", err)
	}
	return max + 1, nil
}

// lockOwner serializes number allocation per owner for the life of tx.
func lockOwner(tx *gorm.DB, owner uint) error {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&user, owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound("owner")
	}
	return err
}

// insertNumbered assigns the next number to inv and inserts it. The insert
// runs in a savepoint so a unique-key collision can be retried once without
// losing the enclosing transaction.
func (s *Service) insertNumbered(tx *gorm.DB, inv *models.Invoice) error {
	if err := lockOwner(tx, inv.UserID); err != nil {
		return err
	}
	year := inv.IssueDate.Year()
	return allocateWithRetry(
		func() (int, error) { return nextSeq(tx, inv.UserID, year) },
		func(seq int) error {
			inv.ID = 0
			inv.NumberYear = year
			inv.NumberSeq = seq
			inv.Number = FormatNumber(year, seq)
			err := tx.Transaction(func(sp *gorm.DB) error {
				return sp.Omit(clause.Associations).Create(inv).Error
			})
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				s.log.Warn().Uint("owner", inv.UserID).Str("number", inv.Number).Msg("invoice number collision, retrying")
			}
			return err
		},
	)
}

// allocateWithRetry tries next/insert twice. A second duplicate-key failure
// is reported as IdentifierExhausted.
func allocateWithRetry(next func() (int, error), insert func(seq int) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		seq, err := next()
		if err != nil {
			return err
		}
		lastErr = insert(seq)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, gorm.ErrDuplicatedKey) {
			return lastErr
		}
	}
	return &Error{
		Kind:    KindIdentifierExhausted,
		Entity:  "invoice",
		Message: "could not allocate a unique invoice number",
		Err:     lastErr,
	}
}
