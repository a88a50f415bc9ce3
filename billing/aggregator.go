package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourusername/freelance-billing/models"
	"gorm.io/gorm"
)

const generalWork = "General Work"

// EntryFilter selects time entries for one client, optionally one project,
// over an inclusive date window.
type EntryFilter struct {
	ClientID  uint
	ProjectID *uint
	Start     time.Time
	End       time.Time
}

// LineDraft is a priced invoice line not yet attached to an invoice.
type LineDraft struct {
	ProjectID       *uint
	TimeEntryID     *uint
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	Total           decimal.Decimal
	TotalOverridden bool
}

// Aggregation is the priced result of grouping time entries by project.
type Aggregation struct {
	Lines    []LineDraft
	Subtotal decimal.Decimal
	EntryIDs []uint
}

// Aggregate previews the lines an invoice for f would carry. It does not
// consume any entries.
func (s *Service) Aggregate(ctx context.Context, owner uint, f EntryFilter) (*Aggregation, error) {
	if f.End.Before(f.Start) {
		return nil, validation("end_date", "must not be before start_date")
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	entries, err := selectEntries(s.db.WithContext(ctx), owner, f)
	if err != nil {
		return nil, classify("aggregate time entries", err)
	}
	return buildAggregation(entries)
}

// selectEntries returns the owner's billable, not yet invoiced entries in the
// window, ordered by date then id.
func selectEntries(tx *gorm.DB, owner uint, f EntryFilter) ([]models.TimeEntry, error) {
	q := tx.Preload("Project").
		Where("user_id = ? AND client_id = ? AND is_billable = ? AND invoice_id IS NULL", owner, f.ClientID, true).
		Where("date >= ? AND date <= ?", DateOf(f.Start), DateOf(f.End))
	if f.ProjectID != nil {
		q = q.Where("project_id = ?", *f.ProjectID)
	}
	var entries []models.TimeEntry
	if err := q.Order("date ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to select time entries: %w", err)
	}
	return entries, nil
}

type entryGroup struct {
	projectID *uint
	name      string
	entries   []models.TimeEntry
}

// groupEntries buckets entries by project. The no-project group sorts first,
// then projects by ascending id. Entries keep their input order.
func groupEntries(entries []models.TimeEntry) []*entryGroup {
	byKey := make(map[uint]*entryGroup)
	var groups []*entryGroup
	for _, e := range entries {
		var key uint
		if e.ProjectID != nil {
			key = *e.ProjectID
		}
		g, ok := byKey[key]
		if !ok {
			g = &entryGroup{projectID: e.ProjectID, name: generalWork}
			if e.Project != nil {
				g.name = e.Project.Name
			} else if e.ProjectID != nil {
				g.name = fmt.Sprintf("Project #%d", *e.ProjectID)
			}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.entries = append(g.entries, e)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].projectID, groups[j].projectID
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return *a < *b
	})
	return groups
}

func (g *entryGroup) line() LineDraft {
	hours := decimal.Zero
	amount := decimal.Zero
	var b strings.Builder
	b.WriteString("Time tracking for ")
	b.WriteString(g.name)
	for _, e := range g.entries {
		hours = hours.Add(e.Hours)
		amount = amount.Add(e.Amount())
		fmt.Fprintf(&b, "\n%s: %s", e.Date.Format("2006-01-02"), e.Description)
	}

	total := Round2(amount)
	price := decimal.Zero
	if !hours.IsZero() {
		price = Round2(amount.Div(hours))
	}
	line := LineDraft{
		ProjectID:       g.projectID,
		Description:     b.String(),
		Quantity:        hours,
		UnitPrice:       price,
		Total:           total,
		TotalOverridden: !LineTotal(hours, price).Equal(total),
	}
	if len(g.entries) == 1 {
		id := g.entries[0].ID
		line.TimeEntryID = &id
	}
	return line
}

// buildAggregation prices entries into one line per project group.
func buildAggregation(entries []models.TimeEntry) (*Aggregation, error) {
	if len(entries) == 0 {
		return nil, &Error{Kind: KindNoBillableWork, Entity: "time_entries", Message: "no billable time entries in range"}
	}
	agg := &Aggregation{Subtotal: decimal.Zero}
	for _, g := range groupEntries(entries) {
		line := g.line()
		agg.Lines = append(agg.Lines, line)
		agg.Subtotal = agg.Subtotal.Add(line.Total)
		for _, e := range g.entries {
			agg.EntryIDs = append(agg.EntryIDs, e.ID)
		}
	}
	return agg, nil
}

// consumeEntries marks entries as invoiced. Every entry must still be free,
// otherwise a concurrent invoice already took it.
func consumeEntries(tx *gorm.DB, owner, invoiceID uint, ids []uint, now time.Time) error {
	res := tx.Model(&models.TimeEntry{}).
		Where("user_id = ? AND id IN ? AND invoice_id IS NULL", owner, ids).
		Updates(map[string]interface{}{"invoice_id": invoiceID, "invoiced_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to mark time entries invoiced: %w", res.Error)
	}
	if res.RowsAffected != int64(len(ids)) {
		return &Error{Kind: KindInvalidTransition, Entity: "time_entries", Message: "time entries were invoiced concurrently"}
	}
	return nil
}

// releaseEntries returns an invoice's entries to the unbilled pool.
func releaseEntries(tx *gorm.DB, owner, invoiceID uint) error {
	err := tx.Model(&models.TimeEntry{}).
		Where("user_id = ? AND invoice_id = ?", owner, invoiceID).
		Updates(map[string]interface{}{"invoice_id": nil, "invoiced_at": nil}).Error
	if err != nil {
		return fmt.Errorf("failed to release time entries: %w", err)
	}
	return nil
}
