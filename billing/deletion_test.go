package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/freelance-billing/models"
)

func TestDeleteInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("draft deletion removes items and frees entries", func(t *testing.T) {
		inv := f.draftInvoice(t)
		require.NoError(t, f.svc.DeleteInvoice(ctx, f.owner.ID, inv.ID))

		var items int64
		f.db.Model(&models.InvoiceItem{}).Where("invoice_id = ?", inv.ID).Count(&items)
		assert.Zero(t, items)
		var free int64
		f.db.Model(&models.TimeEntry{}).Where("invoice_id IS NULL").Count(&free)
		assert.Equal(t, int64(1), free)

		_, err := f.svc.GetInvoice(ctx, f.owner.ID, inv.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("paid invoices cannot be deleted", func(t *testing.T) {
		inv, err := f.svc.CreateInvoiceFromEntries(ctx, f.owner.ID, CreateInvoiceRequest{
			ClientID: f.client.ID, StartDate: day("2024-01-01"), EndDate: day("2024-01-31"),
		})
		require.NoError(t, err)
		_, err = f.svc.Transition(ctx, f.owner.ID, inv.ID, ActionSend, TransitionParams{})
		require.NoError(t, err)

		intent := models.PaymentIntent{UserID: f.owner.ID, InvoiceID: inv.ID, ProviderID: "pi_del", Amount: inv.TotalAmount, Currency: "USD"}
		require.NoError(t, f.db.Create(&intent).Error)

		err = f.svc.DeleteInvoice(ctx, f.owner.ID, inv.ID)
		var berr *Error
		require.ErrorAs(t, err, &berr)
		assert.Equal(t, KindHasDependents, berr.Kind)
		assert.Equal(t, "payment_intents", berr.Entity)

		_, err = f.svc.Transition(ctx, f.owner.ID, inv.ID, ActionMarkPaid, TransitionParams{PaymentMethod: "cash"})
		require.NoError(t, err)
		assert.ErrorIs(t, f.svc.DeleteInvoice(ctx, f.owner.ID, inv.ID), ErrInvalidTransition)
	})
}

func TestDeleteClientAndProjectGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.project(t, f.owner.ID, f.client.ID, "Site")
	e := f.entry(t, f.owner.ID, f.client.ID, &p.ID, "2024-01-02", "1", "10")

	err := f.svc.DeleteClient(ctx, f.owner.ID, f.client.ID)
	var berr *Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, KindHasDependents, berr.Kind)
	assert.Equal(t, "projects", berr.Entity)

	err = f.svc.DeleteProject(ctx, f.owner.ID, p.ID)
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "time_entries", berr.Entity)

	inv, err := f.svc.CreateInvoiceFromEntries(ctx, f.owner.ID, CreateInvoiceRequest{
		ClientID: f.client.ID, ProjectID: &p.ID, StartDate: day("2024-01-01"), EndDate: day("2024-01-31"),
	})
	require.NoError(t, err)
	require.NotNil(t, inv.Items[0].TimeEntryID)

	require.NoError(t, f.svc.DeleteTimeEntry(ctx, f.owner.ID, e.ID))
	var item models.InvoiceItem
	require.NoError(t, f.db.First(&item, inv.Items[0].ID).Error)
	assert.Nil(t, item.TimeEntryID, "line items survive their source entry")

	err = f.svc.DeleteProject(ctx, f.owner.ID, p.ID)
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "invoices", berr.Entity)

	require.NoError(t, f.svc.DeleteInvoice(ctx, f.owner.ID, inv.ID))
	require.NoError(t, f.svc.DeleteProject(ctx, f.owner.ID, p.ID))
	require.NoError(t, f.svc.DeleteClient(ctx, f.owner.ID, f.client.ID))

	assert.ErrorIs(t, f.svc.DeleteClient(ctx, f.owner.ID, f.client.ID), ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteTimeEntry(ctx, f.owner.ID, e.ID), ErrNotFound)
}
