package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/freelance-billing/models"
)

func TestComputeAmounts(t *testing.T) {
	tests := []struct {
		name                      string
		subtotal, tax, discount   string
		wantTax, wantDisc, wantTo string
	}{
		{"example invoice", "250", "10", "0", "25", "0", "275"},
		{"no rates", "99.99", "0", "0", "0", "0", "99.99"},
		{"half cent rounds up", "0.05", "10", "0", "0.01", "0", "0.06"},
		{"tax and discount", "1000", "8.25", "5", "82.5", "50", "1032.5"},
		{"full discount", "120", "0", "100", "0", "120", "0"},
		{"zero subtotal", "0", "20", "20", "0", "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeAmounts(dec(tt.subtotal), dec(tt.tax), dec(tt.discount))
			require.NoError(t, err)
			assert.True(t, dec(tt.wantTax).Equal(got.TaxAmount), "tax %s", got.TaxAmount)
			assert.True(t, dec(tt.wantDisc).Equal(got.DiscountAmount), "discount %s", got.DiscountAmount)
			assert.True(t, dec(tt.wantTo).Equal(got.TotalAmount), "total %s", got.TotalAmount)
		})
	}
}

func TestComputeAmountsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name                    string
		subtotal, tax, discount string
		field                   string
	}{
		{"negative subtotal", "-1", "0", "0", "subtotal"},
		{"negative tax", "10", "-0.01", "0", "tax_rate"},
		{"tax over 100", "10", "100.01", "0", "tax_rate"},
		{"discount over 100", "10", "0", "150", "discount_rate"},
		{"tax with three decimals", "1000", "10.555", "0", "tax_rate"},
		{"discount with three decimals", "1000", "0", "0.125", "discount_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeAmounts(dec(tt.subtotal), dec(tt.tax), dec(tt.discount))
			require.ErrorIs(t, err, ErrInvalidAmount)
			var berr *Error
			require.ErrorAs(t, err, &berr)
			assert.Equal(t, tt.field, berr.Field)
		})
	}
}

func TestComputeAmountsTotalIdentity(t *testing.T) {
	for cents := int64(0); cents <= 100000; cents += 137 {
		subtotal := decimal.New(cents, -2)
		for _, rate := range []string{"0", "0.5", "7.25", "13", "33.33", "100"} {
			got, err := ComputeAmounts(subtotal, dec(rate), dec("2.5"))
			require.NoError(t, err)
			assert.True(t, got.TotalAmount.Equal(subtotal.Add(got.TaxAmount).Sub(got.DiscountAmount)))
			assert.True(t, got.TaxAmount.Equal(got.TaxAmount.Round(2)))
			assert.True(t, got.TotalAmount.Equal(got.TotalAmount.Round(2)))
		}
	}
}

func TestCheckTotals(t *testing.T) {
	valid := func() *models.Invoice {
		inv := &models.Invoice{
			Subtotal: dec("150"),
			TaxRate:  dec("10"),
			Items: []models.InvoiceItem{
				{Quantity: dec("2"), UnitPrice: dec("50"), Total: dec("100")},
				{Quantity: dec("1"), UnitPrice: dec("50"), Total: dec("50")},
			},
		}
		require.NoError(t, applyAmounts(inv))
		return inv
	}

	assert.NoError(t, checkTotals(valid()))

	inv := valid()
	inv.Items = nil
	assert.ErrorIs(t, checkTotals(inv), ErrValidation)

	inv = valid()
	inv.Items[0].Total = dec("99")
	assert.ErrorIs(t, checkTotals(inv), ErrInvalidAmount)

	inv.Items[0].TotalOverridden = true
	inv.Subtotal = dec("149")
	require.NoError(t, applyAmounts(inv))
	assert.NoError(t, checkTotals(inv), "overridden totals are accepted")

	inv = valid()
	inv.TotalAmount = dec("1")
	assert.ErrorIs(t, checkTotals(inv), ErrInvalidAmount)
}
