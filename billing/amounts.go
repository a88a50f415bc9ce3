package billing

import (
	"github.com/shopspring/decimal"
	"github.com/yourusername/freelance-billing/models"
)

var hundred = decimal.NewFromInt(100)

// Amounts are the derived monetary fields of an invoice.
type Amounts struct {
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TotalAmount    decimal.Decimal
}

// Round2 rounds half away from zero to two places, which is half-up for the
// non-negative values billing deals in.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeAmounts derives tax, discount and total from the subtotal. Tax and
// discount are both taken off the subtotal, each rounded on its own.
func ComputeAmounts(subtotal, taxRate, discountRate decimal.Decimal) (Amounts, error) {
	if subtotal.IsNegative() {
		return Amounts{}, invalidAmount("subtotal", "must not be negative")
	}
	if err := checkRate("tax_rate", taxRate); err != nil {
		return Amounts{}, err
	}
	if err := checkRate("discount_rate", discountRate); err != nil {
		return Amounts{}, err
	}

	tax := Round2(subtotal.Mul(taxRate).Div(hundred))
	discount := Round2(subtotal.Mul(discountRate).Div(hundred))
	return Amounts{
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    subtotal.Add(tax).Sub(discount),
	}, nil
}

func checkRate(field string, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return invalidAmount(field, "must not be negative")
	}
	if rate.GreaterThan(hundred) {
		return invalidAmount(field, "must not exceed 100")
	}
	// Rates are stored with two decimal places.
	if !rate.Equal(rate.Round(2)) {
		return invalidAmount(field, "at most 2 decimal places")
	}
	return nil
}

// LineTotal is quantity * unit price rounded to cents.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return Round2(quantity.Mul(unitPrice))
}

// applyAmounts recomputes the derived fields of inv from its subtotal and rates.
func applyAmounts(inv *models.Invoice) error {
	amounts, err := ComputeAmounts(inv.Subtotal, inv.TaxRate, inv.DiscountRate)
	if err != nil {
		return err
	}
	inv.TaxAmount = amounts.TaxAmount
	inv.DiscountAmount = amounts.DiscountAmount
	inv.TotalAmount = amounts.TotalAmount
	return nil
}

// checkTotals verifies that items, subtotal and derived amounts reconcile.
func checkTotals(inv *models.Invoice) error {
	if len(inv.Items) == 0 {
		return validation("items", "invoice has no line items")
	}
	sum := decimal.Zero
	for _, item := range inv.Items {
		if item.UnitPrice.IsNegative() || item.Quantity.IsNegative() {
			return invalidAmount("items", "line item is not priced")
		}
		if !item.TotalOverridden && !item.Total.Equal(LineTotal(item.Quantity, item.UnitPrice)) {
			return invalidAmount("items", "line total does not match quantity * unit price")
		}
		sum = sum.Add(item.Total)
	}
	if !sum.Equal(inv.Subtotal) {
		return invalidAmount("subtotal", "does not equal the sum of line items")
	}
	amounts, err := ComputeAmounts(inv.Subtotal, inv.TaxRate, inv.DiscountRate)
	if err != nil {
		return err
	}
	if !amounts.TaxAmount.Equal(inv.TaxAmount) ||
		!amounts.DiscountAmount.Equal(inv.DiscountAmount) ||
		!amounts.TotalAmount.Equal(inv.TotalAmount) {
		return invalidAmount("total_amount", "totals are inconsistent")
	}
	return nil
}
