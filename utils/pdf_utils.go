package utils

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/yourusername/freelance-billing/billing"
	"github.com/yourusername/freelance-billing/models"
)

const pdfContentType = "application/pdf"

// PDFRenderer renders invoices as A4 PDF documents.
type PDFRenderer struct {
	businessName string
}

func NewPDFRenderer(businessName string) *PDFRenderer {
	return &PDFRenderer{businessName: businessName}
}

// Render expects inv.Items and inv.Client to be loaded.
func (r *PDFRenderer) Render(ctx context.Context, inv *models.Invoice) (billing.Document, error) {
	if err := ctx.Err(); err != nil {
		return billing.Document{}, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Invoice %s", inv.Number), true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(120, 10, tr(fmt.Sprintf("Invoice %s", inv.Number)))
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(70, 10, tr(r.businessName), "", 1, "R", false, 0, "")
	pdf.Ln(2)

	pdf.Cell(40, 6, fmt.Sprintf("Issue date: %s", inv.IssueDate.Format("2006-01-02")))
	pdf.Ln(6)
	pdf.Cell(40, 6, fmt.Sprintf("Due date: %s", inv.DueDate.Format("2006-01-02")))
	pdf.Ln(10)

	if inv.Client != nil {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(40, 8, "Bill To:")
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 11)
		for _, line := range []string{inv.Client.Name, inv.Client.CompanyName, inv.Client.Address, inv.Client.Email} {
			if line == "" {
				continue
			}
			pdf.MultiCell(120, 6, tr(line), "", "L", false)
		}
		pdf.Ln(6)
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(100, 8, "Description", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 8, "Hours", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 8, "Rate", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 8, "Amount", "1", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, item := range inv.Items {
		x, y := pdf.GetXY()
		pdf.MultiCell(100, 6, tr(item.Description), "1", "L", false)
		height := pdf.GetY() - y
		pdf.SetXY(x+100, y)
		pdf.CellFormat(25, height, item.Quantity.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, height, item.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, height, item.Total.StringFixed(2), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	totals := []struct {
		label string
		value string
	}{
		{"Subtotal:", inv.Subtotal.StringFixed(2)},
		{fmt.Sprintf("Tax (%s%%):", inv.TaxRate.String()), inv.TaxAmount.StringFixed(2)},
		{fmt.Sprintf("Discount (%s%%):", inv.DiscountRate.String()), "-" + inv.DiscountAmount.StringFixed(2)},
	}
	pdf.SetFont("Arial", "", 10)
	for _, t := range totals {
		pdf.Cell(155, 7, t.label)
		pdf.CellFormat(35, 7, t.value, "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(155, 9, "Total:")
	pdf.CellFormat(35, 9, fmt.Sprintf("%s %s", inv.TotalAmount.StringFixed(2), inv.Currency), "", 1, "R", false, 0, "")

	if inv.Notes != "" || inv.TermsConditions != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 9)
		if inv.Notes != "" {
			pdf.MultiCell(190, 5, tr(inv.Notes), "", "L", false)
		}
		if inv.TermsConditions != "" {
			pdf.MultiCell(190, 5, tr(inv.TermsConditions), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return billing.Document{}, fmt.Errorf("failed to write pdf: %w", err)
	}
	return billing.Document{Content: buf.Bytes(), ContentType: pdfContentType}, nil
}
