package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-recon/internal/models"
)

func TestReportWorkbook(t *testing.T) {
	vendor := &models.Vendor{Name: "Acme Consulting", CanonicalName: "acmeconsulting"}
	invoice := &models.Invoice{
		InvoiceNumber: "INV-2024-001",
		InvoiceDate:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		TotalAmount:   5200,
		Status:        models.InvoiceStatusFlagged,
	}
	report := &models.ReconciliationReport{
		HasDiscrepancies:       true,
		TotalDiscrepancyAmount: 1200,
		Discrepancies: []models.Discrepancy{
			{
				Type:          models.DiscrepancyRateOverage,
				Priority:      models.PriorityCritical,
				Description:   "Rate exceeds contract",
				ExpectedValue: "$95.00/hour",
				ActualValue:   "$110.00/hour",
				Amount:        1200,
			},
		},
		Checklist: []models.ChecklistItem{
			{Item: "Rate Compliance", Passed: false, Details: "rate above contract", Confidence: 0.9},
			{Item: "Invoice Date Validity", Passed: true, Details: "within contract period", Confidence: 1.0},
		},
		RationaleText: "One critical rate overage.",
		CreatedAt:     time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC),
	}

	f, err := ReportWorkbook(vendor, invoice, report)
	require.NoError(t, err)
	defer f.Close()

	name, err := f.GetCellValue(summarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Consulting", name)

	desc, err := f.GetCellValue(discrepancySheet, "C2")
	require.NoError(t, err)
	assert.Equal(t, "Rate exceeds contract", desc)

	passed, err := f.GetCellValue(checklistSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "TRUE", passed)
}

func TestVendorSummaryWorkbook(t *testing.T) {
	vendors := []*models.Vendor{
		{Name: "Acme", CanonicalName: "acme", Active: true, TotalInvoices: 4, TotalDiscrepancies: 1450, TotalSavings: 1450},
		{Name: "Globex", CanonicalName: "globex", Active: false},
	}

	f, err := VendorSummaryWorkbook(vendors)
	require.NoError(t, err)
	defer f.Close()

	name, err := f.GetCellValue(vendorSummarySheet, "A3")
	require.NoError(t, err)
	assert.Equal(t, "Globex", name)

	invoices, err := f.GetCellValue(vendorSummarySheet, "D2")
	require.NoError(t, err)
	assert.Equal(t, "4", invoices)
}
