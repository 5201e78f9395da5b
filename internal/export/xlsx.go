// Package export renders reconciliation results as XLSX workbooks for
// finance teams that review flagged invoices outside the API.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"invoice-recon/internal/models"
)

const (
	summarySheet       = "Summary"
	discrepancySheet   = "Discrepancies"
	checklistSheet     = "Checklist"
	vendorSummarySheet = "Vendors"
)

// ReportWorkbook builds a workbook for one reconciliation report.
func ReportWorkbook(vendor *models.Vendor, invoice *models.Invoice, report *models.ReconciliationReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}

	if err := fillSummary(f, vendor, invoice, report); err != nil {
		return nil, err
	}
	if err := fillDiscrepancies(f, report.Discrepancies); err != nil {
		return nil, err
	}
	if err := fillChecklist(f, report.Checklist); err != nil {
		return nil, err
	}
	return f, nil
}

func fillSummary(f *excelize.File, vendor *models.Vendor, invoice *models.Invoice, report *models.ReconciliationReport) error {
	rows := [][2]any{
		{"Vendor", vendor.Name},
		{"Invoice Number", invoice.InvoiceNumber},
		{"Invoice Date", invoice.InvoiceDate.Format(time.DateOnly)},
		{"Invoice Total", invoice.TotalAmount},
		{"Status", string(invoice.Status)},
		{"Has Discrepancies", report.HasDiscrepancies},
		{"Total Discrepancy Amount", report.TotalDiscrepancyAmount},
		{"Rationale", report.RationaleText},
		{"Generated", report.CreatedAt.Format(time.RFC3339)},
	}
	for i, row := range rows {
		if err := setRow(f, summarySheet, i+1, row[0], row[1]); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "A", 26)
}

func fillDiscrepancies(f *excelize.File, discrepancies []models.Discrepancy) error {
	if _, err := f.NewSheet(discrepancySheet); err != nil {
		return fmt.Errorf("create discrepancy sheet: %w", err)
	}
	headers := []any{"Type", "Priority", "Description", "Expected", "Actual", "Amount"}
	if err := setRow(f, discrepancySheet, 1, headers...); err != nil {
		return err
	}
	for i, d := range discrepancies {
		values := []any{string(d.Type), string(d.Priority), d.Description, d.ExpectedValue, d.ActualValue, d.Amount}
		if err := setRow(f, discrepancySheet, i+2, values...); err != nil {
			return err
		}
	}
	return f.SetColWidth(discrepancySheet, "C", "E", 40)
}

func fillChecklist(f *excelize.File, checklist []models.ChecklistItem) error {
	if _, err := f.NewSheet(checklistSheet); err != nil {
		return fmt.Errorf("create checklist sheet: %w", err)
	}
	if err := setRow(f, checklistSheet, 1, "Check", "Passed", "Details", "Confidence"); err != nil {
		return err
	}
	for i, item := range checklist {
		if err := setRow(f, checklistSheet, i+2, item.Item, item.Passed, item.Details, item.Confidence); err != nil {
			return err
		}
	}
	return f.SetColWidth(checklistSheet, "C", "C", 50)
}

// VendorSummaryWorkbook builds a roll-up workbook across vendors.
func VendorSummaryWorkbook(vendors []*models.Vendor) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", vendorSummarySheet); err != nil {
		return nil, fmt.Errorf("rename vendor sheet: %w", err)
	}

	headers := []any{"Vendor", "Canonical Name", "Active", "Total Invoices", "Total Discrepancies", "Total Savings"}
	if err := setRow(f, vendorSummarySheet, 1, headers...); err != nil {
		return nil, err
	}
	for i, v := range vendors {
		values := []any{v.Name, v.CanonicalName, v.Active, v.TotalInvoices, v.TotalDiscrepancies, v.TotalSavings}
		if err := setRow(f, vendorSummarySheet, i+2, values...); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(vendorSummarySheet, "A", "B", 28); err != nil {
		return nil, err
	}
	return f, nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("cell name for %s row %d: %w", sheet, row, err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("set cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
