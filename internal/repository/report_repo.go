package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
	"invoice-recon/internal/models"
)

// ReportRepository handles reconciliation report persistence. Reports
// are create-once; a re-run of the pipeline replaces the prior report.
type ReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *sql.DB, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a report, replacing any prior report for the same
// invoice so a reprocessed document keeps its 1:1 artifact.
func (r *ReportRepository) Create(report *models.ReconciliationReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now

	discrepancies, err := json.Marshal(report.Discrepancies)
	if err != nil {
		return fmt.Errorf("failed to marshal discrepancies: %w", err)
	}
	checklist, err := json.Marshal(report.Checklist)
	if err != nil {
		return fmt.Errorf("failed to marshal checklist: %w", err)
	}
	metadata, err := json.Marshal(report.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal report metadata: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO reconciliation_reports (
			id, invoice_id, contract_id, has_discrepancies, total_discrepancy_amount,
			discrepancies, checklist, rationale_text, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		report.ID,
		report.InvoiceID,
		report.ContractID,
		report.HasDiscrepancies,
		report.TotalDiscrepancyAmount,
		string(discrepancies),
		string(checklist),
		report.RationaleText,
		string(metadata),
		report.CreatedAt,
		report.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create report", zap.Error(err))
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

const reportColumns = `
	id, invoice_id, contract_id, has_discrepancies, total_discrepancy_amount,
	discrepancies, checklist, rationale_text, metadata, created_at, updated_at
`

func scanReport(row interface{ Scan(...any) error }) (*models.ReconciliationReport, error) {
	var (
		report        models.ReconciliationReport
		discrepancies string
		checklist     string
		metadata      string
	)
	err := row.Scan(
		&report.ID,
		&report.InvoiceID,
		&report.ContractID,
		&report.HasDiscrepancies,
		&report.TotalDiscrepancyAmount,
		&discrepancies,
		&checklist,
		&report.RationaleText,
		&metadata,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(discrepancies), &report.Discrepancies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal discrepancies: %w", err)
	}
	if err := json.Unmarshal([]byte(checklist), &report.Checklist); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checklist: %w", err)
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &report.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report metadata: %w", err)
		}
	}
	return &report, nil
}

// GetByInvoiceID returns the invoice's reconciliation report.
func (r *ReportRepository) GetByInvoiceID(invoiceID string) (*models.ReconciliationReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reconciliation_reports WHERE invoice_id = ?`
	report, err := scanReport(r.db.QueryRow(query, invoiceID))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("report for invoice", invoiceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// ListByVendor returns all reports for a vendor's invoices, newest first.
func (r *ReportRepository) ListByVendor(vendorID string) ([]*models.ReconciliationReport, error) {
	query := `SELECT ` + reportColumns + ` FROM reconciliation_reports
		WHERE invoice_id IN (SELECT id FROM invoices WHERE vendor_id = ? AND deleted_at IS NULL)
		ORDER BY created_at DESC`
	rows, err := r.db.Query(query, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.ReconciliationReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
