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

// InvoiceRepository handles invoice database operations.
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository.
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a freshly uploaded invoice. A duplicate invoice number
// for the same vendor is a conflict.
func (r *InvoiceRepository) Create(invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now

	lineItems, err := json.Marshal(invoice.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}
	fees, err := json.Marshal(invoice.Fees)
	if err != nil {
		return fmt.Errorf("failed to marshal fees: %w", err)
	}
	metadata, err := json.Marshal(invoice.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal invoice metadata: %w", err)
	}

	query := `
		INSERT INTO invoices (
			id, vendor_id, invoice_number, invoice_date, due_date,
			file_key, file_name, status, total_amount, subtotal, tax_amount,
			line_items, fees, extracted_text, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		invoice.ID,
		nullableString(invoice.VendorID),
		invoice.InvoiceNumber,
		invoice.InvoiceDate,
		nullableTime(invoice.DueDate),
		invoice.FileKey,
		invoice.FileName,
		invoice.Status,
		invoice.TotalAmount,
		invoice.Subtotal,
		invoice.TaxAmount,
		string(lineItems),
		string(fees),
		invoice.ExtractedText,
		string(metadata),
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("invoice %q already exists for vendor %s", invoice.InvoiceNumber, invoice.VendorID)
		}
		r.logger.Error("Failed to create invoice", zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

const invoiceColumns = `
	id, vendor_id, invoice_number, invoice_date, due_date,
	file_key, file_name, status, total_amount, subtotal, tax_amount,
	line_items, fees, extracted_text, metadata, deleted_at, created_at, updated_at
`

func scanInvoice(row interface{ Scan(...any) error }) (*models.Invoice, error) {
	var (
		invoice   models.Invoice
		vendorID  sql.NullString
		dueDate   sql.NullTime
		taxAmount sql.NullFloat64
		deletedAt sql.NullTime
		lineItems string
		fees      string
		metadata  string
	)
	err := row.Scan(
		&invoice.ID,
		&vendorID,
		&invoice.InvoiceNumber,
		&invoice.InvoiceDate,
		&dueDate,
		&invoice.FileKey,
		&invoice.FileName,
		&invoice.Status,
		&invoice.TotalAmount,
		&invoice.Subtotal,
		&taxAmount,
		&lineItems,
		&fees,
		&invoice.ExtractedText,
		&metadata,
		&deletedAt,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.VendorID = vendorID.String
	if dueDate.Valid {
		invoice.DueDate = &dueDate.Time
	}
	if taxAmount.Valid {
		invoice.TaxAmount = &taxAmount.Float64
	}
	if deletedAt.Valid {
		invoice.DeletedAt = &deletedAt.Time
	}
	if lineItems != "" {
		if err := json.Unmarshal([]byte(lineItems), &invoice.LineItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line items: %w", err)
		}
	}
	if fees != "" {
		if err := json.Unmarshal([]byte(fees), &invoice.Fees); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fees: %w", err)
		}
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &invoice.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal invoice metadata: %w", err)
		}
	}
	return &invoice, nil
}

// GetByID returns an invoice that has not been soft-deleted.
func (r *InvoiceRepository) GetByID(id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ? AND deleted_at IS NULL`
	invoice, err := scanInvoice(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("invoice", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// ListByVendor returns a vendor's invoices, newest first.
func (r *InvoiceRepository) ListByVendor(vendorID string) ([]*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE vendor_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`
	return r.queryInvoices(query, vendorID)
}

// ListByStatus returns all invoices in a given status, newest first.
func (r *InvoiceRepository) ListByStatus(status models.InvoiceStatus) ([]*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = ? AND deleted_at IS NULL ORDER BY created_at DESC`
	return r.queryInvoices(query, status)
}

func (r *InvoiceRepository) queryInvoices(query string, args ...any) ([]*models.Invoice, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

// SaveParsed persists the pipeline's parsed fields in one shot.
func (r *InvoiceRepository) SaveParsed(invoice *models.Invoice) error {
	invoice.UpdatedAt = time.Now().UTC()

	lineItems, err := json.Marshal(invoice.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}
	fees, err := json.Marshal(invoice.Fees)
	if err != nil {
		return fmt.Errorf("failed to marshal fees: %w", err)
	}
	metadata, err := json.Marshal(invoice.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal invoice metadata: %w", err)
	}

	result, err := r.db.Exec(`
		UPDATE invoices
		SET vendor_id = ?, invoice_number = ?, invoice_date = ?, due_date = ?, status = ?,
		    total_amount = ?, subtotal = ?, tax_amount = ?,
		    line_items = ?, fees = ?, extracted_text = ?, metadata = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		nullableString(invoice.VendorID),
		invoice.InvoiceNumber,
		invoice.InvoiceDate,
		nullableTime(invoice.DueDate),
		invoice.Status,
		invoice.TotalAmount,
		invoice.Subtotal,
		invoice.TaxAmount,
		string(lineItems),
		string(fees),
		invoice.ExtractedText,
		string(metadata),
		invoice.UpdatedAt,
		invoice.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("invoice %q already exists for vendor %s", invoice.InvoiceNumber, invoice.VendorID)
		}
		return fmt.Errorf("failed to save parsed invoice: %w", err)
	}
	return requireAffected(result, "invoice", invoice.ID)
}

// UpdateStatus moves an invoice to a new lifecycle status.
func (r *InvoiceRepository) UpdateStatus(id string, status models.InvoiceStatus) error {
	result, err := r.db.Exec(`
		UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	return requireAffected(result, "invoice", id)
}

// RecordFailure stores the pipeline error and returns the invoice to
// pending for manual reprocessing.
func (r *InvoiceRepository) RecordFailure(id string, errMsg string, processingTimeMs int64) error {
	metadata, err := json.Marshal(models.DocumentMetadata{
		Error:            errMsg,
		ProcessingTimeMs: processingTimeMs,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal failure metadata: %w", err)
	}

	result, err := r.db.Exec(`
		UPDATE invoices SET status = ?, metadata = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		models.InvoiceStatusPending, string(metadata), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record invoice failure: %w", err)
	}
	return requireAffected(result, "invoice", id)
}

// SoftDelete hides an invoice without destroying its history.
func (r *InvoiceRepository) SoftDelete(id string) error {
	result, err := r.db.Exec(`
		UPDATE invoices SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return requireAffected(result, "invoice", id)
}
