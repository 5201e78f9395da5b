package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
	"invoice-recon/internal/models"
)

// VendorRepository handles vendor database operations.
type VendorRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVendorRepository creates a new vendor repository.
func NewVendorRepository(db *sql.DB, logger *zap.Logger) *VendorRepository {
	return &VendorRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new vendor. A duplicate canonical name is a conflict.
func (r *VendorRepository) Create(vendor *models.Vendor) error {
	if vendor.ID == "" {
		vendor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	vendor.CreatedAt = now
	vendor.UpdatedAt = now

	query := `
		INSERT INTO vendors (
			id, name, canonical_name, business_description, active,
			total_invoices, total_discrepancies, total_savings,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		vendor.ID,
		vendor.Name,
		vendor.CanonicalName,
		vendor.BusinessDescription,
		vendor.Active,
		vendor.TotalInvoices,
		vendor.TotalDiscrepancies,
		vendor.TotalSavings,
		vendor.CreatedAt,
		vendor.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("vendor with canonical name %q already exists", vendor.CanonicalName)
		}
		r.logger.Error("Failed to create vendor", zap.Error(err))
		return fmt.Errorf("failed to create vendor: %w", err)
	}
	return nil
}

const vendorColumns = `
	id, name, canonical_name, business_description, active,
	total_invoices, total_discrepancies, total_savings,
	deleted_at, created_at, updated_at
`

func scanVendor(row interface{ Scan(...any) error }) (*models.Vendor, error) {
	var (
		vendor    models.Vendor
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&vendor.ID,
		&vendor.Name,
		&vendor.CanonicalName,
		&vendor.BusinessDescription,
		&vendor.Active,
		&vendor.TotalInvoices,
		&vendor.TotalDiscrepancies,
		&vendor.TotalSavings,
		&deletedAt,
		&vendor.CreatedAt,
		&vendor.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		vendor.DeletedAt = &deletedAt.Time
	}
	return &vendor, nil
}

// GetByID returns a vendor that has not been soft-deleted.
func (r *VendorRepository) GetByID(id string) (*models.Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE id = ? AND deleted_at IS NULL`
	vendor, err := scanVendor(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("vendor", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return vendor, nil
}

// GetByCanonicalName returns a live vendor by its canonical name.
func (r *VendorRepository) GetByCanonicalName(canonical string) (*models.Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE canonical_name = ? AND deleted_at IS NULL`
	vendor, err := scanVendor(r.db.QueryRow(query, canonical))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("vendor", canonical)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return vendor, nil
}

// List returns all live vendors ordered by name.
func (r *VendorRepository) List() ([]*models.Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors WHERE deleted_at IS NULL ORDER BY name`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []*models.Vendor
	for rows.Next() {
		vendor, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors = append(vendors, vendor)
	}
	return vendors, rows.Err()
}

// ListRefs returns the minimal projection used for embedding matching.
func (r *VendorRepository) ListRefs() ([]models.VendorRef, error) {
	rows, err := r.db.Query(`SELECT id, name, canonical_name FROM vendors WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor refs: %w", err)
	}
	defer rows.Close()

	var refs []models.VendorRef
	for rows.Next() {
		var ref models.VendorRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.CanonicalName); err != nil {
			return nil, fmt.Errorf("failed to scan vendor ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Update persists name, description and active flag changes.
func (r *VendorRepository) Update(vendor *models.Vendor) error {
	vendor.UpdatedAt = time.Now().UTC()
	result, err := r.db.Exec(`
		UPDATE vendors
		SET name = ?, business_description = ?, active = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		vendor.Name,
		vendor.BusinessDescription,
		vendor.Active,
		vendor.UpdatedAt,
		vendor.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update vendor: %w", err)
	}
	return requireAffected(result, "vendor", vendor.ID)
}

// SetBusinessDescriptionIfEmpty backfills the description from contract
// extraction without clobbering an operator-provided one.
func (r *VendorRepository) SetBusinessDescriptionIfEmpty(id, description string) error {
	_, err := r.db.Exec(`
		UPDATE vendors
		SET business_description = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND (business_description IS NULL OR business_description = '')`,
		description, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to backfill vendor description: %w", err)
	}
	return nil
}

// IncrementMetrics applies the post-reconciliation aggregate deltas as a
// single atomic update so concurrent invoice jobs never lose increments.
func (r *VendorRepository) IncrementMetrics(id string, invoices int, discrepancyAmount float64) error {
	result, err := r.db.Exec(`
		UPDATE vendors
		SET total_invoices = total_invoices + ?,
		    total_discrepancies = total_discrepancies + ?,
		    total_savings = total_savings + ?,
		    updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		invoices, discrepancyAmount, discrepancyAmount, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment vendor metrics: %w", err)
	}
	return requireAffected(result, "vendor", id)
}

// SoftDelete hides a vendor without destroying its history.
func (r *VendorRepository) SoftDelete(id string) error {
	result, err := r.db.Exec(`
		UPDATE vendors SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete vendor: %w", err)
	}
	return requireAffected(result, "vendor", id)
}

// Restore brings a soft-deleted vendor back.
func (r *VendorRepository) Restore(id string) error {
	result, err := r.db.Exec(`
		UPDATE vendors SET deleted_at = NULL, updated_at = ? WHERE id = ? AND deleted_at IS NOT NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to restore vendor: %w", err)
	}
	return requireAffected(result, "vendor", id)
}

// Stats aggregates the vendor's reconciliation history.
func (r *VendorRepository) Stats(id string) (*models.VendorStats, error) {
	vendor, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}

	var activeContracts int
	err = r.db.QueryRow(
		`SELECT COUNT(*) FROM contracts WHERE vendor_id = ? AND status = ? AND deleted_at IS NULL`,
		id, models.ContractStatusActive,
	).Scan(&activeContracts)
	if err != nil {
		return nil, fmt.Errorf("failed to count active contracts: %w", err)
	}

	stats := &models.VendorStats{
		TotalInvoices:      vendor.TotalInvoices,
		ActiveContracts:    activeContracts,
		TotalDiscrepancies: vendor.TotalDiscrepancies,
		TotalSavings:       vendor.TotalSavings,
	}
	if vendor.TotalInvoices > 0 {
		stats.AverageSavingsPerInvoice = vendor.TotalSavings / float64(vendor.TotalInvoices)
	}
	return stats, nil
}

// requireAffected converts a zero-row update into a not-found error.
func requireAffected(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound(kind, id)
	}
	return nil
}
