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

// ContractRepository handles contract database operations.
type ContractRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewContractRepository creates a new contract repository.
func NewContractRepository(db *sql.DB, logger *zap.Logger) *ContractRepository {
	return &ContractRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a freshly uploaded contract in its initial status.
func (r *ContractRepository) Create(contract *models.Contract) error {
	if contract.ID == "" {
		contract.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	contract.CreatedAt = now
	contract.UpdatedAt = now

	terms, err := marshalTerms(contract.Terms)
	if err != nil {
		return fmt.Errorf("failed to marshal contract terms: %w", err)
	}
	metadata, err := json.Marshal(contract.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal contract metadata: %w", err)
	}

	query := `
		INSERT INTO contracts (
			id, vendor_id, file_key, file_name, status,
			effective_date, renewal_date, end_date,
			terms, extracted_text, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		contract.ID,
		contract.VendorID,
		contract.FileKey,
		contract.FileName,
		contract.Status,
		contract.EffectiveDate,
		nullableTime(contract.RenewalDate),
		nullableTime(contract.EndDate),
		terms,
		contract.ExtractedText,
		string(metadata),
		contract.CreatedAt,
		contract.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create contract", zap.Error(err))
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

const contractColumns = `
	id, vendor_id, file_key, file_name, status,
	effective_date, renewal_date, end_date,
	terms, extracted_text, metadata, deleted_at, created_at, updated_at
`

func scanContract(row interface{ Scan(...any) error }) (*models.Contract, error) {
	var (
		contract    models.Contract
		renewalDate sql.NullTime
		endDate     sql.NullTime
		deletedAt   sql.NullTime
		terms       sql.NullString
		metadata    string
	)
	err := row.Scan(
		&contract.ID,
		&contract.VendorID,
		&contract.FileKey,
		&contract.FileName,
		&contract.Status,
		&contract.EffectiveDate,
		&renewalDate,
		&endDate,
		&terms,
		&contract.ExtractedText,
		&metadata,
		&deletedAt,
		&contract.CreatedAt,
		&contract.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if renewalDate.Valid {
		contract.RenewalDate = &renewalDate.Time
	}
	if endDate.Valid {
		contract.EndDate = &endDate.Time
	}
	if deletedAt.Valid {
		contract.DeletedAt = &deletedAt.Time
	}
	if terms.Valid && terms.String != "" {
		contract.Terms = &models.ContractTerms{}
		if err := json.Unmarshal([]byte(terms.String), contract.Terms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contract terms: %w", err)
		}
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &contract.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contract metadata: %w", err)
		}
	}
	return &contract, nil
}

// GetByID returns a contract that has not been soft-deleted.
func (r *ContractRepository) GetByID(id string) (*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = ? AND deleted_at IS NULL`
	contract, err := scanContract(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("contract", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return contract, nil
}

// ListByVendor returns a vendor's contracts, newest first.
func (r *ContractRepository) ListByVendor(vendorID string) ([]*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts
		WHERE vendor_id = ? AND deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.Query(query, vendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, contract)
	}
	return contracts, rows.Err()
}

// FindActiveByVendor returns the vendor's single active contract, or
// nil when the vendor has none.
func (r *ContractRepository) FindActiveByVendor(vendorID string) (*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts
		WHERE vendor_id = ? AND status = ? AND deleted_at IS NULL LIMIT 1`
	contract, err := scanContract(r.db.QueryRow(query, vendorID, models.ContractStatusActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active contract: %w", err)
	}
	return contract, nil
}

// SaveExtraction persists the pipeline's extraction output in one shot.
func (r *ContractRepository) SaveExtraction(contract *models.Contract) error {
	contract.UpdatedAt = time.Now().UTC()

	terms, err := marshalTerms(contract.Terms)
	if err != nil {
		return fmt.Errorf("failed to marshal contract terms: %w", err)
	}
	metadata, err := json.Marshal(contract.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal contract metadata: %w", err)
	}

	result, err := r.db.Exec(`
		UPDATE contracts
		SET status = ?, effective_date = ?, renewal_date = ?, end_date = ?,
		    terms = ?, extracted_text = ?, metadata = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		contract.Status,
		contract.EffectiveDate,
		nullableTime(contract.RenewalDate),
		nullableTime(contract.EndDate),
		terms,
		contract.ExtractedText,
		string(metadata),
		contract.UpdatedAt,
		contract.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save contract extraction: %w", err)
	}
	return requireAffected(result, "contract", contract.ID)
}

// UpdateStatus moves a contract to a new lifecycle status.
func (r *ContractRepository) UpdateStatus(id string, status models.ContractStatus) error {
	result, err := r.db.Exec(`
		UPDATE contracts SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update contract status: %w", err)
	}
	return requireAffected(result, "contract", id)
}

// RecordFailure stores the pipeline error and returns the contract to
// the review queue.
func (r *ContractRepository) RecordFailure(id string, errMsg string, processingTimeMs int64) error {
	metadata, err := json.Marshal(models.DocumentMetadata{
		Error:            errMsg,
		ProcessingTimeMs: processingTimeMs,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal failure metadata: %w", err)
	}

	result, err := r.db.Exec(`
		UPDATE contracts SET status = ?, metadata = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		models.ContractStatusNeedsReview, string(metadata), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record contract failure: %w", err)
	}
	return requireAffected(result, "contract", id)
}

// Activate makes the contract the vendor's single active one. The
// deactivation of the prior active contract and the activation of this
// one commit together, so readers never observe two active contracts.
func (r *ContractRepository) Activate(tx *sql.Tx, vendorID, contractID string) error {
	now := time.Now().UTC()

	if _, err := tx.Exec(`
		UPDATE contracts SET status = ?, updated_at = ?
		WHERE vendor_id = ? AND status = ? AND id != ? AND deleted_at IS NULL`,
		models.ContractStatusInactive, now, vendorID, models.ContractStatusActive, contractID,
	); err != nil {
		return fmt.Errorf("failed to deactivate prior contract: %w", err)
	}

	result, err := tx.Exec(`
		UPDATE contracts SET status = ?, updated_at = ?
		WHERE id = ? AND vendor_id = ? AND deleted_at IS NULL`,
		models.ContractStatusActive, now, contractID, vendorID,
	)
	if err != nil {
		return fmt.Errorf("failed to activate contract: %w", err)
	}
	return requireAffected(result, "contract", contractID)
}

// ActivateExclusive runs the activation swap in its own transaction.
func (r *ContractRepository) ActivateExclusive(vendorID, contractID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := r.Activate(tx, vendorID, contractID); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("Failed to rollback activation", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit activation: %w", err)
	}
	return nil
}

// ExpireOverdue flips active contracts whose end date has passed to
// expired, returning the ids it touched.
func (r *ContractRepository) ExpireOverdue(asOf time.Time) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT id FROM contracts
		WHERE status = ? AND end_date IS NOT NULL AND end_date < ? AND deleted_at IS NULL`,
		models.ContractStatusActive, asOf,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue contracts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan contract id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := r.UpdateStatus(id, models.ContractStatusExpired); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// SoftDelete hides a contract without destroying its history.
func (r *ContractRepository) SoftDelete(id string) error {
	result, err := r.db.Exec(`
		UPDATE contracts SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	return requireAffected(result, "contract", id)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalTerms(t *models.ContractTerms) (any, error) {
	if t == nil {
		return nil, nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
