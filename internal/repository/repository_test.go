package repository

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
	"invoice-recon/internal/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	// A single connection keeps the in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_initial_schema.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)
	return db
}

func newTestVendor(t *testing.T, db *sql.DB, name, canonical string) *models.Vendor {
	t.Helper()
	repo := NewVendorRepository(db, zap.NewNop())
	vendor := &models.Vendor{Name: name, CanonicalName: canonical, Active: true}
	require.NoError(t, repo.Create(vendor))
	return vendor
}

func TestVendorCreateDuplicateCanonicalName(t *testing.T) {
	db := newTestDB(t)
	repo := NewVendorRepository(db, zap.NewNop())

	require.NoError(t, repo.Create(&models.Vendor{Name: "Acme", CanonicalName: "acme", Active: true}))
	err := repo.Create(&models.Vendor{Name: "Acme Inc", CanonicalName: "acme", Active: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestVendorSoftDeleteAndRestore(t *testing.T) {
	db := newTestDB(t)
	repo := NewVendorRepository(db, zap.NewNop())
	vendor := newTestVendor(t, db, "Acme", "acme")

	require.NoError(t, repo.SoftDelete(vendor.ID))
	_, err := repo.GetByID(vendor.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	require.NoError(t, repo.Restore(vendor.ID))
	restored, err := repo.GetByID(vendor.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)
}

func TestVendorIncrementMetrics(t *testing.T) {
	db := newTestDB(t)
	repo := NewVendorRepository(db, zap.NewNop())
	vendor := newTestVendor(t, db, "Acme", "acme")

	require.NoError(t, repo.IncrementMetrics(vendor.ID, 1, 250.50))
	require.NoError(t, repo.IncrementMetrics(vendor.ID, 1, 100))

	got, err := repo.GetByID(vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalInvoices)
	assert.InDelta(t, 350.50, got.TotalDiscrepancies, 1e-9)
	assert.InDelta(t, 350.50, got.TotalSavings, 1e-9)
}

func TestVendorStats(t *testing.T) {
	db := newTestDB(t)
	vendorRepo := NewVendorRepository(db, zap.NewNop())
	contractRepo := NewContractRepository(db, zap.NewNop())
	vendor := newTestVendor(t, db, "Acme", "acme")

	contract := &models.Contract{
		VendorID:      vendor.ID,
		FileKey:       "contracts/a.pdf",
		FileName:      "a.pdf",
		Status:        models.ContractStatusActive,
		EffectiveDate: time.Now().UTC(),
	}
	require.NoError(t, contractRepo.Create(contract))
	require.NoError(t, vendorRepo.IncrementMetrics(vendor.ID, 2, 500))

	stats, err := vendorRepo.Stats(vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalInvoices)
	assert.Equal(t, 1, stats.ActiveContracts)
	assert.InDelta(t, 250.0, stats.AverageSavingsPerInvoice, 1e-9)
}

func TestContractRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewContractRepository(db, zap.NewNop())
	vendor := newTestVendor(t, db, "Acme", "acme")

	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	contract := &models.Contract{
		VendorID:      vendor.ID,
		FileKey:       "contracts/a.pdf",
		FileName:      "a.pdf",
		Status:        models.ContractStatusNeedsReview,
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       &end,
		Terms: &models.ContractTerms{
			Rates: []models.Rate{{Description: "consulting", Rate: 95, Unit: "hour"}},
			Caps:  []models.Cap{{Type: "monthly", Amount: 10000}},
		},
		ExtractedText: "redacted text",
		Metadata:      models.DocumentMetadata{ExtractionMethod: "pdf-text", Confidence: 0.9},
	}
	require.NoError(t, repo.Create(contract))

	got, err := repo.GetByID(contract.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Terms)
	assert.Equal(t, contract.Terms.Rates, got.Terms.Rates)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(end))
	assert.Equal(t, "pdf-text", got.Metadata.ExtractionMethod)
}

func TestContractActivationSwap(t *testing.T) {
	db := newTestDB(t)
	repo := NewContractRepository(db, zap.NewNop())
	vendor := newTestVendor(t, db, "Acme", "acme")

	first := &models.Contract{
		VendorID: vendor.ID, FileKey: "c/1.pdf", FileName: "1.pdf",
		Status: models.ContractStatusActive, EffectiveDate: time.Now().UTC(),
	}
	second := &models.Contract{
		VendorID: vendor.ID, FileKey: "c/2.pdf", FileName: "2.pdf",
		Status: models.ContractStatusNeedsReview, EffectiveDate: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(first))
	require.NoError(t, repo.Create(second))

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.Activate(tx, vendor.ID, second.ID))
	require.NoError(t, tx.Commit())

	active, err := repo.FindActiveByVendor(vendor.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)

	var activeCount int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM contracts WHERE vendor_id = ? AND status = 'active'`,
		vendor.ID,
	).Scan(&activeCount))
	assert.Equal(t, 1, activeCount)
}

func TestContractExpireOverdue(t *testing.T) {
	db := newTestDB(t)
	repo := NewContractRepository(db, zap.NewNop())
	vendor := newTestVendor(t, db, "Acme", "acme")

	past := time.Now().UTC().AddDate(0, -1, 0)
	future := time.Now().UTC().AddDate(0, 6, 0)

	overdue := &models.Contract{
		VendorID: vendor.ID, FileKey: "c/1.pdf", FileName: "1.pdf",
		Status: models.ContractStatusActive, EffectiveDate: past.AddDate(-1, 0, 0), EndDate: &past,
	}
	current := &models.Contract{
		VendorID: vendor.ID, FileKey: "c/2.pdf", FileName: "2.pdf",
		Status: models.ContractStatusActive, EffectiveDate: past, EndDate: &future,
	}
	require.NoError(t, repo.Create(overdue))
	require.NoError(t, repo.Create(current))

	expired, err := repo.ExpireOverdue(time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, []string{overdue.ID}, expired)

	got, err := repo.GetByID(overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusExpired, got.Status)

	still, err := repo.GetByID(current.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusActive, still.Status)
}

func TestInvoiceDuplicateNumberConflict(t *testing.T) {
	db := newTestDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())
	vendor := newTestVendor(t, db, "Acme", "acme")

	base := models.Invoice{
		VendorID:    vendor.ID,
		FileKey:     "i/1.pdf",
		FileName:    "1.pdf",
		Status:      models.InvoiceStatusPending,
		InvoiceDate: time.Now().UTC(),
	}

	first := base
	first.InvoiceNumber = "INV-100"
	require.NoError(t, repo.Create(&first))

	dup := base
	dup.InvoiceNumber = "INV-100"
	dup.FileKey = "i/2.pdf"
	err := repo.Create(&dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	// Uploads without a parsed number yet never conflict with each other.
	blankA, blankB := base, base
	blankA.FileKey, blankB.FileKey = "i/3.pdf", "i/4.pdf"
	require.NoError(t, repo.Create(&blankA))
	require.NoError(t, repo.Create(&blankB))
}

func TestInvoiceSaveParsedRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())
	vendor := newTestVendor(t, db, "Acme", "acme")

	invoice := &models.Invoice{
		VendorID:    vendor.ID,
		FileKey:     "i/1.pdf",
		FileName:    "1.pdf",
		Status:      models.InvoiceStatusPending,
		InvoiceDate: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(invoice))

	tax := 8.25
	due := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	invoice.InvoiceNumber = "INV-7"
	invoice.DueDate = &due
	invoice.TotalAmount = 108.25
	invoice.Subtotal = 100
	invoice.TaxAmount = &tax
	invoice.LineItems = []models.LineItem{{Description: "supplies", Quantity: 4, Rate: 25, Unit: "box", Total: 100}}
	invoice.Fees = []models.Fee{{Type: "percent", Description: "surcharge", Amount: 2}}
	invoice.Metadata = models.DocumentMetadata{ExtractionMethod: "docai", Confidence: 0.8}
	require.NoError(t, repo.SaveParsed(invoice))

	got, err := repo.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-7", got.InvoiceNumber)
	require.NotNil(t, got.TaxAmount)
	assert.Equal(t, 8.25, *got.TaxAmount)
	assert.Equal(t, invoice.LineItems, got.LineItems)
	assert.Equal(t, invoice.Fees, got.Fees)
	assert.Equal(t, "docai", got.Metadata.ExtractionMethod)
}

func TestInvoiceRecordFailureReturnsToPending(t *testing.T) {
	db := newTestDB(t)
	repo := NewInvoiceRepository(db, zap.NewNop())
	vendor := newTestVendor(t, db, "Acme", "acme")

	invoice := &models.Invoice{
		VendorID: vendor.ID, FileKey: "i/1.pdf", FileName: "1.pdf",
		Status: models.InvoiceStatusPending, InvoiceDate: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(invoice))
	require.NoError(t, repo.RecordFailure(invoice.ID, "extraction service unavailable", 1234))

	got, err := repo.GetByID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPending, got.Status)
	assert.Equal(t, "extraction service unavailable", got.Metadata.Error)
	assert.Equal(t, int64(1234), got.Metadata.ProcessingTimeMs)
}

func TestReportCreateReplacesPriorForInvoice(t *testing.T) {
	db := newTestDB(t)
	vendor := newTestVendor(t, db, "Acme", "acme")

	contractRepo := NewContractRepository(db, zap.NewNop())
	contract := &models.Contract{
		VendorID: vendor.ID, FileKey: "c/1.pdf", FileName: "1.pdf",
		Status: models.ContractStatusActive, EffectiveDate: time.Now().UTC(),
	}
	require.NoError(t, contractRepo.Create(contract))

	invoiceRepo := NewInvoiceRepository(db, zap.NewNop())
	invoice := &models.Invoice{
		VendorID: vendor.ID, FileKey: "i/1.pdf", FileName: "1.pdf",
		Status: models.InvoiceStatusPending, InvoiceDate: time.Now().UTC(),
	}
	require.NoError(t, invoiceRepo.Create(invoice))

	repo := NewReportRepository(db, zap.NewNop())
	first := &models.ReconciliationReport{
		InvoiceID:  invoice.ID,
		ContractID: contract.ID,
		Discrepancies: []models.Discrepancy{
			{Type: models.DiscrepancyRateOverage, Priority: models.PriorityHigh, Amount: 100},
		},
		Checklist:              []models.ChecklistItem{{Item: "Rate Compliance", Passed: false, Confidence: 0.9}},
		HasDiscrepancies:       true,
		TotalDiscrepancyAmount: 100,
		RationaleText:          "first run",
	}
	require.NoError(t, repo.Create(first))

	second := &models.ReconciliationReport{
		InvoiceID:     invoice.ID,
		ContractID:    contract.ID,
		Discrepancies: []models.Discrepancy{},
		Checklist:     []models.ChecklistItem{{Item: "Rate Compliance", Passed: true, Confidence: 0.9}},
		RationaleText: "second run",
	}
	require.NoError(t, repo.Create(second))

	got, err := repo.GetByInvoiceID(invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "second run", got.RationaleText)
	assert.False(t, got.HasDiscrepancies)
}
