package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invoice-recon/internal/ai"
	"invoice-recon/internal/apperr"
	"invoice-recon/internal/extract"
	"invoice-recon/internal/models"
)

type fakeBlobs struct{ data []byte }

func (f *fakeBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	return f.data, nil
}

type fakeTexts struct {
	text string
	err  error
}

func (f *fakeTexts) Extract(ctx context.Context, data []byte) (*extract.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extract.Result{Text: f.text, Method: extract.MethodPDFText, Confidence: 0.9}, nil
}

type fakeContractAI struct {
	extraction *ai.ContractExtraction
	err        error
}

func (f *fakeContractAI) Extract(ctx context.Context, text string) (*ai.ContractExtraction, error) {
	return f.extraction, f.err
}

func (f *fakeContractAI) CalculateDates(extraction *ai.ContractExtraction) (*ai.ContractDates, error) {
	effective, err := ai.ParseDate(extraction.EffectiveDate)
	if err != nil {
		return nil, err
	}
	return &ai.ContractDates{EffectiveDate: effective}, nil
}

type fakeInvoiceAI struct {
	parsing *ai.InvoiceParsing
	err     error
}

func (f *fakeInvoiceAI) Parse(ctx context.Context, text string) (*ai.InvoiceParsing, error) {
	return f.parsing, f.err
}

type fakeMatcher struct {
	match *models.VendorRef
}

func (f *fakeMatcher) MatchVendor(ctx context.Context, name string, known []models.VendorRef) (*models.VendorRef, error) {
	return f.match, nil
}

type fakeReconciler struct {
	report *models.ReconciliationReport
}

func (f *fakeReconciler) Reconcile(ctx context.Context, invoice *models.Invoice, contract *models.Contract) (*models.ReconciliationReport, error) {
	return f.report, nil
}

type fakeContracts struct {
	contract  *models.Contract
	active    *models.Contract
	saved     *models.Contract
	activated []string
	failures  []string
}

func (f *fakeContracts) GetByID(id string) (*models.Contract, error) {
	if f.contract == nil {
		return nil, apperr.NotFound("contract", id)
	}
	return f.contract, nil
}

func (f *fakeContracts) SaveExtraction(contract *models.Contract) error {
	f.saved = contract
	return nil
}

func (f *fakeContracts) ActivateExclusive(vendorID, contractID string) error {
	f.activated = append(f.activated, contractID)
	return nil
}

func (f *fakeContracts) FindActiveByVendor(vendorID string) (*models.Contract, error) {
	return f.active, nil
}

func (f *fakeContracts) RecordFailure(id string, errMsg string, processingTimeMs int64) error {
	f.failures = append(f.failures, errMsg)
	return nil
}

type fakeInvoices struct {
	invoice  *models.Invoice
	saved    *models.Invoice
	statuses []models.InvoiceStatus
	failures []string
}

func (f *fakeInvoices) GetByID(id string) (*models.Invoice, error) {
	if f.invoice == nil {
		return nil, apperr.NotFound("invoice", id)
	}
	return f.invoice, nil
}

func (f *fakeInvoices) SaveParsed(invoice *models.Invoice) error {
	f.saved = invoice
	return nil
}

func (f *fakeInvoices) UpdateStatus(id string, status models.InvoiceStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeInvoices) RecordFailure(id string, errMsg string, processingTimeMs int64) error {
	f.failures = append(f.failures, errMsg)
	return nil
}

type fakeVendors struct {
	refs         []models.VendorRef
	descriptions map[string]string
	increments   []float64
}

func (f *fakeVendors) ListRefs() ([]models.VendorRef, error) {
	return f.refs, nil
}

func (f *fakeVendors) SetBusinessDescriptionIfEmpty(id, description string) error {
	if f.descriptions == nil {
		f.descriptions = map[string]string{}
	}
	f.descriptions[id] = description
	return nil
}

func (f *fakeVendors) IncrementMetrics(id string, invoices int, discrepancyAmount float64) error {
	f.increments = append(f.increments, discrepancyAmount)
	return nil
}

type fakeReports struct {
	created []*models.ReconciliationReport
}

func (f *fakeReports) Create(report *models.ReconciliationReport) error {
	f.created = append(f.created, report)
	return nil
}

type pipelineFixture struct {
	blobs      *fakeBlobs
	texts      *fakeTexts
	contractAI *fakeContractAI
	invoiceAI  *fakeInvoiceAI
	matcher    *fakeMatcher
	engine     *fakeReconciler
	contracts  *fakeContracts
	invoices   *fakeInvoices
	vendors    *fakeVendors
	reports    *fakeReports
}

func newFixture() *pipelineFixture {
	return &pipelineFixture{
		blobs:      &fakeBlobs{data: []byte("%PDF-1.4")},
		texts:      &fakeTexts{text: "Services agreement between parties for consulting work at agreed rates."},
		contractAI: &fakeContractAI{},
		invoiceAI:  &fakeInvoiceAI{},
		matcher:    &fakeMatcher{},
		engine:     &fakeReconciler{},
		contracts:  &fakeContracts{},
		invoices:   &fakeInvoices{},
		vendors:    &fakeVendors{},
		reports:    &fakeReports{},
	}
}

func (f *pipelineFixture) pipeline() *Pipeline {
	return NewPipeline(
		f.blobs, f.texts, f.contractAI, f.invoiceAI, f.matcher, f.engine,
		f.contracts, f.invoices, f.vendors, f.reports,
		"test-model", zap.NewNop(),
	)
}

func TestProcessContractActivatesOnHighConfidence(t *testing.T) {
	f := newFixture()
	f.contracts.contract = &models.Contract{ID: "c1", VendorID: "v1", FileKey: "c/1.pdf"}
	f.contractAI.extraction = &ai.ContractExtraction{
		VendorName:          "Acme",
		BusinessDescription: "Office cleaning",
		EffectiveDate:       "2024-01-01",
		Confidence:          0.92,
	}

	require.NoError(t, f.pipeline().ProcessContract(context.Background(), "c1"))

	require.NotNil(t, f.contracts.saved)
	assert.Equal(t, []string{"c1"}, f.contracts.activated)
	assert.Equal(t, 0.92, f.contracts.saved.Metadata.Confidence)
	assert.Equal(t, extract.MethodPDFText, f.contracts.saved.Metadata.ExtractionMethod)
	assert.NotEmpty(t, f.contracts.saved.Metadata.TextHash)
	assert.Equal(t, "Office cleaning", f.vendors.descriptions["v1"])
}

func TestProcessContractLowConfidenceStaysInReview(t *testing.T) {
	f := newFixture()
	f.contracts.contract = &models.Contract{ID: "c1", VendorID: "v1", FileKey: "c/1.pdf"}
	f.contractAI.extraction = &ai.ContractExtraction{
		VendorName:    "Acme",
		EffectiveDate: "2024-01-01",
		Confidence:    0.55,
	}

	require.NoError(t, f.pipeline().ProcessContract(context.Background(), "c1"))

	assert.Empty(t, f.contracts.activated)
	assert.Equal(t, models.ContractStatusNeedsReview, f.contracts.saved.Status)
}

func TestProcessContractExtractionErrorPropagates(t *testing.T) {
	f := newFixture()
	f.contracts.contract = &models.Contract{ID: "c1", VendorID: "v1", FileKey: "c/1.pdf"}
	f.contractAI.err = apperr.ServiceUnavailable("AI provider not configured")

	err := f.pipeline().ProcessContract(context.Background(), "c1")
	require.Error(t, err)
	assert.True(t, apperr.IsPipelineFatal(err))
	assert.Nil(t, f.contracts.saved)
}

func invoiceParsing() *ai.InvoiceParsing {
	return &ai.InvoiceParsing{
		VendorName:    "Acme Corp",
		InvoiceNumber: "INV-1",
		InvoiceDate:   "2024-06-15",
		TotalAmount:   500,
		Subtotal:      500,
		LineItems:     []models.LineItem{{Description: "work", Quantity: 1, Rate: 500, Unit: "each", Total: 500}},
		Confidence:    0.8,
	}
}

func TestProcessInvoiceCleanReconciles(t *testing.T) {
	f := newFixture()
	f.invoices.invoice = &models.Invoice{ID: "i1", VendorID: "v1", FileKey: "i/1.pdf", Status: models.InvoiceStatusPending}
	f.invoiceAI.parsing = invoiceParsing()
	f.contracts.active = &models.Contract{ID: "c1", VendorID: "v1", EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.engine.report = &models.ReconciliationReport{InvoiceID: "i1", ContractID: "c1"}

	require.NoError(t, f.pipeline().ProcessInvoice(context.Background(), "i1"))

	require.Len(t, f.reports.created, 1)
	assert.Equal(t, []models.InvoiceStatus{models.InvoiceStatusReconciled}, f.invoices.statuses)
	assert.Equal(t, []float64{0}, f.vendors.increments)
}

func TestProcessInvoiceDiscrepanciesFlag(t *testing.T) {
	f := newFixture()
	f.invoices.invoice = &models.Invoice{ID: "i1", VendorID: "v1", FileKey: "i/1.pdf", Status: models.InvoiceStatusPending}
	f.invoiceAI.parsing = invoiceParsing()
	f.contracts.active = &models.Contract{ID: "c1", VendorID: "v1", EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.engine.report = &models.ReconciliationReport{
		InvoiceID:              "i1",
		ContractID:             "c1",
		HasDiscrepancies:       true,
		TotalDiscrepancyAmount: 320,
	}

	require.NoError(t, f.pipeline().ProcessInvoice(context.Background(), "i1"))

	assert.Equal(t, []models.InvoiceStatus{models.InvoiceStatusFlagged}, f.invoices.statuses)
	assert.Equal(t, []float64{320}, f.vendors.increments)
}

func TestProcessInvoiceNoActiveContractFlags(t *testing.T) {
	f := newFixture()
	f.invoices.invoice = &models.Invoice{ID: "i1", VendorID: "v1", FileKey: "i/1.pdf", Status: models.InvoiceStatusPending}
	f.invoiceAI.parsing = invoiceParsing()

	require.NoError(t, f.pipeline().ProcessInvoice(context.Background(), "i1"))

	assert.Equal(t, []models.InvoiceStatus{models.InvoiceStatusFlagged}, f.invoices.statuses)
	assert.Empty(t, f.reports.created)
	assert.Empty(t, f.vendors.increments)
}

func TestProcessInvoiceUnmatchedVendorFlags(t *testing.T) {
	f := newFixture()
	f.invoices.invoice = &models.Invoice{ID: "i1", FileKey: "i/1.pdf", Status: models.InvoiceStatusPending}
	f.invoiceAI.parsing = invoiceParsing()
	f.matcher.match = nil

	require.NoError(t, f.pipeline().ProcessInvoice(context.Background(), "i1"))

	require.NotNil(t, f.invoices.saved)
	assert.Equal(t, models.InvoiceStatusFlagged, f.invoices.saved.Status)
	assert.Empty(t, f.invoices.saved.VendorID)
	assert.Empty(t, f.reports.created)
}

func TestProcessInvoiceMatchedVendorAssigned(t *testing.T) {
	f := newFixture()
	f.invoices.invoice = &models.Invoice{ID: "i1", FileKey: "i/1.pdf", Status: models.InvoiceStatusPending}
	f.invoiceAI.parsing = invoiceParsing()
	f.matcher.match = &models.VendorRef{ID: "v9", Name: "Acme Corp", CanonicalName: "acmecorp"}
	f.contracts.active = &models.Contract{ID: "c1", VendorID: "v9", EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.engine.report = &models.ReconciliationReport{InvoiceID: "i1", ContractID: "c1"}

	require.NoError(t, f.pipeline().ProcessInvoice(context.Background(), "i1"))

	assert.Equal(t, "v9", f.invoices.saved.VendorID)
	require.Len(t, f.reports.created, 1)
}

type fakeExpirer struct {
	expired []string
	calls   int
}

func (f *fakeExpirer) ExpireOverdue(asOf time.Time) ([]string, error) {
	f.calls++
	return f.expired, nil
}

func TestExpirationSweeperSweepsOnStart(t *testing.T) {
	expirer := &fakeExpirer{expired: []string{"c1"}}
	sweeper := NewExpirationSweeper(expirer, time.Hour, zap.NewNop())

	require.NoError(t, sweeper.Start(context.Background()))
	defer sweeper.Stop()

	assert.Eventually(t, func() bool { return expirer.calls >= 1 }, time.Second, 10*time.Millisecond)
	assert.Error(t, sweeper.Start(context.Background()))
}
