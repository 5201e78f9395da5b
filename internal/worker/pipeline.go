package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"invoice-recon/internal/ai"
	"invoice-recon/internal/extract"
	"invoice-recon/internal/models"
)

// ActivationConfidence is the extraction confidence below which a
// contract lands in needs_review instead of being activated.
const ActivationConfidence = 0.8

// TextExtractor obtains document text with quality gating and fallback.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (*extract.Result, error)
}

// ContractExtractor produces structured contract terms from text.
type ContractExtractor interface {
	Extract(ctx context.Context, text string) (*ai.ContractExtraction, error)
	CalculateDates(extraction *ai.ContractExtraction) (*ai.ContractDates, error)
}

// InvoiceParser produces normalized invoice fields from text.
type InvoiceParser interface {
	Parse(ctx context.Context, text string) (*ai.InvoiceParsing, error)
}

// VendorMatcher routes unscoped invoices to a known vendor.
type VendorMatcher interface {
	MatchVendor(ctx context.Context, name string, known []models.VendorRef) (*models.VendorRef, error)
}

// Reconciler compares an invoice against its governing contract.
type Reconciler interface {
	Reconcile(ctx context.Context, invoice *models.Invoice, contract *models.Contract) (*models.ReconciliationReport, error)
}

// BlobFetcher fetches stored document bytes.
type BlobFetcher interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ContractStore is the contract persistence the pipeline needs.
type ContractStore interface {
	GetByID(id string) (*models.Contract, error)
	SaveExtraction(contract *models.Contract) error
	ActivateExclusive(vendorID, contractID string) error
	FindActiveByVendor(vendorID string) (*models.Contract, error)
	RecordFailure(id string, errMsg string, processingTimeMs int64) error
}

// InvoiceStore is the invoice persistence the pipeline needs.
type InvoiceStore interface {
	GetByID(id string) (*models.Invoice, error)
	SaveParsed(invoice *models.Invoice) error
	UpdateStatus(id string, status models.InvoiceStatus) error
	RecordFailure(id string, errMsg string, processingTimeMs int64) error
}

// VendorStore is the vendor persistence the pipeline needs.
type VendorStore interface {
	ListRefs() ([]models.VendorRef, error)
	SetBusinessDescriptionIfEmpty(id, description string) error
	IncrementMetrics(id string, invoices int, discrepancyAmount float64) error
}

// ReportStore persists reconciliation reports.
type ReportStore interface {
	Create(report *models.ReconciliationReport) error
}

// Pipeline runs the per-document processing stages. Stages within one
// document are strictly sequential; documents are processed
// concurrently by the queue consumer.
type Pipeline struct {
	blobs      BlobFetcher
	texts      TextExtractor
	contractAI ContractExtractor
	invoiceAI  InvoiceParser
	matcher    VendorMatcher
	engine     Reconciler
	contracts  ContractStore
	invoices   InvoiceStore
	vendors    VendorStore
	reports    ReportStore
	aiModel    string
	logger     *zap.Logger
}

// NewPipeline wires the document processing stages.
func NewPipeline(
	blobs BlobFetcher,
	texts TextExtractor,
	contractAI ContractExtractor,
	invoiceAI InvoiceParser,
	matcher VendorMatcher,
	engine Reconciler,
	contracts ContractStore,
	invoices InvoiceStore,
	vendors VendorStore,
	reports ReportStore,
	aiModel string,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		blobs:      blobs,
		texts:      texts,
		contractAI: contractAI,
		invoiceAI:  invoiceAI,
		matcher:    matcher,
		engine:     engine,
		contracts:  contracts,
		invoices:   invoices,
		vendors:    vendors,
		reports:    reports,
		aiModel:    aiModel,
		logger:     logger,
	}
}

// ProcessContract runs the contract pipeline for one document.
func (p *Pipeline) ProcessContract(ctx context.Context, contractID string) error {
	start := time.Now()

	contract, err := p.contracts.GetByID(contractID)
	if err != nil {
		return err
	}

	text, method, err := p.extractText(ctx, contract.FileKey)
	if err != nil {
		return err
	}

	extraction, err := p.contractAI.Extract(ctx, text)
	if err != nil {
		return err
	}
	dates, err := p.contractAI.CalculateDates(extraction)
	if err != nil {
		return fmt.Errorf("derive contract dates: %w", err)
	}

	contract.EffectiveDate = dates.EffectiveDate
	contract.RenewalDate = dates.RenewalDate
	contract.EndDate = dates.EndDate
	contract.Terms = &extraction.Terms
	contract.ExtractedText = text
	contract.Status = models.ContractStatusNeedsReview
	contract.Metadata = models.DocumentMetadata{
		ExtractionMethod: method,
		Confidence:       extraction.Confidence,
		AIModel:          p.aiModel,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		TextHash:         extract.HashText(text),
	}
	if err := p.contracts.SaveExtraction(contract); err != nil {
		return err
	}

	// Low-confidence extractions stay in review; the swap keeps at most
	// one contract active per vendor.
	if extraction.Confidence >= ActivationConfidence {
		if err := p.contracts.ActivateExclusive(contract.VendorID, contract.ID); err != nil {
			return err
		}
		contract.Status = models.ContractStatusActive
	}

	if extraction.BusinessDescription != "" {
		if err := p.vendors.SetBusinessDescriptionIfEmpty(contract.VendorID, extraction.BusinessDescription); err != nil {
			p.logger.Warn("Failed to backfill vendor description",
				zap.String("vendor_id", contract.VendorID),
				zap.Error(err))
		}
	}

	p.logger.Info("Contract processed",
		zap.String("contract_id", contract.ID),
		zap.String("status", string(contract.Status)),
		zap.Float64("confidence", extraction.Confidence),
		zap.String("method", method))
	return nil
}

// ProcessInvoice runs the invoice pipeline for one document.
func (p *Pipeline) ProcessInvoice(ctx context.Context, invoiceID string) error {
	start := time.Now()

	invoice, err := p.invoices.GetByID(invoiceID)
	if err != nil {
		return err
	}

	text, method, err := p.extractText(ctx, invoice.FileKey)
	if err != nil {
		return err
	}

	parsing, err := p.invoiceAI.Parse(ctx, text)
	if err != nil {
		return err
	}

	invoice.InvoiceNumber = parsing.InvoiceNumber
	if parsed, err := ai.ParseDate(parsing.InvoiceDate); err == nil {
		invoice.InvoiceDate = parsed
	}
	if parsed, err := ai.ParseDate(parsing.DueDate); err == nil {
		invoice.DueDate = &parsed
	}
	invoice.TotalAmount = parsing.TotalAmount
	invoice.Subtotal = parsing.Subtotal
	invoice.TaxAmount = parsing.TaxAmount
	invoice.LineItems = parsing.LineItems
	invoice.Fees = parsing.Fees
	invoice.ExtractedText = text
	invoice.Metadata = models.DocumentMetadata{
		ExtractionMethod: method,
		Confidence:       parsing.Confidence,
		AIModel:          p.aiModel,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		TextHash:         extract.HashText(text),
	}

	if invoice.VendorID == "" {
		refs, err := p.vendors.ListRefs()
		if err != nil {
			return err
		}
		match, err := p.matcher.MatchVendor(ctx, parsing.VendorName, refs)
		if err != nil {
			return err
		}
		if match == nil {
			invoice.Status = models.InvoiceStatusFlagged
			if err := p.invoices.SaveParsed(invoice); err != nil {
				return err
			}
			p.logger.Warn("Invoice flagged: no vendor match",
				zap.String("invoice_id", invoice.ID),
				zap.String("vendor_name", parsing.VendorName))
			return nil
		}
		invoice.VendorID = match.ID
	}

	if err := p.invoices.SaveParsed(invoice); err != nil {
		return err
	}

	contract, err := p.contracts.FindActiveByVendor(invoice.VendorID)
	if err != nil {
		return err
	}
	if contract == nil {
		if err := p.invoices.UpdateStatus(invoice.ID, models.InvoiceStatusFlagged); err != nil {
			return err
		}
		p.logger.Warn("Invoice flagged: vendor has no active contract",
			zap.String("invoice_id", invoice.ID),
			zap.String("vendor_id", invoice.VendorID))
		return nil
	}

	report, err := p.engine.Reconcile(ctx, invoice, contract)
	if err != nil {
		return err
	}
	if err := p.reports.Create(report); err != nil {
		return err
	}

	status := models.InvoiceStatusReconciled
	if report.HasDiscrepancies {
		status = models.InvoiceStatusFlagged
	}
	if err := p.invoices.UpdateStatus(invoice.ID, status); err != nil {
		return err
	}

	// Flagged overcharge and potential savings are the same quantity.
	if err := p.vendors.IncrementMetrics(invoice.VendorID, 1, report.TotalDiscrepancyAmount); err != nil {
		return err
	}

	p.logger.Info("Invoice processed",
		zap.String("invoice_id", invoice.ID),
		zap.String("status", string(status)),
		zap.Float64("discrepancy_amount", report.TotalDiscrepancyAmount))
	return nil
}

// extractText fetches, extracts and redacts a document's text.
func (p *Pipeline) extractText(ctx context.Context, fileKey string) (text, method string, err error) {
	data, err := p.blobs.Get(ctx, fileKey)
	if err != nil {
		return "", "", fmt.Errorf("fetch document bytes: %w", err)
	}

	result, err := p.texts.Extract(ctx, data)
	if err != nil {
		return "", "", err
	}
	return extract.Redact(result.Text), result.Method, nil
}
