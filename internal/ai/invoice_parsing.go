package ai

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
	"invoice-recon/internal/models"
	"invoice-recon/pkg/utils"
)

// InvoiceParsing is the structured result of parsing an invoice document.
type InvoiceParsing struct {
	VendorName    string
	InvoiceNumber string
	InvoiceDate   string
	DueDate       string
	TotalAmount   float64
	Subtotal      float64
	TaxAmount     *float64
	LineItems     []models.LineItem
	Fees          []models.Fee
	Confidence    float64
}

// InvoiceParser turns redacted invoice text into normalized billing data.
type InvoiceParser struct {
	client Client
	logger *zap.Logger
}

// NewInvoiceParser creates an invoice parser.
func NewInvoiceParser(client Client, logger *zap.Logger) *InvoiceParser {
	return &InvoiceParser{client: client, logger: logger}
}

// Parse extracts invoice fields from text and normalizes them: missing
// amounts become 0, missing quantity 1, missing unit "each", missing
// confidence 0.8, and dates are rewritten to ISO form when parseable.
func (p *InvoiceParser) Parse(ctx context.Context, text string) (*InvoiceParsing, error) {
	raw, err := p.client.ExtractWithSchema(ctx, invoiceSystemPrompt, text, invoiceSchema)
	if err != nil {
		return nil, err
	}

	parsing := &InvoiceParsing{
		VendorName:    getString(raw, "vendorName"),
		InvoiceNumber: getString(raw, "invoiceNumber"),
		InvoiceDate:   normalizeDate(getString(raw, "invoiceDate")),
		DueDate:       normalizeDate(getString(raw, "dueDate")),
		TotalAmount:   getFloat(raw, "totalAmount"),
		Subtotal:      getFloat(raw, "subtotal"),
		Confidence:    0.8,
	}
	if _, ok := raw["taxAmount"]; ok {
		tax := getFloat(raw, "taxAmount")
		parsing.TaxAmount = &tax
	}
	if _, ok := raw["confidence"]; ok {
		parsing.Confidence = getFloat(raw, "confidence")
	}

	for _, entry := range getSlice(raw, "lineItems") {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item := models.LineItem{
			Description: getString(m, "description"),
			Quantity:    getFloat(m, "quantity"),
			Rate:        getFloat(m, "rate"),
			Unit:        getString(m, "unit"),
			Total:       getFloat(m, "total"),
		}
		if _, ok := m["quantity"]; !ok {
			item.Quantity = 1
		}
		if item.Unit == "" {
			item.Unit = "each"
		}
		parsing.LineItems = append(parsing.LineItems, item)
	}

	for _, entry := range getSlice(raw, "fees") {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		parsing.Fees = append(parsing.Fees, models.Fee{
			Type:        normalizeFeeType(getString(m, "type")),
			Description: getString(m, "description"),
			Amount:      getFloat(m, "amount"),
		})
	}

	if parsing.Subtotal == 0 && parsing.TaxAmount == nil {
		parsing.Subtotal = parsing.TotalAmount
	}
	if err := utils.ValidateAmount(parsing.TotalAmount); err != nil {
		return nil, apperr.SchemaValidation("invoice total: %v", err)
	}
	return parsing, nil
}

// normalizeDate rewrites a parseable date to ISO 2006-01-02 form and
// passes anything else through unchanged.
func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t, err := ParseDate(value); err == nil {
		return t.Format(time.DateOnly)
	}
	return value
}
