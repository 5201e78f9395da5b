package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoice-recon/internal/ai"
	"invoice-recon/internal/models"
)

// NoDiscrepancyRationale is the fixed rationale for a clean invoice.
const NoDiscrepancyRationale = "Invoice matches contract terms without discrepancies."

// Engine runs the rule checklist comparing an invoice against its
// governing contract. Deterministic except for the narrative text.
type Engine struct {
	client ai.Client
	logger *zap.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(client ai.Client, logger *zap.Logger) *Engine {
	return &Engine{client: client, logger: logger}
}

type checkResult struct {
	passed      bool
	details     string
	confidence  float64
	discrepancy *models.Discrepancy
}

// Reconcile evaluates one checklist item per applicable contract term
// category plus an unconditional date validity check. Each check yields
// at most one discrepancy.
func (e *Engine) Reconcile(ctx context.Context, invoice *models.Invoice, contract *models.Contract) (*models.ReconciliationReport, error) {
	start := time.Now()

	terms := contract.Terms
	if terms == nil {
		terms = &models.ContractTerms{}
	}

	var (
		checklist     []models.ChecklistItem
		discrepancies []models.Discrepancy
	)
	record := func(name string, result checkResult) {
		checklist = append(checklist, models.ChecklistItem{
			Item:       name,
			Passed:     result.passed,
			Details:    result.details,
			Confidence: result.confidence,
		})
		if result.discrepancy != nil {
			discrepancies = append(discrepancies, *result.discrepancy)
		}
	}

	if len(terms.Rates) > 0 {
		record("Rate Compliance", checkRates(invoice, terms.Rates))
	}
	if len(terms.Caps) > 0 {
		record("Cap Limits", checkCaps(invoice, terms.Caps))
	}
	if terms.Fees != nil {
		record("Authorized Fees", checkFees(invoice, terms.Fees))
	}
	if terms.PaymentTerms != nil {
		record("Payment Terms", checkPaymentTerms(invoice, terms.PaymentTerms))
	}
	record("Invoice Date Validity", checkDates(invoice, contract))

	var total float64
	for _, d := range discrepancies {
		total += d.Amount
	}

	report := &models.ReconciliationReport{
		ID:                     uuid.NewString(),
		InvoiceID:              invoice.ID,
		ContractID:             contract.ID,
		HasDiscrepancies:       len(discrepancies) > 0,
		TotalDiscrepancyAmount: total,
		Discrepancies:          discrepancies,
		Checklist:              checklist,
		Metadata: models.ReportMetadata{
			AIModel: e.client.Model(),
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	report.RationaleText = e.rationale(ctx, report)
	report.Metadata.ProcessingTimeMs = time.Since(start).Milliseconds()

	e.logger.Info("Reconciliation completed",
		zap.String("invoice_id", invoice.ID),
		zap.String("contract_id", contract.ID),
		zap.Int("discrepancies", len(discrepancies)),
		zap.Float64("total_amount", total))
	return report, nil
}

// checkRates flags line items billed above their matched contract rate.
// The first description match wins; overcharges aggregate into one
// discrepancy.
func checkRates(invoice *models.Invoice, rates []models.Rate) checkResult {
	var (
		overcharge float64
		affected   []string
	)
	for _, item := range invoice.LineItems {
		rate, ok := findRate(item.Description, rates)
		if !ok {
			continue
		}
		if item.Rate > rate.Rate {
			overcharge += (item.Rate - rate.Rate) * item.Quantity
			affected = append(affected, item.Description)
		}
	}

	// Any overbilled item fails the check, even at zero quantity where
	// the dollar impact is 0.
	if len(affected) == 0 {
		return checkResult{
			passed:     true,
			details:    "All line item rates comply with contract rates",
			confidence: 0.9,
		}
	}
	return checkResult{
		passed:     false,
		details:    fmt.Sprintf("Rate overages on: %s", strings.Join(affected, ", ")),
		confidence: 0.9,
		discrepancy: &models.Discrepancy{
			Type:          models.DiscrepancyRateOverage,
			Priority:      models.PriorityHigh,
			Description:   fmt.Sprintf("Rates exceed contract on %d line item(s): %s", len(affected), strings.Join(affected, ", ")),
			ExpectedValue: "contract rates",
			ActualValue:   "invoiced rates",
			Amount:        overcharge,
		},
	}
}

// findRate matches a line item to a contract rate by bidirectional
// case-insensitive substring containment.
func findRate(description string, rates []models.Rate) (models.Rate, bool) {
	d := strings.ToLower(description)
	for _, rate := range rates {
		r := strings.ToLower(rate.Description)
		if d == "" || r == "" {
			continue
		}
		if strings.Contains(d, r) || strings.Contains(r, d) {
			return rate, true
		}
	}
	return models.Rate{}, false
}

// checkCaps flags the first monthly cap the invoice total exceeds.
func checkCaps(invoice *models.Invoice, caps []models.Cap) checkResult {
	for _, limit := range caps {
		if limit.Type != "monthly" {
			continue
		}
		if invoice.TotalAmount > limit.Amount {
			return checkResult{
				passed:     false,
				details:    fmt.Sprintf("Invoice total %.2f exceeds monthly cap %.2f", invoice.TotalAmount, limit.Amount),
				confidence: 0.95,
				discrepancy: &models.Discrepancy{
					Type:          models.DiscrepancyMissingCap,
					Priority:      models.PriorityCritical,
					Description:   fmt.Sprintf("Invoice total exceeds monthly spending cap of %.2f", limit.Amount),
					ExpectedValue: fmt.Sprintf("%.2f", limit.Amount),
					ActualValue:   fmt.Sprintf("%.2f", invoice.TotalAmount),
					Amount:        invoice.TotalAmount - limit.Amount,
				},
			}
		}
	}
	return checkResult{
		passed:     true,
		details:    "Invoice total within contract caps",
		confidence: 0.95,
	}
}

// checkFees flags invoice fees with no authorizing contract fee. A fee
// is authorized when a contract fee matches on type and description.
func checkFees(invoice *models.Invoice, contractFees []models.Fee) checkResult {
	var (
		amount       float64
		unauthorized []string
	)
	for _, fee := range invoice.Fees {
		if feeAuthorized(fee, contractFees) {
			continue
		}
		if fee.Type == "percent" {
			amount += invoice.Subtotal * fee.Amount / 100
		} else {
			amount += fee.Amount
		}
		unauthorized = append(unauthorized, fee.Description)
	}

	if len(unauthorized) == 0 {
		return checkResult{
			passed:     true,
			details:    "All invoice fees are authorized by the contract",
			confidence: 0.85,
		}
	}
	return checkResult{
		passed:     false,
		details:    fmt.Sprintf("Unauthorized fees: %s", strings.Join(unauthorized, ", ")),
		confidence: 0.85,
		discrepancy: &models.Discrepancy{
			Type:          models.DiscrepancyUnauthorizedFee,
			Priority:      models.PriorityHigh,
			Description:   fmt.Sprintf("%d fee(s) not authorized by contract: %s", len(unauthorized), strings.Join(unauthorized, ", ")),
			ExpectedValue: "contract-authorized fees only",
			ActualValue:   strings.Join(unauthorized, ", "),
			Amount:        amount,
		},
	}
}

func feeAuthorized(fee models.Fee, contractFees []models.Fee) bool {
	d := strings.ToLower(fee.Description)
	for _, cf := range contractFees {
		if cf.Type != fee.Type {
			continue
		}
		c := strings.ToLower(cf.Description)
		if d == "" || c == "" {
			continue
		}
		if strings.Contains(d, c) || strings.Contains(c, d) {
			return true
		}
	}
	return false
}

// checkPaymentTerms verifies the due date honors the contract net-days
// window. Missing terms or due date passes trivially at reduced
// confidence.
func checkPaymentTerms(invoice *models.Invoice, terms *models.PaymentTerms) checkResult {
	if terms.NetDays == 0 || invoice.DueDate == nil {
		return checkResult{
			passed:     true,
			details:    "Payment terms not verifiable",
			confidence: 0.7,
		}
	}

	daysDiff := int(invoice.DueDate.Sub(invoice.InvoiceDate).Hours() / 24)
	if daysDiff < terms.NetDays {
		return checkResult{
			passed:     false,
			details:    fmt.Sprintf("Due date allows %d days; contract requires net %d", daysDiff, terms.NetDays),
			confidence: 0.9,
			discrepancy: &models.Discrepancy{
				Type:          models.DiscrepancyOther,
				Priority:      models.PriorityMedium,
				Description:   fmt.Sprintf("Payment window of %d days is shorter than contract net %d terms", daysDiff, terms.NetDays),
				ExpectedValue: fmt.Sprintf("net %d days", terms.NetDays),
				ActualValue:   fmt.Sprintf("%d days", daysDiff),
				Amount:        0,
			},
		}
	}
	return checkResult{
		passed:     true,
		details:    fmt.Sprintf("Due date honors net %d payment terms", terms.NetDays),
		confidence: 0.9,
	}
}

// checkDates verifies the invoice date falls inside the contract period.
// Out-of-period-after carries the full invoice amount; before the
// effective date carries no amount.
func checkDates(invoice *models.Invoice, contract *models.Contract) checkResult {
	if invoice.InvoiceDate.Before(contract.EffectiveDate) {
		return checkResult{
			passed:     false,
			details:    "Invoice predates contract effective date",
			confidence: 1.0,
			discrepancy: &models.Discrepancy{
				Type:          models.DiscrepancyDateMismatch,
				Priority:      models.PriorityCritical,
				Description:   "Invoice is dated before the contract effective date",
				ExpectedValue: fmt.Sprintf("on or after %s", contract.EffectiveDate.Format(time.DateOnly)),
				ActualValue:   invoice.InvoiceDate.Format(time.DateOnly),
				Amount:        0,
			},
		}
	}
	if contract.EndDate != nil && invoice.InvoiceDate.After(*contract.EndDate) {
		return checkResult{
			passed:     false,
			details:    "Invoice postdates contract end date",
			confidence: 1.0,
			discrepancy: &models.Discrepancy{
				Type:          models.DiscrepancyDateMismatch,
				Priority:      models.PriorityCritical,
				Description:   "Invoice is dated after the contract end date",
				ExpectedValue: fmt.Sprintf("on or before %s", contract.EndDate.Format(time.DateOnly)),
				ActualValue:   invoice.InvoiceDate.Format(time.DateOnly),
				Amount:        invoice.TotalAmount,
			},
		}
	}
	return checkResult{
		passed:     true,
		details:    "Invoice date falls within the contract period",
		confidence: 1.0,
	}
}

// rationale produces the report narrative. Clean reports get the fixed
// string; narrative service failure degrades to a templated fallback
// instead of failing reconciliation.
func (e *Engine) rationale(ctx context.Context, report *models.ReconciliationReport) string {
	if !report.HasDiscrepancies {
		return NoDiscrepancyRationale
	}

	var critical, high int
	for _, d := range report.Discrepancies {
		switch d.Priority {
		case models.PriorityCritical:
			critical++
		case models.PriorityHigh:
			high++
		}
	}
	contextText := fmt.Sprintf(
		"Invoice reconciliation found %d discrepancies totaling $%.2f (%d critical, %d high priority)",
		len(report.Discrepancies), report.TotalDiscrepancyAmount, critical, high)

	narrative, err := e.client.Explain(ctx, map[string]any{
		"discrepancies": report.Discrepancies,
		"checklist":     report.Checklist,
	}, contextText)
	if err != nil {
		e.logger.Warn("Narrative generation failed, using fallback",
			zap.String("invoice_id", report.InvoiceID),
			zap.Error(err))
		return fmt.Sprintf(
			"Reconciliation found %d discrepancies totaling $%.2f. %d critical and %d high priority items require review.",
			len(report.Discrepancies), report.TotalDiscrepancyAmount, critical, high)
	}
	return narrative
}
