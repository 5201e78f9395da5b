package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
	"invoice-recon/internal/models"
)

type narrativeStub struct {
	narrative string
	err       error
	contexts  []string
}

func (s *narrativeStub) Explain(ctx context.Context, data any, contextText string) (string, error) {
	s.contexts = append(s.contexts, contextText)
	if s.err != nil {
		return "", s.err
	}
	return s.narrative, nil
}

func (s *narrativeStub) ExtractWithSchema(ctx context.Context, systemPrompt, text string, schema *jsonschema.Schema) (map[string]any, error) {
	return nil, nil
}

func (s *narrativeStub) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, nil
}

func (s *narrativeStub) Model() string { return "stub-model" }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func baseContract() *models.Contract {
	end := date(2025, 1, 1)
	return &models.Contract{
		ID:            "c1",
		VendorID:      "v1",
		Status:        models.ContractStatusActive,
		EffectiveDate: date(2024, 1, 1),
		EndDate:       &end,
		Terms: &models.ContractTerms{
			Rates: []models.Rate{{Description: "consulting services", Rate: 95, Unit: "hour"}},
			Caps:  []models.Cap{{Type: "monthly", Amount: 10000}},
			Fees:  []models.Fee{{Type: "fixed", Description: "setup fee", Amount: 100}},
			PaymentTerms: &models.PaymentTerms{
				NetDays: 30,
			},
		},
	}
}

func baseInvoice() *models.Invoice {
	due := date(2024, 7, 15)
	return &models.Invoice{
		ID:          "i1",
		VendorID:    "v1",
		InvoiceDate: date(2024, 6, 15),
		DueDate:     &due,
		TotalAmount: 3800,
		Subtotal:    3800,
		LineItems: []models.LineItem{
			{Description: "consulting", Quantity: 40, Rate: 95, Unit: "hour", Total: 3800},
		},
	}
}

func TestReconcileRateOverage(t *testing.T) {
	stub := &narrativeStub{narrative: "Billed above the agreed rate."}
	engine := NewEngine(stub, zap.NewNop())

	invoice := baseInvoice()
	invoice.LineItems = []models.LineItem{
		{Description: "consulting", Quantity: 40, Rate: 125, Unit: "hour", Total: 5000},
	}
	invoice.TotalAmount = 5000
	invoice.Subtotal = 5000

	report, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)

	require.True(t, report.HasDiscrepancies)
	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, models.DiscrepancyRateOverage, d.Type)
	assert.Equal(t, models.PriorityHigh, d.Priority)
	assert.InDelta(t, 1200.0, d.Amount, 1e-9)
	assert.InDelta(t, 1200.0, report.TotalDiscrepancyAmount, 1e-9)
	assert.Equal(t, "Billed above the agreed rate.", report.RationaleText)
}

func TestReconcileRateOverageZeroQuantity(t *testing.T) {
	engine := NewEngine(&narrativeStub{narrative: "x"}, zap.NewNop())

	invoice := baseInvoice()
	invoice.LineItems = []models.LineItem{
		{Description: "consulting", Quantity: 0, Rate: 125, Unit: "hour", Total: 0},
	}
	invoice.TotalAmount = 0
	invoice.Subtotal = 0

	report, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)

	// An overbilled rate fails the check even when quantity is 0 and the
	// dollar impact is 0.
	require.True(t, report.HasDiscrepancies)
	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, models.DiscrepancyRateOverage, d.Type)
	assert.Equal(t, 0.0, d.Amount)
	assert.Equal(t, 0.0, report.TotalDiscrepancyAmount)

	for _, item := range report.Checklist {
		if item.Item == "Rate Compliance" {
			assert.False(t, item.Passed)
		}
	}
}

func TestReconcileInvoicePredatesContract(t *testing.T) {
	engine := NewEngine(&narrativeStub{narrative: "x"}, zap.NewNop())

	invoice := baseInvoice()
	invoice.InvoiceDate = date(2024, 1, 1)
	invoice.DueDate = nil

	contract := baseContract()
	contract.EffectiveDate = date(2024, 2, 1)

	report, err := engine.Reconcile(context.Background(), invoice, contract)
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, models.DiscrepancyDateMismatch, d.Type)
	assert.Equal(t, models.PriorityCritical, d.Priority)
	assert.Equal(t, 0.0, d.Amount)
}

func TestReconcileMonthlyCapExceeded(t *testing.T) {
	engine := NewEngine(&narrativeStub{narrative: "x"}, zap.NewNop())

	invoice := baseInvoice()
	invoice.LineItems = nil
	invoice.TotalAmount = 1200
	invoice.Subtotal = 1200

	contract := baseContract()
	contract.Terms.Rates = nil
	contract.Terms.Caps = []models.Cap{{Type: "monthly", Amount: 1000}}

	report, err := engine.Reconcile(context.Background(), invoice, contract)
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, models.DiscrepancyMissingCap, d.Type)
	assert.Equal(t, models.PriorityCritical, d.Priority)
	assert.InDelta(t, 200.0, d.Amount, 1e-9)
}

func TestReconcileCapFirstViolationOnly(t *testing.T) {
	engine := NewEngine(&narrativeStub{narrative: "x"}, zap.NewNop())

	invoice := baseInvoice()
	invoice.TotalAmount = 5000

	contract := baseContract()
	contract.Terms.Caps = []models.Cap{
		{Type: "annual", Amount: 100}, // not a monthly cap, skipped
		{Type: "monthly", Amount: 4000},
		{Type: "monthly", Amount: 4500},
	}

	report, err := engine.Reconcile(context.Background(), invoice, contract)
	require.NoError(t, err)

	var capDiscrepancies []models.Discrepancy
	for _, d := range report.Discrepancies {
		if d.Type == models.DiscrepancyMissingCap {
			capDiscrepancies = append(capDiscrepancies, d)
		}
	}
	require.Len(t, capDiscrepancies, 1)
	assert.InDelta(t, 1000.0, capDiscrepancies[0].Amount, 1e-9)
}

func TestReconcileCleanInvoice(t *testing.T) {
	stub := &narrativeStub{narrative: "should not be used"}
	engine := NewEngine(stub, zap.NewNop())

	report, err := engine.Reconcile(context.Background(), baseInvoice(), baseContract())
	require.NoError(t, err)

	assert.False(t, report.HasDiscrepancies)
	assert.Equal(t, 0.0, report.TotalDiscrepancyAmount)
	assert.Empty(t, report.Discrepancies)
	assert.Equal(t, NoDiscrepancyRationale, report.RationaleText)
	assert.Empty(t, stub.contexts, "narrative service must not be called for clean invoices")

	// One item per applicable category plus the date check.
	require.Len(t, report.Checklist, 5)
	for _, item := range report.Checklist {
		assert.True(t, item.Passed, item.Item)
	}
}

func TestReconcileUnauthorizedFees(t *testing.T) {
	engine := NewEngine(&narrativeStub{narrative: "x"}, zap.NewNop())

	invoice := baseInvoice()
	invoice.Fees = []models.Fee{
		{Type: "fixed", Description: "setup fee", Amount: 100},     // authorized
		{Type: "percent", Description: "fuel surcharge", Amount: 2}, // 2% of 3800
		{Type: "fixed", Description: "handling", Amount: 50},
	}

	report, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)

	var feeDiscrepancy *models.Discrepancy
	for i := range report.Discrepancies {
		if report.Discrepancies[i].Type == models.DiscrepancyUnauthorizedFee {
			feeDiscrepancy = &report.Discrepancies[i]
		}
	}
	require.NotNil(t, feeDiscrepancy)
	assert.Equal(t, models.PriorityHigh, feeDiscrepancy.Priority)
	assert.InDelta(t, 3800*0.02+50, feeDiscrepancy.Amount, 1e-9)
}

func TestReconcilePaymentTermsViolation(t *testing.T) {
	engine := NewEngine(&narrativeStub{narrative: "x"}, zap.NewNop())

	invoice := baseInvoice()
	due := invoice.InvoiceDate.AddDate(0, 0, 15)
	invoice.DueDate = &due

	report, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)

	var found *models.Discrepancy
	for i := range report.Discrepancies {
		if report.Discrepancies[i].Type == models.DiscrepancyOther {
			found = &report.Discrepancies[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, models.PriorityMedium, found.Priority)
	assert.Equal(t, 0.0, found.Amount)
}

func TestReconcilePaymentTermsMissingDueDatePasses(t *testing.T) {
	engine := NewEngine(&narrativeStub{narrative: "x"}, zap.NewNop())

	invoice := baseInvoice()
	invoice.DueDate = nil

	report, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)

	for _, item := range report.Checklist {
		if item.Item == "Payment Terms" {
			assert.True(t, item.Passed)
			assert.Equal(t, 0.7, item.Confidence)
			return
		}
	}
	t.Fatal("payment terms checklist item missing")
}

func TestReconcileAfterEndDateCarriesFullAmount(t *testing.T) {
	engine := NewEngine(&narrativeStub{narrative: "x"}, zap.NewNop())

	invoice := baseInvoice()
	invoice.InvoiceDate = date(2025, 3, 1)
	invoice.DueDate = nil

	report, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)

	var found *models.Discrepancy
	for i := range report.Discrepancies {
		if report.Discrepancies[i].Type == models.DiscrepancyDateMismatch {
			found = &report.Discrepancies[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, invoice.TotalAmount, found.Amount)
}

func TestReconcileNarrativeFallback(t *testing.T) {
	stub := &narrativeStub{err: apperr.ServiceUnavailable("AI provider not configured")}
	engine := NewEngine(stub, zap.NewNop())

	invoice := baseInvoice()
	invoice.LineItems[0].Rate = 125
	report, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)

	assert.Contains(t, report.RationaleText, "Reconciliation found 1 discrepancies")
	assert.Contains(t, report.RationaleText, "$1200.00")
}

func TestReconcileNarrativeContextString(t *testing.T) {
	stub := &narrativeStub{narrative: "ok"}
	engine := NewEngine(stub, zap.NewNop())

	invoice := baseInvoice()
	invoice.LineItems[0].Rate = 125
	_, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)

	require.Len(t, stub.contexts, 1)
	assert.Equal(t,
		"Invoice reconciliation found 1 discrepancies totaling $1200.00 (0 critical, 1 high priority)",
		stub.contexts[0])
}

func TestReconcileDeterminism(t *testing.T) {
	engine := NewEngine(&narrativeStub{narrative: "x"}, zap.NewNop())

	invoice := baseInvoice()
	invoice.LineItems[0].Rate = 125
	invoice.Fees = []models.Fee{{Type: "fixed", Description: "handling", Amount: 50}}

	first, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)
	second, err := engine.Reconcile(context.Background(), invoice, baseContract())
	require.NoError(t, err)

	assert.Equal(t, first.Discrepancies, second.Discrepancies)
	assert.Equal(t, first.Checklist, second.Checklist)
	assert.Equal(t, first.TotalDiscrepancyAmount, second.TotalDiscrepancyAmount)
}
