package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"invoice-recon/internal/models"
)

// ContractExtraction is the structured result of extracting a contract
// document, before date derivation.
type ContractExtraction struct {
	VendorName          string
	BusinessDescription string
	EffectiveDate       string
	RenewalDate         string
	EndDate             string
	Duration            string
	Terms               models.ContractTerms
	Confidence          float64
}

// ContractDates is the derived date set for a contract.
type ContractDates struct {
	EffectiveDate time.Time
	RenewalDate   *time.Time
	EndDate       *time.Time
}

// ContractExtractor turns redacted contract text into structured terms,
// chunking long documents and merging per-chunk results.
type ContractExtractor struct {
	client    Client
	maxTokens int
	overlap   int
	logger    *zap.Logger
}

// NewContractExtractor creates a contract extractor with default chunking.
func NewContractExtractor(client Client, logger *zap.Logger) *ContractExtractor {
	return &ContractExtractor{
		client:    client,
		maxTokens: DefaultMaxTokens,
		overlap:   DefaultOverlap,
		logger:    logger,
	}
}

// Extract runs schema-constrained extraction over the text. Text beyond
// the token budget is split into overlapping chunks extracted
// concurrently; merge order is chunk-index order, so results are
// reproducible regardless of completion order.
func (e *ContractExtractor) Extract(ctx context.Context, text string) (*ContractExtraction, error) {
	chunks := ChunkText(text, e.maxTokens, e.overlap)

	if len(chunks) == 1 {
		raw, err := e.client.ExtractWithSchema(ctx, contractSystemPrompt, chunks[0], contractSchema)
		if err != nil {
			return nil, err
		}
		return decodeContractExtraction(raw)
	}

	e.logger.Debug("Extracting contract in chunks", zap.Int("chunks", len(chunks)))

	results := make([]map[string]any, len(chunks))
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(i int, chunk string) {
			defer wg.Done()
			results[i], errs[i] = e.client.ExtractWithSchema(ctx, contractSystemPrompt, chunk, contractSchema)
		}(i, chunk)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return decodeContractExtraction(mergeContractResults(results))
}

// mergeContractResults folds per-chunk extraction objects in chunk order:
// scalar fields keep the first non-empty value, array fields concatenate
// without dedup, paymentTerms shallow-merges with later chunks winning,
// and confidence is the arithmetic mean.
func mergeContractResults(results []map[string]any) map[string]any {
	merged := map[string]any{
		"terms": map[string]any{
			"rates":             []any{},
			"caps":              []any{},
			"fees":              []any{},
			"escalationClauses": []any{},
			"paymentTerms":      map[string]any{},
		},
	}
	mergedTerms := merged["terms"].(map[string]any)

	var confidenceSum float64
	for _, result := range results {
		for _, key := range []string{"vendorName", "businessDescription", "effectiveDate", "renewalDate", "endDate", "duration"} {
			if value := getString(result, key); value != "" && getString(merged, key) == "" {
				merged[key] = value
			}
		}

		terms := getMap(result, "terms")
		for _, key := range []string{"rates", "caps", "fees", "escalationClauses"} {
			existing := mergedTerms[key].([]any)
			mergedTerms[key] = append(existing, getSlice(terms, key)...)
		}
		if pt := getMap(terms, "paymentTerms"); len(pt) > 0 {
			target := mergedTerms["paymentTerms"].(map[string]any)
			for k, v := range pt {
				target[k] = v
			}
		}
		if cycle := getString(terms, "billingCycle"); cycle != "" && getString(mergedTerms, "billingCycle") == "" {
			mergedTerms["billingCycle"] = cycle
		}
		if late := getMap(terms, "lateFees"); len(late) > 0 {
			mergedTerms["lateFees"] = late
		}

		confidenceSum += getFloat(result, "confidence")
	}

	if len(results) > 0 {
		merged["confidence"] = confidenceSum / float64(len(results))
	}
	return merged
}

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(year|month|day)`)

// CalculateDates derives end/renewal dates from the extraction. A parsed
// duration yields endDate = effectiveDate + n units and a renewal date
// 30 days before the end; explicit extracted dates always override.
func (e *ContractExtractor) CalculateDates(extraction *ContractExtraction) (*ContractDates, error) {
	effective, err := ParseDate(extraction.EffectiveDate)
	if err != nil {
		return nil, fmt.Errorf("parse effective date %q: %w", extraction.EffectiveDate, err)
	}

	dates := &ContractDates{EffectiveDate: effective}

	if match := durationPattern.FindStringSubmatch(extraction.Duration); match != nil {
		amount, _ := strconv.Atoi(match[1])
		var end time.Time
		switch strings.ToLower(match[2]) {
		case "year":
			end = effective.AddDate(amount, 0, 0)
		case "month":
			end = effective.AddDate(0, amount, 0)
		case "day":
			end = effective.AddDate(0, 0, amount)
		}
		renewal := end.AddDate(0, 0, -30)
		dates.EndDate = &end
		dates.RenewalDate = &renewal
	}

	if extraction.RenewalDate != "" {
		if renewal, err := ParseDate(extraction.RenewalDate); err == nil {
			dates.RenewalDate = &renewal
		}
	}
	if extraction.EndDate != "" {
		if end, err := ParseDate(extraction.EndDate); err == nil {
			dates.EndDate = &end
		}
	}
	return dates, nil
}

// decodeContractExtraction converts a validated extraction object into
// the typed result, coercing loosely-shaped term entries.
func decodeContractExtraction(raw map[string]any) (*ContractExtraction, error) {
	extraction := &ContractExtraction{
		VendorName:          getString(raw, "vendorName"),
		BusinessDescription: getString(raw, "businessDescription"),
		EffectiveDate:       getString(raw, "effectiveDate"),
		RenewalDate:         getString(raw, "renewalDate"),
		EndDate:             getString(raw, "endDate"),
		Duration:            getString(raw, "duration"),
		Confidence:          getFloat(raw, "confidence"),
	}

	terms := getMap(raw, "terms")
	extraction.Terms = models.ContractTerms{
		Rates:             decodeRates(getSlice(terms, "rates")),
		Caps:              decodeCaps(getSlice(terms, "caps")),
		Fees:              decodeFees(getSlice(terms, "fees")),
		EscalationClauses: decodeClauses(getSlice(terms, "escalationClauses")),
		BillingCycle:      getString(terms, "billingCycle"),
	}
	if pt := getMap(terms, "paymentTerms"); len(pt) > 0 {
		extraction.Terms.PaymentTerms = &models.PaymentTerms{
			NetDays:         int(getFloat(pt, "netDays")),
			DiscountPercent: getFloat(pt, "discountPercent"),
			DiscountDays:    int(getFloat(pt, "discountDays")),
			Notes:           getString(pt, "notes"),
		}
	}
	if late := getMap(terms, "lateFees"); len(late) > 0 {
		extraction.Terms.LateFees = &models.Fee{
			Type:        normalizeFeeType(getString(late, "type")),
			Description: getString(late, "description"),
			Amount:      getFloat(late, "amount"),
		}
	}
	return extraction, nil
}

func decodeRates(entries []any) []models.Rate {
	rates := make([]models.Rate, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		rates = append(rates, models.Rate{
			Description: getString(m, "description"),
			Rate:        getFloat(m, "rate"),
			Unit:        getString(m, "unit"),
		})
	}
	return rates
}

func decodeCaps(entries []any) []models.Cap {
	caps := make([]models.Cap, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		caps = append(caps, models.Cap{
			Type:        getString(m, "type"),
			Description: getString(m, "description"),
			Amount:      getFloat(m, "amount"),
		})
	}
	return caps
}

func decodeFees(entries []any) []models.Fee {
	fees := make([]models.Fee, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		fees = append(fees, models.Fee{
			Type:        normalizeFeeType(getString(m, "type")),
			Description: getString(m, "description"),
			Amount:      getFloat(m, "amount"),
		})
	}
	return fees
}

func decodeClauses(entries []any) []string {
	clauses := make([]string, 0, len(entries))
	for _, entry := range entries {
		switch v := entry.(type) {
		case string:
			clauses = append(clauses, v)
		case map[string]any:
			if desc := getString(v, "description"); desc != "" {
				clauses = append(clauses, desc)
			} else if encoded, err := json.Marshal(v); err == nil {
				clauses = append(clauses, string(encoded))
			}
		}
	}
	return clauses
}

func normalizeFeeType(t string) string {
	if t == "percent" {
		return "percent"
	}
	return "fixed"
}

// Loose accessors over validated-but-untyped extraction payloads.

func getString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func getFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return 0
}

func getMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return nil
}

func getSlice(m map[string]any, key string) []any {
	if v, ok := m[key].([]any); ok {
		return v
	}
	return nil
}

// ParseDate accepts the formats extraction responses actually produce.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		"01/02/2006",
		"1/2/2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", value)
}
