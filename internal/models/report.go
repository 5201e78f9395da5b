package models

import "time"

// DiscrepancyType classifies a detected mismatch between an invoice and
// its governing contract.
type DiscrepancyType string

const (
	DiscrepancyRateOverage       DiscrepancyType = "rate_overage"
	DiscrepancyMissingCap        DiscrepancyType = "missing_cap"
	DiscrepancyUnauthorizedFee   DiscrepancyType = "unauthorized_fee"
	DiscrepancyIncorrectQuantity DiscrepancyType = "incorrect_quantity"
	DiscrepancyDateMismatch      DiscrepancyType = "date_mismatch"
	DiscrepancyTaxError          DiscrepancyType = "tax_error"
	DiscrepancyOther             DiscrepancyType = "other"
)

// DiscrepancyPriority ranks how urgently a discrepancy needs attention.
type DiscrepancyPriority string

const (
	PriorityLow      DiscrepancyPriority = "low"
	PriorityMedium   DiscrepancyPriority = "medium"
	PriorityHigh     DiscrepancyPriority = "high"
	PriorityCritical DiscrepancyPriority = "critical"
)

// Discrepancy is one billing mismatch with its monetary impact.
// Amount is 0 for non-monetary violations such as date or term issues.
type Discrepancy struct {
	Type          DiscrepancyType     `json:"type"`
	Priority      DiscrepancyPriority `json:"priority"`
	Description   string              `json:"description"`
	ExpectedValue string              `json:"expectedValue"`
	ActualValue   string              `json:"actualValue"`
	Amount        float64             `json:"amount"`
	LineItemIndex *int                `json:"lineItemIndex,omitempty"`
}

// ChecklistItem is one rule evaluation within a reconciliation run,
// recorded whether or not it produced a discrepancy.
type ChecklistItem struct {
	Item       string  `json:"item"`
	Passed     bool    `json:"passed"`
	Details    string  `json:"details"`
	Confidence float64 `json:"confidence"`
}

// ReportMetadata records how a reconciliation run was produced.
type ReportMetadata struct {
	ProcessingTimeMs int64   `json:"processingTimeMs,omitempty"`
	AIModel          string  `json:"aiModel,omitempty"`
	ConfidenceScore  float64 `json:"confidenceScore,omitempty"`
}

// ReconciliationReport is the 1:1 artifact produced when an invoice is
// reconciled against a contract. Created once; never updated in place.
type ReconciliationReport struct {
	ID                     string          `json:"id"`
	InvoiceID              string          `json:"invoiceId"`
	ContractID             string          `json:"contractId"`
	HasDiscrepancies       bool            `json:"hasDiscrepancies"`
	TotalDiscrepancyAmount float64         `json:"totalDiscrepancyAmount"`
	Discrepancies          []Discrepancy   `json:"discrepancies"`
	Checklist              []ChecklistItem `json:"checklist"`
	RationaleText          string          `json:"rationaleText"`
	Metadata               ReportMetadata  `json:"metadata,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}
