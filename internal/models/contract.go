package models

import "time"

// ContractStatus is the lifecycle state of a contract document.
type ContractStatus string

const (
	ContractStatusActive      ContractStatus = "active"
	ContractStatusInactive    ContractStatus = "inactive"
	ContractStatusNeedsReview ContractStatus = "needs_review"
	ContractStatusExpired     ContractStatus = "expired"
)

// Rate is a contractually agreed unit price for a class of work.
type Rate struct {
	Description string  `json:"description"`
	Rate        float64 `json:"rate"`
	Unit        string  `json:"unit,omitempty"`
}

// Cap limits spend over a billing window.
type Cap struct {
	Type        string  `json:"type"` // monthly, annual, per_project
	Description string  `json:"description,omitempty"`
	Amount      float64 `json:"amount"`
}

// Fee is a charge the contract authorizes on top of line items.
type Fee struct {
	Type        string  `json:"type"` // percent or fixed
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// PaymentTerms captures how quickly invoices must be paid.
type PaymentTerms struct {
	NetDays         int     `json:"netDays,omitempty"`
	DiscountPercent float64 `json:"discountPercent,omitempty"`
	DiscountDays    int     `json:"discountDays,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

// ContractTerms is the structured payload extracted from a contract.
// Validated against a schema at the AI boundary; typed internally.
type ContractTerms struct {
	Rates             []Rate        `json:"rates"`
	Caps              []Cap         `json:"caps"`
	Fees              []Fee         `json:"fees"`
	EscalationClauses []string      `json:"escalationClauses"`
	PaymentTerms      *PaymentTerms `json:"paymentTerms,omitempty"`
	BillingCycle      string        `json:"billingCycle,omitempty"`
	LateFees          *Fee          `json:"lateFees,omitempty"`
}

// DocumentMetadata records how a document was processed.
type DocumentMetadata struct {
	ExtractionMethod string  `json:"extractionMethod,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	AIModel          string  `json:"aiModel,omitempty"`
	ProcessingTimeMs int64   `json:"processingTimeMs,omitempty"`
	TextHash         string  `json:"textHash,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Contract is a vendor agreement governing invoice reconciliation.
// At most one contract per vendor holds ContractStatusActive at a time.
type Contract struct {
	ID            string           `json:"id"`
	VendorID      string           `json:"vendorId"`
	FileKey       string           `json:"fileKey"`
	FileName      string           `json:"fileName"`
	Status        ContractStatus   `json:"status"`
	EffectiveDate time.Time        `json:"effectiveDate"`
	RenewalDate   *time.Time       `json:"renewalDate,omitempty"`
	EndDate       *time.Time       `json:"endDate,omitempty"`
	Terms         *ContractTerms   `json:"terms,omitempty"`
	ExtractedText string           `json:"-"`
	Metadata      DocumentMetadata `json:"metadata"`
	DeletedAt     *time.Time       `json:"deletedAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}
