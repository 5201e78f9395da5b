package models

import "time"

// Vendor is the canonical identity that contracts and invoices hang off.
// It aggregates derived reconciliation metrics but does not own the
// lifecycle of either document type.
type Vendor struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	CanonicalName       string     `json:"canonicalName"`
	BusinessDescription string     `json:"businessDescription,omitempty"`
	Active              bool       `json:"active"`
	TotalInvoices       int        `json:"totalInvoices"`
	TotalDiscrepancies  float64    `json:"totalDiscrepancies"`
	TotalSavings        float64    `json:"totalSavings"`
	DeletedAt           *time.Time `json:"deletedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// VendorStats summarizes a vendor's reconciliation history.
type VendorStats struct {
	TotalInvoices            int     `json:"totalInvoices"`
	ActiveContracts          int     `json:"activeContracts"`
	TotalDiscrepancies       float64 `json:"totalDiscrepancies"`
	TotalSavings             float64 `json:"totalSavings"`
	AverageSavingsPerInvoice float64 `json:"averageSavingsPerInvoice"`
}

// VendorRef is the minimal projection used for embedding-based matching.
type VendorRef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CanonicalName string `json:"canonicalName"`
}
