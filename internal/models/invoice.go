package models

import "time"

// InvoiceStatus is the lifecycle state of an invoice document.
type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "pending"
	InvoiceStatusReconciled InvoiceStatus = "reconciled"
	InvoiceStatusFlagged    InvoiceStatus = "flagged"
	InvoiceStatusApproved   InvoiceStatus = "approved"
	InvoiceStatusRejected   InvoiceStatus = "rejected"
)

// LineItem is a single billed row on an invoice.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Unit        string  `json:"unit"`
	Total       float64 `json:"total"`
}

// Invoice is a vendor bill reconciled against the vendor's active contract.
type Invoice struct {
	ID            string           `json:"id"`
	VendorID      string           `json:"vendorId"`
	InvoiceNumber string           `json:"invoiceNumber"`
	InvoiceDate   time.Time        `json:"invoiceDate"`
	DueDate       *time.Time       `json:"dueDate,omitempty"`
	FileKey       string           `json:"fileKey"`
	FileName      string           `json:"fileName"`
	Status        InvoiceStatus    `json:"status"`
	TotalAmount   float64          `json:"totalAmount"`
	Subtotal      float64          `json:"subtotal"`
	TaxAmount     *float64         `json:"taxAmount,omitempty"`
	LineItems     []LineItem       `json:"lineItems"`
	Fees          []Fee            `json:"fees,omitempty"`
	ExtractedText string           `json:"-"`
	Metadata      DocumentMetadata `json:"metadata"`
	DeletedAt     *time.Time       `json:"deletedAt,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}
