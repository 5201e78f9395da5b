package ai

import "github.com/santhosh-tekuri/jsonschema/v5"

// Extraction responses are validated at the boundary against these
// schemas; internally the payloads are typed structs.

const contractSchemaJSON = `{
  "type": "object",
  "properties": {
    "vendorName": {"type": "string"},
    "businessDescription": {"type": "string"},
    "effectiveDate": {"type": "string"},
    "renewalDate": {"type": "string"},
    "endDate": {"type": "string"},
    "duration": {"type": "string"},
    "terms": {
      "type": "object",
      "properties": {
        "rates": {"type": "array"},
        "caps": {"type": "array"},
        "fees": {"type": "array"},
        "escalationClauses": {"type": "array"},
        "paymentTerms": {"type": "object"},
        "billingCycle": {"type": "string"},
        "lateFees": {"type": "object"}
      }
    },
    "confidence": {"type": "number"}
  },
  "required": ["vendorName", "effectiveDate", "terms", "confidence"]
}`

const invoiceSchemaJSON = `{
  "type": "object",
  "properties": {
    "vendorName": {"type": "string"},
    "invoiceNumber": {"type": ["string", "number"]},
    "invoiceDate": {"type": "string"},
    "dueDate": {"type": "string"},
    "totalAmount": {"type": "number"},
    "subtotal": {"type": "number"},
    "taxAmount": {"type": "number"},
    "lineItems": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "quantity": {"type": "number"},
          "rate": {"type": "number"},
          "unit": {"type": "string"},
          "total": {"type": "number"}
        },
        "required": ["description", "total"]
      }
    },
    "fees": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string", "enum": ["percent", "fixed"]},
          "description": {"type": "string"},
          "amount": {"type": "number"}
        }
      }
    },
    "confidence": {"type": "number"}
  },
  "required": ["vendorName", "invoiceNumber", "invoiceDate", "totalAmount", "lineItems"]
}`

var (
	contractSchema = jsonschema.MustCompileString("contract_extraction.json", contractSchemaJSON)
	invoiceSchema  = jsonschema.MustCompileString("invoice_parse.json", invoiceSchemaJSON)
)

const contractSystemPrompt = `Extract contract information and return ONLY valid JSON.
Focus on:
1. Vendor name and business description (1-3 words)
2. Contract dates (effective, renewal, end)
3. All monetary terms, rates, caps, fees
4. Payment terms and billing cycles
5. Escalation clauses and late fees

Return confidence score 0-1 for extraction quality.`

const invoiceSystemPrompt = `Extract invoice information and return ONLY valid JSON.
Parse:
1. Vendor name exactly as shown
2. Invoice number, date, and due date
3. Total amount, subtotal, and tax
4. All line items with description, quantity, rate, unit, total
5. Any additional fees (specify if percentage or fixed amount)

Ensure all monetary values are numbers, not strings.
Return confidence score 0-1 for extraction quality.`
