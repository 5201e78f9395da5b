package utils

import (
	"fmt"
	"regexp"
	"strings"
)

const maxVendorNameLength = 200

// ValidateVendorName checks a vendor display name before canonicalization.
func ValidateVendorName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("vendor name must not be empty")
	}
	if len(trimmed) > maxVendorNameLength {
		return fmt.Errorf("vendor name exceeds %d characters", maxVendorNameLength)
	}
	return nil
}

// ValidateAmount validates a monetary amount parsed from a document.
func ValidateAmount(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("amount must not be negative: %.2f", amount)
	}
	return nil
}

// SanitizeString removes control characters from extracted text.
func SanitizeString(s string) string {
	sanitized := regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`).ReplaceAllString(s, "")
	return sanitized
}
