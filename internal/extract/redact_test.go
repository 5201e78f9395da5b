package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "ssn",
			in:   "Employee SSN 123-45-6789 on file.",
			want: "Employee SSN [REDACTED-SSN] on file.",
		},
		{
			name: "email",
			in:   "Contact billing@acme-corp.com with questions.",
			want: "Contact [REDACTED-EMAIL] with questions.",
		},
		{
			name: "phone with dashes",
			in:   "Call 555-867-5309 for support.",
			want: "Call [REDACTED-PHONE] for support.",
		},
		{
			name: "phone with dots",
			in:   "Fax 555.867.5309 anytime.",
			want: "Fax [REDACTED-PHONE] anytime.",
		},
		{
			name: "multiple patterns",
			in:   "SSN 321-54-9876, email a.b@c.io, phone 800-555-1212.",
			want: "SSN [REDACTED-SSN], email [REDACTED-EMAIL], phone [REDACTED-PHONE].",
		},
		{
			name: "clean text untouched",
			in:   "Net 30 payment terms apply to all invoices.",
			want: "Net 30 payment terms apply to all invoices.",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Redact(tt.in))
		})
	}
}

func TestRedactIdempotent(t *testing.T) {
	inputs := []string{
		"SSN 123-45-6789, email ap@vendor.net, phone 555-123-4567.",
		"No sensitive data here at all.",
		"",
	}
	for _, in := range inputs {
		once := Redact(in)
		assert.Equal(t, once, Redact(once))
	}
}
