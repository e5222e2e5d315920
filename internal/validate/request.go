// Package validate checks caller-supplied gateway input. Every failure is a
// *FieldError naming the offending field, which the gateway reports as
// bad_request.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// txHashRegex matches 64 hex characters with an optional 0x prefix.
var txHashRegex = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// FieldError is a validation failure for one request field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvoiceID trims id and rejects it when empty.
func InvoiceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &FieldError{Field: "invoiceId", Message: "invoiceId is required"}
	}
	return id, nil
}

// TxHash checks that hash is 64 hex characters, optionally 0x-prefixed.
func TxHash(hash string) error {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &FieldError{Field: "txHash", Message: "txHash is required"}
	}
	if !txHashRegex.MatchString(hash) {
		return &FieldError{Field: "txHash", Message: "txHash must be 64 hex characters, optionally prefixed with 0x"}
	}
	return nil
}

// Network trims a chain identifier and rejects it when empty.
func Network(network string) (string, error) {
	n := NormalizeNetwork(network)
	if n == "" {
		return "", &FieldError{Field: "network", Message: "network is required"}
	}
	return n, nil
}
