package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/core"
)

// Error is a gateway failure in the shape the storefront consumes. Kind is
// one of the config.Error* kinds; HTTPStatus is the status the caller sees.
type Error struct {
	Kind          string
	HTTPStatus    int
	Message       string
	Details       string
	BackendStatus int

	cause error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func badRequest(msg string, cause error) *Error {
	return &Error{
		Kind:       config.ErrorBadRequest,
		HTTPStatus: http.StatusBadRequest,
		Message:    msg,
		cause:      cause,
	}
}

func configError(missing []string) *Error {
	return &Error{
		Kind:       config.ErrorConfig,
		HTTPStatus: http.StatusInternalServerError,
		Message:    "gateway is missing configuration: " + strings.Join(missing, ", "),
		cause:      config.ErrMissingConfig,
	}
}

// coreError passes a non-2xx Core reply through with its status code.
func coreError(resp *core.Response) *Error {
	return &Error{
		Kind:          config.ErrorPSPCore,
		HTTPStatus:    resp.StatusCode,
		Message:       fmt.Sprintf("payment core returned HTTP %d", resp.StatusCode),
		Details:       Truncate(string(resp.Body), config.CoreDiagnosticsMaxChars),
		BackendStatus: resp.StatusCode,
	}
}

func networkError(err error) *Error {
	return &Error{
		Kind:       config.ErrorNetwork,
		HTTPStatus: http.StatusBadGateway,
		Message:    "payment core unreachable",
		Details:    Truncate(err.Error(), config.CoreDiagnosticsMaxChars),
		cause:      err,
	}
}

// Truncate cuts s to at most max characters without splitting a rune.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
