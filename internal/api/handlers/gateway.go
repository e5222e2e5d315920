package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/gateway"
	"github.com/Fantasim/paysync/internal/httputil"
)

type statusResponse struct {
	OK      bool `json:"ok"`
	Invoice any  `json:"invoice"`
}

type confirmResponse struct {
	OK        bool   `json:"ok"`
	InvoiceID string `json:"invoiceId"`
	Backend   any    `json:"backend"`
}

// StatusHandler returns a handler for GET /status?invoiceId=.
func StatusHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.Status(r.Context(), r.URL.Query().Get("invoiceId"))
		if err != nil {
			writeGatewayError(w, err)
			return
		}

		httputil.NoStore(w)
		httputil.JSON(w, http.StatusOK, statusResponse{OK: true, Invoice: res.Invoice})
	}
}

// ConfirmHandler returns a handler for POST /confirm.
func ConfirmHandler(g *gateway.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes)

		req, err := gateway.DecodeConfirmRequest(r.Body)
		if err != nil {
			writeGatewayError(w, err)
			return
		}

		res, err := g.Confirm(r.Context(), req)
		if err != nil {
			writeGatewayError(w, err)
			return
		}

		httputil.NoStore(w)
		httputil.JSON(w, http.StatusOK, confirmResponse{
			OK:        true,
			InvoiceID: res.InvoiceID,
			Backend:   res.Backend,
		})
	}
}

// writeGatewayError renders a *gateway.Error with its own status code.
// Anything else is an internal error.
func writeGatewayError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		httputil.ErrorDetails(w, gwErr.HTTPStatus, gwErr.Kind, gwErr.Message, gwErr.Details, gwErr.BackendStatus)
		return
	}
	slog.Error("unexpected gateway failure", "error", err)
	httputil.Error(w, http.StatusInternalServerError, config.ErrorInternal, "internal error")
}
