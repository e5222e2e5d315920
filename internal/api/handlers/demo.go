package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/httputil"
	"github.com/Fantasim/paysync/internal/models"
	"github.com/Fantasim/paysync/internal/store"
	"github.com/Fantasim/paysync/internal/validate"
)

type createDemoInvoiceRequest struct {
	FiatAmount     *float64 `json:"fiatAmount"`
	FiatCurrency   string   `json:"fiatCurrency"`
	CryptoAmount   *float64 `json:"cryptoAmount"`
	CryptoCurrency string   `json:"cryptoCurrency"`
	Network        string   `json:"network"`
	RedirectURL    string   `json:"redirectUrl"`
}

type demoInvoiceResponse struct {
	OK      bool        `json:"ok"`
	Invoice models.Seed `json:"invoice"`
}

// CreateDemoInvoiceHandler returns a handler for POST /api/demo/invoices.
// It only records a seed for the storefront demo; real invoices are created
// in the Core.
func CreateDemoInvoiceHandler(s store.InvoiceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes)

		var req createDemoInvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Debug("create demo invoice: invalid body", "error", err)
			httputil.Error(w, http.StatusBadRequest, config.ErrorBadRequest, "request body must be a JSON object")
			return
		}
		if req.FiatAmount != nil && *req.FiatAmount <= 0 {
			httputil.Error(w, http.StatusBadRequest, config.ErrorBadRequest, "fiatAmount must be positive")
			return
		}
		if req.CryptoAmount != nil && *req.CryptoAmount <= 0 {
			httputil.Error(w, http.StatusBadRequest, config.ErrorBadRequest, "cryptoAmount must be positive")
			return
		}

		now := time.Now().UTC()
		expiresAt := now.Add(config.DemoInvoiceTTL).Format(time.RFC3339)
		seed := models.Seed{
			InvoiceID:      config.DemoInvoiceIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", ""),
			FiatAmount:     req.FiatAmount,
			FiatCurrency:   optional(strings.ToUpper(strings.TrimSpace(req.FiatCurrency))),
			CryptoAmount:   req.CryptoAmount,
			CryptoCurrency: optional(strings.ToUpper(strings.TrimSpace(req.CryptoCurrency))),
			Network:        optional(validate.NormalizeNetwork(req.Network)),
			ExpiresAt:      &expiresAt,
			RedirectURL:    strings.TrimSpace(req.RedirectURL),
			CreatedAt:      now.Format(time.RFC3339),
		}

		if err := s.Put(r.Context(), seed); err != nil {
			slog.Error("failed to store demo invoice", "invoiceId", seed.InvoiceID, "error", err)
			httputil.Error(w, http.StatusInternalServerError, config.ErrorStoreFailed, "failed to store invoice")
			return
		}

		slog.Info("demo invoice created",
			"invoiceId", seed.InvoiceID,
			"network", req.Network,
			"expiresAt", expiresAt,
		)
		httputil.JSON(w, http.StatusCreated, demoInvoiceResponse{OK: true, Invoice: seed})
	}
}

// GetDemoInvoiceHandler returns a handler for GET /api/demo/invoices/{id}.
func GetDemoInvoiceHandler(s store.InvoiceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		seed, found, err := s.Get(r.Context(), id)
		if err != nil {
			slog.Error("failed to read demo invoice", "invoiceId", id, "error", err)
			httputil.Error(w, http.StatusInternalServerError, config.ErrorStoreFailed, "failed to read invoice")
			return
		}
		if !found {
			httputil.Error(w, http.StatusNotFound, config.ErrorNotFound, "invoice not found: "+id)
			return
		}

		httputil.NoStore(w)
		httputil.JSON(w, http.StatusOK, demoInvoiceResponse{OK: true, Invoice: *seed})
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
