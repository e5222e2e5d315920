package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/httputil"
	"github.com/Fantasim/paysync/internal/models"
	"github.com/Fantasim/paysync/internal/poller"
	"github.com/Fantasim/paysync/internal/store"
	"github.com/Fantasim/paysync/internal/validate"
)

type sessionResponse struct {
	OK      bool          `json:"ok"`
	Session poller.Update `json:"session"`
}

type sessionListResponse struct {
	OK       bool            `json:"ok"`
	Sessions []poller.Update `json:"sessions"`
	Active   int             `json:"active"`
	Max      int             `json:"max"`
}

type cancelResponse struct {
	OK        bool   `json:"ok"`
	InvoiceID string `json:"invoiceId"`
}

// TrackHandler returns a handler for POST /api/track. Fields the caller
// leaves out are filled from a stored demo seed with the same id.
func TrackHandler(tracker *poller.Tracker, s store.InvoiceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes)

		var seed models.Seed
		if err := json.NewDecoder(r.Body).Decode(&seed); err != nil {
			httputil.Error(w, http.StatusBadRequest, config.ErrorBadRequest, "request body must be a JSON object")
			return
		}
		seed.InvoiceID = strings.TrimSpace(seed.InvoiceID)

		if seed.InvoiceID != "" {
			stored, found, err := s.Get(r.Context(), seed.InvoiceID)
			if err != nil {
				slog.Warn("seed lookup failed, tracking with request fields only",
					"invoiceId", seed.InvoiceID,
					"error", err,
				)
			} else if found {
				seed = fillSeed(seed, *stored)
			}
		}

		u, err := tracker.Track(seed)
		if err != nil {
			writeTrackerError(w, err)
			return
		}
		httputil.JSON(w, http.StatusAccepted, sessionResponse{OK: true, Session: u})
	}
}

// ListTrackedHandler returns a handler for GET /api/track.
func ListTrackedHandler(tracker *poller.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.NoStore(w)
		httputil.JSON(w, http.StatusOK, sessionListResponse{
			OK:       true,
			Sessions: tracker.List(),
			Active:   tracker.ActiveCount(),
			Max:      tracker.MaxSessions(),
		})
	}
}

// GetTrackedHandler returns a handler for GET /api/track/{id}.
func GetTrackedHandler(tracker *poller.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := tracker.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeTrackerError(w, err)
			return
		}
		httputil.NoStore(w)
		httputil.JSON(w, http.StatusOK, sessionResponse{OK: true, Session: u})
	}
}

// CancelTrackedHandler returns a handler for DELETE /api/track/{id}.
func CancelTrackedHandler(tracker *poller.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := tracker.Cancel(id); err != nil {
			writeTrackerError(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, cancelResponse{OK: true, InvoiceID: id})
	}
}

func writeTrackerError(w http.ResponseWriter, err error) {
	var fe *validate.FieldError
	switch {
	case errors.As(err, &fe):
		httputil.Error(w, http.StatusBadRequest, config.ErrorBadRequest, fe.Message)
	case errors.Is(err, config.ErrSessionNotFound):
		httputil.Error(w, http.StatusNotFound, config.ErrorNotFound, err.Error())
	case errors.Is(err, config.ErrAlreadyTracking):
		httputil.Error(w, http.StatusConflict, config.ErrorAlreadyTracked, err.Error())
	case errors.Is(err, config.ErrMaxSessions):
		httputil.Error(w, http.StatusTooManyRequests, config.ErrorMaxSessions, err.Error())
	default:
		slog.Error("tracker request failed", "error", err)
		httputil.Error(w, http.StatusServiceUnavailable, config.ErrorInternal, err.Error())
	}
}

// fillSeed copies stored values into the fields req left empty.
func fillSeed(req, stored models.Seed) models.Seed {
	if req.FiatAmount == nil {
		req.FiatAmount = stored.FiatAmount
	}
	if req.FiatCurrency == nil {
		req.FiatCurrency = stored.FiatCurrency
	}
	if req.CryptoAmount == nil {
		req.CryptoAmount = stored.CryptoAmount
	}
	if req.CryptoCurrency == nil {
		req.CryptoCurrency = stored.CryptoCurrency
	}
	if req.Network == nil {
		req.Network = stored.Network
	}
	if req.ExpiresAt == nil {
		req.ExpiresAt = stored.ExpiresAt
	}
	if req.RedirectURL == "" {
		req.RedirectURL = stored.RedirectURL
	}
	if req.CreatedAt == "" {
		req.CreatedAt = stored.CreatedAt
	}
	return req
}
