package gateway

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/Fantasim/paysync/internal/models"
	"github.com/Fantasim/paysync/internal/reconcile"
	"github.com/Fantasim/paysync/internal/validate"
)

// wrapperKeys are the keys under which the Core may nest the invoice record.
var wrapperKeys = []string{"invoice", "data"}

// StatusResult is a successful status read. Invoice is the Core payload,
// with status overridden to "expired" when the deadline has passed.
type StatusResult struct {
	Invoice       any
	DerivedExpiry bool
}

// Status fetches one invoice from the Core.
func (g *Gateway) Status(ctx context.Context, invoiceID string) (*StatusResult, error) {
	id, err := validate.InvoiceID(invoiceID)
	if err != nil {
		return nil, badRequest("invoiceId is required", err)
	}
	if err := g.checkConfig(false); err != nil {
		return nil, err
	}

	resp, err := g.upstream.FetchInvoice(ctx, id)
	if err != nil {
		slog.Warn("invoice status fetch failed",
			"invoiceId", id,
			"error", err,
		)
		return nil, networkError(err)
	}
	if !resp.OK() {
		slog.Info("core rejected invoice status read",
			"invoiceId", id,
			"backendStatus", resp.StatusCode,
		)
		return nil, coreError(resp)
	}

	invoice, corrected := ApplyDerivedExpiry(resp.Payload, g.now())
	if corrected {
		slog.Info("invoice past deadline reported as expired",
			"invoiceId", id,
		)
	}

	slog.Debug("invoice status fetched",
		"invoiceId", id,
		"derivedExpiry", corrected,
	)

	return &StatusResult{Invoice: invoice, DerivedExpiry: corrected}, nil
}

// ApplyDerivedExpiry returns payload with its invoice status set to
// "expired" when the record says "waiting" and carries an expiresAt strictly
// before now. The record is found at the top level, or under "invoice" or
// "data" when the Core wraps it. payload itself is never modified; the
// returned value shares everything except the maps on the path to status.
func ApplyDerivedExpiry(payload any, now time.Time) (any, bool) {
	top, ok := payload.(map[string]any)
	if !ok {
		return payload, false
	}

	if _, hasStatus := top["status"]; hasStatus || !hasWrapper(top) {
		record, changed := expireRecord(top, now)
		if !changed {
			return payload, false
		}
		return record, true
	}

	for _, key := range wrapperKeys {
		inner, ok := top[key].(map[string]any)
		if !ok {
			continue
		}
		record, changed := expireRecord(inner, now)
		if !changed {
			return payload, false
		}
		out := maps.Clone(top)
		out[key] = record
		return out, true
	}
	return payload, false
}

func hasWrapper(top map[string]any) bool {
	for _, key := range wrapperKeys {
		if _, ok := top[key].(map[string]any); ok {
			return true
		}
	}
	return false
}

func expireRecord(record map[string]any, now time.Time) (map[string]any, bool) {
	status, _ := record["status"].(string)
	if !strings.EqualFold(strings.TrimSpace(status), string(models.StatusWaiting)) {
		return record, false
	}
	deadline, ok := reconcile.ParseTimestamp(record["expiresAt"])
	if !ok || !deadline.Before(now) {
		return record, false
	}
	out := maps.Clone(record)
	out["status"] = string(models.StatusExpired)
	return out, true
}
