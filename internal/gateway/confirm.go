package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/core"
	"github.com/Fantasim/paysync/internal/validate"
)

// ConfirmRequest is the storefront's confirmation submission.
type ConfirmRequest struct {
	InvoiceID     string `json:"invoiceId"`
	TxHash        string `json:"txHash"`
	WalletAddress string `json:"walletAddress"`
	PayCurrency   string `json:"payCurrency,omitempty"`
	Network       string `json:"network"`
}

// ConfirmResult is a successful confirmation. Backend is the Core payload.
type ConfirmResult struct {
	InvoiceID string
	Backend   any
}

// DecodeConfirmRequest reads a JSON confirm body. Malformed JSON is a
// bad_request.
func DecodeConfirmRequest(r io.Reader) (ConfirmRequest, error) {
	var req ConfirmRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return ConfirmRequest{}, badRequest("request body must be a JSON object", err)
	}
	return req, nil
}

// normalize trims every field. The network is forwarded as the caller spelled
// it; validation matches it case-insensitively.
func (r ConfirmRequest) normalize() ConfirmRequest {
	return ConfirmRequest{
		InvoiceID:     strings.TrimSpace(r.InvoiceID),
		TxHash:        strings.TrimSpace(r.TxHash),
		WalletAddress: strings.TrimSpace(r.WalletAddress),
		PayCurrency:   strings.TrimSpace(r.PayCurrency),
		Network:       strings.TrimSpace(r.Network),
	}
}

// validateConfirm checks fields in a fixed order so the first problem is the
// one reported.
func validateConfirm(r ConfirmRequest) error {
	checks := []func() error{
		func() error { _, err := validate.InvoiceID(r.InvoiceID); return err },
		func() error { return validate.TxHash(r.TxHash) },
		func() error {
			if r.WalletAddress == "" {
				return &validate.FieldError{Field: "walletAddress", Message: "walletAddress is required"}
			}
			return nil
		},
		func() error { _, err := validate.Network(r.Network); return err },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			var fe *validate.FieldError
			if errors.As(err, &fe) {
				return badRequest(fe.Message, err)
			}
			return badRequest(err.Error(), err)
		}
	}
	return nil
}

// Confirm runs the two-phase write: a best-effort detection hint, then the
// mandatory confirmation. Only the second phase can fail the call.
func (g *Gateway) Confirm(ctx context.Context, in ConfirmRequest) (*ConfirmResult, error) {
	req := in.normalize()
	if err := validateConfirm(req); err != nil {
		return nil, err
	}
	if err := g.checkConfig(true); err != nil {
		return nil, err
	}

	// The Core owns address checks; a bad format is only worth a warning.
	if err := validate.WalletAddress(req.Network, req.WalletAddress); err != nil {
		slog.Warn("wallet address does not match network format, forwarding anyway",
			"invoiceId", req.InvoiceID,
			"network", req.Network,
			"error", err,
		)
	}

	g.markDetected(ctx, req)

	resp, err := g.upstream.ConfirmTransaction(ctx, req.InvoiceID, core.Confirmation{
		TxHash:        req.TxHash,
		WalletAddress: req.WalletAddress,
		PayCurrency:   req.PayCurrency,
		Network:       req.Network,
	})
	if err != nil {
		slog.Error("confirm call failed",
			"invoiceId", req.InvoiceID,
			"error", err,
		)
		return nil, networkError(err)
	}
	if !resp.OK() {
		slog.Warn("core rejected confirmation",
			"invoiceId", req.InvoiceID,
			"txHash", req.TxHash,
			"backendStatus", resp.StatusCode,
		)
		return nil, coreError(resp)
	}

	slog.Info("transaction confirmed",
		"invoiceId", req.InvoiceID,
		"txHash", req.TxHash,
		"network", req.Network,
	)

	return &ConfirmResult{InvoiceID: req.InvoiceID, Backend: resp.Payload}, nil
}

// markDetected never fails the caller; problems are logged and dropped.
func (g *Gateway) markDetected(ctx context.Context, req ConfirmRequest) {
	resp, err := g.upstream.MarkDetected(ctx, core.DetectedTx{
		InvoiceID:     req.InvoiceID,
		TxHash:        req.TxHash,
		WalletAddress: req.WalletAddress,
		Network:       req.Network,
	})
	if err != nil {
		slog.Warn("detection call failed, continuing with confirm",
			"invoiceId", req.InvoiceID,
			"error", err,
		)
		return
	}
	if !resp.OK() {
		slog.Warn("core rejected detection, continuing with confirm",
			"invoiceId", req.InvoiceID,
			"backendStatus", resp.StatusCode,
			"details", Truncate(string(resp.Body), config.CoreDiagnosticsMaxChars),
		)
		return
	}
	slog.Debug("transaction marked detected", "invoiceId", req.InvoiceID)
}
