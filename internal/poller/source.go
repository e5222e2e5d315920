package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/gateway"
	"github.com/Fantasim/paysync/internal/models"
)

// StatusSource fetches one snapshot of an invoice. Every error is treated as
// transient by the session.
type StatusSource interface {
	FetchStatus(ctx context.Context, invoiceID string) (models.Snapshot, error)
}

// GatewaySource reads status through an in-process gateway.
type GatewaySource struct {
	Gateway *gateway.Gateway
}

func (s GatewaySource) FetchStatus(ctx context.Context, invoiceID string) (models.Snapshot, error) {
	res, err := s.Gateway.Status(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return snapshotFrom(res.Invoice)
}

// RemoteError is a failure envelope returned by a remote gateway.
type RemoteError struct {
	HTTPStatus int
	Kind       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("status endpoint returned HTTP %d", e.HTTPStatus)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.HTTPStatus, e.Message)
}

// HTTPSource reads status from a remote gateway's GET /status endpoint.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source for the gateway at baseURL. A nil client
// uses one with the Core request timeout.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: config.CoreRequestTimeout}
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// statusEnvelope is the gateway's response body for both outcomes.
type statusEnvelope struct {
	OK      bool   `json:"ok"`
	Invoice any    `json:"invoice"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *HTTPSource) FetchStatus(ctx context.Context, invoiceID string) (models.Snapshot, error) {
	endpoint := s.baseURL + config.GatewayPathStatus + "?invoiceId=" + url.QueryEscape(invoiceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.CoreMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env statusEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		slog.Debug("status endpoint returned non-JSON body",
			"status", resp.StatusCode,
			"bytes", len(body),
		)
		return nil, &RemoteError{HTTPStatus: resp.StatusCode}
	}
	if !env.OK {
		return nil, &RemoteError{HTTPStatus: resp.StatusCode, Kind: env.Error, Message: env.Message}
	}
	return snapshotFrom(env.Invoice)
}

// snapshotFrom turns a status payload into a snapshot, unwrapping the
// record when the Core nests it under "invoice" or "data".
func snapshotFrom(payload any) (models.Snapshot, error) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected status payload of type %T", payload)
	}
	if _, hasStatus := obj["status"]; !hasStatus {
		for _, key := range []string{"invoice", "data"} {
			if inner, ok := obj[key].(map[string]any); ok {
				return models.Snapshot(inner), nil
			}
		}
	}
	return models.Snapshot(obj), nil
}
