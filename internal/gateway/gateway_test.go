package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/core"
)

const (
	validHash   = "0x8d3b6b1e2a6f0c9d4e5f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d"
	validTron   = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	validEVM    = "0xF278cF59F82eDcf871d630F28EcC8056f25C1cdb"
	gatewayTime = "2026-03-01T12:00:00Z"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Port:              8080,
		CoreBaseURL:       baseURL,
		MerchantID:        "m_1",
		APIKey:            "key_1",
		ProviderSecret:    "secret_1",
		CoreRPS:           1000,
		PollIntervalMS:    2500,
		RetryIntervalMS:   3000,
		MaxActiveSessions: 10,
	}
}

// newTestGateway wires a Gateway to a fake Core served by handler, with the
// clock pinned to gatewayTime.
func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := testConfig(server.URL)
	client := core.NewClient(server.Client(), core.Credentials{
		BaseURL:        cfg.CoreBaseURL,
		MerchantID:     cfg.MerchantID,
		APIKey:         cfg.APIKey,
		ProviderSecret: cfg.ProviderSecret,
	}, cfg.CoreRPS)

	g := New(cfg, client)
	now, err := time.Parse(time.RFC3339, gatewayTime)
	require.NoError(t, err)
	g.now = func() time.Time { return now }
	return g
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func requireGatewayError(t *testing.T, err error) *Error {
	t.Helper()
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr), "expected *gateway.Error, got %T: %v", err, err)
	return gwErr
}

// --- Status ---

func TestStatus_PassesInvoiceThrough(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/invoices/inv_1", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"invoiceId":"inv_1","status":"waiting","expiresAt":"2026-03-01T12:10:00Z","confirmations":0}`)
	})

	res, err := g.Status(context.Background(), "  inv_1 ")
	require.NoError(t, err)
	assert.False(t, res.DerivedExpiry)

	inv := res.Invoice.(map[string]any)
	assert.Equal(t, "waiting", inv["status"])
	assert.Equal(t, json.Number("0"), inv["confirmations"])
}

func TestStatus_DerivedExpiry(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus string
		wantFlag   bool
	}{
		{"past deadline", `{"status":"waiting","expiresAt":"2026-03-01T11:59:59Z"}`, "expired", true},
		{"future deadline", `{"status":"waiting","expiresAt":"2026-03-01T12:00:01Z"}`, "waiting", false},
		{"deadline equals now", `{"status":"waiting","expiresAt":"2026-03-01T12:00:00Z"}`, "waiting", false},
		{"epoch millis past", `{"status":"waiting","expiresAt":1772366000000}`, "expired", true},
		{"unparseable deadline", `{"status":"waiting","expiresAt":"soon"}`, "waiting", false},
		{"confirmed untouched", `{"status":"confirmed","expiresAt":"2026-03-01T11:00:00Z"}`, "confirmed", false},
		{"uppercase waiting", `{"status":"WAITING","expiresAt":"2026-03-01T11:00:00Z"}`, "expired", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})

			res, err := g.Status(context.Background(), "inv_1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantFlag, res.DerivedExpiry)
			assert.Equal(t, tt.wantStatus, res.Invoice.(map[string]any)["status"])
		})
	}
}

func TestStatus_DerivedExpiryInsideWrapper(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"ok":true,"invoice":{"status":"waiting","expiresAt":"2026-03-01T11:00:00Z"}}`)
	})

	res, err := g.Status(context.Background(), "inv_1")
	require.NoError(t, err)
	assert.True(t, res.DerivedExpiry)

	wrapped := res.Invoice.(map[string]any)
	assert.Equal(t, true, wrapped["ok"])
	assert.Equal(t, "expired", wrapped["invoice"].(map[string]any)["status"])
}

func TestApplyDerivedExpiry_DoesNotMutateInput(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inner := map[string]any{"status": "waiting", "expiresAt": "2026-03-01T11:00:00Z"}
	payload := map[string]any{"data": inner}

	out, changed := ApplyDerivedExpiry(payload, now)
	require.True(t, changed)

	assert.Equal(t, "waiting", inner["status"], "upstream record must not change")
	assert.Same(t, inner, payload["data"].(map[string]any))
	assert.Equal(t, "expired", out.(map[string]any)["data"].(map[string]any)["status"])
}

func TestApplyDerivedExpiry_NonObjectPayload(t *testing.T) {
	out, changed := ApplyDerivedExpiry("plain text", time.Now())
	assert.False(t, changed)
	assert.Equal(t, "plain text", out)
}

func TestStatus_NotFoundPassThrough(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":"not found"}`)
	})

	_, err := g.Status(context.Background(), "inv_missing")
	gwErr := requireGatewayError(t, err)

	assert.Equal(t, config.ErrorPSPCore, gwErr.Kind)
	assert.Equal(t, http.StatusNotFound, gwErr.HTTPStatus)
	assert.Equal(t, http.StatusNotFound, gwErr.BackendStatus)
	assert.Contains(t, gwErr.Details, "not found")
}

func TestStatus_DetailsTruncated(t *testing.T) {
	long := strings.Repeat("x", 5000)
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(long))
	})

	_, err := g.Status(context.Background(), "inv_1")
	gwErr := requireGatewayError(t, err)
	assert.Equal(t, http.StatusInternalServerError, gwErr.HTTPStatus)
	assert.Len(t, gwErr.Details, config.CoreDiagnosticsMaxChars)
}

func TestStatus_BadRequest(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := g.Status(context.Background(), "   ")
	gwErr := requireGatewayError(t, err)
	assert.Equal(t, config.ErrorBadRequest, gwErr.Kind)
	assert.Equal(t, http.StatusBadRequest, gwErr.HTTPStatus)
	assert.Zero(t, calls.Load(), "validation errors must not reach the Core")
}

func TestStatus_ConfigError(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	g.cfg.APIKey = ""
	g.cfg.MerchantID = ""

	_, err := g.Status(context.Background(), "inv_1")
	gwErr := requireGatewayError(t, err)
	assert.Equal(t, config.ErrorConfig, gwErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, gwErr.HTTPStatus)
	assert.Contains(t, gwErr.Message, "PAYSYNC_MERCHANT_ID")
	assert.Contains(t, gwErr.Message, "PAYSYNC_API_KEY")
	assert.ErrorIs(t, err, config.ErrMissingConfig)
	assert.Zero(t, calls.Load())
}

func TestStatus_StatusDoesNotNeedProviderSecret(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"waiting"}`)
	})
	g.cfg.ProviderSecret = ""

	_, err := g.Status(context.Background(), "inv_1")
	require.NoError(t, err)
}

func TestStatus_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	cfg := testConfig(server.URL)
	server.Close()

	g := New(cfg, core.NewClient(nil, core.Credentials{BaseURL: cfg.CoreBaseURL}, 1000))

	_, err := g.Status(context.Background(), "inv_1")
	gwErr := requireGatewayError(t, err)
	assert.Equal(t, config.ErrorNetwork, gwErr.Kind)
	assert.Equal(t, http.StatusBadGateway, gwErr.HTTPStatus)
	assert.NotEmpty(t, gwErr.Details)
	assert.ErrorIs(t, err, config.ErrCoreUnreachable)
}

// --- Confirm ---

type coreCalls struct {
	detected  atomic.Int32
	confirmed atomic.Int32
}

// fakeCore answers the detect and confirm endpoints with the given statuses.
func fakeCore(t *testing.T, calls *coreCalls, detectStatus, confirmStatus int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == config.CorePathMarkDetected:
			calls.detected.Add(1)
			assert.Equal(t, "secret_1", r.Header.Get(config.HeaderProviderSecret))
			writeJSON(w, detectStatus, `{"error":"detector down"}`)
		case strings.HasSuffix(r.URL.Path, "/confirm"):
			calls.confirmed.Add(1)
			assert.Equal(t, "key_1", r.Header.Get(config.HeaderAPIKey))
			if confirmStatus == http.StatusOK {
				writeJSON(w, confirmStatus, `{"status":"confirmed","txStatus":"detected"}`)
				return
			}
			writeJSON(w, confirmStatus, `{"error":"tx mismatch"}`)
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	}
}

func validConfirm() ConfirmRequest {
	return ConfirmRequest{
		InvoiceID:     "inv_1",
		TxHash:        validHash,
		WalletAddress: validTron,
		Network:       "TRON",
		PayCurrency:   "USDT",
	}
}

func TestConfirm_Success(t *testing.T) {
	calls := &coreCalls{}
	g := newTestGateway(t, fakeCore(t, calls, http.StatusOK, http.StatusOK))

	res, err := g.Confirm(context.Background(), validConfirm())
	require.NoError(t, err)
	assert.Equal(t, "inv_1", res.InvoiceID)
	assert.Equal(t, "confirmed", res.Backend.(map[string]any)["status"])
	assert.EqualValues(t, 1, calls.detected.Load())
	assert.EqualValues(t, 1, calls.confirmed.Load())
}

func TestConfirm_DetectFailureSwallowed(t *testing.T) {
	calls := &coreCalls{}
	g := newTestGateway(t, fakeCore(t, calls, http.StatusServiceUnavailable, http.StatusOK))

	res, err := g.Confirm(context.Background(), validConfirm())
	require.NoError(t, err, "detection failure must not fail the confirm")
	assert.Equal(t, "inv_1", res.InvoiceID)
	assert.EqualValues(t, 1, calls.confirmed.Load())
}

func TestConfirm_DetectFailureDoesNotOpenCircuitForConfirm(t *testing.T) {
	var statusCalls, confirmCalls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == config.CorePathMarkDetected:
			writeJSON(w, http.StatusServiceUnavailable, `{"error":"detector down"}`)
		case strings.HasSuffix(r.URL.Path, "/confirm"):
			confirmCalls.Add(1)
			writeJSON(w, http.StatusOK, `{"status":"confirmed"}`)
		default:
			statusCalls.Add(1)
			writeJSON(w, http.StatusBadGateway, `{"error":"upstream"}`)
		}
	})

	// One failure short of opening the circuit.
	for i := 0; i < config.CircuitBreakerThreshold-1; i++ {
		_, err := g.Status(context.Background(), "inv_1")
		assert.Equal(t, config.ErrorPSPCore, requireGatewayError(t, err).Kind)
	}

	res, err := g.Confirm(context.Background(), validConfirm())
	require.NoError(t, err, "a failing detect call must not block the confirm call")
	assert.Equal(t, "inv_1", res.InvoiceID)
	assert.EqualValues(t, 1, confirmCalls.Load())
	assert.EqualValues(t, config.CircuitBreakerThreshold-1, statusCalls.Load())
}

func TestConfirm_MismatchedWalletFormatIsForwarded(t *testing.T) {
	calls := &coreCalls{}
	g := newTestGateway(t, fakeCore(t, calls, http.StatusOK, http.StatusOK))

	req := validConfirm()
	req.WalletAddress = validEVM // not a TRON address

	res, err := g.Confirm(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "inv_1", res.InvoiceID)
	assert.EqualValues(t, 1, calls.confirmed.Load())
}

func TestConfirm_ConfirmFailureSurfaced(t *testing.T) {
	calls := &coreCalls{}
	g := newTestGateway(t, fakeCore(t, calls, http.StatusOK, http.StatusConflict))

	_, err := g.Confirm(context.Background(), validConfirm())
	gwErr := requireGatewayError(t, err)
	assert.Equal(t, config.ErrorPSPCore, gwErr.Kind)
	assert.Equal(t, http.StatusConflict, gwErr.HTTPStatus)
	assert.Equal(t, http.StatusConflict, gwErr.BackendStatus)
	assert.Contains(t, gwErr.Details, "tx mismatch")
}

func TestConfirm_Validation(t *testing.T) {
	hex64 := strings.Repeat("a", 64)

	tests := []struct {
		name      string
		mutate    func(*ConfirmRequest)
		wantInMsg string
	}{
		{"missing invoiceId", func(r *ConfirmRequest) { r.InvoiceID = " " }, "invoiceId"},
		{"missing txHash", func(r *ConfirmRequest) { r.TxHash = "" }, "txHash"},
		{"non-hex txHash", func(r *ConfirmRequest) { r.TxHash = "0x" + strings.Repeat("Z", 64) }, "txHash"},
		{"63 char txHash", func(r *ConfirmRequest) { r.TxHash = hex64[:63] }, "txHash"},
		{"missing walletAddress", func(r *ConfirmRequest) { r.WalletAddress = "" }, "walletAddress"},
		{"missing network", func(r *ConfirmRequest) { r.Network = "" }, "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := &coreCalls{}
			g := newTestGateway(t, fakeCore(t, calls, http.StatusOK, http.StatusOK))

			req := validConfirm()
			tt.mutate(&req)

			_, err := g.Confirm(context.Background(), req)
			gwErr := requireGatewayError(t, err)
			assert.Equal(t, config.ErrorBadRequest, gwErr.Kind)
			assert.Equal(t, http.StatusBadRequest, gwErr.HTTPStatus)
			assert.Contains(t, gwErr.Message, tt.wantInMsg)
			assert.Zero(t, calls.detected.Load()+calls.confirmed.Load())
		})
	}
}

func TestConfirm_BareHexHashAndUnknownNetwork(t *testing.T) {
	calls := &coreCalls{}
	g := newTestGateway(t, fakeCore(t, calls, http.StatusOK, http.StatusOK))

	req := validConfirm()
	req.TxHash = strings.Repeat("b", 64)
	req.Network = "DOGE"
	req.WalletAddress = "DH5yaieqoZN36fDVciNyRueRGvGLR3mr7L"

	_, err := g.Confirm(context.Background(), req)
	require.NoError(t, err)
}

func TestConfirm_ConfigRequiresProviderSecret(t *testing.T) {
	calls := &coreCalls{}
	g := newTestGateway(t, fakeCore(t, calls, http.StatusOK, http.StatusOK))
	g.cfg.ProviderSecret = ""

	_, err := g.Confirm(context.Background(), validConfirm())
	gwErr := requireGatewayError(t, err)
	assert.Equal(t, config.ErrorConfig, gwErr.Kind)
	assert.Contains(t, gwErr.Message, "PAYSYNC_PROVIDER_SECRET")
	assert.Zero(t, calls.detected.Load()+calls.confirmed.Load())
}

func TestDecodeConfirmRequest(t *testing.T) {
	req, err := DecodeConfirmRequest(strings.NewReader(`{"invoiceId":"inv_1","txHash":"0xab","network":"eth"}`))
	require.NoError(t, err)
	assert.Equal(t, "inv_1", req.InvoiceID)
	assert.Equal(t, "eth", req.Network)

	_, err = DecodeConfirmRequest(strings.NewReader(`{"invoiceId":`))
	gwErr := requireGatewayError(t, err)
	assert.Equal(t, config.ErrorBadRequest, gwErr.Kind)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "héł", Truncate("héłło", 3))
	assert.Equal(t, "", Truncate("abc", 0))
}
