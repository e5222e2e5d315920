// Package core is the HTTP client for the upstream payment Core. It knows the
// three fixed endpoints, the credential headers and how to read an untrusted
// response body; it does not interpret invoice state.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Fantasim/paysync/internal/config"
)

// Credentials are the values the Core needs on every call.
type Credentials struct {
	BaseURL        string
	MerchantID     string
	APIKey         string
	ProviderSecret string
}

// Response is one Core reply. Payload is the decoded JSON value when the
// Core declared a JSON content type and the body parsed, otherwise the raw
// body text.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Payload     any
	RetryAfter  time.Duration // set on 429 when the Core sent Retry-After
}

// OK reports whether the Core answered with a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DetectedTx is the body of the mark-detected call.
type DetectedTx struct {
	InvoiceID     string `json:"invoiceId"`
	TxHash        string `json:"txHash"`
	WalletAddress string `json:"walletAddress"`
	Network       string `json:"network"`
}

// Confirmation is the body of the confirm call.
type Confirmation struct {
	TxHash        string `json:"txHash"`
	WalletAddress string `json:"walletAddress"`
	PayCurrency   string `json:"payCurrency,omitempty"`
	Network       string `json:"network"`
}

// Client talks to the Core. Non-2xx replies are returned as a *Response, not
// an error; errors mean the Core could not be reached at all.
type Client struct {
	http    *http.Client
	creds   Credentials
	limiter *RateLimiter
	breaker *CircuitBreaker
}

// NewClient builds a Core client. A nil httpClient uses NewHTTPClient.
func NewClient(httpClient *http.Client, creds Credentials, rps int) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	creds.BaseURL = strings.TrimRight(strings.TrimSpace(creds.BaseURL), "/")

	slog.Info("core client created",
		"baseURL", creds.BaseURL,
		"rps", rps,
	)

	return &Client{
		http:    httpClient,
		creds:   creds,
		limiter: NewRateLimiter("core", rps),
		breaker: NewCircuitBreaker(config.CircuitBreakerThreshold, config.CircuitBreakerCooldown),
	}
}

// NewHTTPClient returns the pooled transport used for Core calls.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: config.CoreRequestTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxConnsPerHost:     config.HTTPMaxConnsPerHost,
			MaxIdleConnsPerHost: config.HTTPMaxIdleConnsPerHost,
			MaxIdleConns:        config.HTTPMaxIdleConns,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// BreakerState exposes the circuit state for the health endpoint.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// FetchInvoice issues the uncached invoice-by-id read.
func (c *Client) FetchInvoice(ctx context.Context, invoiceID string) (*Response, error) {
	path := fmt.Sprintf(config.CorePathInvoice, url.PathEscape(invoiceID))

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	c.merchantAuth(req)
	req.Header.Set("Cache-Control", "no-cache")

	return c.do(req, "fetch_invoice", true)
}

// MarkDetected tells the Core a transaction hash has been seen for an
// invoice. It authenticates with the provider secret. The call bypasses the
// circuit breaker: its outcome neither opens the circuit nor uses up a
// half-open probe meant for the confirm call.
func (c *Client) MarkDetected(ctx context.Context, tx DetectedTx) (*Response, error) {
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encode detected tx: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, config.CorePathMarkDetected, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(config.HeaderProviderSecret, c.creds.ProviderSecret)

	return c.do(req, "mark_detected", false)
}

// ConfirmTransaction asks the Core to confirm a transaction for invoiceID.
func (c *Client) ConfirmTransaction(ctx context.Context, invoiceID string, conf Confirmation) (*Response, error) {
	body, err := json.Marshal(conf)
	if err != nil {
		return nil, fmt.Errorf("encode confirmation: %w", err)
	}

	path := fmt.Sprintf(config.CorePathConfirm, url.PathEscape(invoiceID))
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	c.merchantAuth(req)

	return c.do(req, "confirm_transaction", true)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.creds.BaseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) merchantAuth(req *http.Request) {
	req.Header.Set(config.HeaderMerchantID, c.creds.MerchantID)
	req.Header.Set(config.HeaderAPIKey, c.creds.APIKey)
}

// do runs one request through the limiter and reads the body exactly once.
// Guarded requests also go through the circuit breaker.
func (c *Client) do(req *http.Request, op string, guarded bool) (*Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("%s: %w: rate limiter: %w", op, config.ErrCoreUnreachable, err)
	}
	if guarded && !c.breaker.Allow() {
		return nil, fmt.Errorf("%s: %w", op, config.ErrCircuitOpen)
	}
	recordFailure := func() {
		if guarded {
			c.breaker.RecordFailure()
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		recordFailure()
		slog.Warn("core request failed",
			"op", op,
			"url", req.URL.String(),
			"error", err,
		)
		return nil, fmt.Errorf("%s: %w: %w", op, config.ErrCoreUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.CoreMaxResponseBytes))
	if err != nil {
		recordFailure()
		return nil, fmt.Errorf("%s: %w: read body: %w", op, config.ErrCoreUnreachable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		recordFailure()
	case guarded:
		c.breaker.RecordSuccess()
	}

	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter = parseRetryAfter(resp.Header)
		held := c.limiter.Hold(retryAfter)
		slog.Warn("core rate limited",
			"op", op,
			"retryAfter", retryAfter,
			"holdingFor", held,
		)
	}

	contentType := resp.Header.Get("Content-Type")
	slog.Debug("core response",
		"op", op,
		"status", resp.StatusCode,
		"contentType", contentType,
		"bytes", len(body),
		"elapsed", time.Since(start).String(),
	)

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		Payload:     decodePayload(contentType, body),
		RetryAfter:  retryAfter,
	}, nil
}

// IsJSON reports whether a Content-Type header declares a JSON body.
func IsJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// decodePayload parses body as JSON when the content type says so. Numbers
// stay json.Number so large amounts survive untouched.
func decodePayload(contentType string, body []byte) any {
	if !IsJSON(contentType) {
		return string(body)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		slog.Debug("core declared JSON but body did not parse", "error", err)
		return string(body)
	}
	return v
}
