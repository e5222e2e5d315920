package config

import "time"

// Core Endpoints (fixed, not configurable per call)
const (
	CorePathInvoice      = "/api/v1/invoices/%s"
	CorePathConfirm      = "/api/v1/invoices/%s/confirm"
	CorePathMarkDetected = "/api/v1/provider/transactions/detected"
)

// Core Authentication Headers
const (
	HeaderMerchantID     = "X-Merchant-Id"
	HeaderAPIKey         = "X-Api-Key"
	HeaderProviderSecret = "X-Provider-Secret"
)

// Core Client
const (
	CoreRequestTimeout      = 20 * time.Second
	CoreMaxResponseBytes    = 1 << 20 // 1 MiB
	CoreDiagnosticsMaxChars = 2000
	CoreRetryAfterMax       = 30 * time.Second
	HTTPMaxConnsPerHost     = 10
	HTTPMaxIdleConnsPerHost = 5
	HTTPMaxIdleConns        = 20
)

// Circuit Breaker
const (
	CircuitBreakerThreshold   = 5
	CircuitBreakerCooldown    = 30 * time.Second
	CircuitBreakerHalfOpenMax = 1
	CircuitClosed             = "closed"
	CircuitOpen               = "open"
	CircuitHalfOpen           = "half_open"
)

// Gateway Endpoints
const (
	GatewayPathStatus  = "/status"
	GatewayPathConfirm = "/confirm"
)

// Polling
const (
	PollInterval             = 2500 * time.Millisecond
	PollRetryInterval        = 3000 * time.Millisecond
	DefaultMaxSessions       = 100
	TrackerShutdownWindow    = 10 * time.Second
	FinishedSessionRetention = 10 * time.Minute
)

// Session States
const (
	SessionIdle      = "idle"
	SessionPolling   = "polling"
	SessionTerminal  = "terminal"
	SessionCancelled = "cancelled"
)

// Tracker Event Types
const (
	EventInvoiceUpdate   = "invoice_update"
	EventInvoiceError    = "invoice_error"
	EventInvoiceTerminal = "invoice_terminal"
	EventInvoiceRedirect = "invoice_redirect"
)

// Demo invoices
const (
	DemoInvoiceIDPrefix = "inv_"
	DemoInvoiceTTL      = 15 * time.Minute
	DemoRedisKeyPrefix  = "paysync:invoice:"
)

// Server
const (
	ServerReadTimeout    = 30 * time.Second
	ServerWriteTimeout   = 0 // SSE streams stay open; per-request deadlines come from the Core client.
	ServerIdleTimeout    = 60 * time.Second
	ServerMaxHeaderBytes = 1 << 20
	ShutdownTimeout      = 10 * time.Second
	MaxRequestBodyBytes  = 64 << 10
	SSEHubChannelBuffer  = 64
	SSEKeepAliveInterval = 15 * time.Second
)

// Logging
const (
	LogFilePattern = "paysync-%s.log" // %s = YYYY-MM-DD
	LogFilePrefix  = "paysync-"
	LogMaxAgeDays  = 30
)
