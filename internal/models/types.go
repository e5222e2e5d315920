package models

// Status is the lifecycle status of an invoice as reported by the Core.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusConfirmed Status = "confirmed"
	StatusExpired   Status = "expired"
	StatusRejected  Status = "rejected"
)

// IsTerminal reports whether the invoice can never return to waiting.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusExpired || s == StatusRejected
}

// TxStatus is the state of the payment transaction attached to an invoice.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusDetected  TxStatus = "detected"
	TxStatusConfirmed TxStatus = "confirmed"
)

// Snapshot is one partial, untrusted JSON object returned by a single poll.
// Any key may be missing, null, or carry a value of the wrong type.
type Snapshot map[string]any

// Fees is the nested fee breakdown of an invoice.
type Fees struct {
	GrossAmount *float64 `json:"grossAmount"`
	FeeAmount   *float64 `json:"feeAmount"`
	NetAmount   *float64 `json:"netAmount"`
	FeeBps      *int64   `json:"feeBps"`
	FeePayer    *string  `json:"feePayer"`
}

// Empty reports whether no fee field has been resolved.
func (f Fees) Empty() bool {
	return f.GrossAmount == nil && f.FeeAmount == nil && f.NetAmount == nil &&
		f.FeeBps == nil && f.FeePayer == nil
}

// InvoiceView is the client-held merged projection of a Core invoice.
// A nil field has never been observed. Fee fields are carried both nested
// under Fees and flattened, so either consumption style works.
type InvoiceView struct {
	InvoiceID string `json:"invoiceId"`
	Status    Status `json:"status"`

	CreatedAt   *string `json:"createdAt"`
	ExpiresAt   *string `json:"expiresAt"`
	DetectedAt  *string `json:"detectedAt"`
	ConfirmedAt *string `json:"confirmedAt"`

	FiatAmount     *float64 `json:"fiatAmount"`
	FiatCurrency   *string  `json:"fiatCurrency"`
	CryptoAmount   *float64 `json:"cryptoAmount"`
	CryptoCurrency *string  `json:"cryptoCurrency"`
	Network        *string  `json:"network"`

	Fees        *Fees    `json:"fees"`
	GrossAmount *float64 `json:"grossAmount"`
	FeeAmount   *float64 `json:"feeAmount"`
	NetAmount   *float64 `json:"netAmount"`
	FeeBps      *int64   `json:"feeBps"`
	FeePayer    *string  `json:"feePayer"`

	FxRate *float64 `json:"fxRate"`
	FxPair *string  `json:"fxPair"`

	TxStatus              TxStatus `json:"txStatus"`
	TxHash                *string  `json:"txHash"`
	WalletAddress         *string  `json:"walletAddress"`
	Confirmations         *int64   `json:"confirmations"`
	RequiredConfirmations *int64   `json:"requiredConfirmations"`

	AmlStatus          *string  `json:"amlStatus"`
	RiskScore          *float64 `json:"riskScore"`
	AssetStatus        *string  `json:"assetStatus"`
	AssetRiskScore     *float64 `json:"assetRiskScore"`
	DecisionStatus     *string  `json:"decisionStatus"`
	DecisionReasonCode *string  `json:"decisionReasonCode"`
	DecisionReasonText *string  `json:"decisionReasonText"`
	DecidedAt          *string  `json:"decidedAt"`
	DecidedBy          *string  `json:"decidedBy"`

	MerchantID *string `json:"merchantId"`
	PaymentURL *string `json:"paymentUrl"`
}

// Seed is what a consumer supplies to start tracking an invoice: the id, the
// initial amounts shown before the first poll, and where to send the shopper
// once the payment is confirmed.
type Seed struct {
	InvoiceID      string   `json:"invoiceId"`
	FiatAmount     *float64 `json:"fiatAmount,omitempty"`
	FiatCurrency   *string  `json:"fiatCurrency,omitempty"`
	CryptoAmount   *float64 `json:"cryptoAmount,omitempty"`
	CryptoCurrency *string  `json:"cryptoCurrency,omitempty"`
	Network        *string  `json:"network,omitempty"`
	ExpiresAt      *string  `json:"expiresAt,omitempty"`
	RedirectURL    string   `json:"redirectUrl,omitempty"`
	CreatedAt      string   `json:"createdAt,omitempty"`
}
