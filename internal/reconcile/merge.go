// Package reconcile merges partial invoice snapshots from the Core into the
// client-held invoice view.
//
// Merge is pure and total. The field rules live in two tables below.
//
//   - A scalar field is overwritten only when the snapshot supplies a usable
//     value; null, missing, empty or mistyped values keep what was known.
//   - A terminal status (confirmed, expired, rejected) is sticky.
//   - txStatus never falls back to unset; "pending" is the default only when
//     nothing has ever been observed.
//   - Fees are read from the nested "fees" object first, then from the
//     flattened top-level keys, and written back in both shapes.
package reconcile

import (
	"strings"
	"time"

	"github.com/Fantasim/paysync/internal/models"
)

// fieldRule applies one snapshot key to a view. apply reports whether the
// raw value was usable; unusable values leave dst untouched.
type fieldRule struct {
	key   string
	apply func(dst *models.InvoiceView, raw any) bool
}

func stringField(key string, ref func(*models.InvoiceView) **string) fieldRule {
	return fieldRule{key: key, apply: func(dst *models.InvoiceView, raw any) bool {
		s, ok := asString(raw)
		if ok {
			*ref(dst) = &s
		}
		return ok
	}}
}

// timestampField keeps Core strings verbatim and renders numeric epochs as
// RFC3339 UTC.
func timestampField(key string, ref func(*models.InvoiceView) **string) fieldRule {
	return fieldRule{key: key, apply: func(dst *models.InvoiceView, raw any) bool {
		if s, ok := asString(raw); ok {
			*ref(dst) = &s
			return true
		}
		if _, isString := raw.(string); isString {
			return false
		}
		t, ok := ParseTimestamp(raw)
		if ok {
			s := t.UTC().Format(time.RFC3339)
			*ref(dst) = &s
		}
		return ok
	}}
}

func numberField(key string, ref func(*models.InvoiceView) **float64) fieldRule {
	return fieldRule{key: key, apply: func(dst *models.InvoiceView, raw any) bool {
		n, ok := asNumber(raw)
		if ok {
			*ref(dst) = &n
		}
		return ok
	}}
}

func integerField(key string, ref func(*models.InvoiceView) **int64) fieldRule {
	return fieldRule{key: key, apply: func(dst *models.InvoiceView, raw any) bool {
		n, ok := asInteger(raw)
		if ok {
			*ref(dst) = &n
		}
		return ok
	}}
}

var fieldRules = []fieldRule{
	timestampField("createdAt", func(v *models.InvoiceView) **string { return &v.CreatedAt }),
	timestampField("expiresAt", func(v *models.InvoiceView) **string { return &v.ExpiresAt }),
	timestampField("detectedAt", func(v *models.InvoiceView) **string { return &v.DetectedAt }),
	timestampField("confirmedAt", func(v *models.InvoiceView) **string { return &v.ConfirmedAt }),

	numberField("fiatAmount", func(v *models.InvoiceView) **float64 { return &v.FiatAmount }),
	stringField("fiatCurrency", func(v *models.InvoiceView) **string { return &v.FiatCurrency }),
	numberField("cryptoAmount", func(v *models.InvoiceView) **float64 { return &v.CryptoAmount }),
	stringField("cryptoCurrency", func(v *models.InvoiceView) **string { return &v.CryptoCurrency }),
	stringField("network", func(v *models.InvoiceView) **string { return &v.Network }),

	numberField("fxRate", func(v *models.InvoiceView) **float64 { return &v.FxRate }),
	stringField("fxPair", func(v *models.InvoiceView) **string { return &v.FxPair }),

	stringField("txHash", func(v *models.InvoiceView) **string { return &v.TxHash }),
	stringField("walletAddress", func(v *models.InvoiceView) **string { return &v.WalletAddress }),
	integerField("confirmations", func(v *models.InvoiceView) **int64 { return &v.Confirmations }),
	integerField("requiredConfirmations", func(v *models.InvoiceView) **int64 { return &v.RequiredConfirmations }),

	stringField("amlStatus", func(v *models.InvoiceView) **string { return &v.AmlStatus }),
	numberField("riskScore", func(v *models.InvoiceView) **float64 { return &v.RiskScore }),
	stringField("assetStatus", func(v *models.InvoiceView) **string { return &v.AssetStatus }),
	numberField("assetRiskScore", func(v *models.InvoiceView) **float64 { return &v.AssetRiskScore }),
	stringField("decisionStatus", func(v *models.InvoiceView) **string { return &v.DecisionStatus }),
	stringField("decisionReasonCode", func(v *models.InvoiceView) **string { return &v.DecisionReasonCode }),
	stringField("decisionReasonText", func(v *models.InvoiceView) **string { return &v.DecisionReasonText }),
	timestampField("decidedAt", func(v *models.InvoiceView) **string { return &v.DecidedAt }),
	stringField("decidedBy", func(v *models.InvoiceView) **string { return &v.DecidedBy }),

	stringField("merchantId", func(v *models.InvoiceView) **string { return &v.MerchantID }),
	stringField("paymentUrl", func(v *models.InvoiceView) **string { return &v.PaymentURL }),
}

// feeRules operate on the flattened fee fields of the view; mergeFees
// rebuilds the nested object from them afterwards.
var feeRules = []fieldRule{
	numberField("grossAmount", func(v *models.InvoiceView) **float64 { return &v.GrossAmount }),
	numberField("feeAmount", func(v *models.InvoiceView) **float64 { return &v.FeeAmount }),
	numberField("netAmount", func(v *models.InvoiceView) **float64 { return &v.NetAmount }),
	integerField("feeBps", func(v *models.InvoiceView) **int64 { return &v.FeeBps }),
	stringField("feePayer", func(v *models.InvoiceView) **string { return &v.FeePayer }),
}

// NewView returns the initial view for an invoice nobody has polled yet.
func NewView(invoiceID string) models.InvoiceView {
	return models.InvoiceView{
		InvoiceID: invoiceID,
		Status:    models.StatusWaiting,
		TxStatus:  models.TxStatusPending,
	}
}

// FromSeed returns the initial view carrying the amounts the storefront
// already knows, so the UI has something to show before the first poll.
func FromSeed(seed models.Seed) models.InvoiceView {
	v := NewView(seed.InvoiceID)
	v.FiatAmount = seed.FiatAmount
	v.FiatCurrency = seed.FiatCurrency
	v.CryptoAmount = seed.CryptoAmount
	v.CryptoCurrency = seed.CryptoCurrency
	v.Network = seed.Network
	v.ExpiresAt = seed.ExpiresAt
	return v
}

// Merge folds snapshot into prev and returns the new view. prev is not
// modified; unchanged pointer fields are shared with the result.
func Merge(prev models.InvoiceView, snapshot models.Snapshot) models.InvoiceView {
	next := prev

	if next.InvoiceID == "" {
		if id, ok := asString(snapshot["invoiceId"]); ok {
			next.InvoiceID = id
		}
	}

	for _, rule := range fieldRules {
		if raw, ok := snapshot[rule.key]; ok {
			rule.apply(&next, raw)
		}
	}

	next.Status = mergeStatus(prev.Status, snapshot["status"])
	next.TxStatus = mergeTxStatus(prev.TxStatus, snapshot["txStatus"])
	mergeFees(&next, snapshot)

	return next
}

func mergeStatus(prev models.Status, raw any) models.Status {
	if prev.IsTerminal() {
		return prev
	}
	return NormalizeStatus(raw)
}

func mergeTxStatus(prev models.TxStatus, raw any) models.TxStatus {
	if ts, ok := NormalizeTxStatus(raw); ok {
		return ts
	}
	if prev != "" {
		return prev
	}
	return models.TxStatusPending
}

func mergeFees(next *models.InvoiceView, snapshot models.Snapshot) {
	nested, _ := asObject(snapshot["fees"])

	for _, rule := range feeRules {
		if raw, ok := nested[rule.key]; ok && rule.apply(next, raw) {
			continue
		}
		if raw, ok := snapshot[rule.key]; ok {
			rule.apply(next, raw)
		}
	}

	fees := models.Fees{
		GrossAmount: next.GrossAmount,
		FeeAmount:   next.FeeAmount,
		NetAmount:   next.NetAmount,
		FeeBps:      next.FeeBps,
		FeePayer:    next.FeePayer,
	}
	if fees.Empty() {
		next.Fees = nil
		return
	}
	next.Fees = &fees
}

// NormalizeStatus maps a raw status onto the four known values.
// Anything unrecognized or missing is "waiting".
func NormalizeStatus(raw any) models.Status {
	s, ok := asString(raw)
	if !ok {
		return models.StatusWaiting
	}
	switch st := models.Status(strings.ToLower(s)); st {
	case models.StatusWaiting, models.StatusConfirmed, models.StatusExpired, models.StatusRejected:
		return st
	default:
		return models.StatusWaiting
	}
}

// NormalizeTxStatus maps a raw txStatus onto the known values. The second
// result is false when raw is missing or unrecognized.
func NormalizeTxStatus(raw any) (models.TxStatus, bool) {
	s, ok := asString(raw)
	if !ok {
		return "", false
	}
	switch ts := models.TxStatus(strings.ToLower(s)); ts {
	case models.TxStatusPending, models.TxStatusDetected, models.TxStatusConfirmed:
		return ts, true
	default:
		return "", false
	}
}

// DeadlinePassed reports whether a waiting view has an expiresAt strictly
// before now.
func DeadlinePassed(v models.InvoiceView, now time.Time) bool {
	if v.Status != models.StatusWaiting || v.ExpiresAt == nil {
		return false
	}
	deadline, ok := ParseTimestamp(*v.ExpiresAt)
	return ok && deadline.Before(now)
}
