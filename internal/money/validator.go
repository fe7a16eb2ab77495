// Package money holds the pure amount validation used to gate every
// money-movement submission. No I/O happens here; the Gateway re-validates
// authoritatively on its side.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Quote is the advisory rate used for the converted-amount preview.
type Quote struct {
	Rate     decimal.Decimal
	Currency string
	Symbol   string
}

// Verdict is the outcome of checking a draft amount against a wallet.
type Verdict struct {
	OK      bool
	Amount  decimal.Decimal
	Reason  string // empty when OK
	Preview string // "≈ €92.00" when a cross-currency quote is present
}

const (
	ReasonEmpty        = "enter an amount"
	ReasonInvalid      = "amount must be a positive number"
	ReasonInsufficient = "insufficient funds"
)

// ParsePositive parses an amount that is not gated by a balance, such as a
// funding top-up. Thousands separators are tolerated.
func ParsePositive(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	amount, err := decimal.NewFromString(cleaned)
	if err != nil || !amount.IsPositive() {
		return decimal.Decimal{}, errors.New(ReasonInvalid)
	}
	return amount, nil
}

// Check parses a raw amount string and gates it against the wallet's live
// balance. The preview is display-only and is never submitted; the Gateway
// computes the converted amount it actually credits.
func Check(raw string, balance decimal.Decimal, sourceCurrency string, q *Quote) Verdict {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	if cleaned == "" {
		return Verdict{Reason: ReasonEmpty}
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil || !amount.IsPositive() {
		return Verdict{Reason: ReasonInvalid}
	}

	if amount.GreaterThan(balance) {
		return Verdict{Amount: amount, Reason: ReasonInsufficient}
	}

	v := Verdict{OK: true, Amount: amount}
	if q != nil && !strings.EqualFold(q.Currency, sourceCurrency) {
		converted := amount.Mul(q.Rate).Round(2)
		v.Preview = "≈ " + q.Symbol + converted.StringFixed(2)
	}
	return v
}
