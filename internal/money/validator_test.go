package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCheck(t *testing.T) {
	balance := d("1250.50")

	tests := []struct {
		name       string
		raw        string
		wantOK     bool
		wantReason string
	}{
		{"empty", "", false, ReasonEmpty},
		{"whitespace only", "   ", false, ReasonEmpty},
		{"non-numeric", "abc", false, ReasonInvalid},
		{"zero", "0", false, ReasonInvalid},
		{"negative", "-5", false, ReasonInvalid},
		{"exceeds balance", "2000", false, ReasonInsufficient},
		{"just over balance", "1250.51", false, ReasonInsufficient},
		{"exactly balance", "1250.50", true, ""},
		{"within balance", "100", true, ""},
		{"thousand separators", "1,200.25", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Check(tt.raw, balance, "USD", nil)
			assert.Equal(t, tt.wantOK, v.OK)
			assert.Equal(t, tt.wantReason, v.Reason)
		})
	}
}

func TestCheckPreview(t *testing.T) {
	quote := &Quote{Rate: d("0.92"), Currency: "EUR", Symbol: "€"}

	v := Check("100", d("1250.50"), "USD", quote)
	assert.True(t, v.OK)
	assert.Equal(t, "≈ €92.00", v.Preview)
}

func TestCheckPreviewRounding(t *testing.T) {
	quote := &Quote{Rate: d("0.9173"), Currency: "EUR", Symbol: "€"}

	v := Check("33.33", d("500"), "USD", quote)
	assert.True(t, v.OK)
	// 33.33 * 0.9173 = 30.573609, displayed to 2 places
	assert.Equal(t, "≈ €30.57", v.Preview)
}

func TestCheckNoPreviewForSameCurrency(t *testing.T) {
	quote := &Quote{Rate: decimal.NewFromInt(1), Currency: "usd", Symbol: "$"}

	v := Check("100", d("1250.50"), "USD", quote)
	assert.True(t, v.OK)
	assert.Empty(t, v.Preview)
}

func TestCheckInsufficientKeepsParsedAmount(t *testing.T) {
	v := Check("2000", d("1250.50"), "USD", nil)
	assert.False(t, v.OK)
	assert.True(t, v.Amount.Equal(d("2000")))
}

func TestParsePositive(t *testing.T) {
	amount, err := ParsePositive("1,000.50")
	assert.NoError(t, err)
	assert.True(t, amount.Equal(d("1000.50")))

	for _, raw := range []string{"", "abc", "-5", "0"} {
		_, err := ParsePositive(raw)
		assert.Error(t, err, "input %q", raw)
	}
}
