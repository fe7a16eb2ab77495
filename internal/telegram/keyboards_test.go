package telegram

import (
	"testing"

	"github.com/glidepay/wallet-bot/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestWalletPickKeyboardExcludes(t *testing.T) {
	wallets := []gateway.Wallet{
		{ID: 1, Currency: "USD", Symbol: "$", Balance: decimal.NewFromInt(100)},
		{ID: 2, Currency: "EUR", Symbol: "€", Balance: decimal.NewFromInt(50)},
	}

	kb := WalletPickKeyboard(wallets, "cto", 1)

	// one wallet row plus the back row
	assert.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "cto:2", kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "back", kb.InlineKeyboard[1][0].CallbackData)
}

func TestNotificationsKeyboardLimitsMarkReadButtons(t *testing.T) {
	var feed []gateway.Notification
	for i := int64(1); i <= 8; i++ {
		feed = append(feed, gateway.Notification{ID: i, Title: "Money received"})
	}

	kb := NotificationsKeyboard(feed, 8)

	// 5 per-item rows, the mark-all row and the refresh/back row
	assert.Len(t, kb.InlineKeyboard, 7)
	assert.Equal(t, "read:1", kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "read_all", kb.InlineKeyboard[5][0].CallbackData)
}

func TestNotificationsKeyboardAllRead(t *testing.T) {
	feed := []gateway.Notification{{ID: 1, Title: "Money received", Read: true}}

	kb := NotificationsKeyboard(feed, 0)

	// only the refresh/back row
	assert.Len(t, kb.InlineKeyboard, 1)
}

func TestCurrencyKeyboardSkipsOwned(t *testing.T) {
	kb := CurrencyKeyboard(map[string]bool{"USD": true, "EUR": true})

	var codes []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			codes = append(codes, btn.CallbackData)
		}
	}
	assert.NotContains(t, codes, "mkw:USD")
	assert.NotContains(t, codes, "mkw:EUR")
	assert.Contains(t, codes, "mkw:GBP")
}
