package telegram

import (
	"fmt"

	"github.com/glidepay/wallet-bot/internal/gateway"
	"github.com/go-telegram/bot/models"
)

// MainKeyboard returns the main menu keyboard
func MainKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "💼 My Wallets", CallbackData: "wallets"},
				{Text: "📤 Send Money", CallbackData: "send"},
			},
			{
				{Text: "🔄 Convert", CallbackData: "convert"},
				{Text: "💳 Add Funds", CallbackData: "fund"},
			},
			{
				{Text: "🔔 Notifications", CallbackData: "notif"},
				{Text: "📜 History", CallbackData: "history"},
			},
			{
				{Text: "🚪 Log out", CallbackData: "logout"},
			},
		},
	}
}

// WalletPickKeyboard returns one button per wallet, routed to prefix:id
func WalletPickKeyboard(wallets []gateway.Wallet, prefix string, exclude int64) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	for _, w := range wallets {
		if w.ID == exclude {
			continue
		}
		label := fmt.Sprintf("%s %s — %s%s", w.Flag, w.DisplayName(), w.Symbol, w.Balance.StringFixed(2))
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: label, CallbackData: fmt.Sprintf("%s:%d", prefix, w.ID)},
		})
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "⬅️ Back", CallbackData: "back"},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// WalletsKeyboard is shown under the wallet list view; each wallet button
// opens that wallet's transaction history.
func WalletsKeyboard(wallets []gateway.Wallet) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	for _, w := range wallets {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: fmt.Sprintf("📜 %s %s", w.Flag, w.DisplayName()), CallbackData: fmt.Sprintf("wtx:%d", w.ID)},
		})
	}

	rows = append(rows,
		[]models.InlineKeyboardButton{
			{Text: "➕ New wallet", CallbackData: "newwallet"},
		},
		[]models.InlineKeyboardButton{
			{Text: "⬅️ Back", CallbackData: "back"},
		},
	)

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// CurrencyKeyboard offers the supported currencies not yet owned
func CurrencyKeyboard(owned map[string]bool) *models.InlineKeyboardMarkup {
	currencies := []struct {
		Code string
		Flag string
	}{
		{"USD", "🇺🇸"}, {"EUR", "🇪🇺"}, {"GBP", "🇬🇧"}, {"JPY", "🇯🇵"},
		{"INR", "🇮🇳"}, {"AUD", "🇦🇺"}, {"CAD", "🇨🇦"},
	}

	var rows [][]models.InlineKeyboardButton
	var row []models.InlineKeyboardButton
	for _, c := range currencies {
		if owned[c.Code] {
			continue
		}
		row = append(row, models.InlineKeyboardButton{
			Text:         c.Flag + " " + c.Code,
			CallbackData: "mkw:" + c.Code,
		})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "⬅️ Back", CallbackData: "wallets"},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// BackKeyboard returns a simple back button
func BackKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "⬅️ Back", CallbackData: "back"},
			},
		},
	}
}

// ConfirmKeyboard returns confirm/cancel for the given submit action
func ConfirmKeyboard(action string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ Confirm", CallbackData: action},
			},
			{
				{Text: "❌ Cancel", CallbackData: "back"},
			},
		},
	}
}

// RetryKeyboard is shown after a rejected submission; the draft is kept
func RetryKeyboard(action string) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔁 Try again", CallbackData: action},
			},
			{
				{Text: "⬅️ Back to menu", CallbackData: "back"},
			},
		},
	}
}

// SkipNoteKeyboard lets the user skip the optional transfer note
func SkipNoteKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "⏭ Skip", CallbackData: "skip_note"},
			},
			{
				{Text: "⬅️ Back", CallbackData: "back"},
			},
		},
	}
}

// PaidKeyboard is shown after a payment intent was created
func PaidKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "✅ I've paid", CallbackData: "confirm_fund"},
			},
			{
				{Text: "❌ Cancel", CallbackData: "back"},
			},
		},
	}
}

// NotificationsKeyboard offers mark-read actions for the unread entries
func NotificationsKeyboard(feed []gateway.Notification, unread int) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	shown := 0
	for _, n := range feed {
		if n.Read || shown == 5 {
			continue
		}
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "✔️ " + truncate(n.Title, 30), CallbackData: fmt.Sprintf("read:%d", n.ID)},
		})
		shown++
	}

	if unread > 0 {
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: "✔️✔️ Mark all as read", CallbackData: "read_all"},
		})
	}

	rows = append(rows, []models.InlineKeyboardButton{
		{Text: "🔄 Refresh", CallbackData: "notif"},
		{Text: "⬅️ Back", CallbackData: "back"},
	})

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// OpenNotificationsKeyboard is attached to unread pings
func OpenNotificationsKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "🔔 Open notifications", CallbackData: "notif"},
			},
		},
	}
}

// StartMenuKeyboard returns keyboard to go back to the main menu
func StartMenuKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "⬅️ Main menu", CallbackData: "back"},
			},
		},
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
