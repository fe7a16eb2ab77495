package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"
)

// showNotifications renders the notification panel. Opening the panel
// refreshes from the Gateway; mark-read actions re-render from local state
// only, since they are applied optimistically.
func (b *Bot) showNotifications(ctx context.Context, cb *models.CallbackQuery, rt *runtime, refresh bool) {
	if refresh {
		if err := rt.notif.Refresh(ctx); err != nil {
			b.log.Warn("notification refresh", "chat_id", rt.sess.ChatID, "error", err)
		}
	}

	feed := rt.notif.Feed()
	unread := rt.notif.Unread()

	if len(feed) == 0 {
		b.editMessage(ctx, cb.Message, "🔔 No notifications yet.", StartMenuKeyboard())
		return
	}

	if len(feed) > 10 {
		feed = feed[:10]
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("🔔 <b>Notifications</b> (%d unread)\n", unread))
	for _, n := range feed {
		marker := "⚪"
		if !n.Read {
			marker = "🔵"
		}
		lines = append(lines, fmt.Sprintf("%s %s <b>%s</b>\n%s\n<i>%s</i>",
			marker, notifIcon(n.Type), n.Title, n.Message, timeAgo(n.CreatedAt.Time)))
	}

	b.editMessage(ctx, cb.Message, strings.Join(lines, "\n"), NotificationsKeyboard(feed, unread))
}

func (b *Bot) handleMarkRead(ctx context.Context, cb *models.CallbackQuery, rt *runtime, notificationID int64) {
	rt.notif.MarkRead(notificationID)
	b.showNotifications(ctx, cb, rt, false)
}

func (b *Bot) handleMarkAllRead(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	rt.notif.MarkAllRead()
	b.showNotifications(ctx, cb, rt, false)
}

func notifIcon(notifType string) string {
	switch notifType {
	case "TRANSFER_RECEIVED":
		return "📥"
	case "TRANSFER_SENT":
		return "📤"
	case "CONVERSION":
		return "🔄"
	case "DEPOSIT":
		return "💳"
	default:
		return "💬"
	}
}
