package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glidepay/wallet-bot/internal/config"
	"github.com/glidepay/wallet-bot/internal/gateway"
	"github.com/glidepay/wallet-bot/internal/notify"
	"github.com/glidepay/wallet-bot/internal/session"
	"github.com/glidepay/wallet-bot/internal/transact"
	"github.com/glidepay/wallet-bot/internal/walletstate"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
)

// Bot wraps the telegram bot with handlers. Chats are private, so the chat
// id doubles as the telegram user id.
type Bot struct {
	bot      *bot.Bot
	cfg      *config.Config
	sessions *session.Store
	api      *gateway.Client
	states   *StateManager
	log      *slog.Logger

	mu       sync.Mutex
	runCtx   context.Context
	runtimes map[int64]*runtime
}

// runtime is the per-chat component set built from the chat's session. It
// lives until logout or shutdown; its context tears down the notification
// poller and any in-flight recipient lookup.
type runtime struct {
	sess    *session.Session
	api     *gateway.Client
	wallets *walletstate.Store
	notif   *notify.Synchronizer
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a new telegram bot
func New(cfg *config.Config, sessions *session.Store, api *gateway.Client, log *slog.Logger) (*Bot, error) {
	b := &Bot{
		cfg:      cfg,
		sessions: sessions,
		api:      api,
		states:   NewStateManager(),
		log:      log,
		runtimes: make(map[int64]*runtime),
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
		bot.WithCallbackQueryDataHandler("", bot.MatchTypePrefix, b.callbackHandler),
	}

	tgBot, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	b.bot = tgBot

	// Register command handlers
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start ", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/register", bot.MatchTypeExact, b.registerHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/logout", bot.MatchTypeExact, b.logoutHandler)

	return b, nil
}

// Start starts the bot polling. The context also bounds every per-chat
// runtime, so cancelling it stops all pollers.
func (b *Bot) Start(ctx context.Context) {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	b.bot.Start(ctx)
}

// --- Runtime lifecycle ---

// runtime returns the chat's component set, rebuilding it from the persisted
// session after a restart. ok is false when the chat is not logged in.
func (b *Bot) runtime(chatID int64) (*runtime, bool) {
	b.mu.Lock()
	rt, ok := b.runtimes[chatID]
	b.mu.Unlock()
	if ok {
		return rt, true
	}

	sess, err := b.sessions.ByChat(chatID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			b.log.Error("load session", "chat_id", chatID, "error", err)
		}
		return nil, false
	}

	return b.attach(sess), true
}

// attach builds the per-chat components and starts the notification poller.
func (b *Bot) attach(sess *session.Session) *runtime {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rt, ok := b.runtimes[sess.ChatID]; ok {
		return rt
	}

	base := b.runCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)

	api := b.api.WithToken(sess.Token)
	chatID := sess.ChatID
	rt := &runtime{
		sess:    sess,
		api:     api,
		wallets: walletstate.NewStore(api, sess.UserID, b.log),
		ctx:     ctx,
		cancel:  cancel,
	}
	rt.notif = notify.NewSynchronizer(api, sess.UserID, b.log, func(count int) {
		b.unreadPing(chatID, count)
	})

	go rt.notif.Start(ctx, b.cfg.NotifyPollEvery)

	b.runtimes[chatID] = rt
	return rt
}

// teardown stops the chat's runtime. The session row is left alone; logout
// deletes it separately.
func (b *Bot) teardown(chatID int64) {
	b.mu.Lock()
	rt := b.runtimes[chatID]
	delete(b.runtimes, chatID)
	b.mu.Unlock()

	if rt != nil {
		rt.cancel()
	}
}

// clearFlow drops the chat's conversation state and stops any debounced
// recipient lookup still pending.
func (b *Bot) clearFlow(chatID int64) {
	if st := b.states.Get(chatID); st != nil && st.Flow != nil && st.Flow.Resolver != nil {
		st.Flow.Resolver.Stop()
	}
	b.states.Clear(chatID)
}

// --- Handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if rt, ok := b.runtime(chatID); ok {
		b.clearFlow(chatID)
		b.sendMessage(ctx, chatID, b.menuText(rt), MainKeyboard())
		return
	}

	b.states.Set(chatID, StateWaitLoginEmail, &Flow{})
	b.sendMessage(ctx, chatID,
		"💸 Welcome to <b>GlidePay</b>!\n\n"+
			"Hold wallets in multiple currencies, send money by email and convert on the fly.\n\n"+
			"🔑 Enter your email to sign in, or /register to create an account:",
		nil,
	)
}

func (b *Bot) registerHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	if rt, ok := b.runtime(chatID); ok {
		b.sendMessage(ctx, chatID, b.menuText(rt), MainKeyboard())
		return
	}

	b.states.Set(chatID, StateWaitRegName, &Flow{})
	b.sendMessage(ctx, chatID, "📝 Let's create your account.\n\nWhat's your full name?", nil)
}

func (b *Bot) logoutHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	b.logout(ctx, update.Message.Chat.ID)
}

func (b *Bot) logout(ctx context.Context, chatID int64) {
	b.clearFlow(chatID)
	b.teardown(chatID)

	if err := b.sessions.Delete(chatID); err != nil {
		b.log.Error("delete session", "chat_id", chatID, "error", err)
	}

	b.sendMessage(ctx, chatID, "👋 You've been logged out.\nUse /start to sign in again.", nil)
}

func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	state := b.states.Get(chatID)
	if state == nil {
		return
	}

	switch state.State {
	case StateWaitLoginEmail:
		b.handleLoginEmail(ctx, chatID, text, state.Flow)
	case StateWaitLoginPassword:
		b.handleLoginPassword(ctx, chatID, text, state.Flow)
	case StateWaitRegName:
		b.handleRegName(ctx, chatID, text, state.Flow)
	case StateWaitRegEmail:
		b.handleRegEmail(ctx, chatID, text, state.Flow)
	case StateWaitRegPassword:
		b.handleRegPassword(ctx, chatID, text, state.Flow)
	case StateWaitRecipient:
		b.handleRecipientInput(ctx, chatID, text, state.Flow)
	case StateWaitSendAmount:
		b.handleSendAmount(ctx, chatID, text, state.Flow)
	case StateWaitSendNote:
		b.handleSendNote(ctx, chatID, text, state.Flow)
	case StateWaitConvertAmount:
		b.handleConvertAmount(ctx, chatID, text, state.Flow)
	case StateWaitFundAmount:
		b.handleFundAmount(ctx, chatID, text, state.Flow)
	}
}

func (b *Bot) callbackHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.CallbackQuery == nil {
		return
	}

	cb := update.CallbackQuery
	chatID := cb.From.ID
	data := cb.Data

	// Answer callback to remove loading state
	tgBot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cb.ID,
	})

	if data == "logout" {
		b.logout(ctx, chatID)
		return
	}

	rt, ok := b.runtime(chatID)
	if !ok {
		b.sendMessage(ctx, chatID, "🔑 Please /start and sign in first.", nil)
		return
	}

	switch {
	case data == "back":
		b.clearFlow(chatID)
		b.editMessage(ctx, cb.Message, b.menuText(rt), MainKeyboard())
	case data == "wallets":
		b.showWallets(ctx, cb, rt)
	case data == "newwallet":
		b.showNewWallet(ctx, cb, rt)
	case strings.HasPrefix(data, "mkw:"):
		b.handleCreateWallet(ctx, cb, rt, strings.TrimPrefix(data, "mkw:"))
	case data == "send":
		b.startSend(ctx, cb, rt)
	case strings.HasPrefix(data, "src:"):
		b.handlePickSource(ctx, cb, rt, parseID(data, "src:"))
	case data == "skip_note":
		b.handleSkipNote(ctx, cb, chatID)
	case data == "confirm_send":
		b.handleConfirmSend(ctx, cb, rt)
	case data == "convert":
		b.startConvert(ctx, cb, rt)
	case strings.HasPrefix(data, "cfrom:"):
		b.handlePickConvertFrom(ctx, cb, rt, parseID(data, "cfrom:"))
	case strings.HasPrefix(data, "cto:"):
		b.handlePickConvertTo(ctx, cb, rt, parseID(data, "cto:"))
	case data == "confirm_convert":
		b.handleConfirmConvert(ctx, cb, rt)
	case data == "fund":
		b.startFund(ctx, cb, rt)
	case strings.HasPrefix(data, "fnd:"):
		b.handlePickFundWallet(ctx, cb, rt, parseID(data, "fnd:"))
	case data == "confirm_fund":
		b.handleConfirmFund(ctx, cb, rt)
	case data == "notif":
		b.showNotifications(ctx, cb, rt, true)
	case strings.HasPrefix(data, "read:"):
		b.handleMarkRead(ctx, cb, rt, parseID(data, "read:"))
	case data == "read_all":
		b.handleMarkAllRead(ctx, cb, rt)
	case data == "history":
		b.showHistory(ctx, cb, rt)
	case strings.HasPrefix(data, "wtx:"):
		b.showWalletHistory(ctx, cb, rt, parseID(data, "wtx:"))
	default:
		b.log.Warn("unknown callback", "data", data, "chat_id", chatID)
	}
}

// --- Auth flow ---

func (b *Bot) handleLoginEmail(ctx context.Context, chatID int64, text string, flow *Flow) {
	if !strings.Contains(text, "@") {
		b.sendMessage(ctx, chatID, "❌ That doesn't look like an email. Try again:", nil)
		return
	}

	flow.LoginEmail = strings.ToLower(text)
	b.states.Set(chatID, StateWaitLoginPassword, flow)

	b.sendMessage(ctx, chatID, "🔒 Now enter your password:", nil)
}

func (b *Bot) handleLoginPassword(ctx context.Context, chatID int64, password string, flow *Flow) {
	auth, err := b.api.Login(ctx, flow.LoginEmail, password)
	if err != nil {
		b.log.Warn("login failed", "chat_id", chatID, "error", err)
		b.states.Set(chatID, StateWaitLoginEmail, &Flow{})
		b.sendMessage(ctx, chatID,
			"❌ "+transact.FailureMessage(err)+"\n\n🔑 Enter your email to try again:",
			nil,
		)
		return
	}

	b.establishSession(ctx, chatID, auth)
}

func (b *Bot) handleRegName(ctx context.Context, chatID int64, text string, flow *Flow) {
	if len(text) < 2 {
		b.sendMessage(ctx, chatID, "❌ That name is too short. Try again:", nil)
		return
	}

	flow.RegName = text
	b.states.Set(chatID, StateWaitRegEmail, flow)

	b.sendMessage(ctx, chatID, "✉️ What email do you want to sign in with?", nil)
}

func (b *Bot) handleRegEmail(ctx context.Context, chatID int64, text string, flow *Flow) {
	if !strings.Contains(text, "@") {
		b.sendMessage(ctx, chatID, "❌ That doesn't look like an email. Try again:", nil)
		return
	}

	flow.LoginEmail = strings.ToLower(text)
	b.states.Set(chatID, StateWaitRegPassword, flow)

	b.sendMessage(ctx, chatID, "🔒 Pick a password:", nil)
}

func (b *Bot) handleRegPassword(ctx context.Context, chatID int64, password string, flow *Flow) {
	auth, err := b.api.Register(ctx, flow.RegName, flow.LoginEmail, password, "", "")
	if err != nil {
		b.log.Warn("registration failed", "chat_id", chatID, "error", err)
		b.states.Set(chatID, StateWaitRegEmail, flow)
		b.sendMessage(ctx, chatID,
			"❌ "+transact.FailureMessage(err)+"\n\n✉️ Enter a different email:",
			nil,
		)
		return
	}

	b.establishSession(ctx, chatID, auth)
}

// establishSession persists the login, builds the per-chat runtime and shows
// the menu. Shared by sign-in and sign-up.
func (b *Bot) establishSession(ctx context.Context, chatID int64, auth *gateway.AuthResponse) {
	sess := &session.Session{
		ChatID:    chatID,
		UserID:    auth.User.ID,
		Name:      auth.User.Name,
		Email:     auth.User.Email,
		Token:     auth.Token,
		CreatedAt: time.Now(),
	}
	if err := b.sessions.Save(sess); err != nil {
		b.log.Error("save session", "chat_id", chatID, "error", err)
	}

	b.states.Clear(chatID)
	rt := b.attach(sess)

	if err := rt.wallets.Refresh(rt.ctx); err != nil {
		b.log.Warn("initial wallet refresh", "chat_id", chatID, "error", err)
	}

	b.log.Info("user logged in", "chat_id", chatID, "user_id", auth.User.ID)
	b.sendMessage(ctx, chatID, b.menuText(rt), MainKeyboard())
}

// --- Wallet views ---

func (b *Bot) showWallets(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	if err := rt.wallets.Refresh(ctx); err != nil {
		b.log.Warn("wallet refresh", "chat_id", rt.sess.ChatID, "error", err)
	}

	wallets := rt.wallets.List()
	if len(wallets) == 0 {
		b.editMessage(ctx, cb.Message, "You have no wallets yet. Create one 👇", WalletsKeyboard(nil))
		return
	}

	var lines []string
	lines = append(lines, "💼 <b>Your wallets</b>\n")
	for _, w := range wallets {
		line := fmt.Sprintf("%s <b>%s</b> — %s%s (%s today)",
			w.Flag, w.DisplayName(), w.Symbol, w.Balance.StringFixed(2), fmtChange(w.DailyChange))
		if rt.wallets.Pending(w.ID) {
			line += " 🔄"
		}
		lines = append(lines, line)
	}

	b.editMessage(ctx, cb.Message, strings.Join(lines, "\n"), WalletsKeyboard(wallets))
}

func (b *Bot) showNewWallet(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	owned := make(map[string]bool)
	for _, w := range rt.wallets.List() {
		owned[w.Currency] = true
	}

	b.editMessage(ctx, cb.Message, "➕ Pick a currency for the new wallet:", CurrencyKeyboard(owned))
}

func (b *Bot) handleCreateWallet(ctx context.Context, cb *models.CallbackQuery, rt *runtime, currency string) {
	wallet, err := rt.api.CreateWallet(ctx, rt.sess.UserID, currency, decimal.Zero)
	if err != nil {
		b.log.Error("create wallet", "chat_id", rt.sess.ChatID, "error", err)
		b.editMessage(ctx, cb.Message, "❌ "+transact.FailureMessage(err), WalletsKeyboard(rt.wallets.List()))
		return
	}

	rt.wallets.MergeWallet(*wallet)
	b.log.Info("wallet created", "chat_id", rt.sess.ChatID, "wallet_id", wallet.ID, "currency", currency)
	b.showWallets(ctx, cb, rt)
}

// --- History ---

func (b *Bot) showHistory(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	txs, err := rt.api.Transactions(ctx, rt.sess.UserID)
	if err != nil {
		b.log.Error("load transactions", "chat_id", rt.sess.ChatID, "error", err)
		b.editMessage(ctx, cb.Message, "❌ "+transact.FailureMessage(err), StartMenuKeyboard())
		return
	}

	if len(txs) == 0 {
		b.editMessage(ctx, cb.Message, "📜 No transactions yet.", StartMenuKeyboard())
		return
	}

	if len(txs) > 10 {
		txs = txs[:10]
	}

	var lines []string
	lines = append(lines, "📜 <b>Recent transactions</b>\n")
	for _, tx := range txs {
		lines = append(lines, fmt.Sprintf("%s <b>%s</b> — %s\n<i>%s · %s</i>",
			txIcon(tx.Type), tx.Amount.StringFixed(2), tx.Description,
			strings.ToLower(tx.Status), timeAgo(tx.Timestamp.Time)))
	}

	b.editMessage(ctx, cb.Message, strings.Join(lines, "\n"), StartMenuKeyboard())
}

func (b *Bot) showWalletHistory(ctx context.Context, cb *models.CallbackQuery, rt *runtime, walletID int64) {
	wallet, ok := rt.wallets.Get(walletID)
	if !ok {
		b.editMessage(ctx, cb.Message, "❌ Wallet not found.", StartMenuKeyboard())
		return
	}

	txs, err := rt.api.WalletTransactions(ctx, walletID)
	if err != nil {
		b.log.Error("load wallet transactions", "chat_id", rt.sess.ChatID, "wallet_id", walletID, "error", err)
		b.editMessage(ctx, cb.Message, "❌ "+transact.FailureMessage(err), StartMenuKeyboard())
		return
	}

	if len(txs) == 0 {
		b.editMessage(ctx, cb.Message,
			fmt.Sprintf("📜 No transactions on %s <b>%s</b> yet.", wallet.Flag, wallet.DisplayName()),
			StartMenuKeyboard())
		return
	}

	if len(txs) > 10 {
		txs = txs[:10]
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("📜 <b>%s %s</b>\n", wallet.Flag, wallet.DisplayName()))
	for _, tx := range txs {
		lines = append(lines, fmt.Sprintf("%s <b>%s%s</b> — %s\n<i>%s · %s</i>",
			txIcon(tx.Type), wallet.Symbol, tx.Amount.StringFixed(2), tx.Description,
			strings.ToLower(tx.Status), timeAgo(tx.Timestamp.Time)))
	}

	b.editMessage(ctx, cb.Message, strings.Join(lines, "\n"), StartMenuKeyboard())
}

// --- Helpers ---

func (b *Bot) menuText(rt *runtime) string {
	name := rt.sess.Name
	if name == "" {
		name = rt.sess.Email
	}
	return fmt.Sprintf("💸 <b>GlidePay</b>\n\nHi %s! What would you like to do? 👇", name)
}

// unreadPing is invoked by the notification poller when the unread count
// rises between polls.
func (b *Bot) unreadPing(chatID int64, count int) {
	b.mu.Lock()
	ctx := b.runCtx
	b.mu.Unlock()
	if ctx == nil {
		return
	}

	noun := "notifications"
	if count == 1 {
		noun = "notification"
	}
	b.sendMessage(ctx, chatID,
		fmt.Sprintf("🔔 You have <b>%d</b> unread %s.", count, noun),
		OpenNotificationsKeyboard(),
	)
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string, keyboard *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		b.log.Error("send message", "error", err)
	}
}

func (b *Bot) editMessage(ctx context.Context, msg models.MaybeInaccessibleMessage, text string, keyboard *models.InlineKeyboardMarkup) {
	if msg.Message == nil {
		return
	}

	params := &bot.EditMessageTextParams{
		ChatID:    msg.Message.Chat.ID,
		MessageID: msg.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.EditMessageText(ctx, params)
	if err != nil {
		b.log.Error("edit message", "error", err)
	}
}

func parseID(data, prefix string) int64 {
	id, _ := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id
}

func fmtChange(change decimal.Decimal) string {
	if change.IsNegative() {
		return change.StringFixed(2) + "%"
	}
	return "+" + change.StringFixed(2) + "%"
}

func txIcon(txType string) string {
	switch txType {
	case "DEPOSIT":
		return "💳"
	case "TRANSFER":
		return "📤"
	case "CONVERSION":
		return "🔄"
	case "WITHDRAWAL":
		return "🏧"
	default:
		return "💰"
	}
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
