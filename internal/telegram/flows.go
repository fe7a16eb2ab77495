package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glidepay/wallet-bot/internal/money"
	"github.com/glidepay/wallet-bot/internal/recipient"
	"github.com/glidepay/wallet-bot/internal/transact"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
)

func (b *Bot) flowFor(chatID int64) *Flow {
	st := b.states.Get(chatID)
	if st == nil {
		return nil
	}
	return st.Flow
}

// --- Send money ---

func (b *Bot) startSend(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	chatID := cb.From.ID
	b.clearFlow(chatID)

	wallets := rt.wallets.List()
	if len(wallets) == 0 {
		if err := rt.wallets.Refresh(ctx); err != nil {
			b.log.Warn("wallet refresh", "chat_id", chatID, "error", err)
		}
		wallets = rt.wallets.List()
	}
	if len(wallets) == 0 {
		b.editMessage(ctx, cb.Message, "You have no wallets to send from.", StartMenuKeyboard())
		return
	}

	flow := &Flow{Submitter: transact.NewSubmitter(rt.api, rt.wallets, b.log)}
	b.states.Set(chatID, StatePickWallet, flow)

	b.editMessage(ctx, cb.Message, "📤 Which wallet do you want to send from?", WalletPickKeyboard(wallets, "src", 0))
}

func (b *Bot) handlePickSource(ctx context.Context, cb *models.CallbackQuery, rt *runtime, walletID int64) {
	chatID := cb.From.ID
	flow := b.flowFor(chatID)
	if flow == nil || flow.Submitter == nil {
		return
	}

	wallet, ok := rt.wallets.Get(walletID)
	if !ok {
		b.editMessage(ctx, cb.Message, "❌ Wallet not found.", StartMenuKeyboard())
		return
	}

	flow.Transfer.SourceWalletID = walletID
	flow.Resolver = recipient.New(rt.ctx, rt.api, rt.sess.Email, b.cfg.RecipientDebounce, b.log,
		b.recipientUpdates(rt, chatID, flow))
	flow.Resolver.SetCurrency(wallet.Currency)
	b.states.Set(chatID, StateWaitRecipient, flow)

	b.editMessage(ctx, cb.Message,
		fmt.Sprintf("📤 Sending from %s <b>%s</b> (%s%s)\n\n✉️ Enter the recipient's email:",
			wallet.Flag, wallet.DisplayName(), wallet.Symbol, wallet.Balance.StringFixed(2)),
		BackKeyboard(),
	)
}

// recipientUpdates bridges resolver outcomes back into the chat. The
// resolver fires from a timer goroutine, so the callback re-checks that the
// chat is still on the same flow before acting.
func (b *Bot) recipientUpdates(rt *runtime, chatID int64, flow *Flow) func(recipient.Update) {
	return func(u recipient.Update) {
		st := b.states.Get(chatID)
		if st == nil || st.Flow != flow || st.State != StateWaitRecipient {
			return
		}
		// The resolver notifies outside its lock, so an update for an
		// already-superseded input can still land here after newer typing.
		if u.Gen != flow.Resolver.Snapshot().Gen {
			return
		}

		switch u.Status {
		case recipient.StatusResolved:
			flow.Transfer.RecipientEmail = u.Email
			b.states.Set(chatID, StateWaitSendAmount, flow)

			src, _ := rt.wallets.Get(flow.Transfer.SourceWalletID)
			text := fmt.Sprintf("✅ Recipient: <b>%s</b> (%s wallet)", u.Quote.RecipientName, u.Quote.RecipientCurrency)
			if !strings.EqualFold(src.Currency, u.Quote.RecipientCurrency) && !u.Quote.Rate.IsZero() {
				text += fmt.Sprintf("\n💱 Rate: 1 %s ≈ %s %s", src.Currency, u.Quote.Rate.StringFixed(4), u.Quote.RecipientCurrency)
			}
			text += fmt.Sprintf("\n\n💵 How much do you want to send? (balance %s%s)",
				src.Symbol, src.Balance.StringFixed(2))

			b.sendMessage(rt.ctx, chatID, text, BackKeyboard())

		case recipient.StatusRejected:
			b.sendMessage(rt.ctx, chatID, "❌ "+u.Reason+"\n\n✉️ Try another email:", BackKeyboard())
		}
	}
}

func (b *Bot) handleRecipientInput(ctx context.Context, chatID int64, text string, flow *Flow) {
	if flow.Resolver == nil {
		return
	}
	// The resolver answers through its update callback after the quiet
	// period; nothing to send here.
	flow.Resolver.SetEmail(strings.ToLower(text))
}

func (b *Bot) handleSendAmount(ctx context.Context, chatID int64, text string, flow *Flow) {
	rt, ok := b.runtime(chatID)
	if !ok || flow.Resolver == nil {
		return
	}

	snap := flow.Resolver.Snapshot()
	if snap.Status != recipient.StatusResolved || snap.Quote == nil {
		b.sendMessage(ctx, chatID, "⏳ Recipient isn't confirmed yet, one moment…", nil)
		return
	}
	src, ok := rt.wallets.Get(flow.Transfer.SourceWalletID)
	if !ok {
		return
	}

	v := money.Check(text, src.Balance, src.Currency, previewQuote(snap.Quote))
	if !v.OK {
		b.sendMessage(ctx, chatID, "❌ "+capitalize(v.Reason)+". Try again:", BackKeyboard())
		return
	}

	flow.Transfer.Amount = text
	b.states.Set(chatID, StateWaitSendNote, flow)

	summary := fmt.Sprintf("Sending <b>%s%s</b> to <b>%s</b>", src.Symbol, v.Amount.StringFixed(2), snap.Quote.RecipientName)
	if v.Preview != "" {
		summary += fmt.Sprintf("\nThey'll receive <b>%s</b>", v.Preview)
	}
	summary += "\n\n📝 Add a note, or skip:"

	b.sendMessage(ctx, chatID, summary, SkipNoteKeyboard())
}

func (b *Bot) handleSendNote(ctx context.Context, chatID int64, text string, flow *Flow) {
	flow.Transfer.Note = text
	b.states.Set(chatID, StateWaitSendConfirm, flow)
	b.sendMessage(ctx, chatID, b.sendConfirmText(chatID, flow), ConfirmKeyboard("confirm_send"))
}

func (b *Bot) handleSkipNote(ctx context.Context, cb *models.CallbackQuery, chatID int64) {
	flow := b.flowFor(chatID)
	if flow == nil || flow.Resolver == nil {
		return
	}

	flow.Transfer.Note = ""
	b.states.Set(chatID, StateWaitSendConfirm, flow)
	b.editMessage(ctx, cb.Message, b.sendConfirmText(chatID, flow), ConfirmKeyboard("confirm_send"))
}

func (b *Bot) sendConfirmText(chatID int64, flow *Flow) string {
	rt, ok := b.runtime(chatID)
	if !ok {
		return ""
	}
	src, _ := rt.wallets.Get(flow.Transfer.SourceWalletID)
	snap := flow.Resolver.Snapshot()

	name := flow.Transfer.RecipientEmail
	var preview string
	if snap.Quote != nil {
		name = snap.Quote.RecipientName
		v := money.Check(flow.Transfer.Amount, src.Balance, src.Currency, previewQuote(snap.Quote))
		preview = v.Preview
	}

	text := fmt.Sprintf(
		"📤 <b>Confirm transfer</b>\n\n"+
			"To: <b>%s</b> (%s)\n"+
			"Amount: <b>%s%s</b>",
		name, flow.Transfer.RecipientEmail, src.Symbol, flow.Transfer.Amount,
	)
	if preview != "" {
		text += fmt.Sprintf("\nThey'll receive: <b>%s</b>", preview)
	}
	if flow.Transfer.Note != "" {
		text += fmt.Sprintf("\nNote: <i>%s</i>", flow.Transfer.Note)
	}
	return text
}

func (b *Bot) handleConfirmSend(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	chatID := cb.From.ID
	flow := b.flowFor(chatID)
	if flow == nil || flow.Submitter == nil || flow.Resolver == nil {
		return
	}

	snap := flow.Resolver.Snapshot()
	if snap.Status != recipient.StatusResolved {
		b.editMessage(ctx, cb.Message, "❌ Recipient is no longer confirmed. Start over.", StartMenuKeyboard())
		return
	}

	result, err := flow.Submitter.SubmitTransfer(ctx, flow.Transfer, snap.Quote)
	if err != nil {
		b.submitError(ctx, cb, flow, err, "confirm_send", "Transfer failed")
		return
	}

	src, _ := rt.wallets.Get(flow.Transfer.SourceWalletID)
	recvSymbol := ""
	if snap.Quote != nil {
		recvSymbol = snap.Quote.RecipientSymbol
	}

	text := fmt.Sprintf(
		"✅ <b>Money sent!</b>\n\n"+
			"To: <b>%s</b>\n"+
			"Sent: <b>%s%s</b>\n"+
			"They received: <b>%s%s</b>\n"+
			"New balance: <b>%s%s</b>",
		result.RecipientName,
		src.Symbol, result.AmountSent.StringFixed(2),
		recvSymbol, result.AmountReceived.StringFixed(2),
		src.Symbol, result.SenderNewBalance.StringFixed(2),
	)
	if rt.wallets.Pending(src.ID) {
		text += "\n\n🔄 <i>Balance refresh pending</i>"
	}

	b.clearFlow(chatID)
	b.editMessage(ctx, cb.Message, text, StartMenuKeyboard())
}

// --- Convert ---

func (b *Bot) startConvert(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	chatID := cb.From.ID
	b.clearFlow(chatID)

	if err := rt.wallets.Refresh(ctx); err != nil {
		b.log.Warn("wallet refresh", "chat_id", chatID, "error", err)
	}
	wallets := rt.wallets.List()
	if len(wallets) < 2 {
		b.editMessage(ctx, cb.Message, "You need at least two wallets to convert. Create one first 👇", WalletsKeyboard(rt.wallets.List()))
		return
	}

	flow := &Flow{Submitter: transact.NewSubmitter(rt.api, rt.wallets, b.log)}
	b.states.Set(chatID, StatePickWallet, flow)

	b.editMessage(ctx, cb.Message, "🔄 Convert <b>from</b> which wallet?", WalletPickKeyboard(wallets, "cfrom", 0))
}

func (b *Bot) handlePickConvertFrom(ctx context.Context, cb *models.CallbackQuery, rt *runtime, walletID int64) {
	chatID := cb.From.ID
	flow := b.flowFor(chatID)
	if flow == nil || flow.Submitter == nil {
		return
	}

	if _, ok := rt.wallets.Get(walletID); !ok {
		b.editMessage(ctx, cb.Message, "❌ Wallet not found.", StartMenuKeyboard())
		return
	}
	flow.Conversion.FromWalletID = walletID

	b.editMessage(ctx, cb.Message, "🔄 Convert <b>to</b> which wallet?",
		WalletPickKeyboard(rt.wallets.List(), "cto", walletID))
}

func (b *Bot) handlePickConvertTo(ctx context.Context, cb *models.CallbackQuery, rt *runtime, walletID int64) {
	chatID := cb.From.ID
	flow := b.flowFor(chatID)
	if flow == nil || flow.Conversion.FromWalletID == 0 {
		return
	}

	from, okFrom := rt.wallets.Get(flow.Conversion.FromWalletID)
	to, okTo := rt.wallets.Get(walletID)
	if !okFrom || !okTo {
		b.editMessage(ctx, cb.Message, "❌ Wallet not found.", StartMenuKeyboard())
		return
	}
	flow.Conversion.ToWalletID = walletID

	rateLine := "💱 <i>Rate preview unavailable</i>"
	rate, err := rt.api.ExchangeRate(ctx, from.Currency, to.Currency)
	if err != nil {
		b.log.Warn("exchange rate lookup", "chat_id", chatID, "error", err)
	} else {
		flow.ConvertRate = rate
		rateLine = fmt.Sprintf("💱 1 %s ≈ %s %s", from.Currency, rate.StringFixed(4), to.Currency)
	}

	b.states.Set(chatID, StateWaitConvertAmount, flow)
	b.editMessage(ctx, cb.Message,
		fmt.Sprintf("🔄 %s → %s\n%s\n\n💵 How much %s do you want to convert? (balance %s%s)",
			from.Currency, to.Currency, rateLine, from.Currency, from.Symbol, from.Balance.StringFixed(2)),
		BackKeyboard(),
	)
}

func (b *Bot) handleConvertAmount(ctx context.Context, chatID int64, text string, flow *Flow) {
	rt, ok := b.runtime(chatID)
	if !ok {
		return
	}
	from, okFrom := rt.wallets.Get(flow.Conversion.FromWalletID)
	to, okTo := rt.wallets.Get(flow.Conversion.ToWalletID)
	if !okFrom || !okTo {
		return
	}

	var quote *money.Quote
	if !flow.ConvertRate.IsZero() {
		quote = &money.Quote{Rate: flow.ConvertRate, Currency: to.Currency, Symbol: to.Symbol}
	}

	v := money.Check(text, from.Balance, from.Currency, quote)
	if !v.OK {
		b.sendMessage(ctx, chatID, "❌ "+capitalize(v.Reason)+". Try again:", BackKeyboard())
		return
	}

	flow.Conversion.Amount = text
	b.states.Set(chatID, StateWaitConvertConfirm, flow)

	summary := fmt.Sprintf("🔄 <b>Confirm conversion</b>\n\nConvert <b>%s%s</b> from %s to %s",
		from.Symbol, v.Amount.StringFixed(2), from.Currency, to.Currency)
	if v.Preview != "" {
		summary += fmt.Sprintf("\nYou'll receive <b>%s</b>", v.Preview)
	}

	b.sendMessage(ctx, chatID, summary, ConfirmKeyboard("confirm_convert"))
}

func (b *Bot) handleConfirmConvert(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	chatID := cb.From.ID
	flow := b.flowFor(chatID)
	if flow == nil || flow.Submitter == nil {
		return
	}

	result, err := flow.Submitter.SubmitConversion(ctx, flow.Conversion)
	if err != nil {
		b.submitError(ctx, cb, flow, err, "confirm_convert", "Conversion failed")
		return
	}

	from, _ := rt.wallets.Get(flow.Conversion.FromWalletID)
	to, _ := rt.wallets.Get(flow.Conversion.ToWalletID)

	text := fmt.Sprintf(
		"✅ <b>Conversion complete!</b>\n\n"+
			"Converted <b>%s %s</b> → <b>%s %s</b>\n"+
			"Rate applied: <b>%s</b>\n\n"+
			"%s balance: <b>%s%s</b>\n"+
			"%s balance: <b>%s%s</b>",
		result.AmountDebited.StringFixed(2), result.FromCurrency,
		result.AmountCredited.StringFixed(2), result.ToCurrency,
		result.ExchangeRate.StringFixed(4),
		result.FromCurrency, from.Symbol, result.FromWalletBalance.StringFixed(2),
		result.ToCurrency, to.Symbol, result.ToWalletBalance.StringFixed(2),
	)

	b.clearFlow(chatID)
	b.editMessage(ctx, cb.Message, text, StartMenuKeyboard())
}

// --- Fund ---

func (b *Bot) startFund(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	chatID := cb.From.ID
	b.clearFlow(chatID)

	wallets := rt.wallets.List()
	if len(wallets) == 0 {
		if err := rt.wallets.Refresh(ctx); err != nil {
			b.log.Warn("wallet refresh", "chat_id", chatID, "error", err)
		}
		wallets = rt.wallets.List()
	}
	if len(wallets) == 0 {
		b.editMessage(ctx, cb.Message, "You have no wallets to fund. Create one first 👇", WalletsKeyboard(rt.wallets.List()))
		return
	}

	flow := &Flow{Submitter: transact.NewSubmitter(rt.api, rt.wallets, b.log)}
	b.states.Set(chatID, StatePickWallet, flow)

	b.editMessage(ctx, cb.Message, "💳 Which wallet do you want to add funds to?", WalletPickKeyboard(wallets, "fnd", 0))
}

func (b *Bot) handlePickFundWallet(ctx context.Context, cb *models.CallbackQuery, rt *runtime, walletID int64) {
	chatID := cb.From.ID
	flow := b.flowFor(chatID)
	if flow == nil || flow.Submitter == nil {
		return
	}

	wallet, ok := rt.wallets.Get(walletID)
	if !ok {
		b.editMessage(ctx, cb.Message, "❌ Wallet not found.", StartMenuKeyboard())
		return
	}

	flow.Funding.WalletID = walletID
	b.states.Set(chatID, StateWaitFundAmount, flow)

	b.editMessage(ctx, cb.Message,
		fmt.Sprintf("💳 Adding funds to %s <b>%s</b>\n\n💵 How much %s? (max %.0f)",
			wallet.Flag, wallet.DisplayName(), wallet.Currency, b.cfg.MaxFundingAmount),
		BackKeyboard(),
	)
}

func (b *Bot) handleFundAmount(ctx context.Context, chatID int64, text string, flow *Flow) {
	rt, ok := b.runtime(chatID)
	if !ok {
		return
	}
	wallet, ok := rt.wallets.Get(flow.Funding.WalletID)
	if !ok {
		return
	}

	amount, err := money.ParsePositive(text)
	if err != nil {
		b.sendMessage(ctx, chatID, "❌ "+capitalize(err.Error())+". Try again:", BackKeyboard())
		return
	}
	if amount.GreaterThan(decimal.NewFromFloat(b.cfg.MaxFundingAmount)) {
		b.sendMessage(ctx, chatID,
			fmt.Sprintf("❌ The maximum top-up is %.0f %s. Try a smaller amount:", b.cfg.MaxFundingAmount, wallet.Currency),
			BackKeyboard(),
		)
		return
	}

	intent, err := flow.Submitter.StartFunding(ctx, amount, wallet.Currency)
	if err != nil {
		b.log.Error("create payment intent", "chat_id", chatID, "error", err)
		b.sendMessage(ctx, chatID, "❌ "+transact.FailureMessage(err), StartMenuKeyboard())
		return
	}

	flow.Funding.Amount = amount
	flow.Funding.IntentID = paymentIntentID(intent.ClientSecret)
	b.states.Set(chatID, StateWaitFundConfirm, flow)

	b.sendMessage(ctx, chatID,
		fmt.Sprintf("💳 Payment set up for <b>%s%s</b>.\n\n"+
			"Complete the card payment with the processor, then press below 👇",
			wallet.Symbol, amount.StringFixed(2)),
		PaidKeyboard(),
	)
}

func (b *Bot) handleConfirmFund(ctx context.Context, cb *models.CallbackQuery, rt *runtime) {
	chatID := cb.From.ID
	flow := b.flowFor(chatID)
	if flow == nil || flow.Submitter == nil || flow.Funding.IntentID == "" {
		return
	}

	wallet, err := flow.Submitter.SubmitFunding(ctx, transact.FundingDraft{
		WalletID:        flow.Funding.WalletID,
		PaymentIntentID: flow.Funding.IntentID,
	})
	if err != nil {
		b.submitError(ctx, cb, flow, err, "confirm_fund", "Top-up failed")
		return
	}

	text := fmt.Sprintf("✅ <b>Funds added!</b>\n\n%s <b>%s</b> balance: <b>%s%s</b>",
		wallet.Flag, wallet.DisplayName(), wallet.Symbol, wallet.Balance.StringFixed(2))
	if rt.wallets.Pending(wallet.ID) {
		text += "\n\n🔄 <i>Balance refresh pending</i>"
	}

	b.clearFlow(chatID)
	b.editMessage(ctx, cb.Message, text, StartMenuKeyboard())
}

// --- Shared ---

// submitError renders a rejected or failed submission. The draft is kept so
// the user can adjust and resubmit; nothing retries on its own.
func (b *Bot) submitError(ctx context.Context, cb *models.CallbackQuery, flow *Flow, err error, retryAction, headline string) {
	if errors.Is(err, transact.ErrInFlight) || errors.Is(err, transact.ErrDone) {
		// Double tap: the first submission is on the wire or already settled.
		return
	}

	if errors.Is(err, transact.ErrDraftInvalid) {
		b.editMessage(ctx, cb.Message,
			"❌ "+capitalize(draftReason(err))+".\n\nAdjust the draft and try again.",
			RetryKeyboard(retryAction),
		)
		return
	}

	msg := flow.Submitter.Failure()
	if msg == "" {
		msg = transact.FailureMessage(err)
	}
	flow.Submitter.Acknowledge()

	b.editMessage(ctx, cb.Message,
		fmt.Sprintf("❌ <b>%s</b>\n\n%s\n\nYour draft is kept; nothing was retried automatically.", headline, msg),
		RetryKeyboard(retryAction),
	)
}

func previewQuote(q *recipient.Quote) *money.Quote {
	if q == nil {
		return nil
	}
	return &money.Quote{Rate: q.Rate, Currency: q.RecipientCurrency, Symbol: q.RecipientSymbol}
}

// draftReason strips the sentinel prefix from a validation error.
func draftReason(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// paymentIntentID extracts the intent id from a processor client secret of
// the form "pi_xxx_secret_yyy".
func paymentIntentID(clientSecret string) string {
	if i := strings.Index(clientSecret, "_secret"); i > 0 {
		return clientSecret[:i]
	}
	return clientSecret
}
