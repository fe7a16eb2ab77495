// Package recipient turns a free-typed email into a verified recipient
// identity plus a live quote, debouncing input and discarding lookups that
// were superseded before they returned.
package recipient

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/glidepay/wallet-bot/internal/gateway"
)

// Status of the resolver for the current input.
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusResolved
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

const selfTransferReason = "you cannot send money to yourself"

// Checker is the read-only Gateway lookup the resolver depends on.
type Checker interface {
	CheckRecipient(ctx context.Context, email, senderCurrency string) (*gateway.RecipientCheck, error)
}

// Quote is a resolved recipient with the advisory rate for previews. It is
// invalid as soon as the email or source currency changes.
type Quote struct {
	RecipientName     string
	RecipientWalletID int64
	RecipientCurrency string
	RecipientSymbol   string
	Rate              decimal.Decimal
}

// Update is delivered to the notify callback on every state change. Gen is
// the input generation the update belongs to; notify runs outside the
// resolver lock, so a receiver must compare Gen against Snapshot().Gen and
// drop anything superseded in transit.
type Update struct {
	Gen    uint64
	Status Status
	Email  string
	Quote  *Quote
	Reason string
}

// Resolver debounces email input and resolves it against the Gateway. Each
// input change bumps a generation counter; a lookup result is applied only
// while its generation is still the latest, so stale responses never reach
// the UI.
type Resolver struct {
	checker   Checker
	selfEmail string
	quiet     time.Duration
	log       *slog.Logger
	notify    func(Update)

	mu       sync.Mutex
	ctx      context.Context
	gen      uint64
	timer    *time.Timer
	email    string
	currency string
	status   Status
	quote    *Quote
	reason   string
}

// New creates a resolver bound to ctx; a cancelled ctx also tears down any
// in-flight lookup. notify may be nil.
func New(ctx context.Context, checker Checker, selfEmail string, quiet time.Duration, log *slog.Logger, notify func(Update)) *Resolver {
	if notify == nil {
		notify = func(Update) {}
	}
	return &Resolver{
		checker:   checker,
		selfEmail: selfEmail,
		quiet:     quiet,
		log:       log,
		notify:    notify,
		ctx:       ctx,
		status:    StatusIdle,
	}
}

// SetEmail records new input and restarts the quiet period. Any resolution
// in flight for earlier input is invalidated.
func (r *Resolver) SetEmail(email string) {
	r.mu.Lock()
	r.email = strings.TrimSpace(email)
	update := r.restartLocked()
	r.mu.Unlock()

	r.notify(update)
}

// SetCurrency records a source wallet change. An existing quote is stale the
// moment the source currency moves, so resolution restarts.
func (r *Resolver) SetCurrency(currency string) {
	r.mu.Lock()
	if strings.EqualFold(r.currency, currency) {
		r.mu.Unlock()
		return
	}
	r.currency = currency
	update := r.restartLocked()
	r.mu.Unlock()

	r.notify(update)
}

// Snapshot returns the current state.
func (r *Resolver) Snapshot() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Update{Gen: r.gen, Status: r.status, Email: r.email, Quote: r.quote, Reason: r.reason}
}

// Stop clears the pending debounce timer. Call on flow teardown so no
// callback fires against torn-down state.
func (r *Resolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.stopTimerLocked()
}

// restartLocked invalidates any in-flight work and decides the next state
// for the current (email, currency) pair.
func (r *Resolver) restartLocked() Update {
	r.gen++
	r.stopTimerLocked()
	r.quote = nil
	r.reason = ""

	switch {
	case r.email == "" || !strings.Contains(r.email, "@") || r.currency == "":
		r.status = StatusIdle
	case strings.EqualFold(r.email, r.selfEmail):
		// Short-circuit without a network call.
		r.status = StatusRejected
		r.reason = selfTransferReason
	default:
		r.status = StatusPending
		gen := r.gen
		email := r.email
		currency := r.currency
		r.timer = time.AfterFunc(r.quiet, func() {
			r.resolve(gen, email, currency)
		})
	}

	return Update{Gen: r.gen, Status: r.status, Email: r.email, Quote: r.quote, Reason: r.reason}
}

func (r *Resolver) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Resolver) resolve(gen uint64, email, currency string) {
	check, err := r.checker.CheckRecipient(r.ctx, email, currency)

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		r.log.Debug("discarding stale recipient check", "email", email)
		return
	}

	switch {
	case err != nil:
		r.status = StatusRejected
		r.reason = "could not verify recipient, please try again"
		r.log.Warn("check recipient", "error", err)
	case !check.Exists:
		r.status = StatusRejected
		r.reason = check.Message
		if r.reason == "" {
			r.reason = "recipient not found"
		}
	default:
		r.status = StatusResolved
		r.quote = &Quote{
			RecipientName:     check.RecipientName,
			RecipientWalletID: check.RecipientWalletID,
			RecipientCurrency: check.RecipientCurrency,
			RecipientSymbol:   check.RecipientSymbol,
			Rate:              check.ExchangeRate,
		}
	}
	update := Update{Gen: r.gen, Status: r.status, Email: r.email, Quote: r.quote, Reason: r.reason}
	r.mu.Unlock()

	r.notify(update)
}
